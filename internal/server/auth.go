// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
	"github.com/bayleaf-health/bayleaf-agents/pkg/types"
)

type principalKey struct{}

// PrincipalFrom returns the caller attached by the auth middleware.
func PrincipalFrom(ctx context.Context) (types.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(types.Principal)
	return p, ok
}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p types.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// ParsePrincipal reads the caller from a bearer token without verifying its
// signature; the clinical backend verifies the token on every call it
// receives. Claims that cannot be decoded yield a principal with no user.
func ParsePrincipal(token string) types.Principal {
	p := types.Principal{RawToken: token}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return p
	}

	for _, key := range []string{"user_id", "sub"} {
		if id := claimString(claims[key]); id != "" {
			p.UserID = id
			break
		}
	}

	raw, ok := claims["scope"]
	if !ok || raw == nil || raw == "" {
		raw = claims["scopes"]
	}
	switch v := raw.(type) {
	case string:
		p.Scopes = strings.Fields(v)
	case []any:
		for _, s := range v {
			if str := claimString(s); str != "" {
				p.Scopes = append(p.Scopes, str)
			}
		}
	}
	return p
}

// claimString renders a string or numeric claim. JSON numbers arrive as
// float64; integral ones are printed without a fraction.
func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// principalMiddleware requires a bearer token carrying a user id and every
// scope in required.
func principalMiddleware(required []string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			scheme, token, ok := strings.Cut(header, " ")
			token = strings.TrimSpace(token)
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				writeError(w, http.StatusUnauthorized, "missing_token")
				return
			}

			p := ParsePrincipal(token)
			if !p.HasScopes(required...) {
				log.Warn("auth_insufficient_scope", slog.String("user_id", p.UserID))
				writeError(w, http.StatusForbidden, "insufficient_scope")
				return
			}
			if p.UserID == "" {
				writeError(w, http.StatusUnauthorized, "invalid_token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

// errPrincipalMissing is returned by handlers reached without the auth
// middleware.
var errPrincipalMissing = bayerr.New(bayerr.CodeServerAuthUnauthorized, "request has no principal")
