// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/bayleaf-health/bayleaf-agents/internal/clinical"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
	"github.com/bayleaf-health/bayleaf-agents/pkg/types"
)

// Backend is the subset of the clinical client the tools call.
type Backend interface {
	PatientSummary(ctx context.Context, token string) (map[string]any, error)
	Medications(ctx context.Context, token string) ([]map[string]any, error)
	CreatePatient(ctx context.Context, token string, in clinical.PatientInput) (any, error)
	AvailableSlots(ctx context.Context, token string, q clinical.SearchQuery) ([]any, error)
	AvailableProfessionals(ctx context.Context, token string, q clinical.SearchQuery) ([]any, error)
	AvailableSpecializations(ctx context.Context, token string, q clinical.SearchQuery) ([]any, error)
	ChatToken(ctx context.Context, email, password string) (any, error)
	BookAppointment(ctx context.Context, token string, in clinical.BookingInput) (any, error)
}

var _ Backend = (*clinical.Client)(nil)

// Argument structs, one per tool.
type (
	noArgs struct{}

	createPatientArgs struct {
		FirstName string `mapstructure:"first_name"`
		LastName  string `mapstructure:"last_name"`
		Email     string `mapstructure:"email"`
		Phone     string `mapstructure:"phone"`
	}

	searchArgs struct {
		StartDate string `mapstructure:"start_date"`
		EndDate   string `mapstructure:"end_date"`
		ServiceID int    `mapstructure:"service_id"`
	}

	chatTokenArgs struct {
		Email    string `mapstructure:"email"`
		Password string `mapstructure:"password"`
	}

	bookArgs struct {
		SlotID        string `mapstructure:"slot_id"`
		PaymentMethod string `mapstructure:"payment_method"`
		AccessToken   string `mapstructure:"access_token"`
	}
)

func (a searchArgs) query() clinical.SearchQuery {
	return clinical.SearchQuery{StartDate: a.StartDate, EndDate: a.EndDate, ServiceID: a.ServiceID}
}

// runner is the type-erased view of an entry.
type runner interface {
	required() []string
	run(ctx context.Context, b Backend, p types.Principal, raw map[string]any) (any, error)
}

// entry binds a typed argument struct to the function that runs the tool.
type entry[A any] struct {
	keys []string
	fn   func(ctx context.Context, b Backend, p types.Principal, args A) (any, error)
}

func (e entry[A]) required() []string { return e.keys }

func (e entry[A]) run(ctx context.Context, b Backend, p types.Principal, raw map[string]any) (any, error) {
	var args A
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &args,
	})
	if err != nil {
		return nil, &argsError{err: err}
	}
	if err := dec.Decode(raw); err != nil {
		return nil, &argsError{err: err}
	}
	return e.fn(ctx, b, p, args)
}

type argsError struct{ err error }

func (e *argsError) Error() string { return e.err.Error() }
func (e *argsError) Unwrap() error { return e.err }

var table = map[Name]runner{
	PatientSummary: entry[noArgs]{
		fn: func(ctx context.Context, b Backend, p types.Principal, _ noArgs) (any, error) {
			return b.PatientSummary(ctx, p.RawToken)
		},
	},
	ListMedications: entry[noArgs]{
		fn: func(ctx context.Context, b Backend, p types.Principal, _ noArgs) (any, error) {
			return b.Medications(ctx, p.RawToken)
		},
	},
	CreatePatient: entry[createPatientArgs]{
		keys: []string{"first_name", "email"},
		fn: func(ctx context.Context, b Backend, p types.Principal, a createPatientArgs) (any, error) {
			return b.CreatePatient(ctx, p.RawToken, clinical.PatientInput(a))
		},
	},
	ListAvailableSlots: entry[searchArgs]{
		fn: func(ctx context.Context, b Backend, p types.Principal, a searchArgs) (any, error) {
			return b.AvailableSlots(ctx, p.RawToken, a.query())
		},
	},
	ListAvailableProfessionals: entry[searchArgs]{
		fn: func(ctx context.Context, b Backend, p types.Principal, a searchArgs) (any, error) {
			return b.AvailableProfessionals(ctx, p.RawToken, a.query())
		},
	},
	ListAvailableSpecializations: entry[searchArgs]{
		fn: func(ctx context.Context, b Backend, p types.Principal, a searchArgs) (any, error) {
			return b.AvailableSpecializations(ctx, p.RawToken, a.query())
		},
	},
	ChatToken: entry[chatTokenArgs]{
		keys: []string{"email"},
		fn: func(ctx context.Context, b Backend, _ types.Principal, a chatTokenArgs) (any, error) {
			return b.ChatToken(ctx, a.Email, a.Password)
		},
	},
	BookAppointment: entry[bookArgs]{
		keys: []string{"slot_id"},
		fn: func(ctx context.Context, b Backend, p types.Principal, a bookArgs) (any, error) {
			token := a.AccessToken
			if token == "" {
				token = p.RawToken
			}
			return b.BookAppointment(ctx, token, clinical.BookingInput{SlotID: a.SlotID, PaymentMethod: a.PaymentMethod})
		},
	},
}

// Dispatcher executes tool calls. It holds no per-call state and never
// retries.
type Dispatcher struct {
	backend Backend
	log     *slog.Logger
}

// NewDispatcher returns a Dispatcher calling backend.
func NewDispatcher(backend Backend, logger *slog.Logger) (*Dispatcher, error) {
	if backend == nil {
		return nil, bayerr.New(bayerr.CodeAgentLoopInvalidInput, "tool backend is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{backend: backend, log: logger.With("component", "tools")}, nil
}

// Execute runs the named tool. Failures are reported in-band as an object
// with an "error" key so the model can see them; Execute never fails the
// turn.
func (d *Dispatcher) Execute(ctx context.Context, name string, args map[string]any, p types.Principal) any {
	canonical, ok := Lookup(name)
	if !ok {
		return d.reject(ctx, name, errorResult("unknown_tool:"+name))
	}
	r := table[canonical]

	for _, key := range r.required() {
		if v, present := args[key]; !present || v == nil {
			return d.reject(ctx, string(canonical), errorResult("missing_arg:"+key))
		}
	}

	start := time.Now()
	result, err := r.run(ctx, d.backend, p, args)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		out := failureResult(err)
		code, _ := ErrorCode(out)
		d.log.LogAttrs(ctx, slog.LevelWarn, "tool_failed",
			slog.String("tool", string(canonical)),
			slog.String("code", string(code)),
			slog.Any("error", out["error"]),
			slog.Int64("ms", elapsed),
		)
		return out
	}

	d.log.LogAttrs(ctx, slog.LevelDebug, "tool_executed",
		slog.String("tool", string(canonical)),
		slog.Int64("ms", elapsed),
	)
	return result
}

func (d *Dispatcher) reject(ctx context.Context, tool string, out map[string]any) map[string]any {
	code, _ := ErrorCode(out)
	d.log.LogAttrs(ctx, slog.LevelWarn, "tool_rejected",
		slog.String("tool", tool),
		slog.String("code", string(code)),
		slog.Any("error", out["error"]),
	)
	return out
}

func errorResult(code string) map[string]any {
	return map[string]any{"error": code}
}

func failureResult(err error) map[string]any {
	var (
		argErr     *argsError
		reqErr     *clinical.RequestError
		unexpected *clinical.UnexpectedResponseError
	)
	switch {
	case errors.As(err, &argErr):
		return map[string]any{"error": "invalid_args", "details": argErr.Error()}
	case errors.As(err, &reqErr):
		return map[string]any{
			"error":       "backend_request_failed",
			"status_code": reqErr.StatusCode,
			"details":     reqErr.Body,
		}
	case errors.As(err, &unexpected):
		return map[string]any{"error": "unexpected_response", "details": unexpected.Raw}
	default:
		return map[string]any{"error": "backend_unreachable", "details": err.Error()}
	}
}

// IsError reports whether result is an in-band error object.
func IsError(result any) bool {
	m, ok := result.(map[string]any)
	if !ok {
		return false
	}
	_, has := m["error"]
	return has
}

// ErrorCode classifies an in-band error object. failed is false for any
// other result.
func ErrorCode(result any) (code bayerr.Code, failed bool) {
	m, ok := result.(map[string]any)
	if !ok {
		return "", false
	}
	raw, has := m["error"]
	if !has {
		return "", false
	}
	kind, _ := raw.(string)
	switch {
	case strings.HasPrefix(kind, "unknown_tool:"):
		return bayerr.CodeToolNotFound, true
	case strings.HasPrefix(kind, "missing_arg:"), kind == "invalid_args":
		return bayerr.CodeToolArgsInvalid, true
	default:
		return bayerr.CodeToolBackendFailure, true
	}
}

// EncodeResult serializes a tool result for the model and the transcript.
func EncodeResult(result any) (string, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encoding tool result: %w", err)
	}
	return string(raw), nil
}
