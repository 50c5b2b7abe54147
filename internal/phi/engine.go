// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

// Package phi detects sensitive spans through an external detector service,
// swaps them for stable placeholders, and restores placeholders from the
// entities recorded for a conversation.
package phi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

// DefaultEntities is the detector allowlist used when none is configured.
var DefaultEntities = []string{"PERSON", "EMAIL_ADDRESS", "PHONE_NUMBER"}

// DefaultTimeout bounds one detector call.
const DefaultTimeout = 10 * time.Second

// Entity is one detected sensitive span. Start and End are code point
// offsets into the redacted input and may be absent.
type Entity struct {
	Type        string
	Text        string
	Start       *int
	End         *int
	Placeholder string
}

// Result is the outcome of one redaction.
type Result struct {
	Text     string
	Entities []Entity
	// Cached is set when the text came from a previously stored redaction.
	Cached bool
}

// Redactor is the contract the rest of the system depends on.
type Redactor interface {
	Redact(ctx context.Context, text, lang string) (Result, error)
}

// EngineConfig configures the detector client.
type EngineConfig struct {
	URL        string
	Timeout    time.Duration
	Entities   []string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Engine calls the detector and applies placeholders. It is fail-closed:
// when the detector cannot be reached no text is returned.
type Engine struct {
	url      string
	entities []string
	client   *http.Client
	log      *slog.Logger
}

var _ Redactor = (*Engine)(nil)

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, bayerr.New(bayerr.CodeConfigValidateInvalidValue, "phi detector url is required")
	}
	entities := cfg.Entities
	if len(entities) == 0 {
		entities = DefaultEntities
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		url:      cfg.URL,
		entities: entities,
		client:   client,
		log:      logger.With("component", "phi_filter"),
	}, nil
}

type detectRequest struct {
	Text                  string   `json:"text"`
	Language              string   `json:"language"`
	Entities              []string `json:"entities"`
	ReturnDecisionProcess bool     `json:"return_decision_process"`
}

// Redact replaces detected PHI in text with placeholders. Detection runs on
// the NFC form of text; the placeholders are spliced into text itself, so
// everything outside a detected span is returned unchanged.
func (e *Engine) Redact(ctx context.Context, text, lang string) (Result, error) {
	if text == "" {
		return Result{Text: text}, nil
	}

	normalized := normalize(text)
	language := NormalizeLanguage(lang)
	e.log.InfoContext(ctx, "phi_filter_request",
		slog.String("url", e.url),
		slog.String("lang", language),
		slog.Any("entities", e.entities),
	)

	body, err := json.Marshal(detectRequest{
		Text:     normalized.text,
		Language: language,
		Entities: e.entities,
	})
	if err != nil {
		return Result{}, bayerr.Wrap(err, bayerr.CodePHIRedactionUnavailable, "encoding detector request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, bayerr.Wrap(err, bayerr.CodePHIRedactionUnavailable, "building detector request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.WarnContext(ctx, "phi_filter_call_failed", slog.String("error", err.Error()))
		return Result{}, bayerr.Wrap(err, bayerr.CodePHIRedactionUnavailable, "phi_filter_unreachable")
	}
	defer resp.Body.Close() //nolint:errcheck // body already consumed

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		e.log.WarnContext(ctx, "phi_filter_call_failed", slog.String("error", err.Error()))
		return Result{}, bayerr.Wrap(err, bayerr.CodePHIRedactionUnavailable, "phi_filter_unreachable")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.log.WarnContext(ctx, "phi_filter_non_200", slog.Int("status", resp.StatusCode))
		return Result{}, bayerr.New(bayerr.CodePHIRedactionUnavailable,
			fmt.Sprintf("phi_filter_status_%d", resp.StatusCode),
			bayerr.Field("status", resp.StatusCode))
	}

	entities, err := parseFindings(raw)
	if err != nil {
		e.log.WarnContext(ctx, "phi_filter_response_invalid",
			slog.String("code", string(bayerr.CodeOf(err))),
			slog.Int("len", len(raw)),
		)
	}
	if len(entities) == 0 {
		if fallback := emailFallback(normalized.text); len(fallback) > 0 {
			e.log.InfoContext(ctx, "phi_filter_email_fallback_used", slog.Int("count", len(fallback)))
			entities = fallback
		}
	}

	redacted := text
	if len(entities) == 0 {
		e.log.InfoContext(ctx, "phi_filter_no_entities_passthrough")
	} else {
		entities = normalized.toSource(text, entities)
		redacted = applyReplacements(text, entities)
	}

	e.log.InfoContext(ctx, "phi_filter_response",
		slog.Int("status", resp.StatusCode),
		slog.Int("entity_count", len(entities)),
		slog.Bool("changed", redacted != text),
	)
	return Result{Text: redacted, Entities: entities}, nil
}

// NormalizeLanguage reduces a locale such as "pt-BR" to the lowercase
// two-letter code the detector expects. Empty input yields "en".
func NormalizeLanguage(lang string) string {
	code, _, _ := strings.Cut(strings.TrimSpace(lang), "-")
	code = strings.ToLower(code)
	if code == "" {
		return "en"
	}
	return code
}

// IsUnavailable reports whether err means the detector could not redact.
func IsUnavailable(err error) bool {
	return bayerr.HasCode(err, bayerr.CodePHIRedactionUnavailable)
}
