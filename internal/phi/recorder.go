// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package phi

import (
	"context"

	"github.com/bayleaf-health/bayleaf-agents/internal/store"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

// Recorder ties redaction to the transcript: a message's redacted content
// is computed once and its entities are recorded once.
type Recorder struct {
	redactor Redactor
	messages store.MessageStore
	entities store.EntityStore
}

// NewRecorder returns a Recorder.
func NewRecorder(redactor Redactor, messages store.MessageStore, entities store.EntityStore) *Recorder {
	return &Recorder{redactor: redactor, messages: messages, entities: entities}
}

// Redact fills msg.RedactedContent. A message that already carries one is
// returned as cached without calling the detector. For a persisted message
// (non-empty ID) the stored value wins a concurrent race.
func (r *Recorder) Redact(ctx context.Context, msg *store.Message, lang string) (Result, error) {
	if msg.RedactedContent != nil {
		return Result{Text: *msg.RedactedContent, Cached: true}, nil
	}

	res, err := r.redactor.Redact(ctx, msg.Content, lang)
	if err != nil {
		return Result{}, err
	}

	if msg.ID != "" {
		stored, err := r.messages.SetRedactedContent(ctx, msg.ID, res.Text)
		if err != nil {
			return Result{}, bayerr.Wrap(err, bayerr.CodeStoreDatabaseFailure, "storing redacted content")
		}
		if stored != res.Text {
			res = Result{Text: stored, Cached: true}
		}
	}
	msg.RedactedContent = &res.Text
	return res, nil
}

// Record persists the entities detected in msg. It reports false when the
// message already had entities, in which case nothing is written.
func (r *Recorder) Record(ctx context.Context, msg *store.Message, entities []Entity) (bool, error) {
	if len(entities) == 0 {
		return false, nil
	}
	rows := make([]*store.PHIEntity, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, &store.PHIEntity{
			EntityType:   e.Type,
			Placeholder:  e.Placeholder,
			OriginalText: e.Text,
			Start:        e.Start,
			End:          e.End,
		})
	}
	created, err := r.entities.CreateForMessage(ctx, msg.ID, rows)
	if err != nil {
		return false, bayerr.Wrap(err, bayerr.CodeStoreDatabaseFailure, "recording phi entities")
	}
	return created, nil
}
