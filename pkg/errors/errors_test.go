// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := bayerr.New(
		bayerr.CodeConfigValidateInvalidValue,
		"invalid model configuration",
		bayerr.FieldConversationID("conv-123"),
		bayerr.Field("provider", "openai"),
	)

	require.Error(t, err)
	assert.Equal(t, bayerr.CodeConfigValidateInvalidValue, bayerr.CodeOf(err))
	assert.True(t, bayerr.HasCode(err, bayerr.CodeConfigValidateInvalidValue))

	fields := bayerr.FieldsOf(err)
	assert.Equal(t, "conv-123", fields["conversation_id"])
	assert.Equal(t, "openai", fields["provider"])
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := bayerr.Errorf(bayerr.CodeStoreDatabaseFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, bayerr.CodeStoreDatabaseFailure, bayerr.CodeOf(err))
	assert.Contains(t, err.Error(), "write failed")
}

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("record missing")
	err := bayerr.Wrap(root, bayerr.CodeStoreConversationNotFound, "loading conversation",
		bayerr.FieldConversationID("c-42"),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.True(t, bayerr.IsNotFound(err))
	assert.Equal(t, "c-42", bayerr.FieldsOf(err)["conversation_id"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, bayerr.Wrap(nil, bayerr.CodeServerInternalFailure, "ignored"))
	assert.NoError(t, bayerr.Wrapf(nil, bayerr.CodeServerInternalFailure, "ignored %s", "arg"))
	assert.NoError(t, bayerr.With(nil, bayerr.FieldTool("x")))
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	enriched := bayerr.With(stderrors.New("something broke"), bayerr.FieldUserID("u-1"))

	require.Error(t, enriched)
	assert.Equal(t, bayerr.CodeServerInternalFailure, bayerr.CodeOf(enriched))
	assert.Equal(t, "u-1", bayerr.FieldsOf(enriched)["user_id"])
}

func TestCodeOfReturnsInnermostCodedError(t *testing.T) {
	inner := bayerr.New(bayerr.CodePHIRedactionUnavailable, "detector down")
	outer := bayerr.Wrap(inner, bayerr.CodeAgentLoopFailure, "redacting user message")

	assert.Equal(t, bayerr.CodePHIRedactionUnavailable, bayerr.CodeOf(outer))
	assert.Equal(t, http.StatusServiceUnavailable, bayerr.HTTPStatus(outer))
}

func TestFieldsWithEmptyKeyAreIgnored(t *testing.T) {
	err := bayerr.New(bayerr.CodeStoreDatabaseFailure, "oops",
		bayerr.Field("", "should-be-dropped"),
		bayerr.FieldTool("kept"),
	)
	fields := bayerr.FieldsOf(err)
	assert.Equal(t, "kept", fields["tool"])
	assert.NotContains(t, fields, "")
}

func TestTypedFieldHelpers(t *testing.T) {
	tests := []struct {
		name string
		attr bayerr.Attr
		key  string
	}{
		{"conversation_id", bayerr.FieldConversationID("v"), "conversation_id"},
		{"user_id", bayerr.FieldUserID("v"), "user_id"},
		{"tool", bayerr.FieldTool("v"), "tool"},
		{"agent", bayerr.FieldAgent("v"), "agent"},
		{"provider", bayerr.FieldProvider("v"), "provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, "v", tt.attr.Value)
		})
	}
}

func TestErrorIsWithWrappedChain(t *testing.T) {
	sentinel := stderrors.New("root cause")
	outer := bayerr.Wrap(fmt.Errorf("mid: %w", sentinel), bayerr.CodeServerInternalFailure, "handler")

	assert.ErrorIs(t, outer, sentinel)
}

func TestClassificationAndStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   bayerr.Code
		status int
		check  func(error) bool
	}{
		{name: "conversation not found", code: bayerr.CodeStoreConversationNotFound, status: 404, check: bayerr.IsNotFound},
		{name: "agent not found", code: bayerr.CodeAgentNotFound, status: 404, check: bayerr.IsNotFound},
		{name: "state conflict", code: bayerr.CodeStoreStateAppendConflict, status: 409, check: bayerr.IsConflict},
		{name: "invalid value", code: bayerr.CodeConfigValidateInvalidValue, status: 400, check: bayerr.IsInvalidInput},
		{name: "invalid request", code: bayerr.CodeServerRequestInvalid, status: 400, check: bayerr.IsInvalidInput},
		{name: "unauthorized", code: bayerr.CodeServerAuthUnauthorized, status: 401, check: bayerr.IsUnauthorized},
		{name: "forbidden", code: bayerr.CodeServerAuthForbidden, status: 403, check: bayerr.IsUnauthorized},
		{name: "redaction unavailable", code: bayerr.CodePHIRedactionUnavailable, status: 503, check: bayerr.IsUnavailable},
		{name: "lock timeout", code: bayerr.CodeLockAcquireTimeout, status: 504, check: bayerr.IsTimeout},
		{name: "provider upstream", code: bayerr.CodeProviderUpstreamFailure, status: 502, check: bayerr.IsUpstreamFailure},
		{name: "internal", code: bayerr.CodeServerInternalFailure, status: 500, check: func(err error) bool { return !bayerr.IsNotFound(err) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := bayerr.New(tt.code, "boom")
			assert.Equal(t, tt.status, bayerr.HTTPStatus(err))
			assert.True(t, tt.check(err))
		})
	}
}

func TestClassificationOnPlainAndNilErrors(t *testing.T) {
	for _, err := range []error{nil, stderrors.New("plain")} {
		assert.False(t, bayerr.IsNotFound(err))
		assert.False(t, bayerr.IsConflict(err))
		assert.False(t, bayerr.IsInvalidInput(err))
		assert.False(t, bayerr.IsUnauthorized(err))
		assert.False(t, bayerr.IsUnavailable(err))
		assert.False(t, bayerr.IsTimeout(err))
		assert.False(t, bayerr.IsUpstreamFailure(err))
		assert.Equal(t, http.StatusInternalServerError, bayerr.HTTPStatus(err))
	}
}

func TestJoinCombinesErrors(t *testing.T) {
	a := stderrors.New("first")
	b := stderrors.New("second")
	joined := bayerr.Join(a, b)

	require.Error(t, joined)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
	assert.Equal(t, bayerr.CodeServerInternalFailure, bayerr.CodeOf(joined))
}
