package rpcmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessResultEnvelope(t *testing.T) {
	r := NewSuccess(map[string]any{"rows_affected": 1})
	env := r.ToEnvelope("req-1")
	require.False(t, env.IsError())
	assert.Equal(t, true, env.Result["success"])
}

func TestDataResultEnvelopeDefaultsToEmptySlice(t *testing.T) {
	r := DataResult{}
	env := r.ToEnvelope("req-2")
	data, ok := env.Result["data"].([]map[string]any)
	require.True(t, ok)
	assert.Empty(t, data)
}

func TestErrorResultEnvelope(t *testing.T) {
	r := NewError(ErrCodeNotFound, "table missing", map[string]any{"table_name": "files"})
	env := r.ToEnvelope("req-3")
	require.True(t, env.IsError())
	assert.Equal(t, int(ErrCodeNotFound), env.Error.Code)
	assert.Equal(t, "files", env.Error.Data["table_name"])
}

func TestErrorCodeStringIsStable(t *testing.T) {
	cases := map[ErrorCode]string{
		ErrCodeInvalidRequest:   "invalid_request",
		ErrCodeValidationError:  "validation_error",
		ErrCodeDatabaseError:    "database_error",
		ErrCodeTransactionError: "transaction_error",
		ErrCodeInternalError:    "internal_error",
		ErrCodeTimeout:          "timeout",
		ErrCodeQueueFull:        "queue_full",
		ErrCodeConnectionError:  "connection_error",
		ErrCodeNotFound:         "not_found",
	}
	for code, want := range cases {
		assert.Equal(t, want, code.String())
	}
}

func TestResultIsExhaustiveSumType(t *testing.T) {
	var results = []Result{
		NewSuccess(nil),
		NewData(nil),
		NewError(ErrCodeInternalError, "boom", nil),
	}
	for _, r := range results {
		switch r.(type) {
		case SuccessResult, DataResult, ErrorResult:
		default:
			t.Fatalf("unexpected Result variant %T", r)
		}
	}
}
