package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name        string
		err         *StandardError
		wantCode    string
		wantRetries int
	}{
		{
			name:        "retryable store failure",
			err:         NewStoreQueryFailedError("get_subject", errors.New("connection reset")),
			wantCode:    "STORE_QUERY_FAILED",
			wantRetries: 3,
		},
		{
			name:        "business error never retries",
			err:         NewSubjectNotFoundError("subj-1"),
			wantCode:    "SUBJECT_NOT_FOUND",
			wantRetries: 0,
		},
		{
			name:        "explanation timeout retries once",
			err:         NewExplanationTimeoutError(),
			wantCode:    "EXPLANATION_TIMEOUT",
			wantRetries: 1,
		},
		{
			name:        "unknown code passes through",
			err:         &StandardError{Code: "SOMETHING_ELSE", Message: "odd", Retryable: true},
			wantCode:    "SOMETHING_ELSE",
			wantRetries: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmnErr := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.wantCode, bpmnErr.Code)
			assert.Equal(t, tt.wantRetries, bpmnErr.Retries)

			vars := bpmnErr.ToErrorVariables()
			assert.Equal(t, tt.wantCode, vars["errorCode"])
			assert.Equal(t, string(tt.err.Code), vars["originalErrorCode"])
		})
	}
}

func TestAsStandardError(t *testing.T) {
	wrapped := fmt.Errorf("batch: %w", NewInvalidBatchInputError("topK"))

	stdErr, ok := AsStandardError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrCodeInvalidBatchInput, stdErr.Code)

	_, ok = AsStandardError(errors.New("plain"))
	assert.False(t, ok)
}

func TestGetErrorCategory(t *testing.T) {
	tests := map[ErrorCode]string{
		ErrCodeSubjectNotFound:       "MATCHING",
		ErrCodeCandidateEvaluation:   "MATCHING",
		ErrCodeExplanationTimeout:    "AI",
		ErrCodeStoreQueryFailed:      "DATABASE",
		ErrCodeMatchPersistFailed:    "DATABASE",
		ErrCodePrefilterFailed:       "SEARCH",
		ErrCodeNotificationFailed:    "NOTIFICATION",
		ErrCodeInputValidationFailed: "VALIDATION",
		ErrCodeInvalidBatchInput:     "VALIDATION",
		ErrCodeInternal:              "OTHER",
	}

	for code, want := range tests {
		assert.Equal(t, want, GetErrorCategory(code), string(code))
	}
}

func TestIsRetryableErrorCode(t *testing.T) {
	assert.True(t, IsRetryableErrorCode(ErrCodeMatchPersistFailed))
	assert.False(t, IsRetryableErrorCode(ErrCodeInvalidSubject))
}
