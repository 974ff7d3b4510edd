// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidSubject        ErrorCode = "INVALID_SUBJECT"
	ErrCodeInvalidBatchInput     ErrorCode = "INVALID_BATCH_INPUT"
	ErrCodeInputValidationFailed ErrorCode = "INPUT_VALIDATION_FAILED"
	ErrCodeSubjectNotFound       ErrorCode = "SUBJECT_NOT_FOUND"
	ErrCodeCandidateEvaluation   ErrorCode = "CANDIDATE_EVALUATION_FAILED"
	ErrCodeExplanationFailed     ErrorCode = "EXPLANATION_FAILED"
	ErrCodeExplanationTimeout    ErrorCode = "EXPLANATION_TIMEOUT"
	ErrCodeStoreQueryFailed      ErrorCode = "STORE_QUERY_FAILED"
	ErrCodePrefilterFailed       ErrorCode = "PREFILTER_FAILED"
	ErrCodeMatchPersistFailed    ErrorCode = "MATCH_PERSIST_FAILED"
	ErrCodeNotificationFailed    ErrorCode = "NOTIFICATION_FAILED"
	ErrCodeInternal              ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// AsStandardError unwraps err to a StandardError if one is in the chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewInvalidSubjectError is returned when a subject profile is missing.
func NewInvalidSubjectError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidSubject,
		Message:   "Subject profile is missing or invalid",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidBatchInputError creates a non-retryable batch parameter error.
func NewInvalidBatchInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidBatchInput,
		Message:   "Invalid batch matching parameters",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInputValidationFailedError wraps schema validation failures of job variables.
func NewInputValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInputValidationFailed,
		Message:   "Job input failed schema validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewSubjectNotFoundError(subjectID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSubjectNotFound,
		Message:   "Subject not found",
		Details:   fmt.Sprintf("subjectId: %s", subjectID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCandidateEvaluationError marks a single candidate as failed. The batch
// keeps going.
func NewCandidateEvaluationError(offeringID string, cause interface{}) *StandardError {
	return &StandardError{
		Code:      ErrCodeCandidateEvaluation,
		Message:   "Candidate evaluation failed",
		Details:   fmt.Sprintf("offeringId: %s, error: %v", offeringID, cause),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewExplanationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExplanationFailed,
		Message:   "Explanation generation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewExplanationTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeExplanationTimeout,
		Message:   "Explanation generation timeout",
		Details:   "all generation attempts exceeded their timeout",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreQueryFailedError creates a retryable storage error.
func NewStoreQueryFailedError(queryType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreQueryFailed,
		Message:   "Store query failed",
		Details:   fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewPrefilterFailedError is logged only; the batch falls back to the full
// candidate list.
func NewPrefilterFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePrefilterFailed,
		Message:   "Candidate prefilter failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewMatchPersistFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMatchPersistFailed,
		Message:   "Failed to persist match results",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewNotificationFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the codes modelled on boundary events.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidSubject:        "INVALID_SUBJECT",
	ErrCodeInvalidBatchInput:     "INVALID_BATCH_INPUT",
	ErrCodeInputValidationFailed: "INPUT_VALIDATION_FAILED",
	ErrCodeSubjectNotFound:       "SUBJECT_NOT_FOUND",
	ErrCodeCandidateEvaluation:   "CANDIDATE_EVALUATION_FAILED",
	ErrCodeExplanationFailed:     "EXPLANATION_FAILED",
	ErrCodeExplanationTimeout:    "EXPLANATION_TIMEOUT",
	ErrCodeStoreQueryFailed:      "STORE_QUERY_FAILED",
	ErrCodePrefilterFailed:       "PREFILTER_FAILED",
	ErrCodeMatchPersistFailed:    "MATCH_PERSIST_FAILED",
	ErrCodeNotificationFailed:    "NOTIFICATION_FAILED",
}

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStoreQueryFailed,
		ErrCodeMatchPersistFailed,
		ErrCodeNotificationFailed,
		ErrCodeExplanationFailed:
		return 3

	case ErrCodePrefilterFailed:
		return 2

	case ErrCodeExplanationTimeout:
		return 1

	default:
		return 0 // Business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "SUBJECT") || strings.Contains(codeStr, "CANDIDATE"):
		return "MATCHING"
	case strings.Contains(codeStr, "EXPLANATION"):
		return "AI"
	case strings.Contains(codeStr, "STORE") || strings.Contains(codeStr, "PERSIST"):
		return "DATABASE"
	case strings.Contains(codeStr, "PREFILTER"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
