package response

import (
	"errors"
	"net/http"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired   ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid    ErrCode = "TOKEN_INVALID"
	ErrTokenExpired    ErrCode = "TOKEN_EXPIRED"
	ErrTakerAccessOnly ErrCode = "TAKER_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidAnswer  ErrCode = "INVALID_ANSWER"

	// ─── Attempt ───────────────────────────────────────────────────────
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrSessionNotFound  ErrCode = "SESSION_NOT_FOUND"
	ErrTestNotFound     ErrCode = "TEST_NOT_FOUND"
	ErrSessionCompleted ErrCode = "SESSION_COMPLETED"
	ErrResultPending    ErrCode = "RESULT_PENDING"
	ErrNoQuestions      ErrCode = "NO_QUESTIONS"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."
	case ErrTakerAccessOnly:
		return "This resource is limited to test takers."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidAnswer:
		return "The answer does not fit the question."

	case ErrNotFound:
		return "Resource not found."
	case ErrSessionNotFound:
		return "Exam session not found."
	case ErrTestNotFound:
		return "Test not found."
	case ErrSessionCompleted:
		return "This exam session has already been submitted."
	case ErrResultPending:
		return "The result is not ready yet."
	case ErrNoQuestions:
		return "This test has no questions."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "Internal server error."
	default:
		return "Unexpected error."
	}
}

// ClassifyError maps a domain error to its HTTP status and code. notFound
// picks the code used for model.ErrNotFound.
func ClassifyError(err error, notFound ErrCode) (int, ErrCode) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, notFound
	case errors.Is(err, model.ErrSessionCompleted):
		return http.StatusConflict, ErrSessionCompleted
	case errors.Is(err, model.ErrResultPending):
		return http.StatusConflict, ErrResultPending
	case errors.Is(err, model.ErrInvalidAnswer):
		return http.StatusBadRequest, ErrInvalidAnswer
	case errors.Is(err, model.ErrNoQuestions):
		return http.StatusUnprocessableEntity, ErrNoQuestions
	default:
		return http.StatusInternalServerError, ErrInternal
	}
}

// CodeError maps a code received from the API back to its domain error, or
// nil when the code has no domain meaning.
func CodeError(code ErrCode) error {
	switch code {
	case ErrNotFound, ErrSessionNotFound, ErrTestNotFound:
		return model.ErrNotFound
	case ErrSessionCompleted:
		return model.ErrSessionCompleted
	case ErrResultPending:
		return model.ErrResultPending
	case ErrInvalidAnswer:
		return model.ErrInvalidAnswer
	case ErrNoQuestions:
		return model.ErrNoQuestions
	default:
		return nil
	}
}
