package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Ingestion ─────────────────────────────────────────────────────
	ErrNoInput       ErrCode = "NO_INPUT"
	ErrInputTooShort ErrCode = "INPUT_TOO_SHORT"
	ErrTextTooLong   ErrCode = "TEXT_TOO_LONG"
	ErrTooManyFiles  ErrCode = "TOO_MANY_FILES"
	ErrFileTooLarge  ErrCode = "FILE_TOO_LARGE"
	ErrNoUsableText  ErrCode = "NO_USABLE_TEXT"

	// ─── Generation ────────────────────────────────────────────────────
	ErrGenerationUnavailable ErrCode = "GENERATION_UNAVAILABLE"

	// ─── Export ────────────────────────────────────────────────────────
	ErrAnswerMismatch ErrCode = "ANSWER_MISMATCH"
	ErrNoQuestions    ErrCode = "NO_QUESTIONS"
	ErrNotRetryable   ErrCode = "EXPORT_NOT_RETRYABLE"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Ingestion ─────────────────────────────────────────────────────
	case ErrNoInput:
		return "Please upload a file or paste some text."
	case ErrInputTooShort:
		return "The provided text is too short to generate a quiz."
	case ErrTextTooLong:
		return "The pasted text exceeds the character limit."
	case ErrTooManyFiles:
		return "Too many files uploaded."
	case ErrFileTooLarge:
		return "File size exceeds the limit."
	case ErrNoUsableText:
		return "No text could be extracted from the uploaded files."

	// ─── Generation ────────────────────────────────────────────────────
	case ErrGenerationUnavailable:
		return "The quiz generator is unavailable right now. Please try again."

	// ─── Export ────────────────────────────────────────────────────────
	case ErrAnswerMismatch:
		return "Some questions have a correct answer that does not match exactly one option."
	case ErrNoQuestions:
		return "The quiz has no questions to export."
	case ErrNotRetryable:
		return "Only failed exports can be retried."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Something went wrong."
	default:
		return "An unexpected error occurred."
	}
}
