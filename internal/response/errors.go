package response

// ErrCode is a typed error code for consistent API error identification.
type ErrCode string

const (
	// Authentication
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrForbidden     ErrCode = "FORBIDDEN"

	// Validation
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrSemesterRange  ErrCode = "SEMESTER_RANGE_INVALID"

	// Resources
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrConflict        ErrCode = "CONFLICT"
	ErrSemesterOverlap ErrCode = "SEMESTER_OVERLAP"
	ErrNotEnrolled     ErrCode = "STUDENT_NOT_ENROLLED"

	// Scanning
	ErrSessionClosed ErrCode = "SCAN_SESSION_CLOSED"

	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	ErrUnavailable ErrCode = "SERVICE_UNAVAILABLE"
	ErrInternal    ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."
	case ErrForbidden:
		return "You do not have permission to access this resource."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidPayload:
		return "Request payload is invalid."
	case ErrSemesterRange:
		return "Semester end date must be after its start date."

	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrSemesterOverlap:
		return "Semester dates overlap an existing semester."
	case ErrNotEnrolled:
		return "Student is not enrolled in this course."

	case ErrSessionClosed:
		return "Scan session is closed."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrUnavailable:
		return "A backing service is temporarily unavailable."
	case ErrInternal:
		return "Internal server error."
	default:
		return "Unexpected error."
	}
}
