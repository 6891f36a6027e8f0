package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: User module errors
// 12000-12999: Problem module errors
// 13000-13999: Submission & Judge module errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10219)
	CacheError ErrorCode = 10200

	// Message queue errors (10220-10249)
	MQError ErrorCode = 10220

	// Object storage errors (10250-10299)
	StorageError ErrorCode = 10250

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	RequiredFieldEmpty ErrorCode = 10302

	// ========== User Module Errors (11000-11999) ==========

	// Authentication (11000-11099)
	InvalidCredentials    ErrorCode = 11000
	UserNotFound          ErrorCode = 11001
	TokenExpired          ErrorCode = 11002
	TokenInvalid          ErrorCode = 11003
	TokenGenerationFailed ErrorCode = 11004
	TokenRevoked          ErrorCode = 11005

	// Registration (11100-11199)
	EmailAlreadyExists    ErrorCode = 11100
	InvalidEmail          ErrorCode = 11101
	PasswordTooWeak       ErrorCode = 11102
	InvalidUsername       ErrorCode = 11103
	UsernameAlreadyExists ErrorCode = 11104

	// ========== Problem Module Errors (12000-12999) ==========

	// Problem basic (12000-12099)
	ProblemNotFound     ErrorCode = 12000
	ProblemCreateFailed ErrorCode = 12001
	ProblemUpdateFailed ErrorCode = 12002
	ProblemDeleteFailed ErrorCode = 12003

	// Test cases & reference solutions (12100-12199)
	TestCaseMissing           ErrorCode = 12100
	TestCaseInvalid           ErrorCode = 12101
	ReferenceSolutionRejected ErrorCode = 12102

	// ========== Submission & Judge Module Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003
	SubmitTooFrequently    ErrorCode = 13004

	// Judge pipeline (13100-13199)
	JudgeUnavailable ErrorCode = 13100
	JudgeRejected    ErrorCode = 13101
	JudgeTimeout     ErrorCode = 13102
	JudgeSystemError ErrorCode = 13103
	BatchTooLarge    ErrorCode = 13104
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	// Cache & storage
	CacheError:   "Cache operation failed",
	MQError:      "Message queue operation failed",
	StorageError: "Object storage operation failed",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	RequiredFieldEmpty: "Required field is empty",

	// User - Authentication
	InvalidCredentials:    "Invalid email or password",
	UserNotFound:          "User not found",
	TokenExpired:          "Token has expired",
	TokenInvalid:          "Invalid token",
	TokenGenerationFailed: "Failed to generate token",
	TokenRevoked:          "Token has been revoked",

	// User - Registration
	EmailAlreadyExists:    "Email already exists",
	InvalidEmail:          "Invalid email format",
	PasswordTooWeak:       "Password is too weak",
	InvalidUsername:       "Invalid username format",
	UsernameAlreadyExists: "Username already exists",

	// Problem
	ProblemNotFound:     "Problem not found",
	ProblemCreateFailed: "Failed to create problem",
	ProblemUpdateFailed: "Failed to update problem",
	ProblemDeleteFailed: "Failed to delete problem",

	// Test cases & reference solutions
	TestCaseMissing:           "Problem has no test cases",
	TestCaseInvalid:           "Invalid test case format",
	ReferenceSolutionRejected: "Reference solution failed validation",

	// Submission
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	SubmitTooFrequently:    "Submitting too frequently, please wait",

	// Judge pipeline
	JudgeUnavailable: "Judge service unavailable",
	JudgeRejected:    "Judge rejected the submission batch",
	JudgeTimeout:     "Judge did not finish before the deadline",
	JudgeSystemError: "Judge system error",
	BatchTooLarge:    "Submission batch exceeds judge limit",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c >= 11000 && c < 11100: // Authentication errors
		return 401
	case c == Unauthorized:
		return 401
	case c == Forbidden:
		return 403
	case c == NotFound, c == ProblemNotFound, c == SubmissionNotFound, c == RecordNotFound:
		return 404
	case c == EmailAlreadyExists, c == UsernameAlreadyExists, c == RecordAlreadyExists:
		return 409
	case c == TooManyRequests, c == SubmitTooFrequently:
		return 429
	case c == ServiceUnavailable, c == JudgeUnavailable:
		return 503
	case c == Timeout, c == JudgeTimeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == LanguageNotSupported, c == CodeTooLarge, c == BatchTooLarge,
		c == TestCaseMissing, c == TestCaseInvalid, c == ReferenceSolutionRejected,
		c == InvalidEmail, c == InvalidUsername, c == PasswordTooWeak:
		return 400
	default:
		return 500
	}
}
