package errors

import "net/http"

// ErrorCode is the stable numeric code returned in every error envelope.
//
//	100xx  common and infrastructure
//	110xx  authentication
//	120xx  tasks and test cases
//	130xx  submissions and grading
//	140xx  contests
type ErrorCode int

const (
	Success             ErrorCode = 10000
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006

	DatabaseError    ErrorCode = 10100
	CacheError       ErrorCode = 10200
	ValidationFailed ErrorCode = 10300

	TokenExpired ErrorCode = 11003
	TokenInvalid ErrorCode = 11004

	TaskNotFound ErrorCode = 12000
	NoTestCases  ErrorCode = 12104

	SubmissionNotFound      ErrorCode = 13000
	CodeTooLarge            ErrorCode = 13002
	LanguageNotSupported    ErrorCode = 13003
	SubmitTooFrequently     ErrorCode = 13004
	SubmissionLimitExceeded ErrorCode = 13006

	ExecutionBackendError ErrorCode = 13107
	ExecutionTimeout      ErrorCode = 13108
	// ParseDegraded and EvaluationFailed tag warn logs; they are never
	// returned to clients.
	ParseDegraded    ErrorCode = 13109
	EvaluationFailed ErrorCode = 13110

	ContestNotFound ErrorCode = 14000
	NotRegistered   ErrorCode = 14103
)

type codeInfo struct {
	status  int
	message string
}

var codes = map[ErrorCode]codeInfo{
	Success:             {http.StatusOK, "Success"},
	InternalServerError: {http.StatusInternalServerError, "Internal server error"},
	InvalidParams:       {http.StatusBadRequest, "Invalid parameters"},
	NotFound:            {http.StatusNotFound, "Resource not found"},
	Unauthorized:        {http.StatusUnauthorized, "Unauthorized access"},
	Forbidden:           {http.StatusForbidden, "Access forbidden"},
	TooManyRequests:     {http.StatusTooManyRequests, "Too many requests, please try again later"},

	DatabaseError:    {http.StatusInternalServerError, "Database operation failed"},
	CacheError:       {http.StatusInternalServerError, "Cache operation failed"},
	ValidationFailed: {http.StatusBadRequest, "Validation failed"},

	TokenExpired: {http.StatusUnauthorized, "Token has expired"},
	TokenInvalid: {http.StatusUnauthorized, "Invalid token"},

	TaskNotFound: {http.StatusNotFound, "Task not found"},
	NoTestCases:  {http.StatusBadRequest, "No test cases available for this task"},

	SubmissionNotFound:      {http.StatusNotFound, "Submission not found"},
	CodeTooLarge:            {http.StatusBadRequest, "Code is too large"},
	LanguageNotSupported:    {http.StatusBadRequest, "Programming language not supported"},
	SubmitTooFrequently:     {http.StatusTooManyRequests, "Submitting too frequently, please wait"},
	SubmissionLimitExceeded: {http.StatusForbidden, "Maximum number of submissions reached for this task"},

	ExecutionBackendError: {http.StatusBadGateway, "Code execution service error"},
	ExecutionTimeout:      {http.StatusGatewayTimeout, "Code execution did not finish in time"},
	ParseDegraded:         {http.StatusInternalServerError, "Test input could not be parsed"},
	EvaluationFailed:      {http.StatusInternalServerError, "Code evaluation failed"},

	ContestNotFound: {http.StatusNotFound, "Contest not found"},
	NotRegistered:   {http.StatusForbidden, "Not registered for this contest"},
}

// Message is the default client message for c.
func (c ErrorCode) Message() string {
	if info, ok := codes[c]; ok {
		return info.message
	}
	return "Unknown error"
}

// HTTPStatus is the response status for c. Unknown codes are 500.
func (c ErrorCode) HTTPStatus() int {
	if info, ok := codes[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}
