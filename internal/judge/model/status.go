package model

// Status is the terminal classification of an execution or a submission.
type Status string

const (
	StatusAccepted          Status = "accepted"
	StatusWrongAnswer       Status = "wrong_answer"
	StatusTimeLimitExceeded Status = "time_limit_exceeded"
	StatusCompilationError  Status = "compilation_error"
	StatusRuntimeError      Status = "runtime_error"
	StatusInternalError     Status = "internal_error"

	// StatusPending is reported by the engine while a job is queued or running.
	StatusPending Status = "pending"
)

// IsTerminal reports whether s is a final verdict.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusAccepted, StatusWrongAnswer, StatusTimeLimitExceeded,
		StatusCompilationError, StatusRuntimeError, StatusInternalError:
		return true
	}
	return false
}
