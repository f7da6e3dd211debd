// Package model holds the submission records the orchestrator persists and
// the contest state it reads.
package model

import (
	"time"

	judgemodel "codearena/internal/judge/model"
)

// CaseResult is one persisted test case outcome. TestCaseID and Hidden keep
// the row projectable after the task's case set changes.
type CaseResult struct {
	TestCaseID int64 `json:"testCaseId"`
	Hidden     bool  `json:"isHidden"`
	judgemodel.ExecutionResult
}

// Submission is an append-only graded attempt. Score is the only field
// changed after insert, and only by an administrator.
type Submission struct {
	ID             int64             `json:"id"`
	UserID         int64             `json:"userId"`
	TaskID         int64             `json:"taskId"`
	ContestID      int64             `json:"contestId"`
	Language       string            `json:"language"`
	LanguageID     int               `json:"languageId"`
	SourceCode     string            `json:"code"`
	Status         judgemodel.Status `json:"status"`
	Results        []CaseResult      `json:"testResults"`
	PassedCount    int               `json:"passedTests"`
	TotalCount     int               `json:"totalTests"`
	MaxExecutionMs int64             `json:"executionTime"`
	MaxMemoryKB    int64             `json:"memoryUsed"`
	Score          int               `json:"score"`
	HintsUsed      int               `json:"hintsUsed"`
	SolutionUsed   bool              `json:"solutionUsed"`

	AIScore            *int   `json:"aiScore,omitempty"`
	AIPassed           *bool  `json:"aiPassed,omitempty"`
	AIFeedback         string `json:"aiFeedback,omitempty"`
	AIExpectedConcepts string `json:"aiExpectedConcepts,omitempty"`

	SubmittedAt time.Time `json:"submittedAt"`
	ProcessedAt time.Time `json:"processedAt"`
}

// ExecutionResults strips the persistence fields.
func (s *Submission) ExecutionResults() []judgemodel.ExecutionResult {
	out := make([]judgemodel.ExecutionResult, len(s.Results))
	for i, r := range s.Results {
		out[i] = r.ExecutionResult
	}
	return out
}

// ContestSettings are the per-contest knobs the grader consults.
type ContestSettings struct {
	ContestID int64 `json:"contestId"`
	// MaxSubmissionsAllowed of zero means unlimited.
	MaxSubmissionsAllowed int  `json:"maxSubmissionsAllowed"`
	AIModeEnabled         bool `json:"aiModeEnabled"`
}

// Progress is a participant's help usage on one task.
type Progress struct {
	HintsUsed    int  `json:"hintsUsed"`
	SolutionUsed bool `json:"solutionUsed"`
}

// Activity log types and severities.
const (
	ActivityTaskSubmitted = "task_submitted"
	ActivityScoreOverride = "score_overridden"
	SeverityInfo          = "info"
	SeverityWarning       = "warning"
)

// ActivityLog is one entry of the contest audit trail.
type ActivityLog struct {
	ContestID int64                  `json:"contestId"`
	UserID    int64                  `json:"userId"`
	Type      string                 `json:"activityType"`
	Severity  string                 `json:"severity"`
	Details   map[string]interface{} `json:"details"`
	CreatedAt time.Time              `json:"createdAt"`
}

// SubmissionEvent is broadcast to contest administrators.
type SubmissionEvent struct {
	Type         string            `json:"type"`
	SubmissionID int64             `json:"submissionId"`
	ContestID    int64             `json:"contestId"`
	TaskID       int64             `json:"taskId"`
	UserID       int64             `json:"userId"`
	Language     string            `json:"language"`
	Status       judgemodel.Status `json:"status"`
	Score        int               `json:"score"`
	PassedTests  int               `json:"passedTests"`
	TotalTests   int               `json:"totalTests"`
	OccurredAt   time.Time         `json:"occurredAt"`
}

const (
	EventSubmissionGraded = "submission.graded"
	EventScoreOverridden  = "submission.score_overridden"
)
