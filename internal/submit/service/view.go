package service

import (
	"time"

	judgemodel "codearena/internal/judge/model"
	"codearena/internal/submit/model"
)

// Viewer is the capability a projection is built for.
type Viewer int

const (
	ViewerParticipant Viewer = iota
	ViewerAdmin
)

// CaseView is one test case as shown to a caller.
type CaseView struct {
	TestCaseID     int64             `json:"testCaseId,omitempty"`
	Input          string            `json:"input"`
	ExpectedOutput string            `json:"expectedOutput"`
	ActualOutput   string            `json:"actualOutput"`
	Passed         bool              `json:"passed"`
	Status         judgemodel.Status `json:"status"`
	Error          string            `json:"error,omitempty"`
	ExecutionTime  int64             `json:"executionTime"`
	Memory         int64             `json:"memory"`
	Hidden         bool              `json:"isHidden"`
}

// HiddenSummary is all a participant learns about hidden cases.
type HiddenSummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
}

// AIView carries the evaluation fields of a submission.
type AIView struct {
	Score            *int   `json:"score,omitempty"`
	Passed           *bool  `json:"passed,omitempty"`
	Feedback         string `json:"feedback"`
	ExpectedConcepts string `json:"expectedConcepts,omitempty"`
}

// SubmissionView is the response shape of submit and history.
type SubmissionView struct {
	ID            int64             `json:"id"`
	TaskID        int64             `json:"taskId"`
	ContestID     int64             `json:"contestId"`
	UserID        int64             `json:"userId"`
	Language      string            `json:"language"`
	Code          string            `json:"code,omitempty"`
	Status        judgemodel.Status `json:"status"`
	Score         int               `json:"score"`
	PassedTests   int               `json:"passedTests"`
	TotalTests    int               `json:"totalTests"`
	ExecutionTime int64             `json:"executionTime"`
	MemoryUsed    int64             `json:"memoryUsed"`
	TestResults   []CaseView        `json:"testResults"`
	Hidden        *HiddenSummary    `json:"hiddenTestResults,omitempty"`
	AI            *AIView           `json:"aiEvaluation,omitempty"`
	HintsUsed     int               `json:"hintsUsed"`
	SolutionUsed  bool              `json:"solutionUsed"`
	SubmittedAt   time.Time         `json:"submittedAt"`
}

// RunView is the response shape of a run; every case used is shown in full.
type RunView struct {
	Status      judgemodel.Status `json:"status"`
	Score       int               `json:"score"`
	PassedTests int               `json:"passedTests"`
	TotalTests  int               `json:"totalTests"`
	TestResults []CaseView        `json:"testResults"`
}

// Project builds the view of sub for viewer. cases supplies inputs and
// expected outputs by test case id. Participants see hidden cases only as
// an aggregate; admins see every case.
func Project(viewer Viewer, sub *model.Submission, cases []judgemodel.TestCase) SubmissionView {
	byID := make(map[int64]judgemodel.TestCase, len(cases))
	for _, tc := range cases {
		byID[tc.ID] = tc
	}

	view := SubmissionView{
		ID:            sub.ID,
		TaskID:        sub.TaskID,
		ContestID:     sub.ContestID,
		UserID:        sub.UserID,
		Language:      sub.Language,
		Code:          sub.SourceCode,
		Status:        sub.Status,
		Score:         sub.Score,
		PassedTests:   sub.PassedCount,
		TotalTests:    sub.TotalCount,
		ExecutionTime: sub.MaxExecutionMs,
		MemoryUsed:    sub.MaxMemoryKB,
		TestResults:   make([]CaseView, 0, len(sub.Results)),
		HintsUsed:     sub.HintsUsed,
		SolutionUsed:  sub.SolutionUsed,
		SubmittedAt:   sub.SubmittedAt,
	}
	if sub.AIScore != nil || sub.AIFeedback != "" {
		view.AI = &AIView{
			Score:    sub.AIScore,
			Passed:   sub.AIPassed,
			Feedback: sub.AIFeedback,
		}
		if viewer == ViewerAdmin {
			view.AI.ExpectedConcepts = sub.AIExpectedConcepts
		}
	}

	var hidden HiddenSummary
	for _, r := range sub.Results {
		if r.Hidden && viewer != ViewerAdmin {
			hidden.Total++
			if r.Passed {
				hidden.Passed++
			}
			continue
		}
		tc := byID[r.TestCaseID]
		view.TestResults = append(view.TestResults, CaseView{
			TestCaseID:     r.TestCaseID,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			ActualOutput:   r.ActualOutput,
			Passed:         r.Passed,
			Status:         r.Status,
			Error:          r.Error,
			ExecutionTime:  r.ExecutionTimeMs,
			Memory:         r.MemoryKB,
			Hidden:         r.Hidden,
		})
	}
	if hidden.Total > 0 {
		view.Hidden = &hidden
	}
	return view
}

// ProjectRun shows every case of a run, aligned by index with cases.
func ProjectRun(status judgemodel.Status, score int, cases []judgemodel.TestCase, results []judgemodel.ExecutionResult) RunView {
	view := RunView{
		Status:      status,
		Score:       score,
		TotalTests:  len(results),
		TestResults: make([]CaseView, len(results)),
	}
	for i, r := range results {
		if r.Passed {
			view.PassedTests++
		}
		tc := cases[i]
		view.TestResults[i] = CaseView{
			TestCaseID:     tc.ID,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			ActualOutput:   r.ActualOutput,
			Passed:         r.Passed,
			Status:         r.Status,
			Error:          r.Error,
			ExecutionTime:  r.ExecutionTimeMs,
			Memory:         r.MemoryKB,
			Hidden:         tc.Hidden,
		}
	}
	return view
}
