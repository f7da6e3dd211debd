package model

// Task is the read-only task definition consumed by the grader.
type Task struct {
	ID           int64  `json:"id"`
	ContestID    int64  `json:"contestId"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	FunctionName string `json:"functionName"`
	MaxPoints    int    `json:"maxPoints"`

	// Boilerplate and Harness are keyed by lowercase language name.
	Boilerplate map[string]string `json:"boilerplate,omitempty"`
	Harness     map[string]string `json:"harness,omitempty"`

	AIEvaluation *AIEvaluationConfig `json:"aiEvaluation,omitempty"`
}

// HarnessFor returns the custom harness template for language, if any.
func (t *Task) HarnessFor(language string) string {
	if t == nil || t.Harness == nil {
		return ""
	}
	return t.Harness[language]
}

// AIEvaluationConfig enables the code-quality blend for a task.
type AIEvaluationConfig struct {
	Enabled          bool   `json:"enabled"`
	Weight           int    `json:"weight"`
	ExpectedConcepts string `json:"expectedConcepts"`
}

// TestCase is one input/expected pair of a task.
type TestCase struct {
	ID             int64  `json:"id"`
	TaskID         int64  `json:"taskId"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	Hidden         bool   `json:"isHidden"`
	OrderIndex     int    `json:"orderIndex"`
}
