package model

// ExecutionResult is the outcome of one test case in one attempt.
// Passed holds only when Status is accepted and the trimmed outputs match.
type ExecutionResult struct {
	Passed          bool   `json:"passed"`
	ActualOutput    string `json:"actualOutput"`
	Error           string `json:"error,omitempty"`
	Status          Status `json:"status"`
	ExecutionTimeMs int64  `json:"executionTime"`
	MemoryKB        int64  `json:"memory"`
}

// Summary aggregates a result set.
type Summary struct {
	Total          int
	Passed         int
	MaxExecutionMs int64
	MaxMemoryKB    int64
}

// Summarize computes pass counts and resource maxima across results.
func Summarize(results []ExecutionResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Passed {
			s.Passed++
		}
		if r.ExecutionTimeMs > s.MaxExecutionMs {
			s.MaxExecutionMs = r.ExecutionTimeMs
		}
		if r.MemoryKB > s.MaxMemoryKB {
			s.MaxMemoryKB = r.MemoryKB
		}
	}
	return s
}

// AllPassed reports a non-empty result set where every case passed.
func (s Summary) AllPassed() bool {
	return s.Total > 0 && s.Passed == s.Total
}
