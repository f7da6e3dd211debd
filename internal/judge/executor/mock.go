package executor

import (
	"context"
	"hash/fnv"
	"strings"

	"codearena/internal/judge/language"
	"codearena/internal/judge/model"
)

// MockExecutor simulates an engine that accepts every program and echoes the
// expected output. Results are a pure function of the request so repeated
// runs agree.
type MockExecutor struct{}

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

func (m *MockExecutor) Name() string { return BackendMock }

func (m *MockExecutor) Execute(ctx context.Context, req Request) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(req.Source))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(req.Stdin))
	sum := h.Sum32()

	stdout := req.ExpectedOutput
	if stdout != "" && !strings.HasSuffix(stdout, "\n") {
		stdout += "\n"
	}
	return &Outcome{
		StatusID:    language.StatusAccepted,
		Status:      model.StatusAccepted,
		Description: "Accepted",
		Stdout:      stdout,
		TimeMs:      20 + int64(sum%80),
		MemoryKB:    8192 + int64((sum>>8)%4096),
	}, nil
}

var _ Executor = (*MockExecutor)(nil)
