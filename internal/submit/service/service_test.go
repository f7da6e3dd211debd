package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/judge/executor"
	"codearena/internal/judge/harness"
	"codearena/internal/judge/language"
	judgemodel "codearena/internal/judge/model"
	"codearena/internal/judge/runner"
	"codearena/internal/judge/scoring"
	"codearena/internal/submit/model"
	"codearena/internal/submit/repository"
	appErr "codearena/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// fakeStore backs every repository the service needs with in-memory state.
type fakeStore struct {
	mu          sync.Mutex
	tasks       map[int64]*judgemodel.Task
	cases       map[int64][]judgemodel.TestCase
	participant map[int64]bool
	settings    model.ContestSettings
	submissions []*model.Submission
	totals      map[int64]int
	nextID      int64
	failCreate  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks: map[int64]*judgemodel.Task{
			10: {ID: 10, ContestID: 1, Title: "Echo", MaxPoints: 100, Description: "echo input"},
		},
		cases: map[int64][]judgemodel.TestCase{
			10: {
				{ID: 101, TaskID: 10, Input: "a", ExpectedOutput: "a", OrderIndex: 0},
				{ID: 102, TaskID: 10, Input: "b", ExpectedOutput: "b", OrderIndex: 1},
				{ID: 103, TaskID: 10, Input: "secret", ExpectedOutput: "secret", Hidden: true, OrderIndex: 2},
				{ID: 104, TaskID: 10, Input: "secret-2", ExpectedOutput: "secret-2", Hidden: true, OrderIndex: 3},
			},
		},
		participant: map[int64]bool{7: true},
		settings:    model.ContestSettings{ContestID: 1},
		totals:      map[int64]int{},
	}
}

func (f *fakeStore) GetTask(ctx context.Context, taskID int64) (*judgemodel.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[taskID]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	return task, nil
}

func (f *fakeStore) ListTestCases(ctx context.Context, taskID int64, includeHidden bool) ([]judgemodel.TestCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []judgemodel.TestCase
	for _, tc := range f.cases[taskID] {
		if tc.Hidden && !includeHidden {
			continue
		}
		out = append(out, tc)
	}
	return out, nil
}

func (f *fakeStore) Create(ctx context.Context, tx db.Transaction, sub *model.Submission) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return 0, errors.New("insert failed")
	}
	f.nextID++
	stored := *sub
	stored.ID = f.nextID
	f.submissions = append(f.submissions, &stored)
	return f.nextID, nil
}

func (f *fakeStore) GetByID(ctx context.Context, tx db.Transaction, id int64) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.submissions {
		if sub.ID == id {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, repository.ErrSubmissionNotFound
}

func (f *fakeStore) CountByUserTask(ctx context.Context, userID, taskID, contestID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, sub := range f.submissions {
		if sub.UserID == userID && sub.TaskID == taskID && sub.ContestID == contestID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListByUserTask(ctx context.Context, userID, taskID, contestID int64, limit int) ([]*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Submission
	for _, sub := range f.submissions {
		if sub.UserID == userID && sub.TaskID == taskID && (contestID == 0 || sub.ContestID == contestID) {
			copied := *sub
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) UpdateScore(ctx context.Context, tx db.Transaction, id int64, score int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.submissions {
		if sub.ID == id {
			sub.Score = score
			return nil
		}
	}
	return repository.ErrSubmissionNotFound
}

func (f *fakeStore) IsParticipant(ctx context.Context, contestID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return contestID == 1 && f.participant[userID], nil
}

func (f *fakeStore) GetSettings(ctx context.Context, contestID int64) (*model.ContestSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	settings := f.settings
	return &settings, nil
}

func (f *fakeStore) RecomputeScore(ctx context.Context, tx db.Transaction, contestID, userID int64, onlyIfHigher bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	best := map[int64]int{}
	for _, sub := range f.submissions {
		if sub.ContestID == contestID && sub.UserID == userID && sub.Score > best[sub.TaskID] {
			best[sub.TaskID] = sub.Score
		}
	}
	total := 0
	for _, v := range best {
		total += v
	}
	if onlyIfHigher && total <= f.totals[userID] {
		return false, nil
	}
	f.totals[userID] = total
	return true, nil
}

func (f *fakeStore) GetProgress(ctx context.Context, contestID, taskID, userID int64) (model.Progress, error) {
	return model.Progress{HintsUsed: 2}, nil
}

func (f *fakeStore) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	return fn(nil)
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submissions)
}

func (f *fakeStore) total(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totals[userID]
}

// echoExecutor echoes the expected output unless the source asks for a
// failure on a given stdin.
type echoExecutor struct {
	mu    sync.Mutex
	calls int
}

func (e *echoExecutor) Name() string { return "echo" }

func (e *echoExecutor) Execute(ctx context.Context, req executor.Request) (*executor.Outcome, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	out := req.ExpectedOutput
	if strings.Contains(req.Source, "fail:"+req.Stdin) {
		out = "wrong"
	}
	return &executor.Outcome{
		StatusID: language.StatusAccepted,
		Status:   judgemodel.StatusAccepted,
		Stdout:   out + "\n",
		TimeMs:   int64(10 + len(req.Stdin)),
		MemoryKB: 1024,
	}, nil
}

type failingEvaluator struct{}

func (failingEvaluator) Evaluate(ctx context.Context, req scoring.EvaluationRequest) (*scoring.Evaluation, error) {
	return nil, errors.New("provider down")
}

type recordingHook struct {
	mu     sync.Mutex
	name   string
	events []CommitEvent
	err    error
}

func (h *recordingHook) Name() string { return h.name }

func (h *recordingHook) AfterCommit(ctx context.Context, ev CommitEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return h.err
}

func (h *recordingHook) recorded() []CommitEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]CommitEvent(nil), h.events...)
}

type fixture struct {
	svc   *SubmitService
	store *fakeStore
	exec  *echoExecutor
	redis *miniredis.Miniredis
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	cacheClient, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("redis cache: %v", err)
	}
	store := newFakeStore()
	exec := &echoExecutor{}
	cfg := Config{
		Tasks:       store,
		Submissions: store,
		Contests:    store,
		Progress:    store,
		Transactor:  store,
		Cache:       cacheClient,
		Runner:      runner.NewRunner(exec, harness.NewWrapper(nil), runner.Config{Concurrency: 2}),
		Scoring:     scoring.NewEngine(nil, time.Second, nil),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewSubmitService(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{svc: svc, store: store, exec: exec, redis: mr}
}

func submitInput(code string) SubmitInput {
	return SubmitInput{UserID: 7, ContestID: 1, TaskID: 10, Language: "Python", Code: code}
}

func TestSubmitLimitRejectsThirdAndRunsDoNotCount(t *testing.T) {
	f := newFixture(t, nil)
	f.store.settings.MaxSubmissionsAllowed = 2
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Run(ctx, RunInput{UserID: 7, TaskID: 10, Language: "python", Code: "print()"}); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Submit(ctx, submitInput("print()")); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	_, err := f.svc.Submit(ctx, submitInput("print()"))
	if !appErr.Is(err, appErr.SubmissionLimitExceeded) {
		t.Fatalf("expected SubmissionLimitExceeded, got %v", err)
	}
	if f.store.count() != 2 {
		t.Fatalf("expected 2 stored submissions, got %d", f.store.count())
	}
}

func TestSubmitHidesHiddenCasesFromParticipants(t *testing.T) {
	f := newFixture(t, nil)
	view, err := f.svc.Submit(context.Background(), submitInput("fail:secret"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(view.TestResults) != 2 {
		t.Fatalf("expected only visible cases, got %d", len(view.TestResults))
	}
	for _, c := range view.TestResults {
		if c.Hidden || strings.Contains(c.Input, "secret") || strings.Contains(c.ExpectedOutput, "secret") {
			t.Fatalf("hidden case leaked: %+v", c)
		}
	}
	if view.Hidden == nil || view.Hidden.Total != 2 || view.Hidden.Passed != 1 {
		t.Fatalf("unexpected hidden summary: %+v", view.Hidden)
	}
	if view.PassedTests != 3 || view.TotalTests != 4 || view.Score != 75 {
		t.Fatalf("unexpected totals: passed=%d total=%d score=%d", view.PassedTests, view.TotalTests, view.Score)
	}
	if view.Status != judgemodel.StatusWrongAnswer {
		t.Fatalf("expected wrong_answer, got %s", view.Status)
	}
	if view.HintsUsed != 2 {
		t.Fatalf("progress snapshot missing: %+v", view)
	}

	admin := Project(ViewerAdmin, f.store.submissions[0], f.store.cases[10])
	if len(admin.TestResults) != 4 || admin.Hidden != nil {
		t.Fatalf("admin should see every case: %+v", admin)
	}
}

func TestScorePropagationKeepsBest(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.svc.Submit(ctx, submitInput("fail:a")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := f.store.total(7); got != 75 {
		t.Fatalf("expected total 75, got %d", got)
	}
	if _, err := f.svc.Submit(ctx, submitInput("fail:a fail:b")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := f.store.total(7); got != 75 {
		t.Fatalf("lower score must not change total, got %d", got)
	}
	view, err := f.svc.Submit(ctx, submitInput("ok"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if view.Status != judgemodel.StatusAccepted || f.store.total(7) != 100 {
		t.Fatalf("higher score should raise total: status=%s total=%d", view.Status, f.store.total(7))
	}
}

func TestSubmitIdempotentReplay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	in := submitInput("ok")
	in.IdempotencyKey = "req-1"

	first, err := f.svc.Submit(ctx, in)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	calls := f.exec.calls
	second, err := f.svc.Submit(ctx, in)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if first.ID != second.ID || f.store.count() != 1 {
		t.Fatalf("replay should return the stored submission: %d vs %d, stored %d", first.ID, second.ID, f.store.count())
	}
	if f.exec.calls != calls {
		t.Fatalf("replay must not execute again")
	}
}

func TestSubmitReleasesIdempotencyKeyOnFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.store.failCreate = true
	in := submitInput("ok")
	in.IdempotencyKey = "req-2"

	if _, err := f.svc.Submit(context.Background(), in); !appErr.Is(err, appErr.DatabaseError) {
		t.Fatalf("expected DatabaseError, got %v", err)
	}
	if f.redis.Exists(idempotencyCacheKey(7, "req-2")) {
		t.Fatalf("idempotency key should be released after failure")
	}
	f.store.failCreate = false
	if _, err := f.svc.Submit(context.Background(), in); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestSubmitLockContention(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.redis.Set("submit:lock:1:10:7", "other-request"); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	_, err := f.svc.Submit(context.Background(), submitInput("ok"))
	if !appErr.Is(err, appErr.SubmitTooFrequently) {
		t.Fatalf("expected SubmitTooFrequently, got %v", err)
	}
	if f.exec.calls != 0 {
		t.Fatalf("nothing should run while the lock is held")
	}
}

func TestSubmitEligibility(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	in := submitInput("ok")
	in.UserID = 8
	if _, err := f.svc.Submit(ctx, in); !appErr.Is(err, appErr.NotRegistered) {
		t.Fatalf("expected NotRegistered, got %v", err)
	}

	in = submitInput("ok")
	in.TaskID = 99
	if _, err := f.svc.Submit(ctx, in); !appErr.Is(err, appErr.TaskNotFound) {
		t.Fatalf("expected TaskNotFound, got %v", err)
	}

	f.store.tasks[11] = &judgemodel.Task{ID: 11, ContestID: 2, MaxPoints: 10}
	in = submitInput("ok")
	in.TaskID = 11
	if _, err := f.svc.Submit(ctx, in); !appErr.Is(err, appErr.TaskNotFound) {
		t.Fatalf("task of another contest should be TaskNotFound, got %v", err)
	}

	in = submitInput("ok")
	in.Language = "cobol"
	if _, err := f.svc.Submit(ctx, in); !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, func(cfg *Config) { cfg.MaxCodeBytes = 8 })
	ctx := context.Background()
	if _, err := f.svc.Submit(ctx, submitInput("   ")); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
	if _, err := f.svc.Submit(ctx, submitInput("print('too long')")); !appErr.Is(err, appErr.CodeTooLarge) {
		t.Fatalf("expected CodeTooLarge, got %v", err)
	}
}

func TestNoTestCases(t *testing.T) {
	f := newFixture(t, nil)
	f.store.cases[10] = []judgemodel.TestCase{
		{ID: 103, TaskID: 10, Input: "secret", ExpectedOutput: "secret", Hidden: true},
	}
	ctx := context.Background()
	if _, err := f.svc.Run(ctx, RunInput{UserID: 7, TaskID: 10, Language: "python", Code: "x"}); !appErr.Is(err, appErr.NoTestCases) {
		t.Fatalf("run with only hidden cases should be NoTestCases, got %v", err)
	}
	f.store.cases[10] = nil
	if _, err := f.svc.Submit(ctx, submitInput("x")); !appErr.Is(err, appErr.NoTestCases) {
		t.Fatalf("expected NoTestCases, got %v", err)
	}
}

func TestSubmitEvaluatorFallback(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.Scoring = scoring.NewEngine(failingEvaluator{}, time.Second, nil)
	})
	f.store.tasks[10].AIEvaluation = &judgemodel.AIEvaluationConfig{Enabled: true, Weight: 30, ExpectedConcepts: "hash map"}

	view, err := f.svc.Submit(context.Background(), submitInput("fail:a"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if view.Score != 75 {
		t.Fatalf("fallback should keep test case score, got %d", view.Score)
	}
	if view.AI == nil || view.AI.Feedback != scoring.FallbackFeedback || view.AI.Score != nil {
		t.Fatalf("unexpected ai view: %+v", view.AI)
	}
	if view.AI.ExpectedConcepts != "" {
		t.Fatalf("participants must not see expected concepts")
	}
}

func TestHooksRunAfterCommitAndFailuresAreIgnored(t *testing.T) {
	broken := &recordingHook{name: "broken", err: errors.New("kafka down")}
	ok := &recordingHook{name: "ok"}
	f := newFixture(t, func(cfg *Config) { cfg.Hooks = []PostCommitHook{broken, ok} })

	view, err := f.svc.Submit(context.Background(), submitInput("ok"))
	if err != nil {
		t.Fatalf("hook failure must not fail the submit: %v", err)
	}
	f.svc.Wait()
	events := ok.recorded()
	if len(events) != 1 || events[0].Submission.ID != view.ID || events[0].Kind != model.EventSubmissionGraded {
		t.Fatalf("unexpected hook events: %+v", events)
	}
	if len(broken.recorded()) != 1 {
		t.Fatalf("failing hook should still be invoked")
	}
}

func TestRunCustomCasesReturnsFullDetail(t *testing.T) {
	f := newFixture(t, nil)
	view, err := f.svc.Run(context.Background(), RunInput{
		UserID:   7,
		TaskID:   10,
		Language: "js",
		Code:     "fail:z",
		CustomCases: []CustomCase{
			{Input: "y", ExpectedOutput: "y"},
			{Input: "z", ExpectedOutput: "z"},
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if view.TotalTests != 2 || view.PassedTests != 1 || view.Score != 50 {
		t.Fatalf("unexpected run view: %+v", view)
	}
	if view.TestResults[1].Input != "z" || view.TestResults[1].ActualOutput != "wrong\n" {
		t.Fatalf("custom case detail missing: %+v", view.TestResults[1])
	}
	if f.store.count() != 0 {
		t.Fatalf("run must not persist")
	}

	tooMany := make([]CustomCase, 11)
	if _, err := f.svc.Run(context.Background(), RunInput{UserID: 7, TaskID: 10, Language: "js", Code: "x", CustomCases: tooMany}); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed for too many cases, got %v", err)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, code := range []string{"fail:a", "ok"} {
		if _, err := f.svc.Submit(ctx, submitInput(code)); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	views, err := f.svc.History(ctx, HistoryInput{UserID: 7, TaskID: 10, ContestID: 1})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(views) != 2 || views[0].Score != 100 || views[1].Score != 75 {
		t.Fatalf("unexpected history: %+v", views)
	}
	if views[1].Hidden == nil || len(views[1].TestResults) != 2 {
		t.Fatalf("history must be projected for participants: %+v", views[1])
	}
}

func TestOverrideScore(t *testing.T) {
	hook := &recordingHook{name: "activity"}
	f := newFixture(t, func(cfg *Config) { cfg.Hooks = []PostCommitHook{hook} })
	ctx := context.Background()
	view, err := f.svc.Submit(ctx, submitInput("ok"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := f.svc.OverrideScore(ctx, OverrideInput{AdminID: 1, SubmissionID: view.ID, Score: 10, Viewer: ViewerParticipant}); !appErr.Is(err, appErr.Forbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}

	got, err := f.svc.OverrideScore(ctx, OverrideInput{AdminID: 1, SubmissionID: view.ID, Score: 40, Viewer: ViewerAdmin})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if got.Score != 40 || f.store.total(7) != 40 {
		t.Fatalf("override should lower the total: score=%d total=%d", got.Score, f.store.total(7))
	}

	got, err = f.svc.OverrideScore(ctx, OverrideInput{AdminID: 1, SubmissionID: view.ID, Score: 500, Viewer: ViewerAdmin})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if got.Score != 100 {
		t.Fatalf("override should clamp to max points, got %d", got.Score)
	}

	if _, err := f.svc.OverrideScore(ctx, OverrideInput{AdminID: 1, SubmissionID: 999, Score: 1, Viewer: ViewerAdmin}); !appErr.Is(err, appErr.SubmissionNotFound) {
		t.Fatalf("expected SubmissionNotFound, got %v", err)
	}

	f.svc.Wait()
	events := hook.recorded()
	if len(events) != 3 {
		t.Fatalf("expected 3 hook events, got %d", len(events))
	}
	found := false
	for _, ev := range events {
		if ev.Kind == model.EventScoreOverridden && ev.PreviousScore == 100 && ev.Submission.Score == 40 {
			found = true
		}
	}
	if !found {
		t.Fatalf("override event missing: %+v", events)
	}
}

func TestRateLimitPerScope(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{UserMax: 1, Window: time.Minute}
	})
	ctx := context.Background()
	if _, err := f.svc.Run(ctx, RunInput{UserID: 7, TaskID: 10, Language: "python", Code: "x"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := f.svc.Run(ctx, RunInput{UserID: 7, TaskID: 10, Language: "python", Code: "x"}); !appErr.Is(err, appErr.SubmitTooFrequently) {
		t.Fatalf("expected SubmitTooFrequently, got %v", err)
	}
	if _, err := f.svc.Submit(ctx, submitInput("ok")); err != nil {
		t.Fatalf("submit scope is limited separately: %v", err)
	}
}
