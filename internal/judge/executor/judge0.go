package executor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"codearena/internal/common/httpclient"
	"codearena/internal/judge/language"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

type judge0Submission struct {
	SourceCode     string  `json:"source_code"`
	LanguageID     int     `json:"language_id"`
	Stdin          string  `json:"stdin"`
	ExpectedOutput string  `json:"expected_output,omitempty"`
	CPUTimeLimit   float64 `json:"cpu_time_limit"`
	MemoryLimit    int     `json:"memory_limit"`
}

type judge0Token struct {
	Token string `json:"token"`
}

type judge0Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type judge0Result struct {
	Token         string        `json:"token"`
	Status        *judge0Status `json:"status"`
	Stdout        *string       `json:"stdout"`
	Stderr        *string       `json:"stderr"`
	CompileOutput *string       `json:"compile_output"`
	Message       *string       `json:"message"`
	Time          *string       `json:"time"`
	Memory        *int64        `json:"memory"`
}

// Judge0Client is the live backend. Payloads travel base64 encoded.
type Judge0Client struct {
	cfg    Config
	http   *httpclient.Client
	poller Poller
}

// NewJudge0Client builds a client for cfg.BaseURL. A nil httpClient gets
// one with cfg.RequestTimeout.
func NewJudge0Client(cfg Config, httpClient *http.Client) (*Judge0Client, error) {
	cfg = cfg.WithDefaults()
	if cfg.BaseURL == "" {
		return nil, errors.New("judge0 baseURL is required")
	}
	client := httpclient.New(cfg.BaseURL, cfg.RequestTimeout,
		httpclient.WithHTTPClient(httpClient),
		httpclient.WithHeader(cfg.AuthHeader, cfg.AuthToken),
	)
	return &Judge0Client{
		cfg:    cfg,
		http:   client,
		poller: NewPoller(cfg.PollInterval, cfg.MaxPollAttempts),
	}, nil
}

// SetPoller replaces the polling schedule.
func (c *Judge0Client) SetPoller(p Poller) {
	c.poller = p
}

func (c *Judge0Client) Name() string { return BackendJudge0 }

// Execute submits the program, then polls until the engine reports a
// terminal status.
func (c *Judge0Client) Execute(ctx context.Context, req Request) (*Outcome, error) {
	token, err := c.submit(ctx, req)
	if err != nil {
		return nil, err
	}

	var result judge0Result
	err = c.poller.Poll(ctx, func(ctx context.Context, attempt int) (bool, error) {
		res, err := c.fetch(ctx, token)
		if err != nil {
			return false, err
		}
		if language.IsPending(res.Status.ID) {
			logger.Debug(ctx, "execution pending",
				zap.String("token", token),
				zap.Int("attempt", attempt),
				zap.Int("status_id", res.Status.ID),
			)
			return false, nil
		}
		result = *res
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return normalize(result), nil
}

func (c *Judge0Client) submit(ctx context.Context, req Request) (string, error) {
	in := judge0Submission{
		SourceCode:     encode(req.Source),
		LanguageID:     req.LanguageID,
		Stdin:          encode(req.Stdin),
		ExpectedOutput: encode(req.ExpectedOutput),
		CPUTimeLimit:   c.cfg.CPUTimeLimit,
		MemoryLimit:    c.cfg.MemoryLimit,
	}
	var out judge0Token
	if err := c.do(ctx, http.MethodPost, "/submissions?base64_encoded=true&wait=false", in, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", pkgerrors.New(pkgerrors.ExecutionBackendError).WithMessage("execution engine returned no token")
	}
	return out.Token, nil
}

func (c *Judge0Client) fetch(ctx context.Context, token string) (*judge0Result, error) {
	path := "/submissions/" + token + "?base64_encoded=true&fields=token,status,stdout,stderr,compile_output,message,time,memory"
	var out judge0Result
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Status == nil || out.Status.ID == 0 {
		return nil, pkgerrors.New(pkgerrors.ExecutionBackendError).WithMessage("execution engine response has no status")
	}
	return &out, nil
}

// do maps every failure mode of the engine onto ExecutionBackendError, except
// a done ctx, which keeps its cancellation or timeout meaning.
func (c *Judge0Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	_, err := c.http.DoJSON(ctx, method, path, in, out)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return contextError(ctxErr)
	}
	var statusErr *httpclient.StatusError
	switch {
	case errors.As(err, &statusErr):
		return pkgerrors.Newf(pkgerrors.ExecutionBackendError, "execution engine returned %d", statusErr.StatusCode).
			WithDetail("status", statusErr.StatusCode).
			WithDetail("body", truncate(string(statusErr.Body), 512))
	case errors.Is(err, httpclient.ErrDecode):
		return pkgerrors.Wrapf(err, pkgerrors.ExecutionBackendError, "decode execution engine response failed")
	default:
		return pkgerrors.Wrapf(err, pkgerrors.ExecutionBackendError, "execution engine unreachable")
	}
}

func normalize(res judge0Result) *Outcome {
	out := &Outcome{
		StatusID:      res.Status.ID,
		Status:        language.StatusName(res.Status.ID),
		Description:   res.Status.Description,
		Stdout:        decode(res.Stdout),
		Stderr:        decode(res.Stderr),
		CompileOutput: decode(res.CompileOutput),
		Message:       decode(res.Message),
	}
	if res.Time != nil {
		if secs, err := strconv.ParseFloat(*res.Time, 64); err == nil {
			out.TimeMs = int64(secs*1000 + 0.5)
		}
	}
	if res.Memory != nil {
		out.MemoryKB = *res.Memory
	}
	return out
}

func encode(s string) string {
	if s == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// decode tolerates the line-wrapped base64 the engine emits and falls back
// to the raw text when the payload is not base64.
func decode(s *string) string {
	if s == nil || *s == "" {
		return ""
	}
	compact := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, *s)
	data, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return *s
	}
	return string(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + fmt.Sprintf("...(%d bytes)", len(s))
}

var _ Executor = (*Judge0Client)(nil)
