package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codearena/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

type traceResponse struct {
	TraceID      string `json:"trace_id"`
	RequestID    string `json:"request_id"`
	CtxTraceID   string `json:"ctx_trace_id"`
	CtxRequestID string `json:"ctx_request_id"`
}

func TestTraceContextMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TraceContextMiddleware())
	router.GET("/trace", func(c *gin.Context) {
		ctx := c.Request.Context()
		c.JSON(http.StatusOK, traceResponse{
			TraceID:      c.GetString(string(contextkey.TraceID)),
			RequestID:    c.GetString(string(contextkey.RequestID)),
			CtxTraceID:   asString(ctx.Value(contextkey.TraceID)),
			CtxRequestID: asString(ctx.Value(contextkey.RequestID)),
		})
	})

	cases := []struct {
		name          string
		headers       map[string]string
		wantTraceID   string
		wantRequestID string
	}{
		{name: "generate ids"},
		{
			name:          "preserve caller ids",
			headers:       map[string]string{traceIDHeader: "trace-123", requestIDHeader: "req-123"},
			wantTraceID:   "trace-123",
			wantRequestID: "req-123",
		},
		{
			name:        "replace unsafe trace id",
			headers:     map[string]string{traceIDHeader: "evil\"id<script>"},
			wantTraceID: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/trace", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			router.ServeHTTP(rec, req)

			var resp traceResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response failed: %v", err)
			}
			if resp.TraceID == "" || resp.RequestID == "" {
				t.Fatalf("expected ids in gin context: %+v", resp)
			}
			if resp.CtxTraceID != resp.TraceID || resp.CtxRequestID != resp.RequestID {
				t.Fatalf("request context disagrees with gin context: %+v", resp)
			}
			if rec.Header().Get(traceIDHeader) != resp.TraceID || rec.Header().Get(requestIDHeader) != resp.RequestID {
				t.Fatalf("response headers missing ids")
			}
			if tc.wantTraceID != "" && resp.TraceID != tc.wantTraceID {
				t.Fatalf("expected trace id %s, got %s", tc.wantTraceID, resp.TraceID)
			}
			if raw := tc.headers[traceIDHeader]; raw != "" && tc.wantTraceID == "" && resp.TraceID == raw {
				t.Fatalf("unsafe trace id echoed: %s", resp.TraceID)
			}
			if tc.wantRequestID != "" && resp.RequestID != tc.wantRequestID {
				t.Fatalf("expected request id %s, got %s", tc.wantRequestID, resp.RequestID)
			}
		})
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func TestIncomingID(t *testing.T) {
	if got := incomingID("  abc-123  "); got != "abc-123" {
		t.Fatalf("expected trimmed id, got %q", got)
	}
	long := strings.Repeat("a", maxIDLength+1)
	if got := incomingID(long); got == long || got == "" {
		t.Fatalf("expected long id to be replaced, got %q", got)
	}
	if got := incomingID("with space"); got == "with space" {
		t.Fatalf("expected id with space to be replaced")
	}
}
