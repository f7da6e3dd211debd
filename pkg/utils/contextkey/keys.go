// Package contextkey names the request-scoped values shared by the HTTP
// middleware and the logger.
package contextkey

// Key is also used as the gin context key, via string(Key).
type Key string

const (
	TraceID   Key = "trace_id"
	RequestID Key = "request_id"
	// UserID holds an int64.
	UserID Key = "user_id"
	Role   Key = "role"
)
