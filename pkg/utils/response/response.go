// Package response writes the JSON envelope every HTTP endpoint returns.
package response

import (
	"net/http"

	"codearena/pkg/errors"
	"codearena/pkg/utils/contextkey"
	"codearena/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response is the envelope. Code is errors.Success on success.
type Response struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Data    interface{}      `json:"data,omitempty"`
	Details interface{}      `json:"details,omitempty"`
	TraceID string           `json:"trace_id,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, Response{Code: errors.Success, Message: "Success", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	write(c, http.StatusCreated, Response{Code: errors.Success, Message: "Created", Data: data})
}

// Error maps err onto its HTTP status. 5xx responses are logged at error
// level with the cause and stack; 4xx at warn.
func Error(c *gin.Context, err error) {
	e := errors.GetError(err)
	status := e.Code.HTTPStatus()

	fields := []zap.Field{
		zap.Int("code", int(e.Code)),
		zap.Int("status", status),
		zap.String("route", c.FullPath()),
		zap.String("message", e.Error()),
	}
	ctx := c.Request.Context()
	if status >= http.StatusInternalServerError {
		if e.Err != nil {
			fields = append(fields, zap.NamedError("cause", e.Err))
		}
		logger.Error(ctx, "request failed", append(fields, zap.String("stack", e.Stack))...)
	} else {
		logger.Warn(ctx, "request rejected", fields...)
	}

	resp := Response{Code: e.Code, Message: publicMessage(e, status)}
	if len(e.Details) > 0 && status < http.StatusInternalServerError {
		resp.Details = e.Details
	}
	write(c, status, resp)
}

func BadRequest(c *gin.Context, message string) {
	withCode(c, errors.InvalidParams, message)
}

func Unauthorized(c *gin.Context, message string) {
	withCode(c, errors.Unauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	withCode(c, errors.Forbidden, message)
}

// AbortWithErrorCode writes the error and stops the handler chain. For use in
// middleware.
func AbortWithErrorCode(c *gin.Context, code errors.ErrorCode, message string) {
	withCode(c, code, message)
	c.Abort()
}

func withCode(c *gin.Context, code errors.ErrorCode, message string) {
	e := errors.New(code)
	if message != "" {
		e = e.WithMessage(message)
	}
	Error(c, e)
}

func write(c *gin.Context, status int, resp Response) {
	resp.TraceID = c.GetString(string(contextkey.TraceID))
	c.JSON(status, resp)
}

// publicMessage keeps raw driver and network text out of 5xx bodies. Coded
// errors raised on purpose, such as an unreachable execution engine, keep
// their message.
func publicMessage(e *errors.Error, status int) string {
	if status >= http.StatusInternalServerError {
		switch e.Code {
		case errors.InternalServerError, errors.DatabaseError, errors.CacheError:
			return e.Code.Message()
		}
	}
	return e.Error()
}
