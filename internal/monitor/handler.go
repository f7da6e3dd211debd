package monitor

import (
	"strconv"

	"codearena/internal/common/http/middleware"
	"codearena/pkg/utils/logger"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Watch streams a contest's submission events to an administrator.
func (h *Hub) Watch(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok || !identity.IsAdmin() {
		response.Forbidden(c, "")
		return
	}
	contestID, err := strconv.ParseInt(c.Param("contestId"), 10, 64)
	if err != nil || contestID <= 0 {
		response.BadRequest(c, "Invalid contest id")
		return
	}
	if err := h.Serve(c.Writer, c.Request, contestID, identity.UserID); err != nil {
		logger.Warn(c.Request.Context(), "monitor upgrade failed", zap.Error(err))
	}
}

// RegisterRoutes mounts the admin monitor endpoint.
func (h *Hub) RegisterRoutes(router gin.IRouter, verifier *middleware.TokenVerifier) {
	router.GET("/api/v1/monitor/contests/:contestId/ws",
		middleware.AuthMiddleware(verifier, middleware.RoleAdmin), h.Watch)
}
