package handler

import (
	"net/http"

	"bizledger/internal/middleware"
	"bizledger/internal/service"
	"bizledger/pkg/pagination"
	"bizledger/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup, authz *middleware.Authorizer) {
	router.GET("/api/audit-logs", authz.Require(middleware.ObjectAuditLog, middleware.ActionView), h.GetAuditLogs)
}

// GetAuditLogs retrieves a paginated list of audit logs
// @Summary      List audit logs
// @Description  Retrieves system audit logs, newest first, optionally filtered by action
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        action  query     string  false  "Filter by action (e.g. TRANSFORM_DOCUMENT)"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Success      200     {object}  response.Response{data=object}
// @Failure      500     {object}  response.Response
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), c.Query("action"), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap("logs", logs, total)))
}
