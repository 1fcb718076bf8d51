package handler

import (
	"net/http"

	"freightdesk/internal/middleware"
	"freightdesk/internal/model"
	"freightdesk/internal/service"
	"freightdesk/pkg/pagination"
	"freightdesk/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuditHandler struct {
	auditService service.AuditService
	auth         *middleware.Auth
	logger       *zap.Logger
}

func NewAuditHandler(auditService service.AuditService, auth *middleware.Auth, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{auditService: auditService, auth: auth, logger: logger}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/audit-logs")
	group.Use(h.auth.RequirePermission(model.PermAuditLogsRead))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs retrieves paginated records with the acting user joined in
// @Summary      Get audit logs
// @Description  Config changes and the business effects of finished approvals, newest first
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        pageSize  query     int     false  "Number of items per page (default 20)"
// @Param        entityId    query     string  false  "Only rows for this entity"
// @Param        entityName  query     string  false  "Only rows for this entity kind"
// @Param        action      query     string  false  "Only rows with this action, e.g. VOID_BILL_CONFIRMED"
// @Success      200       {object}  response.Response{data=response.Page}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), service.AuditQuery{
		EntityID:   c.Query("entityId"),
		EntityName: c.Query("entityName"),
		Action:     c.Query("action"),
		Page:       p.Page,
		PageSize:   p.PageSize,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, response.Paged(logs, total, p.Page, p.PageSize))
}
