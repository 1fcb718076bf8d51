package handler

import (
	"freightdesk/internal/model"
	"freightdesk/internal/workflow"

	"github.com/gin-gonic/gin"
)

// VoidApplicationHandler exposes the void-bill flow under its own paths. It is the approval
// engine restricted to request_type void_bill.
type VoidApplicationHandler struct {
	approvals *ApprovalHandler
}

func NewVoidApplicationHandler(approvals *ApprovalHandler) *VoidApplicationHandler {
	return &VoidApplicationHandler{approvals: approvals}
}

func (h *VoidApplicationHandler) RegisterRoutes(router *gin.RouterGroup) {
	auth := h.approvals.auth
	voids := router.Group("/api/void-applications")
	{
		voids.GET("/pending", auth.RequirePermission(model.PermApprovalsApprove), h.ListPending)
		voids.PUT("/:id/approve", auth.RequirePermission(model.PermApprovalsApprove), h.Approve)
		voids.PUT("/:id/reject", auth.RequirePermission(model.PermApprovalsApprove), h.Reject)
	}
}

// ListPending godoc
// @Summary      Void-bill applications waiting on the caller
// @Tags         void-applications
// @Produce      json
// @Security     BearerAuth
// @Param        page      query     int  false  "Page number (default 1)"
// @Param        pageSize  query     int  false  "Items per page (default 20)"
// @Success      200       {object}  response.Response{data=response.Page}
// @Router       /api/void-applications/pending [get]
func (h *VoidApplicationHandler) ListPending(c *gin.Context) {
	h.approvals.listPending(c, string(workflow.RequestVoidBill))
}

// Approve godoc
// @Summary      Approve the current stage of a void-bill application
// @Tags         void-applications
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                     true   "Approval request ID"
// @Param        payload  body      service.ApproveRequestDTO  false  "Optional comment"
// @Success      200      {object}  response.Response{data=service.ApprovalResponse}
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/void-applications/{id}/approve [put]
func (h *VoidApplicationHandler) Approve(c *gin.Context) {
	h.approvals.approve(c, workflow.RequestVoidBill)
}

// Reject godoc
// @Summary      Reject a void-bill application
// @Tags         void-applications
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                    true  "Approval request ID"
// @Param        payload  body      service.RejectRequestDTO  true  "Reason (required)"
// @Success      200      {object}  response.Response{data=service.ApprovalResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/void-applications/{id}/reject [put]
func (h *VoidApplicationHandler) Reject(c *gin.Context) {
	h.approvals.reject(c, workflow.RequestVoidBill)
}
