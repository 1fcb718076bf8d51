package handler

import (
	"net/http"

	"freightdesk/internal/middleware"
	"freightdesk/internal/model"
	"freightdesk/internal/service"
	"freightdesk/internal/workflow"
	"freightdesk/pkg/pagination"
	"freightdesk/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ApprovalHandler struct {
	approvalService service.ApprovalService
	auth            *middleware.Auth
	hooks           transitionHooks
	logger          *zap.Logger
}

func NewApprovalHandler(
	approvalService service.ApprovalService,
	auth *middleware.Auth,
	notifier service.Notifier,
	effects service.SubjectEffects,
	logger *zap.Logger,
) *ApprovalHandler {
	return &ApprovalHandler{
		approvalService: approvalService,
		auth:            auth,
		hooks:           transitionHooks{notifier: notifier, effects: effects, logger: logger},
		logger:          logger,
	}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	approvals := router.Group("/api/approvals")
	{
		approvals.POST("", h.auth.RequirePermission(model.PermApprovalsWrite), h.CreateApprovalRequest)
		approvals.GET("", h.auth.RequirePermission(model.PermApprovalsRead), h.ListApprovalRequests)
		approvals.GET("/my", h.auth.RequirePermission(model.PermApprovalsRead), h.ListMyApprovalRequests)
		approvals.GET("/pending", h.auth.RequirePermission(model.PermApprovalsApprove), h.ListPendingApprovals)
		approvals.GET("/pending-count", h.auth.RequirePermission(model.PermApprovalsRead), h.PendingCount)
		approvals.GET("/:id", h.auth.RequirePermission(model.PermApprovalsRead), h.GetApprovalRequest)
		approvals.GET("/:id/history", h.auth.RequirePermission(model.PermApprovalsRead), h.GetApprovalHistory)
		approvals.POST("/:id/submit", h.auth.RequirePermission(model.PermApprovalsWrite), h.SubmitRequest)
		approvals.POST("/:id/approve", h.auth.RequirePermission(model.PermApprovalsApprove), h.ApproveRequest)
		approvals.POST("/:id/reject", h.auth.RequirePermission(model.PermApprovalsApprove), h.RejectRequest)
		approvals.POST("/:id/cancel", h.auth.RequirePermission(model.PermApprovalsWrite), h.CancelRequest)
	}
}

func listQuery(c *gin.Context) service.ListQuery {
	p := pagination.Parse(c)
	return service.ListQuery{
		Status:      c.Query("status"),
		RequestType: c.Query("requestType"),
		Search:      c.Query("search"),
		Page:        p.Page,
		PageSize:    p.PageSize,
	}
}

// CreateApprovalRequest godoc
// @Summary      Create an approval request
// @Description  Validates the payload for the request type and routes it into its configured stage chain
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateApprovalRequest  true  "Approval request"
// @Success      200      {object}  response.Response{data=service.ApprovalResponse}
// @Failure      400      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/approvals [post]
func (h *ApprovalHandler) CreateApprovalRequest(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req service.CreateApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	res, err := h.approvalService.Create(c.Request.Context(), actor, req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.hooks.after(c.Request.Context(), res)

	c.JSON(http.StatusOK, response.Success(res.Approval))
}

// ListApprovalRequests godoc
// @Summary      List approval requests
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        pageSize     query     int     false  "Items per page (default 20)"
// @Param        status       query     string  false  "Status; 'pending' matches every pending stage"
// @Param        requestType  query     string  false  "Request type"
// @Param        search       query     string  false  "Request number or subject id"
// @Success      200          {object}  response.Response{data=response.Page}
// @Router       /api/approvals [get]
func (h *ApprovalHandler) ListApprovalRequests(c *gin.Context) {
	q := listQuery(c)
	items, total, err := h.approvalService.List(c.Request.Context(), q)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response.Paged(items, total, q.Page, q.PageSize))
}

// ListMyApprovalRequests godoc
// @Summary      List requests created by the caller
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        pageSize     query     int     false  "Items per page (default 20)"
// @Param        status       query     string  false  "Status"
// @Param        requestType  query     string  false  "Request type"
// @Success      200          {object}  response.Response{data=response.Page}
// @Router       /api/approvals/my [get]
func (h *ApprovalHandler) ListMyApprovalRequests(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	q := listQuery(c)
	items, total, err := h.approvalService.GetMine(c.Request.Context(), actor, q)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response.Paged(items, total, q.Page, q.PageSize))
}

// ListPendingApprovals godoc
// @Summary      Approver inbox
// @Description  Requests whose current stage is assigned to the caller, by user id or role. Admins see every pending request.
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        pageSize     query     int     false  "Items per page (default 20)"
// @Param        requestType  query     string  false  "Request type"
// @Param        approverId   query     string  false  "Another approver's inbox (admin only)"
// @Success      200          {object}  response.Response{data=response.Page}
// @Failure      403          {object}  response.Response
// @Router       /api/approvals/pending [get]
func (h *ApprovalHandler) ListPendingApprovals(c *gin.Context) {
	h.listPending(c, c.Query("requestType"))
}

func (h *ApprovalHandler) listPending(c *gin.Context, requestType string) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	q := service.PendingQuery{
		RequestType: requestType,
		Page:        p.Page,
		PageSize:    p.PageSize,
	}
	if raw := c.Query("approverId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "approverId must be a user id"))
			return
		}
		q.ApproverID = &id
	}

	items, total, err := h.approvalService.GetPending(c.Request.Context(), actor, q)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response.Paged(items, total, q.Page, q.PageSize))
}

// PendingCount godoc
// @Summary      Number of requests waiting on the caller
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=object}
// @Router       /api/approvals/pending-count [get]
func (h *ApprovalHandler) PendingCount(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	n, err := h.approvalService.PendingCount(c.Request.Context(), actor)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(gin.H{"count": n}))
}

// GetApprovalRequest godoc
// @Summary      Get an approval request with its stages and history
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Approval request ID"
// @Success      200  {object}  response.Response{data=service.ApprovalDetailResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/approvals/{id} [get]
func (h *ApprovalHandler) GetApprovalRequest(c *gin.Context) {
	id, ok := paramID(c, h.logger)
	if !ok {
		return
	}
	detail, err := h.approvalService.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(detail))
}

// GetApprovalHistory godoc
// @Summary      Transition history of an approval request, oldest first
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Approval request ID"
// @Success      200  {object}  response.Response{data=[]service.HistoryResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/approvals/{id}/history [get]
func (h *ApprovalHandler) GetApprovalHistory(c *gin.Context) {
	id, ok := paramID(c, h.logger)
	if !ok {
		return
	}
	history, err := h.approvalService.GetHistory(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(history))
}

// SubmitRequest godoc
// @Summary      Submit a draft into its first stage
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Approval request ID"
// @Success      200  {object}  response.Response{data=service.ApprovalResponse}
// @Failure      403  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /api/approvals/{id}/submit [post]
func (h *ApprovalHandler) SubmitRequest(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := paramID(c, h.logger)
	if !ok {
		return
	}
	res, err := h.approvalService.Submit(c.Request.Context(), id, actor)
	h.respondTransition(c, res, err)
}

// ApproveRequest godoc
// @Summary      Approve the current stage
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                     true   "Approval request ID"
// @Param        payload  body      service.ApproveRequestDTO  false  "Optional comment"
// @Success      200      {object}  response.Response{data=service.ApprovalResponse}
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/{id}/approve [post]
func (h *ApprovalHandler) ApproveRequest(c *gin.Context) {
	h.approve(c, "")
}

// RejectRequest godoc
// @Summary      Reject the request at its current stage
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                    true  "Approval request ID"
// @Param        payload  body      service.RejectRequestDTO  true  "Reason (required)"
// @Success      200      {object}  response.Response{data=service.ApprovalResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/{id}/reject [post]
func (h *ApprovalHandler) RejectRequest(c *gin.Context) {
	h.reject(c, "")
}

// CancelRequest godoc
// @Summary      Withdraw a draft or pending request
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                    true   "Approval request ID"
// @Param        payload  body      service.CancelRequestDTO  false  "Optional reason"
// @Success      200      {object}  response.Response{data=service.ApprovalResponse}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/{id}/cancel [post]
func (h *ApprovalHandler) CancelRequest(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := paramID(c, h.logger)
	if !ok {
		return
	}
	var req service.CancelRequestDTO
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		return
	}
	res, err := h.approvalService.Cancel(c.Request.Context(), id, actor, req.Reason)
	h.respondTransition(c, res, err)
}

// approve and reject are shared with the void-application routes; requiredType restricts
// the request type when set.
func (h *ApprovalHandler) approve(c *gin.Context, requiredType workflow.RequestType) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := paramID(c, h.logger)
	if !ok {
		return
	}
	var req service.ApproveRequestDTO
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		return
	}
	if !h.checkType(c, id, requiredType) {
		return
	}
	res, err := h.approvalService.Approve(c.Request.Context(), id, actor, req.Comment)
	h.respondTransition(c, res, err)
}

func (h *ApprovalHandler) reject(c *gin.Context, requiredType workflow.RequestType) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := paramID(c, h.logger)
	if !ok {
		return
	}
	var req service.RejectRequestDTO
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		return
	}
	if !h.checkType(c, id, requiredType) {
		return
	}
	res, err := h.approvalService.Reject(c.Request.Context(), id, actor, req.Reason)
	h.respondTransition(c, res, err)
}

// checkType answers 404 when the request exists but is not of the required type
func (h *ApprovalHandler) checkType(c *gin.Context, id uuid.UUID, requiredType workflow.RequestType) bool {
	if requiredType == "" {
		return true
	}
	detail, err := h.approvalService.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return false
	}
	if detail.RequestType != string(requiredType) {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, workflow.ErrNotFound.Error()))
		return false
	}
	return true
}

func (h *ApprovalHandler) respondTransition(c *gin.Context, res *service.TransitionResult, err error) {
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.hooks.after(c.Request.Context(), res)
	c.JSON(http.StatusOK, response.Success(res.Approval))
}
