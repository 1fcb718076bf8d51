package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"freightdesk/internal/metrics"
	"freightdesk/internal/middleware"
	"freightdesk/internal/service"
	"freightdesk/internal/workflow"
	"freightdesk/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// errorStatus maps engine errors onto HTTP status codes; the envelope's errCode carries the same value
func errorStatus(err error) int {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, workflow.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrConfiguration):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err in the envelope. Internal errors are logged and hidden from the client.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	code := errorStatus(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		msg = "Internal server error"
	}
	c.JSON(code, response.Error(code, msg))
}

func actorOrAbort(c *gin.Context) (workflow.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return workflow.Actor{}, false
	}
	return actor, true
}

func paramID(c *gin.Context, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, logger, fmt.Errorf("%w: invalid id %q", workflow.ErrValidation, c.Param("id")))
		return uuid.Nil, false
	}
	return id, true
}

// bindOptionalJSON binds a JSON body when one is present
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// transitionHooks runs the collaborators that follow a committed transition
type transitionHooks struct {
	notifier service.Notifier
	effects  service.SubjectEffects
	logger   *zap.Logger
}

func (h transitionHooks) after(ctx context.Context, res *service.TransitionResult) {
	h.notifier.Transitioned(ctx, res)
	if err := h.effects.Apply(ctx, res); err != nil {
		metrics.SideEffectFailed("subject_effect")
		h.logger.Error("subject effect failed",
			zap.String("request_no", res.Approval.RequestNo),
			zap.String("status", string(res.To)),
			zap.Error(err))
	}
}
