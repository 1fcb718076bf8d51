package handler

import (
	"net/http"

	"freightdesk/internal/middleware"
	"freightdesk/internal/model"
	"freightdesk/internal/service"
	"freightdesk/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SystemConfigHandler struct {
	configService service.ConfigService
	auth          *middleware.Auth
	logger        *zap.Logger
}

func NewSystemConfigHandler(configService service.ConfigService, auth *middleware.Auth, logger *zap.Logger) *SystemConfigHandler {
	return &SystemConfigHandler{configService: configService, auth: auth, logger: logger}
}

func (h *SystemConfigHandler) RegisterRoutes(router *gin.RouterGroup) {
	configs := router.Group("/api/system-configs")
	{
		configs.GET("", h.auth.RequirePermission(model.PermSystemConfigsRead), h.ListSystemConfigs)
		configs.PUT("", h.auth.RequirePermission(model.PermSystemConfigsWrite), h.UpsertSystemConfig)
	}
}

// ListSystemConfigs godoc
// @Summary      List system configuration
// @Description  Approver assignments and approval stage routes
// @Tags         system-configs
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]service.SystemConfigResponse}
// @Router       /api/system-configs [get]
func (h *SystemConfigHandler) ListSystemConfigs(c *gin.Context) {
	configs, err := h.configService.List(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(configs))
}

// UpsertSystemConfig godoc
// @Summary      Create or update one configuration key
// @Description  Route values (approval.route.*) must be valid stage chains; *_id values must be user ids
// @Tags         system-configs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.UpsertSystemConfigRequest  true  "Config entry"
// @Success      200      {object}  response.Response{data=service.SystemConfigResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/system-configs [put]
func (h *SystemConfigHandler) UpsertSystemConfig(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req service.UpsertSystemConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	cfg, err := h.configService.Upsert(c.Request.Context(), actor, req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(cfg))
}
