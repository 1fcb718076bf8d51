package handler

import (
	"errors"
	"net/http"

	"freightdesk/internal/middleware"
	"freightdesk/internal/model"
	"freightdesk/internal/service"
	"freightdesk/pkg/pagination"
	"freightdesk/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UserHandler struct {
	userService service.UserService
	auth        *middleware.Auth
	logger      *zap.Logger
}

// NewUserHandler sets up the routing dependencies for the auth endpoints
func NewUserHandler(userService service.UserService, auth *middleware.Auth, logger *zap.Logger) *UserHandler {
	return &UserHandler{userService: userService, auth: auth, logger: logger}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Public routes
	router.POST("/login", h.Login)
	router.POST("/refresh", h.RefreshToken)
	router.POST("/logout", h.Logout)

	router.GET("/me", h.auth.Authenticate(), h.GetMe)

	// Accounts themselves are opened by approved user_create requests
	users := router.Group("/api/users")
	{
		users.GET("", h.auth.RequirePermission(model.PermUsersRead), h.ListUsers)
		users.PUT("/:id/password", h.auth.RequirePermission(model.PermUsersWrite), h.SetPassword)
	}
}

// Login handles POST /login to authenticate and return a JWT token
// @Summary      Login user
// @Description  Authenticates a user by email and password, returning a JWT token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginUserRequest   true  "Login Credentials"
// @Success      200      {object}  response.Response{data=service.TokenResponse}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Router       /login [post]
func (h *UserHandler) Login(c *gin.Context) {
	var req service.LoginUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		return
	}

	tokenRes, err := h.userService.Login(c.Request.Context(), req)
	if err != nil {
		h.authFailed(c, err)
		return
	}

	tokens := h.userService.Tokens()
	h.auth.SetTokenCookies(c, tokenRes.Token, tokenRes.RefreshToken, tokens.AccessTTL, tokens.RefreshTTL)

	c.JSON(http.StatusOK, response.Success(tokenRes))
}

// GetMe handles GET /me to return current authenticated user based on JWT
// @Summary      Get current user
// @Description  Get the currently authenticated user with the permission codes of their role
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      401      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /me [get]
func (h *UserHandler) GetMe(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	user, err := h.userService.GetUserByID(c.Request.Context(), actor.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, "User not found"))
		return
	}

	perms, err := h.auth.PermissionsForRole(c.Request.Context(), user.Role)
	if err != nil {
		h.logger.Warn("failed to load permissions for /me", zap.String("role", user.Role), zap.Error(err))
	}
	if perms == nil {
		perms = []string{}
	}
	user.Permissions = perms

	c.JSON(http.StatusOK, response.Success(user))
}

// RefreshToken handles POST /refresh to issue new access and refresh tokens
// @Summary      Refresh token
// @Description  Issues a new access token and refresh token using a valid refresh token. The old refresh token stops working.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RefreshTokenRequest   true  "Refresh Token"
// @Success      200      {object}  response.Response{data=service.TokenResponse}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Router       /refresh [post]
func (h *UserHandler) RefreshToken(c *gin.Context) {
	// Try reading refresh_token from cookie first, fallback to body
	refreshToken, cookieErr := c.Cookie("refresh_token")
	var req service.RefreshTokenRequest

	if cookieErr != nil || refreshToken == "" {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
			return
		}
	} else {
		req = service.RefreshTokenRequest{RefreshToken: refreshToken}
	}

	tokenRes, err := h.userService.RefreshToken(c.Request.Context(), req)
	if err != nil {
		h.authFailed(c, err)
		return
	}

	tokens := h.userService.Tokens()
	h.auth.SetTokenCookies(c, tokenRes.Token, tokenRes.RefreshToken, tokens.AccessTTL, tokens.RefreshTTL)

	c.JSON(http.StatusOK, response.Success(tokenRes))
}

// Logout handles POST /logout to revoke the refresh token and clear auth cookies
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Success      200  {object}  response.Response
// @Router       /logout [post]
func (h *UserHandler) Logout(c *gin.Context) {
	if refreshToken, err := c.Cookie("refresh_token"); err == nil {
		if err := h.userService.Logout(c.Request.Context(), refreshToken); err != nil {
			h.logger.Warn("failed to revoke refresh token", zap.Error(err))
		}
	}
	h.auth.ClearTokenCookies(c)
	c.JSON(http.StatusOK, response.Success("Logged out"))
}

// ListUsers godoc
// @Summary      List users
// @Description  Pages through user accounts, e.g. to find the ids configured as void-bill approvers
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        pageSize  query     int     false  "Number of items per page (default 20)"
// @Param        role      query     string  false  "Only users with this role"
// @Success      200       {object}  response.Response{data=response.Page}
// @Failure      403       {object}  response.Response
// @Router       /api/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	p := pagination.Parse(c)

	users, total, err := h.userService.ListUsers(c.Request.Context(), c.Query("role"), p.Page, p.PageSize)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, response.Paged(users, total, p.Page, p.PageSize))
}

// SetPassword godoc
// @Summary      Set a user's password
// @Description  Sets the password of an account and revokes its refresh tokens
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                      true  "User ID"
// @Param        payload  body      service.SetPasswordRequest  true  "New password"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/users/{id}/password [put]
func (h *UserHandler) SetPassword(c *gin.Context) {
	id, ok := paramID(c, h.logger)
	if !ok {
		return
	}
	var req service.SetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		return
	}

	if err := h.userService.SetPassword(c.Request.Context(), id, req.Password); err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, response.Success("Password updated"))
}

func (h *UserHandler) authFailed(c *gin.Context, err error) {
	if errors.Is(err, service.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
		return
	}
	writeError(c, h.logger, err)
}
