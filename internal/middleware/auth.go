package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"freightdesk/internal/workflow"
	"freightdesk/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Context keys set by Authenticate
const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"
)

// PermissionSource resolves the permission codes granted to a role
type PermissionSource interface {
	GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error)
}

// permCacheEntry stores cached permission codes for a role with TTL
type permCacheEntry struct {
	codes     []string
	expiresAt time.Time
}

// Auth validates access tokens and checks role permissions
type Auth struct {
	secret    []byte
	perms     PermissionSource
	permCache sync.Map // roleName -> permCacheEntry
	ttl       time.Duration
	secure    bool // cookies flagged Secure and SameSite=None
}

func NewAuth(secret string, perms PermissionSource, secureCookies bool) *Auth {
	return &Auth{
		secret: []byte(secret),
		perms:  perms,
		ttl:    5 * time.Minute,
		secure: secureCookies,
	}
}

func (a *Auth) Secret() []byte {
	return a.secret
}

// ParseToken validates an access token and returns the user id and role it carries
func (a *Auth) ParseToken(tokenString string) (uuid.UUID, string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, "", fmt.Errorf("invalid token: %v", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, "", fmt.Errorf("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid token subject")
	}
	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return uuid.Nil, "", fmt.Errorf("role not found in token")
	}
	return userID, role, nil
}

// Authenticate validates the JWT from the access_token cookie or the Authorization header
func (a *Auth) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authenticate(c) {
			return
		}
		c.Next()
	}
}

func (a *Auth) authenticate(c *gin.Context) bool {
	// Try cookie first, fallback to Authorization header
	tokenString, cookieErr := c.Cookie("access_token")
	if cookieErr != nil || tokenString == "" {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
			return false
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'"))
			return false
		}
		tokenString = parts[1]
	}

	userID, role, err := a.ParseToken(tokenString)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
		return false
	}

	c.Set(ContextUserID, userID)
	c.Set(ContextUserRole, role)
	return true
}

// RequirePermission authenticates and checks that the user's role holds every required permission code
func (a *Auth) RequirePermission(requiredPerms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authenticate(c) {
			return
		}
		role := c.GetString(ContextUserRole)

		userPerms, err := a.PermissionsForRole(c.Request.Context(), role)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to verify permissions"))
			return
		}

		permSet := make(map[string]bool, len(userPerms))
		for _, p := range userPerms {
			permSet[p] = true
		}
		for _, required := range requiredPerms {
			if !permSet[required] {
				c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: missing permission '"+required+"'"))
				return
			}
		}

		c.Next()
	}
}

// PermissionsForRole returns cached or freshly loaded permission codes for a role name
func (a *Auth) PermissionsForRole(ctx context.Context, roleName string) ([]string, error) {
	if entry, ok := a.permCache.Load(roleName); ok {
		cached := entry.(permCacheEntry)
		if time.Now().Before(cached.expiresAt) {
			return cached.codes, nil
		}
	}

	codes, err := a.perms.GetPermissionsByRoleName(ctx, roleName)
	if err != nil {
		return nil, err
	}

	a.permCache.Store(roleName, permCacheEntry{
		codes:     codes,
		expiresAt: time.Now().Add(a.ttl),
	})
	return codes, nil
}

// ClearPermissionCache removes cached permissions for a specific role (or all roles if empty)
func (a *Auth) ClearPermissionCache(roleName string) {
	if roleName == "" {
		a.permCache.Range(func(key, _ interface{}) bool {
			a.permCache.Delete(key)
			return true
		})
		return
	}
	a.permCache.Delete(roleName)
}

// SetTokenCookies sets access_token and refresh_token as HttpOnly cookies
func (a *Auth) SetTokenCookies(c *gin.Context, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration) {
	c.SetSameSite(a.sameSite())
	c.SetCookie("access_token", accessToken, int(accessTTL.Seconds()), "/", "", a.secure, true)
	c.SetCookie("refresh_token", refreshToken, int(refreshTTL.Seconds()), "/", "", a.secure, true)
}

// ClearTokenCookies removes access_token and refresh_token cookies
func (a *Auth) ClearTokenCookies(c *gin.Context) {
	c.SetSameSite(a.sameSite())
	c.SetCookie("access_token", "", -1, "/", "", a.secure, true)
	c.SetCookie("refresh_token", "", -1, "/", "", a.secure, true)
}

func (a *Auth) sameSite() http.SameSite {
	// Production (cross-origin): SameSiteNoneMode + Secure=true
	if a.secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// ActorFromContext returns the authenticated user as a workflow actor
func ActorFromContext(c *gin.Context) (workflow.Actor, bool) {
	raw, ok := c.Get(ContextUserID)
	if !ok {
		return workflow.Actor{}, false
	}
	id, ok := raw.(uuid.UUID)
	if !ok {
		return workflow.Actor{}, false
	}
	return workflow.Actor{ID: id, Role: c.GetString(ContextUserRole)}, true
}
