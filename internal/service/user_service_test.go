package service

import (
	"context"
	"testing"
	"time"

	"freightdesk/internal/database/dbtest"
	"freightdesk/internal/model"
	"freightdesk/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestUserService(t *testing.T) (UserService, repository.UserRepository) {
	t.Helper()
	repo := repository.NewUserRepository(dbtest.NewTestDB(t))
	svc := NewUserService(repo, TokenConfig{
		Secret:     "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}, zap.NewNop())
	return svc, repo
}

func TestUserService_SeedAdminAndLogin(t *testing.T) {
	svc, _ := newTestUserService(t)
	ctx := context.Background()

	require.NoError(t, svc.SeedAdmin(ctx, "admin", "admin@example.com", "s3cret!"))
	// seeding twice is a no-op
	require.NoError(t, svc.SeedAdmin(ctx, "admin", "admin@example.com", "other"))

	_, err := svc.Login(ctx, LoginUserRequest{Email: "admin@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, LoginUserRequest{Email: "nobody@example.com", Password: "s3cret!"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	tokens, err := svc.Login(ctx, LoginUserRequest{Email: "admin@example.com", Password: "s3cret!"})
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.RefreshToken)

	parsed, err := jwt.Parse(tokens.Token, func(*jwt.Token) (interface{}, error) { return []byte("test-secret"), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "admin", claims["role"])

	sub, _ := claims["sub"].(string)
	me, err := svc.GetUserByID(ctx, mustParseID(t, sub))
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", me.Email)
}

func TestUserService_RefreshRotatesToken(t *testing.T) {
	svc, repo := newTestUserService(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.User{Username: "alice", Email: "alice@example.com", Password: "x", Role: "staff"}))
	user, err := repo.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)

	first := &model.RefreshToken{UserID: user.ID, Token: "rt-1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, repo.SaveRefreshToken(ctx, first))

	rotated, err := svc.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: "rt-1"})
	require.NoError(t, err)
	assert.NotEqual(t, "rt-1", rotated.RefreshToken)

	_, err = svc.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: "rt-1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, svc.Logout(ctx, rotated.RefreshToken))
	_, err = svc.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: rotated.RefreshToken})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRoleService_SeedDefaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// a second seed leaves existing roles alone
	require.NoError(t, env.roleService.SeedDefaultRolesAndPermissions(ctx))

	admin, err := env.roleService.GetPermissionsByRoleName(ctx, "admin")
	require.NoError(t, err)
	assert.Len(t, admin, len(DefaultPermissions()))

	staff, err := env.roleService.GetPermissionsByRoleName(ctx, "staff")
	require.NoError(t, err)
	assert.ElementsMatch(t, DefaultRolePermissions()["staff"], staff)

	unknown, err := env.roleService.GetPermissionsByRoleName(ctx, "intern")
	require.NoError(t, err)
	assert.Empty(t, unknown)
}
