package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"dmchat/internal/domain"
	"dmchat/internal/security"
	"dmchat/internal/service"
	"dmchat/internal/store/sqlite"
	"dmchat/internal/testutil"
)

func newAuthService(t *testing.T) *service.AuthService {
	t.Helper()
	db := testutil.OpenDB(t)
	users := sqlite.NewUserRepo(db)
	tokens := security.NewTokenService("test-secret", time.Hour)
	hasher := security.NewPasswordHasher(bcrypt.MinCost)
	return service.NewAuthService(users, tokens, hasher)
}

func TestRegisterAndLogin(t *testing.T) {
	auth := newAuthService(t)
	ctx := context.Background()

	user, err := auth.Register(ctx, service.RegisterInput{Username: "alice", Password: "s3cret"})
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "s3cret", user.HashedPassword)

	resp, err := auth.Login(ctx, service.LoginInput{Username: "alice", Password: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, user.ID, resp.User.ID)

	claims, err := security.NewTokenService("test-secret", time.Hour).Parse(resp.AccessToken)
	require.NoError(t, err)
	sub, err := claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)
}

func TestRegisterValidation(t *testing.T) {
	auth := newAuthService(t)
	ctx := context.Background()

	_, err := auth.Register(ctx, service.RegisterInput{Username: "", Password: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = auth.Register(ctx, service.RegisterInput{Username: "alice", Password: ""})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = auth.Register(ctx, service.RegisterInput{Username: "alice", Password: "x"})
	require.NoError(t, err)

	_, err = auth.Register(ctx, service.RegisterInput{Username: "alice", Password: "y"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth := newAuthService(t)
	ctx := context.Background()

	_, err := auth.Register(ctx, service.RegisterInput{Username: "alice", Password: "s3cret"})
	require.NoError(t, err)

	_, err = auth.Login(ctx, service.LoginInput{Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = auth.Login(ctx, service.LoginInput{Username: "nobody", Password: "s3cret"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestParseRejectsForeignSignature(t *testing.T) {
	good := security.NewTokenService("secret-a", time.Hour)
	bad := security.NewTokenService("secret-b", time.Hour)

	token, err := good.CreateForUser("alice")
	require.NoError(t, err)

	_, err = bad.Parse(token)
	assert.Error(t, err)

	_, err = good.Parse(token)
	assert.NoError(t, err)
}
