package services

import (
	"testing"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/user"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/tenant"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestLoginAndDecodeProfile(t *testing.T) {
	env := newTestEnv(t)
	env.ctx.Config = &tenant.Config{JWTSecret: "test-secret"}

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	env.users.accounts["u1"] = &user.Account{
		ID:           "u1",
		Email:        "ada@example.com",
		PasswordHash: string(hash),
		FirstName:    "Ada",
		Tier:         "pro",
	}

	authSv := NewAuthService(testLogger(t))

	token, profile, err := authSv.Login(env.ctx, "ada@example.com", "hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, "u1", profile.UserID)

	decoded, err := authSv.DecodeProfile(env.ctx, token)
	require.NoError(t, err)
	require.Equal(t, "u1", decoded.UserID)
	require.Equal(t, "pro", decoded.Tier)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.ctx.Config = &tenant.Config{JWTSecret: "test-secret"}

	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	env.users.accounts["u1"] = &user.Account{ID: "u1", Email: "ada@example.com", PasswordHash: string(hash)}

	authSv := NewAuthService(testLogger(t))

	_, _, err := authSv.Login(env.ctx, "ada@example.com", "wrong")
	require.Error(t, err)
	_, _, unknownErr := authSv.Login(env.ctx, "nobody@example.com", "hunter2")
	require.Error(t, unknownErr)

	// Unknown email and wrong password are indistinguishable.
	require.Equal(t, err.Error(), unknownErr.Error())
}
