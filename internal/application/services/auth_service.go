package services

import (
	"fmt"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/user"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/security"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/tenant"
	"golang.org/x/crypto/bcrypt"
)

// AuthService authenticates accounts and issues profile tokens.
type AuthService struct {
	logger *logging.ChanneledLogger
}

// NewAuthService creates the auth service.
func NewAuthService(logger *logging.ChanneledLogger) *AuthService {
	return &AuthService{logger: logger}
}

// Login verifies credentials and returns a signed profile token. The same
// error covers unknown email and wrong password.
func (a *AuthService) Login(tenantCtx *tenant.Context, email, password string) (string, *user.Profile, error) {
	if email == "" || password == "" {
		return "", nil, fmt.Errorf("email and password are required")
	}

	account, err := tenantCtx.Repos.Users.FindByEmail(email)
	if err != nil {
		return "", nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if account == nil {
		return "", nil, fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		a.logger.Auth().Warn("Login rejected",
			"tenantId", tenantCtx.TenantID,
			"userId", account.ID)
		return "", nil, fmt.Errorf("invalid credentials")
	}

	profile := &user.Profile{
		UserID:    account.ID,
		Email:     account.Email,
		FirstName: account.FirstName,
		Tier:      account.Tier,
	}
	token, err := security.GenerateProfileToken(profile, tenantCtx.Config.JWTSecret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}

	a.logger.Auth().Info("Login succeeded",
		"tenantId", tenantCtx.TenantID,
		"userId", account.ID)
	return token, profile, nil
}

// DecodeProfile validates a bearer token against the tenant's secret.
func (a *AuthService) DecodeProfile(tenantCtx *tenant.Context, token string) (*user.Profile, error) {
	claims, err := security.ValidateJWT(token, tenantCtx.Config.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	profile := security.GetProfileFromClaims(claims)
	if profile == nil {
		return nil, fmt.Errorf("token carries no profile")
	}
	return profile, nil
}
