// Package security provides JWT token utilities
package security

import (
	"errors"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/user"
	"github.com/PlanPulseHQ/planpulse-go/pkg/config"
	"github.com/golang-jwt/jwt/v4"
)

// ValidateJWT validates a JWT token and returns the claims
func ValidateJWT(tokenString, jwtSecret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// GetProfileFromClaims extracts a profile from JWT claims
func GetProfileFromClaims(claims jwt.MapClaims) *user.Profile {
	profileData, ok := claims["profile"].(map[string]any)
	if !ok {
		return nil
	}
	userID, _ := claims["userId"].(string)
	email, _ := profileData["email"].(string)
	firstName, _ := profileData["firstName"].(string)
	tier, _ := profileData["tier"].(string)
	if userID == "" {
		return nil
	}
	return &user.Profile{
		UserID:    userID,
		Email:     email,
		FirstName: firstName,
		Tier:      tier,
	}
}

// GenerateProfileToken creates a JWT token for a user profile
func GenerateProfileToken(profile *user.Profile, jwtSecret string) (string, error) {
	claims := jwt.MapClaims{
		"userId": profile.UserID,
		"profile": map[string]string{
			"email":     profile.Email,
			"firstName": profile.FirstName,
			"tier":      profile.Tier,
		},
		"iat": time.Now().UTC().Unix(),
		"exp": time.Now().UTC().Add(config.JWTTokenLifetime).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}
