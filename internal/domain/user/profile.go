// Package user defines the user profile entity used by auth and billing.
package user

// Profile is the authenticated subject carried in JWT claims.
type Profile struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	Tier      string `json:"tier"`
}

// Account is the persisted user row, including the credential hash.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	Tier         string
}
