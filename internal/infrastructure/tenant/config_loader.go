// Package tenant handles multi-tenant detection, configuration and
// per-tenant database access.
package tenant

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the structure of a single tenant's configuration
type Config struct {
	TenantID      string   `json:"tenantId"`
	Domains       []string `json:"domains"`
	Status        string   `json:"status"`
	DatabaseType  string   `json:"databaseType"`
	TursoDatabase string   `json:"TURSO_DATABASE_URL"`
	TursoToken    string   `json:"TURSO_AUTH_TOKEN"`
	TursoEnabled  bool     `json:"TURSO_ENABLED"`
	JWTSecret     string   `json:"JWT_SECRET"`
	AESKey        string   `json:"AES_KEY"`
	ResendAPIKey  string   `json:"RESEND_API_KEY,omitempty"`
	AdminEmail    string   `json:"ADMIN_EMAIL,omitempty"`
	SQLitePath    string   `json:"-"`
}

// serverDir is the root for tenant config and databases under $HOME.
const serverDir = "planpulse-go-server"

// LoadTenantConfig loads configuration for a specific tenant from its env.json file.
func LoadTenantConfig(tenantID string) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("could not find user home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, serverDir, "config", tenantID, "env.json")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("tenant config file not found at %s", configPath)
	}

	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("could not read tenant config file: %w", err)
	}

	var tenantConfig Config
	if err := json.Unmarshal(configFile, &tenantConfig); err != nil {
		return nil, fmt.Errorf("could not parse tenant config json: %w", err)
	}

	tenantConfig.TenantID = tenantID
	tenantConfig.SQLitePath = filepath.Join(homeDir, serverDir, "db", tenantID, "planpulse.db")

	return &tenantConfig, nil
}

// WriteTenantConfig persists a tenant configuration, creating the directory
// on first registration.
func WriteTenantConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not find user home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, serverDir, "config", cfg.TenantID)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("could not create tenant config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal tenant config: %w", err)
	}

	return os.WriteFile(filepath.Join(configDir, "env.json"), data, 0600)
}
