package tenant

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/security"
)

// TenantInfo is the registry's view of one tenant.
type TenantInfo struct {
	Status       string   `json:"status"`
	Domains      []string `json:"domains"`
	DatabaseType string   `json:"databaseType"`
	RegisteredAt string   `json:"registeredAt"`
}

// TenantRegistry is the JSON registry of known tenants.
type TenantRegistry struct {
	Tenants map[string]TenantInfo `json:"tenants"`
}

func registryPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find user home directory: %w", err)
	}
	return filepath.Join(homeDir, serverDir, "config", "tenants.json"), nil
}

// LoadTenantRegistry reads the registry, returning an empty one when the
// file does not exist yet.
func LoadTenantRegistry() (*TenantRegistry, error) {
	path, err := registryPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &TenantRegistry{Tenants: make(map[string]TenantInfo)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read tenant registry: %w", err)
	}

	var registry TenantRegistry
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("could not parse tenant registry: %w", err)
	}
	if registry.Tenants == nil {
		registry.Tenants = make(map[string]TenantInfo)
	}
	return &registry, nil
}

// SaveTenantRegistry writes the registry back to disk.
func SaveTenantRegistry(registry *TenantRegistry) error {
	path, err := registryPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("could not create registry directory: %w", err)
	}

	data, err := json.MarshalIndent(registry, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal tenant registry: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// RegisterTenant adds a tenant to the registry, generating secrets and a
// default config when none exist.
func RegisterTenant(tenantID string) error {
	registry, err := LoadTenantRegistry()
	if err != nil {
		return err
	}

	if _, exists := registry.Tenants[tenantID]; exists {
		return nil
	}

	if _, err := LoadTenantConfig(tenantID); err != nil {
		jwtSecret, err := security.GenerateSecureKey(64)
		if err != nil {
			return fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		aesKey, err := security.GenerateSecureKey(64)
		if err != nil {
			return fmt.Errorf("failed to generate AES key: %w", err)
		}

		cfg := &Config{
			TenantID:     tenantID,
			Domains:      []string{"*"},
			Status:       "reserved",
			DatabaseType: "sqlite",
			JWTSecret:    jwtSecret,
			AESKey:       aesKey,
		}
		if err := WriteTenantConfig(cfg); err != nil {
			return err
		}
	}

	registry.Tenants[tenantID] = TenantInfo{
		Status:       "reserved",
		Domains:      []string{"*"},
		DatabaseType: "sqlite",
		RegisteredAt: time.Now().UTC().Format(time.RFC3339),
	}
	return SaveTenantRegistry(registry)
}
