// Package database provides tenant instantiation
package database

import (
	"database/sql"
	"fmt"

	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/security"
	"golang.org/x/crypto/bcrypt"
)

// TableCreator handles the creation of the database schema for a new tenant.
type TableCreator struct{}

// NewTableCreator creates a new TableCreator.
func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema executes all necessary queries to build the tenant's database tables and indexes.
func (tc *TableCreator) CreateSchema(db *sql.DB) error {
	for _, tableSQL := range tables {
		if _, err := db.Exec(tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}

// SeedInitialContent adds the default rows required for a new tenant to
// function: an owner account and a starter project.
func (tc *TableCreator) SeedInitialContent(db *sql.DB) error {
	// Idempotently create the default owner account.
	var ownerID string
	err := db.QueryRow("SELECT id FROM users WHERE email = 'owner@localhost'").Scan(&ownerID)
	if err == sql.ErrNoRows {
		ownerID = security.GenerateULID()
		hash, hashErr := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
		if hashErr != nil {
			return fmt.Errorf("failed to hash default password: %w", hashErr)
		}
		_, err = db.Exec(`INSERT INTO users (id, email, password_hash, first_name, tier) VALUES (?, ?, ?, ?, ?)`,
			ownerID, "owner@localhost", string(hash), "Owner", "free")
		if err != nil {
			return fmt.Errorf("failed to insert default owner: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to check for default owner: %w", err)
	}

	// Idempotently create the default project.
	var projectExists bool
	err = db.QueryRow("SELECT EXISTS(SELECT 1 FROM projects WHERE title = 'Getting Started')").Scan(&projectExists)
	if err != nil {
		return fmt.Errorf("failed to check for default project: %w", err)
	}

	if !projectExists {
		projectID := security.GenerateULID()
		_, err = db.Exec(`INSERT INTO projects (id, title, owner_id) VALUES (?, ?, ?)`,
			projectID, "Getting Started", ownerID)
		if err != nil {
			return fmt.Errorf("failed to insert default project: %w", err)
		}
		memberID := security.GenerateULID()
		_, err = db.Exec(`INSERT INTO team_members (id, project_id, user_id, role) VALUES (?, ?, ?, ?)`,
			memberID, projectID, ownerID, "owner")
		if err != nil {
			return fmt.Errorf("failed to insert default team member: %w", err)
		}
	}

	return nil
}

var tables = []string{
	`CREATE TABLE IF NOT EXISTS users (id TEXT PRIMARY KEY, email TEXT NOT NULL UNIQUE, password_hash TEXT NOT NULL, first_name TEXT NOT NULL, tier TEXT NOT NULL DEFAULT 'free', created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)`,
	`CREATE TABLE IF NOT EXISTS projects (id TEXT PRIMARY KEY, title TEXT NOT NULL, owner_id TEXT NOT NULL REFERENCES users(id), created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)`,
	`CREATE TABLE IF NOT EXISTS team_members (id TEXT PRIMARY KEY, project_id TEXT NOT NULL REFERENCES projects(id), user_id TEXT NOT NULL REFERENCES users(id), role TEXT NOT NULL DEFAULT 'member', UNIQUE(project_id, user_id))`,
	`CREATE TABLE IF NOT EXISTS sessions (id TEXT PRIMARY KEY, user_id TEXT NOT NULL REFERENCES users(id), start_time TIMESTAMP NOT NULL, end_time TIMESTAMP, duration_seconds INTEGER NOT NULL DEFAULT 0, last_activity TIMESTAMP NOT NULL, is_active BOOLEAN NOT NULL DEFAULT 1, is_visible BOOLEAN NOT NULL DEFAULT 1, current_page TEXT, current_project_id TEXT, current_project_start_time TIMESTAMP, expired_at TIMESTAMP, created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)`,
	`CREATE TABLE IF NOT EXISTS project_time_entries (id TEXT PRIMARY KEY, session_id TEXT NOT NULL REFERENCES sessions(id), project_id TEXT NOT NULL, time_spent_seconds INTEGER NOT NULL DEFAULT 0, active_time_seconds INTEGER NOT NULL DEFAULT 0, last_switch_time TIMESTAMP, heartbeats TEXT, position INTEGER NOT NULL DEFAULT 0, UNIQUE(session_id, project_id))`,
	`CREATE TABLE IF NOT EXISTS analytics_events (id TEXT PRIMARY KEY, user_id TEXT NOT NULL, session_id TEXT, event_type TEXT NOT NULL, payload TEXT NOT NULL DEFAULT '{}', user_agent TEXT, ip_address TEXT, created_at TIMESTAMP NOT NULL, expired_at TIMESTAMP)`,
	`CREATE TABLE IF NOT EXISTS retention_policies (user_id TEXT PRIMARY KEY, tier TEXT NOT NULL, status TEXT NOT NULL, window_days INTEGER NOT NULL DEFAULT 0, grace_until TIMESTAMP, updated_at TIMESTAMP NOT NULL)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user_active ON sessions(user_id, is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON sessions(last_activity)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expired_at ON sessions(expired_at)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_session_id ON project_time_entries(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_project_id ON project_time_entries(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_user_created ON analytics_events(user_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_events_expired_at ON analytics_events(expired_at)`,
	`CREATE INDEX IF NOT EXISTS idx_team_members_project ON team_members(project_id)`,
}
