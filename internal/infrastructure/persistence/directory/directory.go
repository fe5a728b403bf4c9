// Package directory provides SQL-backed lookups for the engine's external
// collaborators: accounts, projects, team membership and the billing plan
// view. These are boundary reads only; the engine never mutates them except
// for its own retention policy rows.
package directory

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/billing"
	"github.com/PlanPulseHQ/planpulse-go/internal/domain/repositories"
	"github.com/PlanPulseHQ/planpulse-go/internal/domain/user"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/persistence/database"
)

const sqliteTimeFormat = "2006-01-02 15:04:05"

// SQLUserRepository looks up accounts for authentication.
type SQLUserRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

func NewSQLUserRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLUserRepository {
	return &SQLUserRepository{db: db, logger: logger}
}

func (r *SQLUserRepository) FindByEmail(email string) (*user.Account, error) {
	return r.findOne(`SELECT id, email, password_hash, first_name, tier FROM users WHERE email = ?`, email)
}

func (r *SQLUserRepository) FindByID(userID string) (*user.Account, error) {
	return r.findOne(`SELECT id, email, password_hash, first_name, tier FROM users WHERE id = ?`, userID)
}

func (r *SQLUserRepository) findOne(query string, arg any) (*user.Account, error) {
	var a user.Account
	err := r.db.QueryRow(query, arg).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.FirstName, &a.Tier)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &a, nil
}

// SQLProjectDirectory resolves project existence and names.
type SQLProjectDirectory struct {
	db *database.DB
}

func NewSQLProjectDirectory(db *database.DB) *SQLProjectDirectory {
	return &SQLProjectDirectory{db: db}
}

func (d *SQLProjectDirectory) FindProject(projectID string) (*repositories.Project, error) {
	var p repositories.Project
	err := d.db.QueryRow(`SELECT id, title FROM projects WHERE id = ?`, projectID).Scan(&p.ID, &p.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	return &p, nil
}

// SQLTeamDirectory resolves project team membership.
type SQLTeamDirectory struct {
	db *database.DB
}

func NewSQLTeamDirectory(db *database.DB) *SQLTeamDirectory {
	return &SQLTeamDirectory{db: db}
}

func (d *SQLTeamDirectory) FindMembers(projectID string) ([]repositories.TeamMember, error) {
	const query = `
		SELECT tm.user_id, u.first_name, tm.role
		FROM team_members tm
		JOIN users u ON u.id = tm.user_id
		WHERE tm.project_id = ?`

	rows, err := d.db.Query(query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load team members: %w", err)
	}
	defer rows.Close()

	var members []repositories.TeamMember
	for rows.Next() {
		var m repositories.TeamMember
		if err := rows.Scan(&m.UserID, &m.Name, &m.Role); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// SQLBillingDirectory reads the billing collaborator's plan view. Tier
// truth is the users row the billing integration maintains.
type SQLBillingDirectory struct {
	db *database.DB
}

func NewSQLBillingDirectory(db *database.DB) *SQLBillingDirectory {
	return &SQLBillingDirectory{db: db}
}

func (d *SQLBillingDirectory) FindPlan(userID string) (billing.Tier, billing.SubscriptionStatus, error) {
	var raw string
	err := d.db.QueryRow(`SELECT tier FROM users WHERE id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return billing.TierFree, billing.StatusActive, nil
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to load plan: %w", err)
	}
	tier, err := billing.ParseTier(raw)
	if err != nil {
		return "", "", err
	}
	return tier, billing.StatusActive, nil
}

// SQLPolicyRepository persists applied retention policies.
type SQLPolicyRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

func NewSQLPolicyRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLPolicyRepository {
	return &SQLPolicyRepository{db: db, logger: logger}
}

func (r *SQLPolicyRepository) Upsert(policy *repositories.RetentionPolicy) error {
	const query = `
		INSERT INTO retention_policies (user_id, tier, status, window_days, grace_until, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			tier = excluded.tier,
			status = excluded.status,
			window_days = excluded.window_days,
			grace_until = excluded.grace_until,
			updated_at = excluded.updated_at`

	var graceUntil any
	if policy.GraceUntil != nil {
		graceUntil = policy.GraceUntil.UTC().Format(sqliteTimeFormat)
	}

	_, err := r.db.Exec(query,
		policy.UserID,
		string(policy.Tier),
		string(policy.Status),
		policy.WindowDays,
		graceUntil,
		policy.UpdatedAt.UTC().Format(sqliteTimeFormat),
	)
	if err != nil {
		r.logger.Database().Error("Retention policy upsert failed",
			"error", err.Error(),
			"userId", policy.UserID)
		return fmt.Errorf("failed to upsert retention policy: %w", err)
	}
	return nil
}

func (r *SQLPolicyRepository) Find(userID string) (*repositories.RetentionPolicy, error) {
	const query = `
		SELECT user_id, tier, status, window_days, grace_until, updated_at
		FROM retention_policies WHERE user_id = ?`

	var (
		p          repositories.RetentionPolicy
		tier       string
		status     string
		graceUntil sql.NullString
		updatedAt  string
	)
	err := r.db.QueryRow(query, userID).Scan(&p.UserID, &tier, &status, &p.WindowDays, &graceUntil, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load retention policy: %w", err)
	}

	p.Tier = billing.Tier(tier)
	p.Status = billing.SubscriptionStatus(status)
	if graceUntil.Valid {
		t, err := time.Parse(sqliteTimeFormat, graceUntil.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse grace deadline: %w", err)
		}
		p.GraceUntil = &t
	}
	if p.UpdatedAt, err = time.Parse(sqliteTimeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse policy timestamp: %w", err)
	}
	return &p, nil
}
