// Package analytics provides the concrete SQL-based implementation for
// analytics event persistence.
//
// PURPOSE: append analytics events as they happen and carry the retention
// marks the policy engine applies. Rows are append-only; the only deletions
// are deferred purges of rows whose grace deadline has passed.
package analytics

import (
	"fmt"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/analytics"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/persistence/database"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/security"
	"github.com/PlanPulseHQ/planpulse-go/pkg/config"
)

const sqliteTimeFormat = "2006-01-02 15:04:05"

// SQLEventRepository handles analytics event persistence to database.
type SQLEventRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLEventRepository creates a new instance of the repository.
func NewSQLEventRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLEventRepository {
	return &SQLEventRepository{db: db, logger: logger}
}

// Store saves an analytics event. IDs are assigned here when the recorder
// did not set one.
func (r *SQLEventRepository) Store(ev *analytics.Event) error {
	if ev.ID == "" {
		ev.ID = security.GenerateULID()
	}

	payload, err := ev.EncodePayload()
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO analytics_events (id, user_id, session_id, event_type, payload, user_agent, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	r.logger.Database().Debug("Executing analytics event insert",
		"eventId", ev.ID,
		"eventType", string(ev.Type),
		"userId", ev.UserID)

	_, err = r.db.Exec(query,
		ev.ID,
		ev.UserID,
		ev.SessionID,
		string(ev.Type),
		payload,
		ev.UserAgent,
		ev.IPAddress,
		ev.Timestamp.UTC().Format(sqliteTimeFormat),
	)
	if err != nil {
		r.logger.Database().Error("Analytics event insert failed",
			"error", err.Error(),
			"eventId", ev.ID,
			"eventType", string(ev.Type),
			"userId", ev.UserID)
		return fmt.Errorf("failed to store analytics event: %w", err)
	}

	duration := time.Since(start)
	r.logger.Database().Debug("Analytics event insert completed",
		"eventId", ev.ID,
		"eventType", string(ev.Type),
		"duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "system")
	}
	return nil
}

// CountByUser returns how many rows are retained and how many are marked
// for deferred purge.
func (r *SQLEventRepository) CountByUser(userID string) (retained int64, pendingPurge int64, err error) {
	const query = `
		SELECT
			COUNT(CASE WHEN expired_at IS NULL THEN 1 END),
			COUNT(CASE WHEN expired_at IS NOT NULL THEN 1 END)
		FROM analytics_events WHERE user_id = ?`

	if err := r.db.QueryRow(query, userID).Scan(&retained, &pendingPurge); err != nil {
		return 0, 0, fmt.Errorf("failed to count analytics events: %w", err)
	}
	return retained, pendingPurge, nil
}

// MarkOutOfWindow stamps expired_at on rows older than cutoff. Already
// marked rows keep their original grace deadline.
func (r *SQLEventRepository) MarkOutOfWindow(userID string, cutoff, expireAt time.Time) (int64, error) {
	const query = `
		UPDATE analytics_events SET expired_at = ?
		WHERE user_id = ? AND created_at < ? AND expired_at IS NULL`

	start := time.Now()
	res, err := r.db.Exec(query,
		expireAt.UTC().Format(sqliteTimeFormat),
		userID,
		cutoff.UTC().Format(sqliteTimeFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark events out of window: %w", err)
	}

	affected, _ := res.RowsAffected()
	r.logger.Database().Info("Events marked out of window",
		"userId", userID,
		"marked", affected,
		"duration", time.Since(start))
	return affected, nil
}

// ClearExpiry reverses pending expiry for a user within the grace period.
func (r *SQLEventRepository) ClearExpiry(userID string) (int64, error) {
	res, err := r.db.Exec(`UPDATE analytics_events SET expired_at = NULL WHERE user_id = ? AND expired_at IS NOT NULL`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear event expiry: %w", err)
	}
	return res.RowsAffected()
}

// PurgeExpired permanently deletes rows whose grace deadline has passed.
func (r *SQLEventRepository) PurgeExpired(now time.Time) (int64, error) {
	const query = `DELETE FROM analytics_events WHERE expired_at IS NOT NULL AND expired_at <= ?`

	start := time.Now()
	res, err := r.db.Exec(query, now.UTC().Format(sqliteTimeFormat))
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired events: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected > 0 {
		r.logger.Database().Info("Expired events purged",
			"purged", affected,
			"duration", time.Since(start))
	}
	return affected, nil
}
