// Package sessions provides the SQL-backed implementation of session and
// project-time-ledger persistence.
//
// The ledger is stored relationally: one sessions row plus one
// project_time_entries row per project, with the open segment's heartbeat
// timestamps serialized alongside. Writes are full read-modify-write of one
// session; callers serialize per session before reaching this layer.
package sessions

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/session"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/persistence/database"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/security"
	"github.com/PlanPulseHQ/planpulse-go/pkg/config"
)

const sqliteTimeFormat = "2006-01-02 15:04:05"

// SQLSessionRepository persists sessions and ledgers for one tenant database.
type SQLSessionRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLSessionRepository creates a new instance of the repository.
func NewSQLSessionRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLSessionRepository {
	return &SQLSessionRepository{db: db, logger: logger}
}

// Store inserts a new session row with its (usually empty) ledger.
func (r *SQLSessionRepository) Store(s *session.Session) error {
	start := time.Now()

	const query = `
		INSERT INTO sessions (id, user_id, start_time, end_time, duration_seconds, last_activity,
			is_active, is_visible, current_page, current_project_id, current_project_start_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(query,
		s.SessionID,
		s.UserID,
		formatTime(s.StartTime),
		formatTimePtr(s.EndTime),
		s.Duration,
		formatTime(s.LastActivity),
		s.IsActive,
		s.IsVisible,
		nullString(s.CurrentPage),
		nullString(s.CurrentProjectID),
		nullTime(s.CurrentProjectStartTime),
	)
	if err != nil {
		r.logger.Database().Error("Session insert failed",
			"error", err.Error(),
			"sessionId", logging.SanitizeSessionID(s.SessionID),
			"userId", s.UserID)
		return fmt.Errorf("failed to store session: %w", err)
	}

	if err := r.replaceEntries(s); err != nil {
		return err
	}

	duration := time.Since(start)
	r.logger.Database().Debug("Session insert completed",
		"sessionId", logging.SanitizeSessionID(s.SessionID),
		"userId", s.UserID,
		"duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "system")
	}
	return nil
}

// Update rewrites a session row and its ledger entries.
func (r *SQLSessionRepository) Update(s *session.Session) error {
	start := time.Now()

	const query = `
		UPDATE sessions SET end_time = ?, duration_seconds = ?, last_activity = ?,
			is_active = ?, is_visible = ?, current_page = ?, current_project_id = ?,
			current_project_start_time = ?
		WHERE id = ?`

	res, err := r.db.Exec(query,
		formatTimePtr(s.EndTime),
		s.Duration,
		formatTime(s.LastActivity),
		s.IsActive,
		s.IsVisible,
		nullString(s.CurrentPage),
		nullString(s.CurrentProjectID),
		nullTime(s.CurrentProjectStartTime),
		s.SessionID,
	)
	if err != nil {
		r.logger.Database().Error("Session update failed",
			"error", err.Error(),
			"sessionId", logging.SanitizeSessionID(s.SessionID))
		return fmt.Errorf("failed to update session: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		// Phantom session that never made it to storage; persist it now.
		return r.Store(s)
	}

	if err := r.replaceEntries(s); err != nil {
		return err
	}

	duration := time.Since(start)
	r.logger.Database().Debug("Session update completed",
		"sessionId", logging.SanitizeSessionID(s.SessionID),
		"entries", len(s.ProjectTimeBreakdown),
		"duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "system")
	}
	return nil
}

// replaceEntries rewrites the ledger rows for a session.
func (r *SQLSessionRepository) replaceEntries(s *session.Session) error {
	if _, err := r.db.Exec(`DELETE FROM project_time_entries WHERE session_id = ?`, s.SessionID); err != nil {
		return fmt.Errorf("failed to clear ledger entries: %w", err)
	}

	const query = `
		INSERT INTO project_time_entries (id, session_id, project_id, time_spent_seconds,
			active_time_seconds, last_switch_time, heartbeats, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	for i, e := range s.ProjectTimeBreakdown {
		heartbeats, err := encodeHeartbeats(e.HeartbeatTimestamps)
		if err != nil {
			return err
		}
		_, err = r.db.Exec(query,
			security.GenerateULID(),
			s.SessionID,
			e.ProjectID,
			int64(e.TimeSpent/time.Second),
			int64(e.ActiveTime/time.Second),
			nullTime(e.LastSwitchTime),
			heartbeats,
			i,
		)
		if err != nil {
			return fmt.Errorf("failed to store ledger entry for project %s: %w", e.ProjectID, err)
		}
	}
	return nil
}

// FindByID loads one session with its ledger. Missing sessions return
// (nil, nil).
func (r *SQLSessionRepository) FindByID(sessionID string) (*session.Session, error) {
	const query = sessionSelect + ` WHERE id = ?`

	row := r.db.QueryRow(query, sessionID)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if err := r.loadEntries(s); err != nil {
		return nil, err
	}
	return s, nil
}

// FindActiveByUser returns the most recent active session for a user, or
// (nil, nil).
func (r *SQLSessionRepository) FindActiveByUser(userID string) (*session.Session, error) {
	const query = sessionSelect + `
		WHERE user_id = ? AND is_active = 1
		ORDER BY last_activity DESC LIMIT 1`

	row := r.db.QueryRow(query, userID)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}
	if err := r.loadEntries(s); err != nil {
		return nil, err
	}
	return s, nil
}

// FindByUserSince returns all sessions for a user with activity at or after
// since, out-of-window pending rows excluded.
func (r *SQLSessionRepository) FindByUserSince(userID string, since time.Time) ([]*session.Session, error) {
	return r.FindByUsersSince([]string{userID}, since)
}

// FindByUsersSince is FindByUserSince across several users.
func (r *SQLSessionRepository) FindByUsersSince(userIDs []string, since time.Time) ([]*session.Session, error) {
	if len(userIDs) == 0 {
		return []*session.Session{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(userIDs)), ",")
	query := sessionSelect + `
		WHERE user_id IN (` + placeholders + `) AND last_activity >= ? AND expired_at IS NULL
		ORDER BY start_time ASC`

	args := make([]any, 0, len(userIDs)+1)
	for _, id := range userIDs {
		args = append(args, id)
	}
	args = append(args, formatTime(since))

	start := time.Now()
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var result []*session.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	for _, s := range result {
		if err := r.loadEntries(s); err != nil {
			return nil, err
		}
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "system")
	}
	return result, nil
}

// FindStale returns active sessions whose last activity predates cutoff.
func (r *SQLSessionRepository) FindStale(cutoff time.Time) ([]*session.Session, error) {
	const query = sessionSelect + `
		WHERE is_active = 1 AND last_activity < ?
		ORDER BY last_activity ASC`

	rows, err := r.db.Query(query, formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to query stale sessions: %w", err)
	}
	defer rows.Close()

	var result []*session.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stale session: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stale sessions: %w", err)
	}

	for _, s := range result {
		if err := r.loadEntries(s); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// MarkOutOfWindow stamps expired_at on sessions older than cutoff, making
// them invisible to aggregation and purgeable after the grace deadline.
func (r *SQLSessionRepository) MarkOutOfWindow(userID string, cutoff, expireAt time.Time) (int64, error) {
	const query = `
		UPDATE sessions SET expired_at = ?
		WHERE user_id = ? AND is_active = 0 AND last_activity < ? AND expired_at IS NULL`

	res, err := r.db.Exec(query, formatTime(expireAt), userID, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to mark sessions out of window: %w", err)
	}
	return res.RowsAffected()
}

// ClearExpiry reverses pending expiry for a user, used when an upgrade
// lands within the grace period.
func (r *SQLSessionRepository) ClearExpiry(userID string) (int64, error) {
	res, err := r.db.Exec(`UPDATE sessions SET expired_at = NULL WHERE user_id = ? AND expired_at IS NOT NULL`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear session expiry: %w", err)
	}
	return res.RowsAffected()
}

// PurgeExpired permanently deletes sessions whose grace deadline has passed.
func (r *SQLSessionRepository) PurgeExpired(now time.Time) (int64, error) {
	if _, err := r.db.Exec(`
		DELETE FROM project_time_entries WHERE session_id IN
			(SELECT id FROM sessions WHERE expired_at IS NOT NULL AND expired_at <= ?)`,
		formatTime(now)); err != nil {
		return 0, fmt.Errorf("failed to purge expired ledger entries: %w", err)
	}

	res, err := r.db.Exec(`DELETE FROM sessions WHERE expired_at IS NOT NULL AND expired_at <= ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	return res.RowsAffected()
}

const sessionSelect = `
	SELECT id, user_id, start_time, end_time, duration_seconds, last_activity,
		is_active, is_visible, current_page, current_project_id, current_project_start_time
	FROM sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		s                   session.Session
		startTime           string
		endTime             sql.NullString
		lastActivity        string
		currentPage         sql.NullString
		currentProjectID    sql.NullString
		currentProjectStart sql.NullString
	)

	err := row.Scan(&s.SessionID, &s.UserID, &startTime, &endTime, &s.Duration,
		&lastActivity, &s.IsActive, &s.IsVisible, &currentPage, &currentProjectID, &currentProjectStart)
	if err != nil {
		return nil, err
	}

	if s.StartTime, err = parseTime(startTime); err != nil {
		return nil, err
	}
	if s.LastActivity, err = parseTime(lastActivity); err != nil {
		return nil, err
	}
	if endTime.Valid {
		t, err := parseTime(endTime.String)
		if err != nil {
			return nil, err
		}
		s.EndTime = &t
	}
	if currentProjectStart.Valid {
		if s.CurrentProjectStartTime, err = parseTime(currentProjectStart.String); err != nil {
			return nil, err
		}
	}
	s.CurrentPage = currentPage.String
	s.CurrentProjectID = currentProjectID.String
	s.ProjectTimeBreakdown = make([]*session.ProjectTimeEntry, 0, 4)
	return &s, nil
}

func (r *SQLSessionRepository) loadEntries(s *session.Session) error {
	const query = `
		SELECT project_id, time_spent_seconds, active_time_seconds, last_switch_time, heartbeats
		FROM project_time_entries WHERE session_id = ? ORDER BY position ASC`

	rows, err := r.db.Query(query, s.SessionID)
	if err != nil {
		return fmt.Errorf("failed to load ledger entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e          session.ProjectTimeEntry
			timeSpent  int64
			activeTime int64
			lastSwitch sql.NullString
			heartbeats sql.NullString
		)
		if err := rows.Scan(&e.ProjectID, &timeSpent, &activeTime, &lastSwitch, &heartbeats); err != nil {
			return fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.TimeSpent = time.Duration(timeSpent) * time.Second
		e.ActiveTime = time.Duration(activeTime) * time.Second
		if lastSwitch.Valid {
			if e.LastSwitchTime, err = parseTime(lastSwitch.String); err != nil {
				return err
			}
		}
		if e.HeartbeatTimestamps, err = decodeHeartbeats(heartbeats.String); err != nil {
			return err
		}
		s.ProjectTimeBreakdown = append(s.ProjectTimeBreakdown, &e)
	}
	return rows.Err()
}

func encodeHeartbeats(heartbeats []time.Time) (string, error) {
	if len(heartbeats) == 0 {
		return "[]", nil
	}
	formatted := make([]string, len(heartbeats))
	for i, hb := range heartbeats {
		formatted[i] = hb.UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(formatted)
	if err != nil {
		return "", fmt.Errorf("failed to encode heartbeats: %w", err)
	}
	return string(data), nil
}

func decodeHeartbeats(raw string) ([]time.Time, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var formatted []string
	if err := json.Unmarshal([]byte(raw), &formatted); err != nil {
		return nil, fmt.Errorf("failed to decode heartbeats: %w", err)
	}
	heartbeats := make([]time.Time, 0, len(formatted))
	for _, f := range formatted {
		t, err := time.Parse(time.RFC3339Nano, f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse heartbeat timestamp: %w", err)
		}
		heartbeats = append(heartbeats, t)
	}
	return heartbeats, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeFormat, raw)
	if err != nil {
		// Turso returns RFC3339 for TIMESTAMP columns.
		if t2, err2 := time.Parse(time.RFC3339, raw); err2 == nil {
			return t2.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}
