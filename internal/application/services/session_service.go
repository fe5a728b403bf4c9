package services

import (
	"context"
	"fmt"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/analytics"
	domainEvents "github.com/PlanPulseHQ/planpulse-go/internal/domain/events"
	"github.com/PlanPulseHQ/planpulse-go/internal/domain/session"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/caching"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/caching/stores"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/messaging"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/security"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/tenant"
	"github.com/PlanPulseHQ/planpulse-go/pkg/config"
)

// SessionService owns the session lifecycle: start-or-resume, heartbeat
// application, project switching and termination.
//
// CONCURRENCY: the session record is the unit of mutation. Every operation
// takes the per-session lock before its read-modify-write, so overlapping
// heartbeat/switch/end calls for one session serialize while different
// sessions proceed in parallel. Start-or-resume serializes per user
// instead, since no session ID exists yet.
type SessionService struct {
	store    *stores.SessionsStore
	locks    *caching.LockTable
	recorder *EventRecorder
	bus      *messaging.Bus
	logger   *logging.ChanneledLogger
}

// NewSessionService creates the session lifecycle service.
func NewSessionService(store *stores.SessionsStore, locks *caching.LockTable, recorder *EventRecorder, bus *messaging.Bus, logger *logging.ChanneledLogger) *SessionService {
	return &SessionService{
		store:    store,
		locks:    locks,
		recorder: recorder,
		bus:      bus,
		logger:   logger,
	}
}

// StartResult reports the outcome of StartOrResumeSession.
type StartResult struct {
	SessionID string `json:"sessionId"`
	Resumed   bool   `json:"resumed"`

	// Persisted is false for phantom sessions: storage failed but the
	// client still gets a usable ID. Tracking must never block the product.
	Persisted bool `json:"-"`
}

// SwitchResult is the structured outcome of SwitchProject. It is a value,
// never a panic or error flow, so the transport layer chooses the status.
type SwitchResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// StartOrResumeSession resumes the user's live session when its last
// activity is within the resumption window, otherwise creates a fresh one.
// Multi-device use resolves by resuming: a second device merges into the
// live session rather than being rejected.
func (s *SessionService) StartOrResumeSession(tenantCtx *tenant.Context, userID string) *StartResult {
	lockKey := "user:" + tenantCtx.TenantID + ":" + userID
	s.locks.Lock(lockKey)
	defer s.locks.Unlock(lockKey)

	now := time.Now().UTC()

	if existing := s.findActiveSession(tenantCtx, userID); existing != nil {
		if result := s.resumeOrRetire(tenantCtx, existing.SessionID, userID, now); result != nil {
			return result
		}
	}

	sess := session.New(security.GenerateSessionID(), userID, now)
	s.store.SetSession(tenantCtx.TenantID, sess)

	persisted := true
	if err := tenantCtx.Repos.Sessions.Store(sess); err != nil {
		// Degrade gracefully: the client proceeds with a phantom session
		// rather than a failed request.
		persisted = false
		s.logger.Session().Error("Session persist failed, continuing with phantom session",
			"error", err.Error(),
			"tenantId", tenantCtx.TenantID,
			"sessionId", logging.SanitizeSessionID(sess.SessionID))
	}

	s.logger.Session().Info("Session started",
		"tenantId", tenantCtx.TenantID,
		"sessionId", logging.SanitizeSessionID(sess.SessionID),
		"userId", userID,
		"persisted", persisted)

	s.recorder.Record(tenantCtx, &analytics.Event{
		UserID:    userID,
		SessionID: sess.SessionID,
		Type:      analytics.EventSessionStart,
		Payload:   analytics.SessionStartPayload{},
		Timestamp: now,
	})
	s.bus.Publish(domainEvents.DomainEvent{
		Type:      domainEvents.TypeSessionStarted,
		TenantID:  tenantCtx.TenantID,
		UserID:    userID,
		SessionID: sess.SessionID,
	})

	return &StartResult{SessionID: sess.SessionID, Persisted: persisted}
}

// resumeOrRetire re-reads the candidate session under its own lock, then
// either resumes it or closes it out as stale. A nil result tells the caller
// to start a fresh session. The caller holds the user lock; taking the
// session lock on top keeps the ordering user -> session everywhere, while
// every other operation takes only the session lock.
func (s *SessionService) resumeOrRetire(tenantCtx *tenant.Context, sessionID, userID string, now time.Time) *StartResult {
	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	sess := s.loadSession(tenantCtx, sessionID)
	if sess == nil || !sess.IsActive || sess.UserID != userID {
		return nil
	}

	if now.Sub(sess.LastActivity) > config.SessionResumptionWindow {
		// Stale beyond the resumption window: close it out before starting
		// fresh, so at most one session per user stays active.
		s.closeSession(tenantCtx, sess, now, "stale_on_start")
		return nil
	}

	sess.LastActivity = now
	s.store.SetSession(tenantCtx.TenantID, sess)
	persisted := s.persist(tenantCtx, sess)

	s.logger.Session().Debug("Session resumed",
		"tenantId", tenantCtx.TenantID,
		"sessionId", logging.SanitizeSessionID(sessionID),
		"userId", userID)

	s.recorder.Record(tenantCtx, &analytics.Event{
		UserID:    userID,
		SessionID: sessionID,
		Type:      analytics.EventSessionStart,
		Payload:   analytics.SessionStartPayload{Resumed: true},
		Timestamp: now,
	})
	s.bus.Publish(domainEvents.DomainEvent{
		Type:      domainEvents.TypeSessionResumed,
		TenantID:  tenantCtx.TenantID,
		UserID:    userID,
		SessionID: sessionID,
	})
	return &StartResult{SessionID: sessionID, Resumed: true, Persisted: persisted}
}

// HeartbeatInput is one client presence ping.
type HeartbeatInput struct {
	SessionID        string
	Timestamp        time.Time
	IsVisible        bool
	CurrentProjectID string
	CurrentPage      string
}

// RecordHeartbeat applies a presence ping to the session. Heartbeats are
// idempotent and tolerant of out-of-order arrival; they never increment
// engagement counters.
func (s *SessionService) RecordHeartbeat(tenantCtx *tenant.Context, in HeartbeatInput) error {
	if in.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}

	s.locks.Lock(in.SessionID)
	defer s.locks.Unlock(in.SessionID)

	sess := s.loadSession(tenantCtx, in.SessionID)
	if sess == nil {
		return fmt.Errorf("session not found")
	}
	if !sess.IsActive {
		// Late ping for an ended session; nothing to update.
		return nil
	}

	now := time.Now().UTC()
	ts := in.Timestamp
	if ts.IsZero() {
		ts = now
	}

	// The heartbeat carries the client's view of the current project; adopt
	// it when the server disagrees, finalizing the outgoing accrual.
	if in.CurrentProjectID != "" && in.CurrentProjectID != sess.CurrentProjectID {
		sess.SwitchTo(in.CurrentProjectID, now, config.HeartbeatIdleThreshold)
	}

	if sess.CurrentProjectID != "" {
		entry := sess.EnsureEntry(sess.CurrentProjectID)
		entry.AppendHeartbeat(ts)
		entry.TrimHeartbeats(config.MaxHeartbeatsPerEntry)
	}

	if ts.After(sess.LastActivity) {
		sess.LastActivity = ts
	}
	sess.IsVisible = in.IsVisible
	if in.CurrentPage != "" {
		sess.CurrentPage = in.CurrentPage
	}

	s.store.SetSession(tenantCtx.TenantID, sess)
	s.persist(tenantCtx, sess)
	return nil
}

// SwitchProject finalizes time for the outgoing project and makes
// newProjectID current. The outcome is a result value so the HTTP layer
// maps it to a status code.
func (s *SessionService) SwitchProject(tenantCtx *tenant.Context, userID, sessionID, newProjectID string) SwitchResult {
	if sessionID == "" || newProjectID == "" {
		return SwitchResult{Error: "sessionId and newProjectId are required"}
	}

	if tenantCtx.Repos.Projects != nil {
		project, err := tenantCtx.Repos.Projects.FindProject(newProjectID)
		if err != nil {
			s.logger.Session().Error("Project lookup failed",
				"error", err.Error(),
				"tenantId", tenantCtx.TenantID,
				"projectId", newProjectID)
			return SwitchResult{Error: "project lookup failed"}
		}
		if project == nil {
			return SwitchResult{Error: "project not found"}
		}
	}

	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	sess := s.loadSession(tenantCtx, sessionID)
	if sess == nil {
		return SwitchResult{Error: "session not found"}
	}
	if userID != "" && sess.UserID != userID {
		return SwitchResult{Error: "session does not belong to user"}
	}
	if !sess.IsActive {
		return SwitchResult{Error: "session already ended"}
	}

	now := time.Now().UTC()
	sess.SwitchTo(newProjectID, now, config.HeartbeatIdleThreshold)

	s.store.SetSession(tenantCtx.TenantID, sess)
	s.persist(tenantCtx, sess)

	s.logger.Session().Debug("Project switched",
		"tenantId", tenantCtx.TenantID,
		"sessionId", logging.SanitizeSessionID(sessionID),
		"projectId", newProjectID)

	s.recorder.Record(tenantCtx, &analytics.Event{
		UserID:    sess.UserID,
		SessionID: sessionID,
		Type:      analytics.EventProjectOpen,
		Payload:   analytics.ProjectOpenPayload{ProjectID: newProjectID},
		Timestamp: now,
	})

	return SwitchResult{Success: true}
}

// EndSession finalizes any in-progress accrual and closes the session.
// Ending an already-ended or unknown session is a no-op, not an error.
func (s *SessionService) EndSession(tenantCtx *tenant.Context, sessionID, userID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("sessionId is required")
	}

	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	sess := s.loadSession(tenantCtx, sessionID)
	if sess == nil {
		return false, nil
	}
	if userID != "" && sess.UserID != userID {
		return false, fmt.Errorf("session does not belong to user")
	}
	if !sess.IsActive {
		return false, nil
	}

	s.closeSession(tenantCtx, sess, time.Now().UTC(), "explicit_end")
	return true, nil
}

// SweepStaleSessions closes sessions whose last activity exceeded the
// resumption window, bounding session lifetime and unblocking aggregation.
func (s *SessionService) SweepStaleSessions(tenantCtx *tenant.Context) int {
	cutoff := time.Now().UTC().Add(-config.SessionResumptionWindow)

	staleIDs := make(map[string]struct{})
	if stale, err := tenantCtx.Repos.Sessions.FindStale(cutoff); err != nil {
		s.logger.Session().Error("Stale session query failed",
			"error", err.Error(),
			"tenantId", tenantCtx.TenantID)
	} else {
		for _, sess := range stale {
			staleIDs[sess.SessionID] = struct{}{}
		}
	}
	for _, id := range s.store.GetAllSessionIDs(tenantCtx.TenantID) {
		staleIDs[id] = struct{}{}
	}

	closed := 0
	for id := range staleIDs {
		s.locks.Lock(id)
		sess := s.loadSession(tenantCtx, id)
		if sess != nil && sess.IsActive && sess.LastActivity.Before(cutoff) {
			s.closeSession(tenantCtx, sess, time.Now().UTC(), "stale_sweep")
			closed++
		}
		s.locks.Unlock(id)
	}

	if closed > 0 {
		s.logger.Session().Info("Stale sessions swept",
			"tenantId", tenantCtx.TenantID,
			"closed", closed)
	}
	return closed
}

// StartSweepWorker runs the stale-session sweep across all active tenants
// on the configured interval until ctx is canceled.
func (s *SessionService) StartSweepWorker(ctx context.Context, manager *tenant.Manager) {
	go func() {
		ticker := time.NewTicker(config.SessionSweepInterval)
		defer ticker.Stop()

		s.logger.Session().Info("Session sweep worker started",
			"interval", config.SessionSweepInterval.String())

		for {
			select {
			case <-ctx.Done():
				s.logger.Session().Info("Session sweep worker stopping")
				return
			case <-ticker.C:
				for _, tenantID := range manager.ActiveTenantIDs() {
					tenantCtx, err := manager.GetContextByID(tenantID)
					if err != nil {
						s.logger.Session().Error("Sweep skipped, tenant unavailable",
							"error", err.Error(), "tenantId", tenantID)
						continue
					}
					s.SweepStaleSessions(tenantCtx)
				}
			}
		}
	}()
}

// closeSession ends a session and emits the session_end event. Caller
// holds the session (or user) lock.
func (s *SessionService) closeSession(tenantCtx *tenant.Context, sess *session.Session, now time.Time, reason string) {
	if !sess.End(now, config.HeartbeatIdleThreshold) {
		return
	}

	s.store.SetSession(tenantCtx.TenantID, sess)
	s.persist(tenantCtx, sess)

	s.logger.Session().Info("Session ended",
		"tenantId", tenantCtx.TenantID,
		"sessionId", logging.SanitizeSessionID(sess.SessionID),
		"durationSeconds", sess.Duration,
		"reason", reason)

	s.recorder.Record(tenantCtx, &analytics.Event{
		UserID:    sess.UserID,
		SessionID: sess.SessionID,
		Type:      analytics.EventSessionEnd,
		Payload:   analytics.SessionEndPayload{DurationSeconds: sess.Duration},
		Timestamp: now,
	})
	s.bus.Publish(domainEvents.DomainEvent{
		Type:      domainEvents.TypeSessionEnded,
		TenantID:  tenantCtx.TenantID,
		UserID:    sess.UserID,
		SessionID: sess.SessionID,
		Data:      map[string]any{"durationSeconds": sess.Duration, "reason": reason},
	})
}

// loadSession reads through the cache to the repository. The result is a
// private copy; the published record only changes via SetSession.
func (s *SessionService) loadSession(tenantCtx *tenant.Context, sessionID string) *session.Session {
	if sess, found := s.store.GetSession(tenantCtx.TenantID, sessionID); found {
		return sess
	}

	sess, err := tenantCtx.Repos.Sessions.FindByID(sessionID)
	if err != nil {
		s.logger.Session().Error("Session load failed",
			"error", err.Error(),
			"tenantId", tenantCtx.TenantID,
			"sessionId", logging.SanitizeSessionID(sessionID))
		return nil
	}
	if sess == nil {
		return nil
	}
	s.store.SetSession(tenantCtx.TenantID, sess)
	return sess.Clone()
}

// findActiveSession reads through the cache to the repository. Like
// loadSession, the result is a private copy.
func (s *SessionService) findActiveSession(tenantCtx *tenant.Context, userID string) *session.Session {
	if sess, found := s.store.GetActiveSessionForUser(tenantCtx.TenantID, userID); found {
		return sess
	}

	sess, err := tenantCtx.Repos.Sessions.FindActiveByUser(userID)
	if err != nil {
		s.logger.Session().Error("Active session load failed",
			"error", err.Error(),
			"tenantId", tenantCtx.TenantID,
			"userId", userID)
		return nil
	}
	if sess == nil {
		return nil
	}
	s.store.SetSession(tenantCtx.TenantID, sess)
	return sess.Clone()
}

// persist writes the session through to storage. Failures are logged and
// swallowed; the cache remains authoritative and the next write self-heals.
func (s *SessionService) persist(tenantCtx *tenant.Context, sess *session.Session) bool {
	if err := tenantCtx.Repos.Sessions.Update(sess); err != nil {
		s.logger.Session().Error("Session persist failed",
			"error", err.Error(),
			"tenantId", tenantCtx.TenantID,
			"sessionId", logging.SanitizeSessionID(sess.SessionID))
		return false
	}
	return true
}
