package services

import (
	"context"
	"fmt"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/analytics"
	"github.com/PlanPulseHQ/planpulse-go/internal/domain/billing"
	domainEvents "github.com/PlanPulseHQ/planpulse-go/internal/domain/events"
	"github.com/PlanPulseHQ/planpulse-go/internal/domain/repositories"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/email"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/messaging"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/tenant"
	"github.com/PlanPulseHQ/planpulse-go/pkg/config"
)

// RetentionService applies tier retention windows to a user's history when
// their plan changes, and runs the deferred purge.
//
// A downgrade never deletes immediately. Out-of-window rows get an expiry
// stamp a grace period out; an upgrade or reactivation before the deadline
// clears the stamps and the history survives untouched. Only the purge
// worker deletes.
type RetentionService struct {
	recorder *EventRecorder
	bus      *messaging.Bus
	logger   *logging.ChanneledLogger
}

// NewRetentionService creates the retention policy engine.
func NewRetentionService(recorder *EventRecorder, bus *messaging.Bus, logger *logging.ChanneledLogger) *RetentionService {
	return &RetentionService{recorder: recorder, bus: bus, logger: logger}
}

// ApplyPlanChange validates and applies a single plan change. The tier is
// checked against the closed enum before any state mutation; an unknown
// tier changes nothing.
func (r *RetentionService) ApplyPlanChange(tenantCtx *tenant.Context, change billing.PlanChange) error {
	if change.UserID == "" {
		return fmt.Errorf("userId is required")
	}
	newTier, err := billing.ParseTier(change.Tier)
	if err != nil {
		return err
	}
	status := change.Status
	if status == "" {
		status = billing.StatusActive
	}

	now := time.Now().UTC()
	log := r.logger.Retention()

	previous, err := tenantCtx.Repos.Policies.Find(change.UserID)
	if err != nil {
		return fmt.Errorf("failed to load retention policy for user %s: %w", change.UserID, err)
	}
	oldTier := billing.TierFree
	if previous != nil {
		oldTier = previous.Tier
	}

	window, unbounded := billing.RetentionWindow(newTier)
	widening := previous == nil ||
		billing.WindowRank(newTier) > billing.WindowRank(oldTier) ||
		status == billing.StatusReactivated

	policy := &repositories.RetentionPolicy{
		UserID:    change.UserID,
		Tier:      newTier,
		Status:    status,
		UpdatedAt: now,
	}
	if !unbounded {
		policy.WindowDays = int64(window / (24 * time.Hour))
	}

	if widening || unbounded {
		// Wider window or reactivation rescinds any pending purge. The
		// history comes back because it was never deleted.
		eventsCleared, err := tenantCtx.Repos.Events.ClearExpiry(change.UserID)
		if err != nil {
			return fmt.Errorf("failed to clear event expiry for user %s: %w", change.UserID, err)
		}
		sessionsCleared, err := tenantCtx.Repos.Sessions.ClearExpiry(change.UserID)
		if err != nil {
			return fmt.Errorf("failed to clear session expiry for user %s: %w", change.UserID, err)
		}
		log.Info("Retention window widened",
			"tenantId", tenantCtx.TenantID,
			"userId", change.UserID,
			"tier", string(newTier),
			"eventsRestored", eventsCleared,
			"sessionsRestored", sessionsCleared)
	}

	if !unbounded {
		cutoff := now.Add(-window)
		graceUntil := now.Add(config.RetentionGracePeriod)

		eventsMarked, err := tenantCtx.Repos.Events.MarkOutOfWindow(change.UserID, cutoff, graceUntil)
		if err != nil {
			return fmt.Errorf("failed to mark events out of window for user %s: %w", change.UserID, err)
		}
		sessionsMarked, err := tenantCtx.Repos.Sessions.MarkOutOfWindow(change.UserID, cutoff, graceUntil)
		if err != nil {
			return fmt.Errorf("failed to mark sessions out of window for user %s: %w", change.UserID, err)
		}

		if eventsMarked > 0 || sessionsMarked > 0 {
			policy.GraceUntil = &graceUntil
			log.Info("History scheduled for purge",
				"tenantId", tenantCtx.TenantID,
				"userId", change.UserID,
				"tier", string(newTier),
				"eventsMarked", eventsMarked,
				"sessionsMarked", sessionsMarked,
				"graceUntil", graceUntil.Format(time.RFC3339))
			r.sendGraceNotice(tenantCtx, change.UserID, newTier, graceUntil)
		}
	}

	if err := tenantCtx.Repos.Policies.Upsert(policy); err != nil {
		return fmt.Errorf("failed to store retention policy for user %s: %w", change.UserID, err)
	}

	r.recordPlanEvent(tenantCtx, change.UserID, oldTier, newTier, status, now)
	r.bus.Publish(domainEvents.DomainEvent{
		Type:     domainEvents.TypeRetentionApplied,
		TenantID: tenantCtx.TenantID,
		UserID:   change.UserID,
		Data:     map[string]any{"tier": string(newTier), "status": string(status)},
	})
	return nil
}

// ProcessPlanChanges applies a batch with per-item isolation: one bad item
// is reported in the result and never stops the rest.
func (r *RetentionService) ProcessPlanChanges(tenantCtx *tenant.Context, changes []billing.PlanChange) *billing.BatchResult {
	result := &billing.BatchResult{Processed: len(changes)}

	for _, change := range changes {
		err := r.applyIsolated(tenantCtx, change)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, billing.PlanChangeFailure{
				UserID: change.UserID,
				Error:  err.Error(),
			})
			r.logger.Retention().Error("Plan change failed",
				"error", err.Error(),
				"tenantId", tenantCtx.TenantID,
				"userId", change.UserID)
			continue
		}
		result.Succeeded++
	}
	return result
}

// applyIsolated converts a panic inside one item into that item's error.
func (r *RetentionService) applyIsolated(tenantCtx *tenant.Context, change billing.PlanChange) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("plan change panicked: %v", rec)
		}
	}()
	return r.ApplyPlanChange(tenantCtx, change)
}

// CancelSubscription records a cancellation. Retention stays at the
// current tier until the billing collaborator follows up with the
// downgrade plan change.
func (r *RetentionService) CancelSubscription(tenantCtx *tenant.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("userId is required")
	}

	now := time.Now().UTC()
	policy, err := tenantCtx.Repos.Policies.Find(userID)
	if err != nil {
		return fmt.Errorf("failed to load retention policy for user %s: %w", userID, err)
	}
	tier := billing.TierFree
	if policy != nil {
		tier = policy.Tier
		policy.Status = billing.StatusCanceled
		policy.UpdatedAt = now
	} else {
		window, unbounded := billing.RetentionWindow(tier)
		policy = &repositories.RetentionPolicy{
			UserID:    userID,
			Tier:      tier,
			Status:    billing.StatusCanceled,
			UpdatedAt: now,
		}
		if !unbounded {
			policy.WindowDays = int64(window / (24 * time.Hour))
		}
	}

	if err := tenantCtx.Repos.Policies.Upsert(policy); err != nil {
		return fmt.Errorf("failed to store retention policy for user %s: %w", userID, err)
	}

	r.logger.Retention().Info("Subscription canceled",
		"tenantId", tenantCtx.TenantID,
		"userId", userID,
		"tier", string(tier))

	r.recorder.Record(tenantCtx, &analytics.Event{
		UserID:    userID,
		Type:      analytics.EventSubscriptionCanceled,
		Payload:   analytics.NewPlanChangePayload(analytics.EventSubscriptionCanceled, string(tier), string(tier)),
		Timestamp: now,
	})
	r.bus.Publish(domainEvents.DomainEvent{
		Type:     domainEvents.TypePlanCanceled,
		TenantID: tenantCtx.TenantID,
		UserID:   userID,
	})
	return nil
}

// PlanSummary is the applied retention state for one user.
type PlanSummary struct {
	UserID       string     `json:"userId"`
	Tier         string     `json:"tier"`
	Status       string     `json:"status"`
	WindowDays   int64      `json:"windowDays"` // 0 means unbounded
	GraceUntil   *time.Time `json:"graceUntil,omitempty"`
	Retained     int64      `json:"retainedEvents"`
	PendingPurge int64      `json:"pendingPurgeEvents"`
}

// GetPlanSummary reports a user's applied policy plus retained and
// pending-purge event counts. Users never seen by a plan change report the
// free tier defaults.
func (r *RetentionService) GetPlanSummary(tenantCtx *tenant.Context, userID string) (*PlanSummary, error) {
	if userID == "" {
		return nil, fmt.Errorf("userId is required")
	}

	summary := &PlanSummary{
		UserID: userID,
		Tier:   string(billing.TierFree),
		Status: string(billing.StatusActive),
	}
	window, _ := billing.RetentionWindow(billing.TierFree)
	summary.WindowDays = int64(window / (24 * time.Hour))

	policy, err := tenantCtx.Repos.Policies.Find(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load retention policy for user %s: %w", userID, err)
	}
	if policy != nil {
		summary.Tier = string(policy.Tier)
		summary.Status = string(policy.Status)
		summary.WindowDays = policy.WindowDays
		summary.GraceUntil = policy.GraceUntil
	}

	retained, pending, err := tenantCtx.Repos.Events.CountByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count events for user %s: %w", userID, err)
	}
	summary.Retained = retained
	summary.PendingPurge = pending
	return summary, nil
}

// RunPurgeOnce deletes rows whose grace deadline has passed, for one
// tenant. Returns total rows purged.
func (r *RetentionService) RunPurgeOnce(tenantCtx *tenant.Context) (int64, error) {
	now := time.Now().UTC()

	eventsPurged, err := tenantCtx.Repos.Events.PurgeExpired(now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired events: %w", err)
	}
	sessionsPurged, err := tenantCtx.Repos.Sessions.PurgeExpired(now)
	if err != nil {
		return eventsPurged, fmt.Errorf("failed to purge expired sessions: %w", err)
	}

	total := eventsPurged + sessionsPurged
	if total > 0 {
		r.logger.Retention().Info("Expired history purged",
			"tenantId", tenantCtx.TenantID,
			"events", eventsPurged,
			"sessions", sessionsPurged)
		r.bus.Publish(domainEvents.DomainEvent{
			Type:     domainEvents.TypeRetentionPurged,
			TenantID: tenantCtx.TenantID,
			Data:     map[string]any{"events": eventsPurged, "sessions": sessionsPurged},
		})
	}
	return total, nil
}

// StartPurgeWorker runs the purge across all active tenants on the
// configured interval until ctx is canceled.
func (r *RetentionService) StartPurgeWorker(ctx context.Context, manager *tenant.Manager) {
	go func() {
		ticker := time.NewTicker(config.RetentionSweepInterval)
		defer ticker.Stop()

		r.logger.Retention().Info("Retention purge worker started",
			"interval", config.RetentionSweepInterval.String())

		for {
			select {
			case <-ctx.Done():
				r.logger.Retention().Info("Retention purge worker stopping")
				return
			case <-ticker.C:
				for _, tenantID := range manager.ActiveTenantIDs() {
					tenantCtx, err := manager.GetContextByID(tenantID)
					if err != nil {
						r.logger.Retention().Error("Purge skipped, tenant unavailable",
							"error", err.Error(), "tenantId", tenantID)
						continue
					}
					if _, err := r.RunPurgeOnce(tenantCtx); err != nil {
						r.logger.Retention().Error("Purge failed",
							"error", err.Error(), "tenantId", tenantID)
					}
				}
			}
		}
	}()
}

// sendGraceNotice emails the user about the pending purge. Best effort;
// retention state never depends on email delivery.
func (r *RetentionService) sendGraceNotice(tenantCtx *tenant.Context, userID string, tier billing.Tier, graceUntil time.Time) {
	if tenantCtx.Config == nil || tenantCtx.Config.ResendAPIKey == "" {
		return
	}
	client := email.NewClient(tenantCtx.Config.ResendAPIKey, "", r.logger)

	account, err := tenantCtx.Repos.Users.FindByID(userID)
	if err != nil || account == nil {
		return
	}
	if err := client.SendRetentionNotice(account.Email, account.FirstName, string(tier), graceUntil); err != nil {
		r.logger.Retention().Warn("Grace notice email failed",
			"error", err.Error(),
			"tenantId", tenantCtx.TenantID,
			"userId", userID)
	}
}

// recordPlanEvent emits the analytics event matching the change direction.
func (r *RetentionService) recordPlanEvent(tenantCtx *tenant.Context, userID string, oldTier, newTier billing.Tier, status billing.SubscriptionStatus, now time.Time) {
	kind := analytics.EventPlanUpgrade
	switch {
	case status == billing.StatusReactivated:
		kind = analytics.EventSubscriptionReactivate
	case billing.WindowRank(newTier) < billing.WindowRank(oldTier):
		kind = analytics.EventPlanDowngrade
	}

	r.recorder.Record(tenantCtx, &analytics.Event{
		UserID:    userID,
		Type:      kind,
		Payload:   analytics.NewPlanChangePayload(kind, string(oldTier), string(newTier)),
		Timestamp: now,
	})
}
