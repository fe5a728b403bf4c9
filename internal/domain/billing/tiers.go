// Package billing defines subscription tiers and the retention windows tied
// to them. Tier truth lives with the external billing collaborator; this
// package only validates and maps.
package billing

import (
	"fmt"
	"time"
)

// Tier is a subscription tier. The set is closed: anything else is rejected
// before any state mutation.
type Tier string

const (
	TierFree       Tier = "free"
	TierStarter    Tier = "starter"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// SubscriptionStatus mirrors the billing collaborator's status values.
type SubscriptionStatus string

const (
	StatusActive      SubscriptionStatus = "active"
	StatusCanceled    SubscriptionStatus = "canceled"
	StatusReactivated SubscriptionStatus = "reactivated"
)

// ParseTier validates a raw tier string against the closed enum.
func ParseTier(raw string) (Tier, error) {
	switch Tier(raw) {
	case TierFree, TierStarter, TierPro, TierEnterprise:
		return Tier(raw), nil
	}
	return "", fmt.Errorf("unknown subscription tier: %q", raw)
}

// RetentionWindow returns the analytics retention window for a tier.
// unbounded=true means data is kept forever and the duration is meaningless.
func RetentionWindow(tier Tier) (window time.Duration, unbounded bool) {
	switch tier {
	case TierFree:
		return 30 * 24 * time.Hour, false
	case TierStarter:
		return 90 * 24 * time.Hour, false
	case TierPro:
		return 365 * 24 * time.Hour, false
	case TierEnterprise:
		return 0, true
	}
	// Callers validate via ParseTier first; an unknown tier here gets the
	// most conservative window.
	return 30 * 24 * time.Hour, false
}

// WindowRank orders tiers by retention generosity, for upgrade/downgrade
// detection.
func WindowRank(tier Tier) int {
	switch tier {
	case TierFree:
		return 0
	case TierStarter:
		return 1
	case TierPro:
		return 2
	case TierEnterprise:
		return 3
	}
	return 0
}

// PlanChange is one plan-change notification from the billing collaborator.
type PlanChange struct {
	UserID string             `json:"userId"`
	Tier   string             `json:"tier"`
	Status SubscriptionStatus `json:"status"`
}

// PlanChangeFailure captures a single failed item in a batch.
type PlanChangeFailure struct {
	UserID string `json:"userId"`
	Error  string `json:"error"`
}

// BatchResult reports per-event isolation outcomes for a plan-change batch.
type BatchResult struct {
	Processed int                 `json:"processed"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Failures  []PlanChangeFailure `json:"failures,omitempty"`
}
