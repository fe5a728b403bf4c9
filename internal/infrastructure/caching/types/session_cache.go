// Package types defines the cache data structures for the session engine.
package types

import (
	"sync"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/session"
)

// TenantSessionCache holds the live session state for one tenant.
//
// LOCKING: callers take Mu before touching any map. The per-session lock
// table serializes logical operations on one session; Mu only protects the
// map structure itself.
type TenantSessionCache struct {
	TenantID string

	// Sessions holds live and recently ended sessions by session ID.
	Sessions map[string]*session.Session

	// UserToActiveSession is the inverted index used by start-or-resume.
	UserToActiveSession map[string]string

	Mu           sync.RWMutex
	LastAccessed time.Time
	LastUpdated  time.Time
}

// NewTenantSessionCache creates an empty cache for a tenant.
func NewTenantSessionCache(tenantID string) *TenantSessionCache {
	now := time.Now().UTC()
	return &TenantSessionCache{
		TenantID:            tenantID,
		Sessions:            make(map[string]*session.Session),
		UserToActiveSession: make(map[string]string),
		LastAccessed:        now,
		LastUpdated:         now,
	}
}
