// Package stores provides concrete cache store implementations
package stores

import (
	"sort"
	"sync"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/session"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/caching/types"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/PlanPulseHQ/planpulse-go/pkg/config"
)

// SessionsStore implements live session caching with tenant isolation.
// It is the authoritative copy of in-progress session state; the SQL
// repository trails it by one write per mutation.
type SessionsStore struct {
	tenantCaches map[string]*types.TenantSessionCache
	mu           sync.RWMutex
	logger       *logging.ChanneledLogger
}

// NewSessionsStore creates a new sessions cache store
func NewSessionsStore(logger *logging.ChanneledLogger) *SessionsStore {
	if logger != nil {
		logger.Cache().Info("Initializing sessions cache store")
	}
	return &SessionsStore{
		tenantCaches: make(map[string]*types.TenantSessionCache),
		logger:       logger,
	}
}

// InitializeTenant creates cache structures for a tenant
func (ss *SessionsStore) InitializeTenant(tenantID string) {
	start := time.Now()
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.tenantCaches[tenantID] == nil {
		ss.tenantCaches[tenantID] = types.NewTenantSessionCache(tenantID)

		if ss.logger != nil {
			ss.logger.Cache().Info("Tenant session cache initialized", "tenantId", tenantID, "duration", time.Since(start))
		}
	}
}

// GetTenantCache safely retrieves a tenant's session cache
func (ss *SessionsStore) GetTenantCache(tenantID string) (*types.TenantSessionCache, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	cache, exists := ss.tenantCaches[tenantID]
	return cache, exists
}

// GetSession retrieves a session by ID. The result is a deep copy: readers
// never share memory with the cached record, and writers publish their
// changes by calling SetSession.
func (ss *SessionsStore) GetSession(tenantID, sessionID string) (*session.Session, bool) {
	start := time.Now()
	cache, exists := ss.GetTenantCache(tenantID)
	if !exists {
		if ss.logger != nil {
			ss.logger.Cache().Debug("Cache operation", "operation", "get", "type", "session", "tenantId", tenantID, "sessionId", logging.SanitizeSessionID(sessionID), "hit", false, "reason", "tenant_not_initialized", "duration", time.Since(start))
		}
		return nil, false
	}

	cache.Mu.RLock()
	defer cache.Mu.RUnlock()

	s, found := cache.Sessions[sessionID]
	if ss.logger != nil {
		ss.logger.Cache().Debug("Cache operation", "operation", "get", "type", "session", "tenantId", tenantID, "sessionId", logging.SanitizeSessionID(sessionID), "hit", found, "duration", time.Since(start))
	}
	if !found {
		return nil, false
	}
	return s.Clone(), true
}

// SetSession stores a session, evicting the oldest ended sessions when the
// tenant exceeds its budget. The store takes ownership of the record: the
// caller must not mutate it after publishing.
func (ss *SessionsStore) SetSession(tenantID string, s *session.Session) {
	start := time.Now()
	cache, exists := ss.GetTenantCache(tenantID)
	if !exists {
		ss.InitializeTenant(tenantID)
		cache, _ = ss.GetTenantCache(tenantID)
	}

	cache.Mu.Lock()
	defer cache.Mu.Unlock()

	if len(cache.Sessions) >= config.MaxSessionsPerTenant {
		ss.evictOldestUnsafe(cache)
	}

	cache.Sessions[s.SessionID] = s
	if s.IsActive {
		cache.UserToActiveSession[s.UserID] = s.SessionID
	} else if cache.UserToActiveSession[s.UserID] == s.SessionID {
		delete(cache.UserToActiveSession, s.UserID)
	}
	now := time.Now().UTC()
	cache.LastAccessed = now
	cache.LastUpdated = now

	if ss.logger != nil {
		ss.logger.Cache().Debug("Cache operation", "operation", "set", "type", "session", "tenantId", tenantID, "sessionId", logging.SanitizeSessionID(s.SessionID), "active", s.IsActive, "duration", time.Since(start))
	}
}

// RemoveSession drops a session from the cache.
func (ss *SessionsStore) RemoveSession(tenantID, sessionID string) {
	start := time.Now()
	cache, exists := ss.GetTenantCache(tenantID)
	if !exists {
		return
	}

	cache.Mu.Lock()
	defer cache.Mu.Unlock()

	if s, found := cache.Sessions[sessionID]; found {
		if cache.UserToActiveSession[s.UserID] == sessionID {
			delete(cache.UserToActiveSession, s.UserID)
		}
		delete(cache.Sessions, sessionID)
	}

	if ss.logger != nil {
		ss.logger.Cache().Debug("Cache operation", "operation", "remove", "type", "session", "tenantId", tenantID, "sessionId", logging.SanitizeSessionID(sessionID), "duration", time.Since(start))
	}
}

// GetActiveSessionForUser resolves the user's live session via the inverted
// index. Like GetSession, the result is a deep copy.
func (ss *SessionsStore) GetActiveSessionForUser(tenantID, userID string) (*session.Session, bool) {
	start := time.Now()
	cache, exists := ss.GetTenantCache(tenantID)
	if !exists {
		return nil, false
	}

	cache.Mu.RLock()
	defer cache.Mu.RUnlock()

	sessionID, found := cache.UserToActiveSession[userID]
	if !found {
		if ss.logger != nil {
			ss.logger.Cache().Debug("Cache operation", "operation", "get_active", "type", "session", "tenantId", tenantID, "userId", userID, "hit", false, "duration", time.Since(start))
		}
		return nil, false
	}

	s, found := cache.Sessions[sessionID]
	if ss.logger != nil {
		ss.logger.Cache().Debug("Cache operation", "operation", "get_active", "type", "session", "tenantId", tenantID, "userId", userID, "hit", found, "duration", time.Since(start))
	}
	if !found {
		return nil, false
	}
	return s.Clone(), true
}

// GetAllSessionIDs lists the cached session IDs for a tenant.
func (ss *SessionsStore) GetAllSessionIDs(tenantID string) []string {
	cache, exists := ss.GetTenantCache(tenantID)
	if !exists {
		return nil
	}

	cache.Mu.RLock()
	defer cache.Mu.RUnlock()

	ids := make([]string, 0, len(cache.Sessions))
	for id := range cache.Sessions {
		ids = append(ids, id)
	}
	return ids
}

// GetTenantIDs lists tenants with an initialized session cache.
func (ss *SessionsStore) GetTenantIDs() []string {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	ids := make([]string, 0, len(ss.tenantCaches))
	for id := range ss.tenantCaches {
		ids = append(ids, id)
	}
	return ids
}

// evictOldestUnsafe drops the oldest 20% of sessions, ended ones first.
// Caller holds cache.Mu.
func (ss *SessionsStore) evictOldestUnsafe(cache *types.TenantSessionCache) {
	type candidate struct {
		id           string
		active       bool
		lastActivity time.Time
	}

	candidates := make([]candidate, 0, len(cache.Sessions))
	for id, s := range cache.Sessions {
		candidates = append(candidates, candidate{id: id, active: s.IsActive, lastActivity: s.LastActivity})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].active != candidates[j].active {
			return !candidates[i].active
		}
		return candidates[i].lastActivity.Before(candidates[j].lastActivity)
	})

	evictCount := len(candidates) / 5
	if evictCount == 0 {
		evictCount = 1
	}
	for _, c := range candidates[:evictCount] {
		if s, found := cache.Sessions[c.id]; found {
			if cache.UserToActiveSession[s.UserID] == c.id {
				delete(cache.UserToActiveSession, s.UserID)
			}
			delete(cache.Sessions, c.id)
		}
	}

	if ss.logger != nil {
		ss.logger.Cache().Warn("Session cache eviction", "tenantId", cache.TenantID, "evicted", evictCount)
	}
}
