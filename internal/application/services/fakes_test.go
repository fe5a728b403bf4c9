package services

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/analytics"
	"github.com/PlanPulseHQ/planpulse-go/internal/domain/billing"
	"github.com/PlanPulseHQ/planpulse-go/internal/domain/repositories"
	"github.com/PlanPulseHQ/planpulse-go/internal/domain/session"
	"github.com/PlanPulseHQ/planpulse-go/internal/domain/user"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/caching"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/caching/stores"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/messaging"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/tenant"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *logging.ChanneledLogger {
	t.Helper()
	logger, err := logging.NewChanneledLogger(&logging.LoggerConfig{
		OutputToFile:    false,
		OutputToConsole: false,
		DefaultLevel:    slog.LevelError + 4, // silence everything below fatal-ish
		ChannelLevels:   map[logging.Channel]slog.Level{},
	})
	require.NoError(t, err)
	return logger
}

// fakeSessionRepo is an in-memory SessionRepository.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	expiry   map[string]time.Time // sessionID -> expireAt

	failStore  bool
	failUpdate bool
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions: make(map[string]*session.Session),
		expiry:   make(map[string]time.Time),
	}
}

func (f *fakeSessionRepo) Store(s *session.Session) error {
	if f.failStore {
		return fmt.Errorf("store failed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.SessionID] = s.Clone()
	return nil
}

func (f *fakeSessionRepo) Update(s *session.Session) error {
	if f.failUpdate {
		return fmt.Errorf("update failed")
	}
	return f.Store(s)
}

func (f *fakeSessionRepo) FindByID(sessionID string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionID]; ok {
		return s.Clone(), nil
	}
	return nil, nil
}

func (f *fakeSessionRepo) FindActiveByUser(userID string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.UserID == userID && s.IsActive {
			return s.Clone(), nil
		}
	}
	return nil, nil
}

func (f *fakeSessionRepo) FindByUserSince(userID string, since time.Time) ([]*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*session.Session
	for _, s := range f.sessions {
		if _, marked := f.expiry[s.SessionID]; marked {
			continue
		}
		if s.UserID == userID && !s.StartTime.Before(since) {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) FindByUsersSince(userIDs []string, since time.Time) ([]*session.Session, error) {
	var out []*session.Session
	for _, uid := range userIDs {
		sessions, err := f.FindByUserSince(uid, since)
		if err != nil {
			return nil, err
		}
		out = append(out, sessions...)
	}
	return out, nil
}

func (f *fakeSessionRepo) FindStale(cutoff time.Time) ([]*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*session.Session
	for _, s := range f.sessions {
		if s.IsActive && s.LastActivity.Before(cutoff) {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) MarkOutOfWindow(userID string, cutoff, expireAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.sessions {
		if s.UserID == userID && s.StartTime.Before(cutoff) {
			if _, marked := f.expiry[id]; !marked {
				f.expiry[id] = expireAt
				n++
			}
		}
	}
	return n, nil
}

func (f *fakeSessionRepo) ClearExpiry(userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.sessions {
		if s.UserID == userID {
			if _, marked := f.expiry[id]; marked {
				delete(f.expiry, id)
				n++
			}
		}
	}
	return n, nil
}

func (f *fakeSessionRepo) PurgeExpired(now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, expireAt := range f.expiry {
		if !expireAt.After(now) {
			delete(f.expiry, id)
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

// fakeEventRepo is an in-memory EventRepository.
type fakeEventRepo struct {
	mu     sync.Mutex
	events []*analytics.Event
	expiry map[string]time.Time // eventID -> expireAt

	failStore bool
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{expiry: make(map[string]time.Time)}
}

func (f *fakeEventRepo) Store(ev *analytics.Event) error {
	if f.failStore {
		return fmt.Errorf("store failed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("ev_%d", len(f.events)+1)
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEventRepo) CountByUser(userID string) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var retained, pending int64
	for _, ev := range f.events {
		if ev.UserID != userID {
			continue
		}
		if _, marked := f.expiry[ev.ID]; marked {
			pending++
		} else {
			retained++
		}
	}
	return retained, pending, nil
}

func (f *fakeEventRepo) MarkOutOfWindow(userID string, cutoff, expireAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, ev := range f.events {
		if ev.UserID == userID && ev.Timestamp.Before(cutoff) {
			if _, marked := f.expiry[ev.ID]; !marked {
				f.expiry[ev.ID] = expireAt
				n++
			}
		}
	}
	return n, nil
}

func (f *fakeEventRepo) ClearExpiry(userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, ev := range f.events {
		if ev.UserID == userID {
			if _, marked := f.expiry[ev.ID]; marked {
				delete(f.expiry, ev.ID)
				n++
			}
		}
	}
	return n, nil
}

func (f *fakeEventRepo) PurgeExpired(now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	kept := f.events[:0]
	for _, ev := range f.events {
		if expireAt, marked := f.expiry[ev.ID]; marked && !expireAt.After(now) {
			delete(f.expiry, ev.ID)
			n++
			continue
		}
		kept = append(kept, ev)
	}
	f.events = kept
	return n, nil
}

func (f *fakeEventRepo) countAll() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeEventRepo) countType(kind analytics.EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.Type == kind {
			n++
		}
	}
	return n
}

// fakePolicyRepo is an in-memory PolicyRepository.
type fakePolicyRepo struct {
	mu       sync.Mutex
	policies map[string]*repositories.RetentionPolicy

	failUpsert bool
}

func newFakePolicyRepo() *fakePolicyRepo {
	return &fakePolicyRepo{policies: make(map[string]*repositories.RetentionPolicy)}
}

func (f *fakePolicyRepo) Upsert(policy *repositories.RetentionPolicy) error {
	if f.failUpsert {
		return fmt.Errorf("upsert failed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *policy
	f.policies[policy.UserID] = &copied
	return nil
}

func (f *fakePolicyRepo) Find(userID string) (*repositories.RetentionPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.policies[userID]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, nil
}

// fakeUserRepo resolves accounts by email or ID.
type fakeUserRepo struct {
	accounts map[string]*user.Account // by ID
}

func (f *fakeUserRepo) FindByEmail(email string) (*user.Account, error) {
	for _, a := range f.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) FindByID(userID string) (*user.Account, error) {
	if a, ok := f.accounts[userID]; ok {
		return a, nil
	}
	return nil, nil
}

// fakeProjectDir knows a fixed set of projects.
type fakeProjectDir struct {
	projects map[string]string // id -> name
}

func (f *fakeProjectDir) FindProject(projectID string) (*repositories.Project, error) {
	if name, ok := f.projects[projectID]; ok {
		return &repositories.Project{ID: projectID, Name: name}, nil
	}
	return nil, nil
}

// fakeTeamDir returns a fixed team per project.
type fakeTeamDir struct {
	teams map[string][]repositories.TeamMember
}

func (f *fakeTeamDir) FindMembers(projectID string) ([]repositories.TeamMember, error) {
	return f.teams[projectID], nil
}

// fakeBillingDir returns a fixed tier per user.
type fakeBillingDir struct {
	tiers map[string]billing.Tier
}

func (f *fakeBillingDir) FindPlan(userID string) (billing.Tier, billing.SubscriptionStatus, error) {
	if tier, ok := f.tiers[userID]; ok {
		return tier, billing.StatusActive, nil
	}
	return billing.TierFree, billing.StatusActive, nil
}

// testEnv bundles the fakes and services one test needs.
type testEnv struct {
	ctx       *tenant.Context
	store     *stores.SessionsStore
	locks     *caching.LockTable
	bus       *messaging.Bus
	recorder  *EventRecorder
	sessions  *fakeSessionRepo
	events    *fakeEventRepo
	policies  *fakePolicyRepo
	users     *fakeUserRepo
	projects  *fakeProjectDir
	teams     *fakeTeamDir
	sessionSv *SessionService
	ledgerSv  *TimeLedgerService
	retention *RetentionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := testLogger(t)
	env := &testEnv{
		store:    stores.NewSessionsStore(logger),
		locks:    caching.NewLockTable(),
		bus:      messaging.NewBus(logger),
		sessions: newFakeSessionRepo(),
		events:   newFakeEventRepo(),
		policies: newFakePolicyRepo(),
		users:    &fakeUserRepo{accounts: map[string]*user.Account{}},
		projects: &fakeProjectDir{projects: map[string]string{
			"proj-alpha": "Alpha",
			"proj-beta":  "Beta",
		}},
		teams: &fakeTeamDir{teams: map[string][]repositories.TeamMember{}},
	}
	env.recorder = NewEventRecorder(logger)
	env.recorder.Start()
	t.Cleanup(env.recorder.Stop)

	env.ctx = &tenant.Context{
		TenantID: "default",
		Status:   "active",
		Repos: &tenant.Repositories{
			Sessions: env.sessions,
			Events:   env.events,
			Policies: env.policies,
			Users:    env.users,
			Projects: env.projects,
			Teams:    env.teams,
			Billing:  &fakeBillingDir{tiers: map[string]billing.Tier{}},
		},
	}
	env.store.InitializeTenant("default")

	env.sessionSv = NewSessionService(env.store, env.locks, env.recorder, env.bus, logger)
	env.ledgerSv = NewTimeLedgerService(env.store, logger)
	env.retention = NewRetentionService(env.recorder, env.bus, logger)
	return env
}

// drainRecorder waits for the asynchronous event writes of a test to land.
func (env *testEnv) drainRecorder(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(env.recorder.ch) == 0
	}, time.Second, 5*time.Millisecond)
}
