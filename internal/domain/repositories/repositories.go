// Package repositories defines the repository and collaborator interfaces
// for the session engine. These abstract the persistence details so the
// application services stay decoupled from the database.
package repositories

import (
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/analytics"
	"github.com/PlanPulseHQ/planpulse-go/internal/domain/billing"
	"github.com/PlanPulseHQ/planpulse-go/internal/domain/session"
	"github.com/PlanPulseHQ/planpulse-go/internal/domain/user"
)

// SessionRepository persists sessions and their project time ledgers.
type SessionRepository interface {
	Store(s *session.Session) error
	Update(s *session.Session) error
	FindByID(sessionID string) (*session.Session, error)
	FindActiveByUser(userID string) (*session.Session, error)
	FindByUserSince(userID string, since time.Time) ([]*session.Session, error)
	FindByUsersSince(userIDs []string, since time.Time) ([]*session.Session, error)
	FindStale(cutoff time.Time) ([]*session.Session, error)
	MarkOutOfWindow(userID string, cutoff, expireAt time.Time) (int64, error)
	ClearExpiry(userID string) (int64, error)
	PurgeExpired(now time.Time) (int64, error)
}

// EventRepository persists append-only analytics events.
type EventRepository interface {
	Store(ev *analytics.Event) error
	CountByUser(userID string) (retained int64, pendingPurge int64, err error)
	MarkOutOfWindow(userID string, cutoff, expireAt time.Time) (int64, error)
	ClearExpiry(userID string) (int64, error)
	PurgeExpired(now time.Time) (int64, error)
}

// RetentionPolicy is the per-user applied retention state.
type RetentionPolicy struct {
	UserID     string
	Tier       billing.Tier
	Status     billing.SubscriptionStatus
	WindowDays int64 // 0 means unbounded
	GraceUntil *time.Time
	UpdatedAt  time.Time
}

// PolicyRepository persists applied retention policies.
type PolicyRepository interface {
	Upsert(policy *RetentionPolicy) error
	Find(userID string) (*RetentionPolicy, error)
}

// UserRepository looks up accounts for authentication.
type UserRepository interface {
	FindByEmail(email string) (*user.Account, error)
	FindByID(userID string) (*user.Account, error)
}

// Project is the minimal projection the engine needs from the project
// collaborator.
type Project struct {
	ID   string
	Name string
}

// ProjectDirectory resolves project existence and names.
type ProjectDirectory interface {
	FindProject(projectID string) (*Project, error)
}

// TeamMember is one member of a project's team.
type TeamMember struct {
	UserID string
	Name   string
	Role   string
}

// TeamDirectory resolves project team membership.
type TeamDirectory interface {
	FindMembers(projectID string) ([]TeamMember, error)
}

// BillingDirectory resolves the billing collaborator's view of a user's
// plan. Tier truth lives there, never here.
type BillingDirectory interface {
	FindPlan(userID string) (billing.Tier, billing.SubscriptionStatus, error)
}
