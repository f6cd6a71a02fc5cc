package entity

import (
	"time"
)

// User is the aggregate root for the user domain. One row exists per
// authenticated identity; the row is created lazily on the first
// authenticated request, not at signup.
type User struct {
	ID         string
	IdentityID string // subject claim from the identity provider, immutable
	Email      string
	Name       string
	AvatarURL  string

	PlanStatus  PlanStatus
	TrialEndsAt *time.Time

	// BillingCustomerRef is set once on first checkout and never changes.
	// BillingSubscriptionRef is overwritten by every subscription event.
	BillingCustomerRef     string
	BillingSubscriptionRef string

	// ThreadCount only ever goes up.
	ThreadCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TrialActive reports whether the user is on a trial that has not lapsed at t.
func (u *User) TrialActive(t time.Time) bool {
	return u.PlanStatus == PlanTrial && u.TrialEndsAt != nil && !t.After(*u.TrialEndsAt)
}
