package entity

import "time"

// PlanStatus is the subscription plan state of a user.
type PlanStatus string

const (
	PlanTrial   PlanStatus = "trial"
	PlanPremium PlanStatus = "premium"
	PlanExpired PlanStatus = "expired"

	// PlanFree is a legacy value still present on old rows. It is always
	// denied; there is no path back into it.
	PlanFree PlanStatus = "free"
)

const (
	// TrialDuration is granted on first authenticated request.
	TrialDuration = 7 * 24 * time.Hour

	// TrialThreadLimit caps how many conversation threads a trial user may create.
	TrialThreadLimit = 10
)

// Known reports whether s is one of the statuses this service manages.
func (s PlanStatus) Known() bool {
	switch s {
	case PlanTrial, PlanPremium, PlanExpired, PlanFree:
		return true
	}
	return false
}

// PlanFromProviderStatus maps a billing provider subscription status onto a
// plan status. Anything unrecognized maps to expired so a new provider
// status can never silently grant access.
func PlanFromProviderStatus(status string) PlanStatus {
	switch status {
	case "active":
		return PlanPremium
	case "trialing":
		return PlanTrial
	case "past_due", "canceled", "unpaid":
		return PlanExpired
	default:
		return PlanExpired
	}
}
