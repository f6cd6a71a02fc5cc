package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlanFromProviderStatus(t *testing.T) {
	cases := []struct {
		in   string
		want PlanStatus
	}{
		{"active", PlanPremium},
		{"trialing", PlanTrial},
		{"past_due", PlanExpired},
		{"canceled", PlanExpired},
		{"unpaid", PlanExpired},
		{"paused", PlanExpired}, // unknown statuses fail closed
		{"", PlanExpired},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PlanFromProviderStatus(tc.in), "provider status %q", tc.in)
	}
}

func TestTrialActive(t *testing.T) {
	now := time.Now()
	ends := now.Add(time.Hour)

	u := &User{PlanStatus: PlanTrial, TrialEndsAt: &ends}
	assert.True(t, u.TrialActive(now))
	assert.True(t, u.TrialActive(ends), "boundary instant still counts as active")
	assert.False(t, u.TrialActive(ends.Add(time.Second)))

	assert.False(t, (&User{PlanStatus: PlanTrial}).TrialActive(now), "no end date means not active")
	assert.False(t, (&User{PlanStatus: PlanPremium, TrialEndsAt: &ends}).TrialActive(now))
}

func TestKnownStatuses(t *testing.T) {
	assert.True(t, PlanTrial.Known())
	assert.True(t, PlanPremium.Known())
	assert.True(t, PlanExpired.Known())
	assert.True(t, PlanFree.Known())
	assert.False(t, PlanStatus("gold").Known())
}
