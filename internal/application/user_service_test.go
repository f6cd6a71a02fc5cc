package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenchat/lumenchat-backend/internal/domain/entity"
)

func newTestUserService(fr *fakeUserRepo, now time.Time) *UserService {
	s := NewUserService(fr, nil, nil, nil, "", nil, "", testLogger())
	s.Now = func() time.Time { return now }
	return s
}

func TestEnsureCreatesTrialDefaults(t *testing.T) {
	now := time.Now()
	fr := newFakeUserRepo()
	svc := newTestUserService(fr, now)

	u, err := svc.Ensure(context.Background(), "auth0|new-user", "new@example.com", "New User")
	require.NoError(t, err)

	assert.Equal(t, entity.PlanTrial, u.PlanStatus)
	assert.Zero(t, u.ThreadCount)
	require.NotNil(t, u.TrialEndsAt)
	assert.WithinDuration(t, now.Add(entity.TrialDuration), *u.TrialEndsAt, time.Second)
}

func TestEnsureReturnsExistingRecord(t *testing.T) {
	now := time.Now()
	existing := &entity.User{
		ID:         "u1",
		IdentityID: "auth0|known",
		Email:      "old@example.com",
		PlanStatus: entity.PlanPremium,
	}
	fr := newFakeUserRepo(existing)
	svc := newTestUserService(fr, now)

	u, err := svc.Ensure(context.Background(), "auth0|known", "old@example.com", "Known")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, entity.PlanPremium, u.PlanStatus, "existing plan state is untouched")
}

func TestStatusPayloadShape(t *testing.T) {
	now := time.Now()
	ends := now.Add(48 * time.Hour)
	u := &entity.User{ID: "u1", PlanStatus: entity.PlanTrial, TrialEndsAt: &ends, ThreadCount: 4}
	svc := newTestUserService(newFakeUserRepo(u), now)

	p := svc.Status(context.Background(), u)
	assert.Equal(t, "trial", p.PlanStatus)
	assert.Equal(t, 4, p.ThreadCount)
	require.NotNil(t, p.TrialEndsAt)
	assert.Equal(t, ends.UTC().Format(time.RFC3339), *p.TrialEndsAt)
}

func TestStatusNoTrialDate(t *testing.T) {
	u := &entity.User{ID: "u1", PlanStatus: entity.PlanPremium, ThreadCount: 12}
	svc := newTestUserService(newFakeUserRepo(u), time.Now())

	p := svc.Status(context.Background(), u)
	assert.Equal(t, "premium", p.PlanStatus)
	assert.Nil(t, p.TrialEndsAt)
}
