package application

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lumenchat/lumenchat-backend/internal/domain/entity"
	repo "github.com/lumenchat/lumenchat-backend/internal/domain/repository"
	mailtpl "github.com/lumenchat/lumenchat-backend/pkg/mailer/templates"
)

// AccessDecision is the outcome of a plan access check.
type AccessDecision struct {
	Allowed bool
	Reason  string
	Status  entity.PlanStatus
}

// PlanService is the plan state machine. Trial expiry is evaluated lazily on
// every access check; all other transitions come from the billing reconciler.
type PlanService struct {
	Repo     repo.UserRepository
	Cache    *StatusCache
	Notifier *Notifier
	Logger   *logrus.Logger

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewPlanService(r repo.UserRepository, cache *StatusCache, notifier *Notifier, logger *logrus.Logger) *PlanService {
	return &PlanService{Repo: r, Cache: cache, Notifier: notifier, Logger: logger, Now: time.Now}
}

func (s *PlanService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CheckAccess decides whether u may use gated features right now. A lapsed
// trial is transitioned to expired and persisted before the denial is
// returned; if that write fails the check fails too, so access is never
// granted (or denied as merely "expired") off stale state.
func (s *PlanService) CheckAccess(ctx context.Context, u *entity.User) (AccessDecision, error) {
	switch u.PlanStatus {
	case entity.PlanPremium:
		return AccessDecision{Allowed: true, Status: entity.PlanPremium}, nil

	case entity.PlanTrial:
		if u.TrialEndsAt == nil {
			// Invariant violation: trial rows carry an end date. Treat
			// like an unknown status rather than an open-ended trial.
			return s.deny("unknown plan status", u.PlanStatus), nil
		}
		if !s.now().After(*u.TrialEndsAt) {
			return AccessDecision{Allowed: true, Status: entity.PlanTrial}, nil
		}
		if err := s.expireTrial(ctx, u); err != nil {
			return AccessDecision{}, fmt.Errorf("persist trial expiry: %w", err)
		}
		return s.deny("trial expired", entity.PlanExpired), nil

	case entity.PlanExpired:
		return s.deny("plan expired", entity.PlanExpired), nil

	default:
		// Includes legacy "free" and anything unexpected: fail closed,
		// no write.
		return s.deny("unknown plan status", u.PlanStatus), nil
	}
}

func (s *PlanService) deny(reason string, status entity.PlanStatus) AccessDecision {
	return AccessDecision{Allowed: false, Reason: reason, Status: status}
}

func (s *PlanService) expireTrial(ctx context.Context, u *entity.User) error {
	u.PlanStatus = entity.PlanExpired
	if err := s.Repo.Update(ctx, u); err != nil {
		// Roll the in-memory copy back so a retry re-evaluates cleanly.
		u.PlanStatus = entity.PlanTrial
		return err
	}
	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{"user_id": u.ID}).Info("trial expired")
	}
	s.Cache.Invalidate(ctx, u.ID)
	s.Notifier.PlanChanged(ctx, u, mailtpl.TrialExpired)
	return nil
}
