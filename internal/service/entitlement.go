package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/parserhub/hub-server-go/internal/audit"
	apperrors "github.com/parserhub/hub-server-go/internal/errors"
	"github.com/parserhub/hub-server-go/internal/model"
	"github.com/parserhub/hub-server-go/internal/repository"
)

// planDuration maps a plan to the time it buys.
func planDuration(plan model.Plan) time.Duration {
	switch plan {
	case model.PlanDay:
		return 24 * time.Hour
	case model.PlanMonth:
		return 30 * 24 * time.Hour
	case model.PlanQuarter:
		return 90 * 24 * time.Hour
	default:
		return 0
	}
}

type EntitlementService struct {
	repo repository.EntitlementRepository
	now  func() time.Time
}

func NewEntitlementService(repo repository.EntitlementRepository) *EntitlementService {
	return &EntitlementService{repo: repo, now: time.Now}
}

// Activate grants or extends access. An entitlement that is still active
// is extended from its current expiry, so buying again never burns
// remaining time; an expired or absent one starts counting from now.
func (s *EntitlementService) Activate(ctx context.Context, userID int64, plan model.Plan) (*model.Entitlement, error) {
	if !plan.Valid() {
		return nil, apperrors.InvalidInput("plan", "unknown plan")
	}

	now := s.now()
	from := now
	existing, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if existing != nil && existing.ActiveAt(now) {
		from = existing.ActiveUntil
	}

	ent, err := s.repo.Upsert(ctx, userID, plan, from.Add(planDuration(plan)))
	if err != nil {
		return nil, apperrors.Database(err)
	}

	audit.Log(audit.Event{
		Type:    audit.EventEntitlementSet,
		UserID:  userID,
		Details: map[string]any{"plan": plan, "activeUntil": ent.ActiveUntil},
	})

	return ent, nil
}

func (s *EntitlementService) Get(ctx context.Context, userID int64) (*model.Entitlement, error) {
	ent, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return ent, nil
}

// HasActive reports whether the user may start jobs right now.
func (s *EntitlementService) HasActive(ctx context.Context, userID int64) (bool, error) {
	ent, err := s.repo.Get(ctx, userID)
	if err != nil {
		return false, apperrors.Database(err)
	}
	return ent != nil && ent.ActiveAt(s.now()), nil
}

// SweepExpired is the janitor entry point; it deletes rows whose expiry is
// in the past.
func (s *EntitlementService) SweepExpired(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Info().Int64("removed", removed).Msg("expired entitlements removed")
	}
	return removed, nil
}
