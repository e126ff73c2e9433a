package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	apperrors "github.com/parserhub/hub-server-go/internal/errors"
	"github.com/parserhub/hub-server-go/internal/model"
)

func TestEntitlementService_Activate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	newService := func(repo *mockEntitlementRepo) *EntitlementService {
		svc := NewEntitlementService(repo)
		svc.now = func() time.Time { return now }
		return svc
	}

	t.Run("new entitlement counts from now", func(t *testing.T) {
		repo := new(mockEntitlementRepo)
		svc := newService(repo)

		expected := now.Add(24 * time.Hour)
		repo.On("Get", ctx, int64(1)).Return(nil, nil)
		repo.On("Upsert", ctx, int64(1), model.PlanDay, expected).
			Return(&model.Entitlement{UserID: 1, Plan: model.PlanDay, ActiveUntil: expected}, nil)

		ent, err := svc.Activate(ctx, 1, model.PlanDay)
		assert.NoError(t, err)
		assert.Equal(t, expected, ent.ActiveUntil)
	})

	t.Run("active entitlement extends from its current expiry", func(t *testing.T) {
		repo := new(mockEntitlementRepo)
		svc := newService(repo)

		currentExpiry := now.Add(48 * time.Hour)
		expected := currentExpiry.Add(30 * 24 * time.Hour)
		repo.On("Get", ctx, int64(1)).Return(&model.Entitlement{
			UserID: 1, Plan: model.PlanDay, ActiveUntil: currentExpiry,
		}, nil)
		repo.On("Upsert", ctx, int64(1), model.PlanMonth, expected).
			Return(&model.Entitlement{UserID: 1, Plan: model.PlanMonth, ActiveUntil: expected}, nil)

		ent, err := svc.Activate(ctx, 1, model.PlanMonth)
		assert.NoError(t, err)
		assert.Equal(t, expected, ent.ActiveUntil)
	})

	t.Run("expired entitlement counts from now, not from the old expiry", func(t *testing.T) {
		repo := new(mockEntitlementRepo)
		svc := newService(repo)

		expected := now.Add(90 * 24 * time.Hour)
		repo.On("Get", ctx, int64(1)).Return(&model.Entitlement{
			UserID: 1, Plan: model.PlanDay, ActiveUntil: now.Add(-time.Hour),
		}, nil)
		repo.On("Upsert", ctx, int64(1), model.PlanQuarter, expected).
			Return(&model.Entitlement{UserID: 1, Plan: model.PlanQuarter, ActiveUntil: expected}, nil)

		ent, err := svc.Activate(ctx, 1, model.PlanQuarter)
		assert.NoError(t, err)
		assert.Equal(t, expected, ent.ActiveUntil)
	})

	t.Run("rejects unknown plans", func(t *testing.T) {
		repo := new(mockEntitlementRepo)
		svc := newService(repo)

		_, err := svc.Activate(ctx, 1, model.Plan("lifetime"))
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
		repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestEntitlementService_HasActive(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("active while the expiry is ahead", func(t *testing.T) {
		repo := new(mockEntitlementRepo)
		svc := NewEntitlementService(repo)
		svc.now = func() time.Time { return now }

		repo.On("Get", ctx, int64(1)).Return(&model.Entitlement{
			UserID: 1, ActiveUntil: now.Add(time.Minute),
		}, nil)

		active, err := svc.HasActive(ctx, 1)
		assert.NoError(t, err)
		assert.True(t, active)
	})

	t.Run("inactive at the exact expiry instant", func(t *testing.T) {
		repo := new(mockEntitlementRepo)
		svc := NewEntitlementService(repo)
		svc.now = func() time.Time { return now }

		repo.On("Get", ctx, int64(1)).Return(&model.Entitlement{
			UserID: 1, ActiveUntil: now,
		}, nil)

		active, err := svc.HasActive(ctx, 1)
		assert.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("no row means not active", func(t *testing.T) {
		repo := new(mockEntitlementRepo)
		svc := NewEntitlementService(repo)

		repo.On("Get", ctx, int64(1)).Return(nil, nil)

		active, err := svc.HasActive(ctx, 1)
		assert.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("expired row means not active", func(t *testing.T) {
		repo := new(mockEntitlementRepo)
		svc := NewEntitlementService(repo)
		svc.now = func() time.Time { return now }

		repo.On("Get", ctx, int64(1)).Return(&model.Entitlement{
			UserID: 1, ActiveUntil: now.Add(-time.Minute),
		}, nil)

		active, err := svc.HasActive(ctx, 1)
		assert.NoError(t, err)
		assert.False(t, active)
	})
}

func TestEntitlementService_SweepExpired(t *testing.T) {
	ctx := context.Background()

	repo := new(mockEntitlementRepo)
	svc := NewEntitlementService(repo)

	repo.On("DeleteExpired", ctx, mock.AnythingOfType("time.Time")).Return(int64(3), nil)

	removed, err := svc.SweepExpired(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), removed)
}
