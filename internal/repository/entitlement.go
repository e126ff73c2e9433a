package repository

import (
	"context"
	"time"

	"github.com/parserhub/hub-server-go/internal/database"
	"github.com/parserhub/hub-server-go/internal/model"
)

type EntitlementRepository interface {
	Get(ctx context.Context, userID int64) (*model.Entitlement, error)
	Upsert(ctx context.Context, userID int64, plan model.Plan, activeUntil time.Time) (*model.Entitlement, error)
	// DeleteExpired removes every row whose expiry is strictly before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type entitlementRepo struct {
	db database.DBTX
}

func NewEntitlementRepository(db database.DBTX) EntitlementRepository {
	return &entitlementRepo{db: db}
}

func (r *entitlementRepo) Get(ctx context.Context, userID int64) (*model.Entitlement, error) {
	var ent model.Entitlement
	err := r.db.GetContext(ctx, &ent, `
		SELECT * FROM entitlements WHERE user_id = $1
	`, userID)
	return HandleNotFound(&ent, err)
}

func (r *entitlementRepo) Upsert(ctx context.Context, userID int64, plan model.Plan, activeUntil time.Time) (*model.Entitlement, error) {
	var ent model.Entitlement
	err := r.db.GetContext(ctx, &ent, `
		INSERT INTO entitlements (user_id, plan, active_until)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			plan = EXCLUDED.plan,
			active_until = EXCLUDED.active_until,
			updated_at = NOW()
		RETURNING *
	`, userID, plan, activeUntil)
	if err != nil {
		return nil, err
	}
	return &ent, nil
}

func (r *entitlementRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM entitlements WHERE active_until < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
