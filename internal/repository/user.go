package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/parserhub/hub-server-go/internal/database"
	"github.com/parserhub/hub-server-go/internal/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.User, error)
	Upsert(ctx context.Context, params model.UpsertUserParams) (*model.User, error)
	SetAuthorized(ctx context.Context, id int64, kind model.SessionKind, authorized bool) error
	TouchLastActive(ctx context.Context, id int64) error
}

type userRepo struct {
	db database.DBTX
}

func NewUserRepository(db database.DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users WHERE id = $1
	`, id)
	return HandleNotFound(&user, err)
}

func (r *userRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users WHERE api_token_hash = $1
	`, tokenHash)
	return HandleNotFound(&user, err)
}

func (r *userRepo) Upsert(ctx context.Context, params model.UpsertUserParams) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		INSERT INTO users (id, username, full_name, phone, api_token_hash, last_active)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			username = COALESCE(EXCLUDED.username, users.username),
			full_name = COALESCE(EXCLUDED.full_name, users.full_name),
			phone = COALESCE(EXCLUDED.phone, users.phone),
			last_active = NOW()
		RETURNING *
	`, params.ID, params.Username, params.FullName, params.Phone, params.APITokenHash)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) SetAuthorized(ctx context.Context, id int64, kind model.SessionKind, authorized bool) error {
	var column string
	switch kind {
	case model.SessionKindParser:
		column = "parser_authorized"
	case model.SessionKindBlacklist:
		column = "blacklist_authorized"
	default:
		return fmt.Errorf("unknown session kind: %s", kind)
	}

	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET %s = $2 WHERE id = $1`, column),
		id, authorized)
	return err
}

func (r *userRepo) TouchLastActive(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET last_active = $2 WHERE id = $1
	`, id, time.Now())
	return err
}
