package model

import "time"

// Entitlement is the single plan row a user may hold. Expired rows are
// removed lazily by the sweep janitor, never eagerly on read.
type Entitlement struct {
	UserID      int64     `db:"user_id" json:"userId"`
	Plan        Plan      `db:"plan" json:"plan"`
	ActiveUntil time.Time `db:"active_until" json:"activeUntil"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

func (e *Entitlement) ActiveAt(now time.Time) bool {
	return e.ActiveUntil.After(now)
}
