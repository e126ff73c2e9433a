package model

import "time"

type User struct {
	ID                  int64      `db:"id" json:"id"`
	Username            *string    `db:"username" json:"username,omitempty"`
	FullName            *string    `db:"full_name" json:"fullName,omitempty"`
	Phone               *string    `db:"phone" json:"phone,omitempty"`
	APITokenHash        string     `db:"api_token_hash" json:"-"`
	ParserAuthorized    bool       `db:"parser_authorized" json:"parserAuthorized"`
	BlacklistAuthorized bool       `db:"blacklist_authorized" json:"blacklistAuthorized"`
	CreatedAt           time.Time  `db:"created_at" json:"createdAt"`
	LastActive          *time.Time `db:"last_active" json:"lastActive,omitempty"`
}

// Authorized reports the advisory flag for the given credential kind. The
// flag and the on-disk credential may briefly disagree; the credential file
// is the evidence, the flag the bookkeeping.
func (u *User) Authorized(kind SessionKind) bool {
	switch kind {
	case SessionKindParser:
		return u.ParserAuthorized
	case SessionKindBlacklist:
		return u.BlacklistAuthorized
	}
	return false
}

type UpsertUserParams struct {
	ID           int64
	Username     *string
	FullName     *string
	Phone        *string
	APITokenHash string
}
