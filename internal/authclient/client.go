package authclient

import (
	"context"
	"errors"
)

// Typed sign-in outcomes. The registry branches on these instead of
// sniffing error text.
var (
	// ErrNeedsPassword means the code was accepted but the account has a
	// second factor configured.
	ErrNeedsPassword = errors.New("second factor password needed")
	// ErrInvalidCode is terminal: the submitted one-time code is wrong.
	ErrInvalidCode = errors.New("invalid confirmation code")
	// ErrExpiredCode is terminal: the one-time code is no longer valid.
	ErrExpiredCode = errors.New("expired confirmation code")
	// ErrInvalidPassword is terminal: the second factor password is wrong.
	ErrInvalidPassword = errors.New("invalid second factor password")
)

// Conn is one open connection to the messaging network, scoped to a single
// authentication handshake. Implementations must tolerate Close being
// called more than once.
type Conn interface {
	// SendCode requests a one-time code for the phone number and returns
	// the opaque code hash needed to complete sign-in.
	SendCode(ctx context.Context, phone string) (codeHash string, err error)
	// SignIn attempts to complete the handshake. Returns nil on success,
	// ErrNeedsPassword, ErrInvalidCode, ErrExpiredCode, or a transport
	// error.
	SignIn(ctx context.Context, phone, codeHash, code string) error
	// CheckPassword submits the second factor. Returns nil on success,
	// ErrInvalidPassword, or a transport error.
	CheckPassword(ctx context.Context, password string) error
	Close() error
}

// Dialer opens connections. credentialPath names the durable session
// artifact the connection persists into on successful sign-in.
type Dialer interface {
	Dial(ctx context.Context, credentialPath string) (Conn, error)
}
