package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/parserhub/hub-server-go/internal/audit"
	"github.com/parserhub/hub-server-go/internal/authclient"
	apperrors "github.com/parserhub/hub-server-go/internal/errors"
	"github.com/parserhub/hub-server-go/internal/model"
	"github.com/parserhub/hub-server-go/internal/sessionfile"
	"github.com/parserhub/hub-server-go/internal/util"
)

// AuthOutcome is the result of a code or password submission.
type AuthOutcome string

const (
	OutcomeAuthenticated    AuthOutcome = "authenticated"
	OutcomeNeedSecondFactor AuthOutcome = "need_second_factor"
)

type sessionKey struct {
	userID int64
	kind   model.SessionKind
}

// pendingSession is the ephemeral record of one in-flight handshake. It
// owns the remote connection; dispose closes it exactly once no matter how
// many terminal paths race on it.
type pendingSession struct {
	userID      int64
	kind        model.SessionKind
	phone       string
	codeHash    string
	conn        authclient.Conn
	startedAt   time.Time
	awaiting2FA bool

	closeOnce sync.Once
}

func (p *pendingSession) dispose() {
	p.closeOnce.Do(func() {
		if err := p.conn.Close(); err != nil {
			log.Warn().
				Err(err).
				Int64("userId", p.userID).
				Str("kind", string(p.kind)).
				Msg("failed to close pending auth connection")
		}
	})
}

// AuthSessionRegistry drives the phone → code → optional second factor
// handshake. At most one pending session exists per (user, kind); starting
// a new one disposes the previous first. All remote credentials land in the
// file store; flipping the user's authorized flag is the caller's job.
type AuthSessionRegistry struct {
	mu      sync.Mutex
	pending map[sessionKey]*pendingSession

	dialer authclient.Dialer
	files  *sessionfile.Store
}

func NewAuthSessionRegistry(dialer authclient.Dialer, files *sessionfile.Store) *AuthSessionRegistry {
	return &AuthSessionRegistry{
		pending: make(map[sessionKey]*pendingSession),
		dialer:  dialer,
		files:   files,
	}
}

// BeginPhoneAuth opens a remote connection and requests a one-time code.
// The phone number must already be normalized by the caller.
func (r *AuthSessionRegistry) BeginPhoneAuth(ctx context.Context, userID int64, kind model.SessionKind, phone string) error {
	if !kind.Valid() {
		return apperrors.InvalidInput("kind", "unknown session kind")
	}

	key := sessionKey{userID: userID, kind: kind}

	// A restarted flow replaces the previous one; its connection is closed
	// before the new one is created.
	r.mu.Lock()
	previous := r.pending[key]
	delete(r.pending, key)
	r.mu.Unlock()
	if previous != nil {
		previous.dispose()
	}

	conn, err := r.dialer.Dial(ctx, r.files.Path(userID, kind))
	if err != nil {
		log.Error().Err(err).Int64("userId", userID).Str("kind", string(kind)).
			Msg("failed to open auth connection")
		return apperrors.TransientRemote("auth broker", err)
	}

	codeHash, err := conn.SendCode(ctx, phone)
	if err != nil {
		conn.Close()
		log.Error().Err(err).Int64("userId", userID).Str("kind", string(kind)).
			Str("phone", util.MaskPhone(phone)).
			Msg("failed to send confirmation code")
		return apperrors.AuthProtocol("failed to send confirmation code").WithCause(err)
	}

	session := &pendingSession{
		userID:    userID,
		kind:      kind,
		phone:     phone,
		codeHash:  codeHash,
		conn:      conn,
		startedAt: time.Now(),
	}

	r.mu.Lock()
	// Another begin may have raced in while we were dialing; the newest
	// flow wins and the loser's connection is closed.
	raced := r.pending[key]
	r.pending[key] = session
	r.mu.Unlock()
	if raced != nil {
		raced.dispose()
	}

	audit.Log(audit.Event{
		Type:   audit.EventAuthCodeSent,
		UserID: userID,
		Kind:   string(kind),
	})

	return nil
}

// SubmitCode completes sign-in with the one-time code. On success the
// pending session is disposed and gone; on NeedSecondFactor it is retained
// awaiting the password; on anything else it is disposed and the flow must
// restart from phone entry.
func (r *AuthSessionRegistry) SubmitCode(ctx context.Context, userID int64, code string) (AuthOutcome, model.SessionKind, error) {
	session := r.findForCode(userID)
	if session == nil {
		return "", "", apperrors.NoPendingAuth()
	}

	err := session.conn.SignIn(ctx, session.phone, session.codeHash, code)
	switch {
	case err == nil:
		r.remove(session)
		session.dispose()
		r.verifyCredential(session)
		audit.Log(audit.Event{Type: audit.EventAuthSuccess, UserID: userID, Kind: string(session.kind)})
		return OutcomeAuthenticated, session.kind, nil

	case errors.Is(err, authclient.ErrNeedsPassword):
		r.mu.Lock()
		session.awaiting2FA = true
		r.mu.Unlock()
		log.Info().Int64("userId", userID).Str("kind", string(session.kind)).
			Msg("second factor required")
		return OutcomeNeedSecondFactor, session.kind, nil

	case errors.Is(err, authclient.ErrInvalidCode), errors.Is(err, authclient.ErrExpiredCode):
		r.remove(session)
		session.dispose()
		audit.Log(audit.Event{Type: audit.EventAuthFailure, UserID: userID, Kind: string(session.kind)})
		return "", session.kind, apperrors.AuthProtocol("invalid or expired code").WithCause(err)

	default:
		// Transport failures are terminal for the handshake: the remote
		// side may have invalidated the code hash, so a retry with the
		// same session is not safe.
		r.remove(session)
		session.dispose()
		log.Error().Err(err).Int64("userId", userID).Str("kind", string(session.kind)).
			Msg("sign-in failed")
		return "", session.kind, apperrors.AuthProtocol("sign-in failed").WithCause(err)
	}
}

// SubmitSecondFactor completes sign-in with the account password.
func (r *AuthSessionRegistry) SubmitSecondFactor(ctx context.Context, userID int64, password string) (AuthOutcome, model.SessionKind, error) {
	session := r.findAwaitingPassword(userID)
	if session == nil {
		return "", "", apperrors.NoPendingAuth()
	}

	err := session.conn.CheckPassword(ctx, password)
	switch {
	case err == nil:
		r.remove(session)
		session.dispose()
		r.verifyCredential(session)
		audit.Log(audit.Event{Type: audit.EventAuthSuccess, UserID: userID, Kind: string(session.kind)})
		return OutcomeAuthenticated, session.kind, nil

	case errors.Is(err, authclient.ErrInvalidPassword):
		r.remove(session)
		session.dispose()
		audit.Log(audit.Event{Type: audit.EventAuthFailure, UserID: userID, Kind: string(session.kind)})
		return "", session.kind, apperrors.AuthProtocol("invalid second factor password").WithCause(err)

	default:
		r.remove(session)
		session.dispose()
		log.Error().Err(err).Int64("userId", userID).Str("kind", string(session.kind)).
			Msg("second factor check failed")
		return "", session.kind, apperrors.AuthProtocol("second factor check failed").WithCause(err)
	}
}

// Cancel disposes any pending session for (user, kind). Calling it with
// nothing pending is a no-op.
func (r *AuthSessionRegistry) Cancel(userID int64, kind model.SessionKind) {
	key := sessionKey{userID: userID, kind: kind}

	r.mu.Lock()
	session := r.pending[key]
	delete(r.pending, key)
	r.mu.Unlock()

	if session != nil {
		session.dispose()
		audit.Log(audit.Event{Type: audit.EventAuthCancelled, UserID: userID, Kind: string(kind)})
	}
}

// CleanupStale disposes every pending session older than maxAge, whatever
// its sub-state. Returns the number swept.
func (r *AuthSessionRegistry) CleanupStale(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	var stale []*pendingSession
	for key, session := range r.pending {
		if session.startedAt.Before(cutoff) {
			stale = append(stale, session)
			delete(r.pending, key)
		}
	}
	r.mu.Unlock()

	for _, session := range stale {
		session.dispose()
		audit.Log(audit.Event{Type: audit.EventAuthSwept, UserID: session.userID, Kind: string(session.kind)})
	}

	return len(stale)
}

// CloseAll disposes every pending session; shutdown use.
func (r *AuthSessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*pendingSession, 0, len(r.pending))
	for key, session := range r.pending {
		sessions = append(sessions, session)
		delete(r.pending, key)
	}
	r.mu.Unlock()

	for _, session := range sessions {
		session.dispose()
	}
}

// PendingCount reports the number of in-flight handshakes.
func (r *AuthSessionRegistry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// findForCode picks the session awaiting a code for the user. The submit
// operations carry no kind, so when flows for both kinds are somehow
// pending the most recently started one is taken.
func (r *AuthSessionRegistry) findForCode(userID int64) *pendingSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found *pendingSession
	for key, session := range r.pending {
		if key.userID != userID || session.awaiting2FA {
			continue
		}
		if found == nil || session.startedAt.After(found.startedAt) {
			found = session
		}
	}
	return found
}

func (r *AuthSessionRegistry) findAwaitingPassword(userID int64) *pendingSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found *pendingSession
	for key, session := range r.pending {
		if key.userID != userID || !session.awaiting2FA {
			continue
		}
		if found == nil || session.startedAt.After(found.startedAt) {
			found = session
		}
	}
	return found
}

// remove takes the session out of the map only if the map still holds this
// exact session; a concurrent begin may already have replaced it.
func (r *AuthSessionRegistry) remove(session *pendingSession) {
	key := sessionKey{userID: session.userID, kind: session.kind}

	r.mu.Lock()
	if r.pending[key] == session {
		delete(r.pending, key)
	}
	r.mu.Unlock()
}

// verifyCredential checks that the broker actually produced the durable
// artifact. The authorized flag and the file may briefly disagree; a
// missing file after success is worth a warning, not a failure.
func (r *AuthSessionRegistry) verifyCredential(session *pendingSession) {
	if !r.files.Exists(session.userID, session.kind) {
		log.Warn().
			Int64("userId", session.userID).
			Str("kind", string(session.kind)).
			Str("path", r.files.Path(session.userID, session.kind)).
			Msg("authentication succeeded but credential file is missing")
	}
}
