package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/parserhub/hub-server-go/internal/config"
	apperrors "github.com/parserhub/hub-server-go/internal/errors"
	"github.com/parserhub/hub-server-go/internal/middleware"
	"github.com/parserhub/hub-server-go/internal/model"
	"github.com/parserhub/hub-server-go/internal/service"
	"github.com/parserhub/hub-server-go/internal/sessionfile"
	"github.com/parserhub/hub-server-go/internal/util"
	"github.com/parserhub/hub-server-go/internal/validate"
)

// AuthRegistry is the slice of the session registry the handler needs.
type AuthRegistry interface {
	BeginPhoneAuth(ctx context.Context, userID int64, kind model.SessionKind, phone string) error
	SubmitCode(ctx context.Context, userID int64, code string) (service.AuthOutcome, model.SessionKind, error)
	SubmitSecondFactor(ctx context.Context, userID int64, password string) (service.AuthOutcome, model.SessionKind, error)
	Cancel(userID int64, kind model.SessionKind)
}

// AuthorizedFlagSetter flips the durable per-kind flag after a successful
// handshake.
type AuthorizedFlagSetter interface {
	SetAuthorized(ctx context.Context, userID int64, kind model.SessionKind, authorized bool) error
}

type AuthHandler struct {
	registry AuthRegistry
	users    AuthorizedFlagSetter
	files    *sessionfile.Store
	cooldown *service.CooldownLimiter
}

func NewAuthHandler(registry AuthRegistry, users AuthorizedFlagSetter, files *sessionfile.Store, cooldown *service.CooldownLimiter) *AuthHandler {
	return &AuthHandler{registry: registry, users: users, files: files, cooldown: cooldown}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/{kind}/phone", h.BeginPhone)
	r.Post("/code", h.SubmitCode)
	r.Post("/password", h.SubmitPassword)
	r.Delete("/{kind}", h.Cancel)
	r.Get("/status", h.Status)

	return r
}

func sessionKindParam(r *http.Request) (model.SessionKind, error) {
	kind := model.SessionKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		return "", apperrors.InvalidInput("kind", "must be parser or blacklist")
	}
	return kind, nil
}

// POST /v1/auth/{kind}/phone
func (h *AuthHandler) BeginPhone(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	kind, err := sessionKindParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if !h.cooldown.Allow(user.ID, "auth_phone", config.ActionCooldown) {
		writeError(w, apperrors.CooldownActive())
		return
	}

	var req struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "invalid request body"))
		return
	}

	phone, err := validate.Phone(req.Phone)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.registry.BeginPhoneAuth(r.Context(), user.ID, kind, phone); err != nil {
		writeError(w, err)
		return
	}

	log.Info().Int64("userId", user.ID).Str("kind", string(kind)).
		Str("phone", util.MaskPhone(phone)).Msg("confirmation code requested")

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "code_sent",
		"kind":   kind,
	})
}

// POST /v1/auth/code
func (h *AuthHandler) SubmitCode(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "invalid request body"))
		return
	}
	if req.Code == "" {
		writeError(w, apperrors.MissingRequired("code"))
		return
	}

	outcome, kind, err := h.registry.SubmitCode(r.Context(), user.ID, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}

	if outcome == service.OutcomeNeedSecondFactor {
		writeError(w, apperrors.NeedSecondFactor())
		return
	}

	h.finishAuth(w, r, user.ID, kind)
}

// POST /v1/auth/password
func (h *AuthHandler) SubmitPassword(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "invalid request body"))
		return
	}
	if req.Password == "" {
		writeError(w, apperrors.MissingRequired("password"))
		return
	}

	_, kind, err := h.registry.SubmitSecondFactor(r.Context(), user.ID, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.finishAuth(w, r, user.ID, kind)
}

// DELETE /v1/auth/{kind}
func (h *AuthHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	kind, err := sessionKindParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	h.registry.Cancel(user.ID, kind)

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "cancelled",
		"kind":   kind,
	})
}

// GET /v1/auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	status := make(map[string]any, 2)
	for _, kind := range []model.SessionKind{model.SessionKindParser, model.SessionKindBlacklist} {
		status[string(kind)] = map[string]any{
			"authorized":     user.Authorized(kind),
			"credentialFile": h.files.Exists(user.ID, kind),
		}
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *AuthHandler) finishAuth(w http.ResponseWriter, r *http.Request, userID int64, kind model.SessionKind) {
	if err := h.users.SetAuthorized(r.Context(), userID, kind, true); err != nil {
		log.Error().Err(err).Int64("userId", userID).Str("kind", string(kind)).
			Msg("failed to set authorized flag")
		writeError(w, apperrors.Database(err))
		return
	}

	log.Info().Int64("userId", userID).Str("kind", string(kind)).
		Time("at", time.Now()).Msg("session authorized")

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "authenticated",
		"kind":   kind,
	})
}
