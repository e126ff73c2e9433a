package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/parserhub/hub-server-go/internal/errors"
	"github.com/parserhub/hub-server-go/internal/middleware"
	"github.com/parserhub/hub-server-go/internal/model"
	"github.com/parserhub/hub-server-go/internal/service"
)

type EntitlementHandler struct {
	entitlements *service.EntitlementService
}

func NewEntitlementHandler(entitlements *service.EntitlementService) *EntitlementHandler {
	return &EntitlementHandler{entitlements: entitlements}
}

func (h *EntitlementHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.Get)
	r.Post("/", h.Activate)

	return r
}

// GET /v1/entitlement
func (h *EntitlementHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	ent, err := h.entitlements.Get(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, formatEntitlement(ent, time.Now()))
}

// POST /v1/entitlement
func (h *EntitlementHandler) Activate(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	var req struct {
		Plan string `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "invalid request body"))
		return
	}

	ent, err := h.entitlements.Activate(r.Context(), user.ID, model.Plan(req.Plan))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, formatEntitlement(ent, time.Now()))
}
