package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/parserhub/hub-server-go/internal/errors"
	"github.com/parserhub/hub-server-go/internal/middleware"
	"github.com/parserhub/hub-server-go/internal/model"
	"github.com/parserhub/hub-server-go/internal/service"
	"github.com/parserhub/hub-server-go/internal/sessionfile"
)

type fakeAuthRegistry struct {
	beginErr     error
	beginCalls   int
	lastKind     model.SessionKind
	lastPhone    string
	codeOutcome  service.AuthOutcome
	codeKind     model.SessionKind
	codeErr      error
	passKind     model.SessionKind
	passErr      error
	cancelCalls  int
	cancelKind   model.SessionKind
	cancelUserID int64
}

func (f *fakeAuthRegistry) BeginPhoneAuth(ctx context.Context, userID int64, kind model.SessionKind, phone string) error {
	f.beginCalls++
	f.lastKind = kind
	f.lastPhone = phone
	return f.beginErr
}

func (f *fakeAuthRegistry) SubmitCode(ctx context.Context, userID int64, code string) (service.AuthOutcome, model.SessionKind, error) {
	return f.codeOutcome, f.codeKind, f.codeErr
}

func (f *fakeAuthRegistry) SubmitSecondFactor(ctx context.Context, userID int64, password string) (service.AuthOutcome, model.SessionKind, error) {
	return service.OutcomeAuthenticated, f.passKind, f.passErr
}

func (f *fakeAuthRegistry) Cancel(userID int64, kind model.SessionKind) {
	f.cancelCalls++
	f.cancelUserID = userID
	f.cancelKind = kind
}

type fakeFlagSetter struct {
	calls []model.SessionKind
	err   error
}

func (f *fakeFlagSetter) SetAuthorized(ctx context.Context, userID int64, kind model.SessionKind, authorized bool) error {
	f.calls = append(f.calls, kind)
	return f.err
}

func authTestServer(t *testing.T, registry AuthRegistry, users AuthorizedFlagSetter, user *model.User) http.Handler {
	t.Helper()
	files, err := sessionfile.NewStore(t.TempDir())
	assert.NoError(t, err)

	h := NewAuthHandler(registry, users, files, service.NewCooldownLimiter())
	return withUser(h.Routes(), user)
}

func withUser(next http.Handler, user *model.User) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user != nil {
			r = r.WithContext(context.WithValue(r.Context(), middleware.UserContextKey, user))
		}
		next.ServeHTTP(w, r)
	})
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestAuthHandler_BeginPhone(t *testing.T) {
	user := &model.User{ID: 1}

	t.Run("normalizes the phone and starts the flow", func(t *testing.T) {
		registry := &fakeAuthRegistry{}
		server := authTestServer(t, registry, &fakeFlagSetter{}, user)

		req := httptest.NewRequest(http.MethodPost, "/parser/phone", strings.NewReader(`{"phone":"8 900 123-45-67"}`))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "+79001234567", registry.lastPhone)
		assert.Equal(t, model.SessionKindParser, registry.lastKind)
		assert.Equal(t, "code_sent", decodeBody(t, rec)["status"])
	})

	t.Run("rejects an unknown kind", func(t *testing.T) {
		registry := &fakeAuthRegistry{}
		server := authTestServer(t, registry, &fakeFlagSetter{}, user)

		req := httptest.NewRequest(http.MethodPost, "/unknown/phone", strings.NewReader(`{"phone":"+79001234567"}`))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, registry.beginCalls)
	})

	t.Run("rejects an invalid phone", func(t *testing.T) {
		registry := &fakeAuthRegistry{}
		server := authTestServer(t, registry, &fakeFlagSetter{}, user)

		req := httptest.NewRequest(http.MethodPost, "/parser/phone", strings.NewReader(`{"phone":"12345"}`))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, registry.beginCalls)
	})

	t.Run("repeated requests trip the cooldown", func(t *testing.T) {
		registry := &fakeAuthRegistry{}
		server := authTestServer(t, registry, &fakeFlagSetter{}, user)

		first := httptest.NewRequest(http.MethodPost, "/parser/phone", strings.NewReader(`{"phone":"+79001234567"}`))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, first)
		assert.Equal(t, http.StatusAccepted, rec.Code)

		second := httptest.NewRequest(http.MethodPost, "/parser/phone", strings.NewReader(`{"phone":"+79001234567"}`))
		rec = httptest.NewRecorder()
		server.ServeHTTP(rec, second)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, 1, registry.beginCalls)
	})

	t.Run("requires an authenticated caller", func(t *testing.T) {
		server := authTestServer(t, &fakeAuthRegistry{}, &fakeFlagSetter{}, nil)

		req := httptest.NewRequest(http.MethodPost, "/parser/phone", strings.NewReader(`{"phone":"+79001234567"}`))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthHandler_SubmitCode(t *testing.T) {
	user := &model.User{ID: 1}

	t.Run("authenticated outcome flips the flag", func(t *testing.T) {
		registry := &fakeAuthRegistry{codeOutcome: service.OutcomeAuthenticated, codeKind: model.SessionKindParser}
		flags := &fakeFlagSetter{}
		server := authTestServer(t, registry, flags, user)

		req := httptest.NewRequest(http.MethodPost, "/code", strings.NewReader(`{"code":"12345"}`))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []model.SessionKind{model.SessionKindParser}, flags.calls)
		assert.Equal(t, "authenticated", decodeBody(t, rec)["status"])
	})

	t.Run("second factor requirement is signaled, flag untouched", func(t *testing.T) {
		registry := &fakeAuthRegistry{codeOutcome: service.OutcomeNeedSecondFactor, codeKind: model.SessionKindParser}
		flags := &fakeFlagSetter{}
		server := authTestServer(t, registry, flags, user)

		req := httptest.NewRequest(http.MethodPost, "/code", strings.NewReader(`{"code":"12345"}`))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Empty(t, flags.calls)
		assert.Equal(t, string(apperrors.ErrCodeNeedSecondAuth), decodeBody(t, rec)["code"])
	})

	t.Run("missing code is rejected", func(t *testing.T) {
		server := authTestServer(t, &fakeAuthRegistry{}, &fakeFlagSetter{}, user)

		req := httptest.NewRequest(http.MethodPost, "/code", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("registry errors map through the taxonomy", func(t *testing.T) {
		registry := &fakeAuthRegistry{codeErr: apperrors.NoPendingAuth()}
		server := authTestServer(t, registry, &fakeFlagSetter{}, user)

		req := httptest.NewRequest(http.MethodPost, "/code", strings.NewReader(`{"code":"12345"}`))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(apperrors.ErrCodeNoPendingAuth), decodeBody(t, rec)["code"])
	})
}

func TestAuthHandler_SubmitPassword(t *testing.T) {
	user := &model.User{ID: 1}

	t.Run("success flips the flag for the resolved kind", func(t *testing.T) {
		registry := &fakeAuthRegistry{passKind: model.SessionKindBlacklist}
		flags := &fakeFlagSetter{}
		server := authTestServer(t, registry, flags, user)

		req := httptest.NewRequest(http.MethodPost, "/password", strings.NewReader(`{"password":"secret"}`))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []model.SessionKind{model.SessionKindBlacklist}, flags.calls)
	})

	t.Run("wrong password is terminal", func(t *testing.T) {
		registry := &fakeAuthRegistry{passErr: apperrors.AuthProtocol("invalid second factor password")}
		server := authTestServer(t, registry, &fakeFlagSetter{}, user)

		req := httptest.NewRequest(http.MethodPost, "/password", strings.NewReader(`{"password":"wrong"}`))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestAuthHandler_Cancel(t *testing.T) {
	user := &model.User{ID: 1}

	registry := &fakeAuthRegistry{}
	server := authTestServer(t, registry, &fakeFlagSetter{}, user)

	req := httptest.NewRequest(http.MethodDelete, "/blacklist", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, registry.cancelCalls)
	assert.Equal(t, model.SessionKindBlacklist, registry.cancelKind)
	assert.Equal(t, int64(1), registry.cancelUserID)
}

func TestAuthHandler_Status(t *testing.T) {
	user := &model.User{ID: 1, ParserAuthorized: true}

	server := authTestServer(t, &fakeAuthRegistry{}, &fakeFlagSetter{}, user)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	parser := body["parser"].(map[string]any)
	blacklist := body["blacklist"].(map[string]any)
	assert.Equal(t, true, parser["authorized"])
	assert.Equal(t, false, parser["credentialFile"])
	assert.Equal(t, false, blacklist["authorized"])
}
