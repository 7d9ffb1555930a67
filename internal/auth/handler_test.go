package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/session"
	"github.com/ovaphlow/pitchfork/service-realty-access/internal/user"
	"github.com/ovaphlow/pitchfork/service-realty-access/internal/user/entity"
)

type fakeAuthenticator struct {
	views map[int64]*entity.MinimalAuthView
	// password per identifier
	passwords map[string]string
	byIdent   map[string]int64
	err       error
}

func (f *fakeAuthenticator) AuthenticatePassword(ctx context.Context, identifier, password string) (*entity.MinimalAuthView, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.passwords[identifier] != password || password == "" {
		return nil, user.ErrBadCredentials
	}
	return f.views[f.byIdent[identifier]], nil
}

func (f *fakeAuthenticator) GetActiveAuthView(ctx context.Context, id int64) (*entity.MinimalAuthView, error) {
	v, ok := f.views[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	switch v.Status {
	case "locked":
		return nil, user.ErrLocked
	case "disabled":
		return nil, user.ErrDisabled
	}
	return v, nil
}

type fakeLoginTracker struct{ methods []string }

func (f *fakeLoginTracker) TrackLogin(ctx context.Context, method string) {
	f.methods = append(f.methods, method)
}

type handlerFixture struct {
	h       *Handler
	tokens  *TokenService
	store   *memRefreshStore
	users   *fakeAuthenticator
	tracker *fakeLoginTracker
	logs    *observer.ObservedLogs
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	store := newMemRefreshStore()
	tokens := newTestTokenService(t, store)
	users := &fakeAuthenticator{
		views:     map[int64]*entity.MinimalAuthView{5: agentView(5)},
		passwords: map[string]string{"ana@example.cl": "secreto"},
		byIdent:   map[string]int64{"ana@example.cl": 5},
	}
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core).Sugar()
	cfg := testConfig()
	cfg.SecureCookies = true
	tracker := &fakeLoginTracker{}
	h := NewHandler(tokens, users, NewLogout(tokens, cfg, logger), tracker, cfg, logger)
	return &handlerFixture{h: h, tokens: tokens, store: store, users: users, tracker: tracker, logs: logs}
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSignIn(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	body := `{"identifier":"ana@example.cl","password":"secreto"}`
	f.h.SignIn(rec, httptest.NewRequest(http.MethodPost, "/api/auth/signin", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var resp TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 900, resp.ExpiresIn)
	assert.Equal(t, "agent", resp.UserType)

	id, err := f.tokens.VerifyAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "5", id.ID)

	access := cookieByName(rec.Result().Cookies(), session.CookieName)
	require.NotNil(t, access)
	assert.Equal(t, resp.AccessToken, access.Value)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.Equal(t, "/", access.Path)

	refresh := cookieByName(rec.Result().Cookies(), RefreshCookieName)
	require.NotNil(t, refresh)
	assert.Equal(t, resp.RefreshToken, refresh.Value)
	assert.Equal(t, "/api/auth", refresh.Path)
	assert.Equal(t, 3600, refresh.MaxAge)

	assert.Equal(t, []string{"password"}, f.tracker.methods)
}

func TestSignInErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		body   string
		status int
	}{
		{"bad payload", nil, `{`, http.StatusBadRequest},
		{"bad password", nil, `{"identifier":"ana@example.cl","password":"nope"}`, http.StatusUnauthorized},
		{"must reset", user.ErrMustResetPassword, `{"identifier":"x","password":"y"}`, http.StatusUnauthorized},
		{"locked", user.ErrLocked, `{"identifier":"x","password":"y"}`, http.StatusForbidden},
		{"disabled", user.ErrDisabled, `{"identifier":"x","password":"y"}`, http.StatusForbidden},
		{"store failure", errors.New("db down"), `{"identifier":"x","password":"y"}`, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			f.users.err = tc.err
			rec := httptest.NewRecorder()
			f.h.SignIn(rec, httptest.NewRequest(http.MethodPost, "/api/auth/signin", strings.NewReader(tc.body)))
			assert.Equal(t, tc.status, rec.Code)
			assert.Nil(t, cookieByName(rec.Result().Cookies(), session.CookieName))
			assert.Empty(t, f.tracker.methods)
		})
	}
}

func TestAuthRejectsOversizedBody(t *testing.T) {
	f := newHandlerFixture(t)
	pad := strings.Repeat("a", maxAuthBody)

	rec := httptest.NewRecorder()
	body := `{"identifier":"ana@example.cl","password":"secreto","pad":"` + pad + `"}`
	f.h.SignIn(rec, httptest.NewRequest(http.MethodPost, "/api/auth/signin", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.tracker.methods)

	_, rt, err := f.tokens.IssueTokens(context.Background(), agentView(5))
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	body = `{"refresh_token":"` + rt + `","pad":"` + pad + `"}`
	f.h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, ok := f.tokens.ValidateRefreshToken(context.Background(), rt)
	assert.True(t, ok, "refused body leaves the session alone")
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newHandlerFixture(t)
	_, oldRefresh, err := f.tokens.IssueTokens(context.Background(), agentView(5))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: oldRefresh})
	rec := httptest.NewRecorder()
	f.h.Refresh(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEqual(t, oldRefresh, resp.RefreshToken)

	_, ok := f.tokens.ValidateRefreshToken(context.Background(), oldRefresh)
	assert.False(t, ok, "old refresh token must be revoked")
	_, ok = f.tokens.ValidateRefreshToken(context.Background(), resp.RefreshToken)
	assert.True(t, ok)
}

func TestRefreshFromBody(t *testing.T) {
	f := newHandlerFixture(t)
	_, rt, err := f.tokens.IssueTokens(context.Background(), agentView(5))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(`{"refresh_token":"`+rt+`"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshErrors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		f := newHandlerFixture(t)
		rec := httptest.NewRecorder()
		f.h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown token", func(t *testing.T) {
		f := newHandlerFixture(t)
		rec := httptest.NewRecorder()
		f.h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(`{"refresh_token":"zzz"}`)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"invalid_grant"}`, rec.Body.String())
	})

	t.Run("user gone", func(t *testing.T) {
		f := newHandlerFixture(t)
		_, rt, err := f.tokens.IssueTokens(context.Background(), agentView(99))
		require.NoError(t, err)
		rec := httptest.NewRecorder()
		f.h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(`{"refresh_token":"`+rt+`"}`)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("account disabled", func(t *testing.T) {
		f := newHandlerFixture(t)
		_, rt, err := f.tokens.IssueTokens(context.Background(), agentView(5))
		require.NoError(t, err)
		f.users.views[5].Status = "disabled"

		rec := httptest.NewRecorder()
		f.h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(`{"refresh_token":"`+rt+`"}`)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"invalid_grant"}`, rec.Body.String())
		assert.Nil(t, cookieByName(rec.Result().Cookies(), session.CookieName))
		_, ok := f.tokens.ValidateRefreshToken(context.Background(), rt)
		assert.False(t, ok, "refresh session of a disabled account is dropped")
	})

	t.Run("account locked", func(t *testing.T) {
		f := newHandlerFixture(t)
		_, rt, err := f.tokens.IssueTokens(context.Background(), agentView(5))
		require.NoError(t, err)
		f.users.views[5].Status = "locked"

		rec := httptest.NewRecorder()
		f.h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(`{"refresh_token":"`+rt+`"}`)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"invalid_grant"}`, rec.Body.String())
	})

	t.Run("revoke fails", func(t *testing.T) {
		f := newHandlerFixture(t)
		_, rt, err := f.tokens.IssueTokens(context.Background(), agentView(5))
		require.NoError(t, err)
		f.store.deleteErr = errors.New("db down")
		rec := httptest.NewRecorder()
		f.h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(`{"refresh_token":"`+rt+`"}`)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, 1, f.logs.FilterMessage("refresh rotation failed").Len())
	})
}

func TestRefreshTokenIsSingleUse(t *testing.T) {
	f := newHandlerFixture(t)
	_, rt, err := f.tokens.IssueTokens(context.Background(), agentView(5))
	require.NoError(t, err)

	refresh := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: rt})
		rec := httptest.NewRecorder()
		f.h.Refresh(rec, req)
		return rec
	}

	// the second request is validated while the first is still in flight,
	// then completes before the first one rotates
	var second *httptest.ResponseRecorder
	f.store.onGet = func() {
		if second != nil {
			return
		}
		second = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: rt})
		f.h.Refresh(second, req)
	}
	first := refresh()

	require.NotNil(t, second)
	codes := []int{first.Code, second.Code}
	assert.ElementsMatch(t, []int{http.StatusOK, http.StatusUnauthorized}, codes)

	var minted []string
	for _, rec := range []*httptest.ResponseRecorder{first, second} {
		if rec.Code != http.StatusOK {
			assert.JSONEq(t, `{"error":"invalid_grant"}`, rec.Body.String())
			continue
		}
		var resp TokenResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		minted = append(minted, resp.RefreshToken)
	}
	assert.Len(t, minted, 1, "one refresh token yields one new pair")

	// replaying the consumed token fails
	assert.Equal(t, http.StatusUnauthorized, refresh().Code)
}

func TestLogoutForce(t *testing.T) {
	f := newHandlerFixture(t)
	_, rt, err := f.tokens.IssueTokens(context.Background(), agentView(5))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: rt})
	rec := httptest.NewRecorder()
	f.h.Logout(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, `"cookies"`, rec.Header().Get("Clear-Site-Data"))
	for _, name := range []string{session.CookieName, RefreshCookieName} {
		c := cookieByName(rec.Result().Cookies(), name)
		require.NotNil(t, c, name)
		assert.Equal(t, -1, c.MaxAge)
	}
	_, ok := f.tokens.ValidateRefreshToken(context.Background(), rt)
	assert.False(t, ok)
}

func TestLogoutForceReloadsOnFailure(t *testing.T) {
	f := newHandlerFixture(t)
	f.store.deleteErr = errors.New("db down")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: "whatever"})
	rec := httptest.NewRecorder()
	f.h.Logout(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, 1, f.logs.FilterMessage("refresh revoke failed").Len())
}

func TestLogoutForceAlreadyRevoked(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: "long-gone"})
	rec := httptest.NewRecorder()
	f.h.Logout(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 0, f.logs.FilterMessage("refresh revoke failed").Len())
}

func TestLogoutForceWithoutSession(t *testing.T) {
	f := newHandlerFixture(t)
	rec := httptest.NewRecorder()
	f.h.Logout(rec, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 0, f.logs.Len())
}
