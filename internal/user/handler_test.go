package user

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedProfile struct {
	userID int64
	name   *string
	role   string
}

type fakeProfiles struct {
	created []recordedProfile
	err     error
}

func (f *fakeProfiles) Create(ctx context.Context, userID int64, fullName *string, role string) error {
	f.created = append(f.created, recordedProfile{userID, fullName, role})
	return f.err
}

type fakeTracker struct{ signups []string }

func (f *fakeTracker) TrackSignUp(ctx context.Context, userType string) {
	f.signups = append(f.signups, userType)
}

func TestSignupHandler(t *testing.T) {
	profiles := &fakeProfiles{}
	tracker := &fakeTracker{}
	h := NewHandler(newTestService(newMockUserRepository()), profiles, tracker, zap.NewNop().Sugar())

	body := `{"email":"agente@example.cl","password":"x1","full_name":"Ana Pérez","user_type":"agent"}`
	rec := httptest.NewRecorder()
	h.Signup(rec, httptest.NewRequest(http.MethodPost, "/api/users/signup", strings.NewReader(body)))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":1}`, rec.Body.String())
	require.Len(t, profiles.created, 1)
	assert.Equal(t, "agent", profiles.created[0].role)
	require.NotNil(t, profiles.created[0].name)
	assert.Equal(t, "Ana Pérez", *profiles.created[0].name)
	assert.Equal(t, []string{"agent"}, tracker.signups)
}

func TestSignupHandlerDefaultsToClient(t *testing.T) {
	profiles := &fakeProfiles{err: errors.New("insert failed")}
	h := NewHandler(newTestService(newMockUserRepository()), profiles, &fakeTracker{}, zap.NewNop().Sugar())

	rec := httptest.NewRecorder()
	h.Signup(rec, httptest.NewRequest(http.MethodPost, "/api/users/signup", strings.NewReader(`{"username":"cliente","password":"x1"}`)))

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, profiles.created, 1)
	assert.Equal(t, "client", profiles.created[0].role)
	assert.Nil(t, profiles.created[0].name)
}

func TestSignupHandlerRejectsBadInput(t *testing.T) {
	h := NewHandler(newTestService(newMockUserRepository()), &fakeProfiles{}, &fakeTracker{}, zap.NewNop().Sugar())

	rec := httptest.NewRecorder()
	h.Signup(rec, httptest.NewRequest(http.MethodPost, "/api/users/signup", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Signup(rec, httptest.NewRequest(http.MethodPost, "/api/users/signup", strings.NewReader(`{"email":"a@b.cl","password":"x","user_type":"admin"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignupHandlerStorageFailure(t *testing.T) {
	repo := newMockUserRepository()
	repo.createErr = errors.New("unique violation")
	h := NewHandler(newTestService(repo), &fakeProfiles{}, &fakeTracker{}, zap.NewNop().Sugar())

	rec := httptest.NewRecorder()
	h.Signup(rec, httptest.NewRequest(http.MethodPost, "/api/users/signup", strings.NewReader(`{"email":"a@b.cl","password":"x"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"signup failed"}`, rec.Body.String())
}

func TestSignupHandlerRejectsOversizedBody(t *testing.T) {
	repo := newMockUserRepository()
	profiles := &fakeProfiles{}
	h := NewHandler(newTestService(repo), profiles, &fakeTracker{}, zap.NewNop().Sugar())

	body := `{"email":"a@b.cl","password":"` + strings.Repeat("x", maxSignupBody) + `"}`
	rec := httptest.NewRecorder()
	h.Signup(rec, httptest.NewRequest(http.MethodPost, "/api/users/signup", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, profiles.created)
}
