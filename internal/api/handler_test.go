//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/collabsync/internal/config"
	"github.com/ashureev/collabsync/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusOK, map[string]string{"foo": "bar"})

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "bar", got["foo"])
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusBadRequest, "bad input")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"bad input"}`, w.Body.String())
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=5&bad=x&neg=-1", nil)

	assert.Equal(t, 5, queryInt(r, "limit", 100))
	assert.Equal(t, 100, queryInt(r, "bad", 100))
	assert.Equal(t, 100, queryInt(r, "neg", 100))
	assert.Equal(t, 100, queryInt(r, "missing", 100))
}

// fakeController records calls the handlers make.
type fakeController struct {
	mu       sync.Mutex
	active   bool
	presence bool
	calls    []string
	settings config.Settings
	renamed  string
}

func (c *fakeController) record(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *fakeController) Initialize(s config.Settings) {
	c.record("initialize")
	c.settings = s
}

func (c *fakeController) Reattempt() { c.record("reattempt") }
func (c *fakeController) Connect() { c.record("connect") }
func (c *fakeController) Disconnect() { c.record("disconnect") }
func (c *fakeController) ForceSync() { c.record("sync") }

func (c *fakeController) RenameLocalUser(name string) bool {
	c.record("rename")
	if !c.presence {
		return false
	}
	c.renamed = name
	return true
}

func (c *fakeController) Status() domain.SessionStatus {
	s := domain.EmptyStatus()
	if c.active {
		s.State = domain.StateSynced
		s.DocumentID = "notes"
		s.Connected = true
		s.Synced = true
	}
	return s
}

func (c *fakeController) Active() bool { return c.active }

type fakeEvents []domain.Notification

func (e fakeEvents) List() []domain.Notification { return e }

// fakeRepo is an in-memory Repository.
type fakeRepo struct {
	pingErr  error
	listErr  error
	records  []*domain.NotificationRecord
	lastDoc  string
	lastSize int
}

func (r *fakeRepo) RecordNotification(_ context.Context, rec *domain.NotificationRecord) error {
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeRepo) ListNotifications(_ context.Context, documentID string, limit int) ([]*domain.NotificationRecord, error) {
	r.lastDoc, r.lastSize = documentID, limit
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.records, nil
}

func (r *fakeRepo) CleanupNotifications(context.Context, time.Duration) (int64, error) { return 0, nil }
func (r *fakeRepo) Ping(context.Context) error { return r.pingErr }
func (r *fakeRepo) Close() error { return nil }

func newRouter(h *SessionHandler) http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetStatus(t *testing.T) {
	ctrl := &fakeController{active: true}
	r := newRouter(NewSessionHandler(ctrl, nil, nil, nil))

	w := do(t, r, http.MethodGet, "/api/session/status", "")

	require.Equal(t, http.StatusOK, w.Code)
	var got domain.SessionStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, domain.StateSynced, got.State)
	assert.Equal(t, "notes", got.DocumentID)
	assert.True(t, got.Synced)
}

func TestControlRoutesRequireSession(t *testing.T) {
	ctrl := &fakeController{}
	r := newRouter(NewSessionHandler(ctrl, nil, nil, nil))

	for _, path := range []string{"/api/session/connect", "/api/session/disconnect", "/api/session/sync"} {
		w := do(t, r, http.MethodPost, path, "")
		assert.Equal(t, http.StatusConflict, w.Code, path)
	}
	assert.Empty(t, ctrl.calls)
}

func TestControlRoutes(t *testing.T) {
	ctrl := &fakeController{active: true}
	r := newRouter(NewSessionHandler(ctrl, nil, nil, nil))

	for _, path := range []string{"/api/session/connect", "/api/session/sync", "/api/session/disconnect", "/api/session/reattempt"} {
		w := do(t, r, http.MethodPost, path, "")
		assert.Equal(t, http.StatusAccepted, w.Code, path)
	}
	assert.Equal(t, []string{"connect", "sync", "disconnect", "reattempt"}, ctrl.calls)
}

func TestReattemptWithoutSession(t *testing.T) {
	ctrl := &fakeController{}
	r := newRouter(NewSessionHandler(ctrl, nil, nil, nil))

	w := do(t, r, http.MethodPost, "/api/session/reattempt", "")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"reattempt"}, ctrl.calls)
}

func TestReinitialize(t *testing.T) {
	ctrl := &fakeController{}
	loaded := config.Settings{Enabled: true, DocumentID: "fresh"}
	r := newRouter(NewSessionHandler(ctrl, nil, nil, func() (config.Settings, error) { return loaded, nil }))

	w := do(t, r, http.MethodPost, "/api/session/reinitialize", "")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"initialize"}, ctrl.calls)
	assert.Equal(t, "fresh", ctrl.settings.DocumentID)
}

func TestReinitializeErrors(t *testing.T) {
	ctrl := &fakeController{}

	w := do(t, newRouter(NewSessionHandler(ctrl, nil, nil, nil)), http.MethodPost, "/api/session/reinitialize", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	failing := func() (config.Settings, error) { return config.Settings{}, errors.New("bad yaml") }
	w = do(t, newRouter(NewSessionHandler(ctrl, nil, nil, failing)), http.MethodPost, "/api/session/reinitialize", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, ctrl.calls)
}

func TestRenameUser(t *testing.T) {
	ctrl := &fakeController{active: true, presence: true}
	r := newRouter(NewSessionHandler(ctrl, nil, nil, nil))

	w := do(t, r, http.MethodPut, "/api/session/user", `{"name":"Zed"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Zed", ctrl.renamed)

	w = do(t, r, http.MethodPut, "/api/session/user", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ctrl.presence = false
	w = do(t, r, http.MethodPut, "/api/session/user", `{"name":"Yan"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetEvents(t *testing.T) {
	events := fakeEvents{
		domain.NewNotification(domain.EventConnected, time.Now(), map[string]any{"documentId": "notes"}),
		domain.NewNotification(domain.EventSynced, time.Now(), map[string]any{"documentId": "notes"}),
	}
	r := newRouter(NewSessionHandler(&fakeController{}, events, nil, nil))

	w := do(t, r, http.MethodGet, "/api/session/events", "")

	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Events []domain.Notification `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Events, 2)
	assert.Equal(t, domain.EventSynced, got.Events[1].Name)

	w = do(t, newRouter(NewSessionHandler(&fakeController{}, nil, nil, nil)), http.MethodGet, "/api/session/events", "")
	assert.JSONEq(t, `{"events":[]}`, w.Body.String())
}

func TestGetHistory(t *testing.T) {
	repo := &fakeRepo{records: []*domain.NotificationRecord{{ID: 7, Name: domain.EventSynced, DocumentID: "notes"}}}
	r := newRouter(NewSessionHandler(&fakeController{}, nil, repo, nil))

	w := do(t, r, http.MethodGet, "/api/session/history?document_id=notes&limit=20", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "notes", repo.lastDoc)
	assert.Equal(t, 20, repo.lastSize)
	var got struct {
		Notifications []domain.NotificationRecord `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Notifications, 1)
	assert.Equal(t, int64(7), got.Notifications[0].ID)

	repo.listErr = errors.New("disk gone")
	w = do(t, r, http.MethodGet, "/api/session/history", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 100, repo.lastSize)

	w = do(t, newRouter(NewSessionHandler(&fakeController{}, nil, nil, nil)), http.MethodGet, "/api/session/history", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
