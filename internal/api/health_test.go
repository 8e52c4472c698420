package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type healthBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func TestHealthHealthy(t *testing.T) {
	r := chi.NewRouter()
	NewHealthHandler(&fakeRepo{}, &fakeController{active: true}).RegisterHealth(r)

	w := do(t, r, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body healthBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])
	assert.Equal(t, "synced", body.Checks["session"])
}

func TestHealthDegraded(t *testing.T) {
	r := chi.NewRouter()
	NewHealthHandler(&fakeRepo{pingErr: errors.New("locked")}, nil).RegisterHealth(r)

	w := do(t, r, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body healthBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "unreachable", body.Checks["database"])
	assert.NotContains(t, body.Checks, "session")
}
