package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/collabsync/internal/config"
	"github.com/ashureev/collabsync/internal/domain"
	"github.com/ashureev/collabsync/internal/store"
	"github.com/go-chi/chi/v5"
)

// SessionController is the part of the lifecycle manager the API drives.
type SessionController interface {
	Initialize(settings config.Settings)
	Reattempt()
	Connect()
	Disconnect()
	ForceSync()
	RenameLocalUser(name string) bool
	Status() domain.SessionStatus
	Active() bool
}

// EventSource lists recently delivered notifications.
type EventSource interface {
	List() []domain.Notification
}

// SettingsLoader re-reads host settings on demand.
type SettingsLoader func() (config.Settings, error)

// SessionHandler serves the session control routes.
type SessionHandler struct {
	ctrl     SessionController
	events   EventSource
	repo     store.Repository
	settings SettingsLoader
}

// NewSessionHandler creates a session handler. events, repo and settings may be nil.
func NewSessionHandler(ctrl SessionController, events EventSource, repo store.Repository, settings SettingsLoader) *SessionHandler {
	return &SessionHandler{ctrl: ctrl, events: events, repo: repo, settings: settings}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/session", func(r chi.Router) {
		r.Get("/status", h.GetStatus)
		r.Get("/events", h.GetEvents)
		r.Get("/history", h.GetHistory)
		r.Post("/connect", h.Connect)
		r.Post("/disconnect", h.Disconnect)
		r.Post("/reattempt", h.Reattempt)
		r.Post("/sync", h.ForceSync)
		r.Post("/reinitialize", h.Reinitialize)
		r.Put("/user", h.RenameUser)
	})
}

// GetStatus returns the current session status.
func (h *SessionHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.ctrl.Status())
}

// GetEvents returns recently delivered notifications, oldest first.
func (h *SessionHandler) GetEvents(w http.ResponseWriter, _ *http.Request) {
	events := []domain.Notification{}
	if h.events != nil {
		events = h.events.List()
	}
	JSON(w, http.StatusOK, map[string]any{"events": events})
}

// GetHistory returns journaled notifications, newest first.
func (h *SessionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		Error(w, http.StatusNotFound, "journal disabled")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	docID := r.URL.Query().Get("document_id")
	records, err := h.repo.ListNotifications(ctx, docID, queryInt(r, "limit", 100))
	if err != nil {
		slog.Error("Failed to list notifications", "error", err)
		Error(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"notifications": records})
}

// Connect asks the transport to connect.
func (h *SessionHandler) Connect(w http.ResponseWriter, _ *http.Request) {
	if !h.requireSession(w) {
		return
	}
	h.ctrl.Connect()
	JSON(w, http.StatusAccepted, h.ctrl.Status())
}

// Disconnect closes the transport.
func (h *SessionHandler) Disconnect(w http.ResponseWriter, _ *http.Request) {
	if !h.requireSession(w) {
		return
	}
	h.ctrl.Disconnect()
	JSON(w, http.StatusAccepted, h.ctrl.Status())
}

// Reattempt rebuilds the session with a fresh attempt counter.
func (h *SessionHandler) Reattempt(w http.ResponseWriter, _ *http.Request) {
	h.ctrl.Reattempt()
	JSON(w, http.StatusAccepted, h.ctrl.Status())
}

// ForceSync requests an immediate resync.
func (h *SessionHandler) ForceSync(w http.ResponseWriter, _ *http.Request) {
	if !h.requireSession(w) {
		return
	}
	h.ctrl.ForceSync()
	JSON(w, http.StatusAccepted, h.ctrl.Status())
}

// Reinitialize reloads host settings and rebuilds the session from them.
func (h *SessionHandler) Reinitialize(w http.ResponseWriter, _ *http.Request) {
	if h.settings == nil {
		Error(w, http.StatusNotImplemented, "settings reload unavailable")
		return
	}
	s, err := h.settings()
	if err != nil {
		slog.Error("Failed to reload settings", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	h.ctrl.Initialize(s)
	JSON(w, http.StatusAccepted, h.ctrl.Status())
}

type renameRequest struct {
	Name string `json:"name"`
}

// RenameUser changes the local participant name.
func (h *SessionHandler) RenameUser(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !h.ctrl.RenameLocalUser(req.Name) {
		Error(w, http.StatusConflict, "no active session with presence")
		return
	}
	JSON(w, http.StatusOK, h.ctrl.Status())
}

func (h *SessionHandler) requireSession(w http.ResponseWriter) bool {
	if h.ctrl.Active() {
		return true
	}
	Error(w, http.StatusConflict, "no active session")
	return false
}
