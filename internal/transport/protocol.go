package transport

import (
	"context"
	"errors"

	"github.com/ashureev/collabsync/internal/domain"
)

// Wire message types.
const (
	msgAuth            = "auth"
	msgAuthenticated   = "authenticated"
	msgAuthFailed      = "auth-failed"
	msgSync            = "sync"
	msgSyncReply       = "sync-reply"
	msgUpdate          = "update"
	msgAwareness       = "awareness"
	msgAwarenessRemove = "awareness-remove"
	msgError           = "error"
)

// message is the JSON envelope exchanged with the endpoint. Byte slices are
// base64 encoded by encoding/json.
type message struct {
	Type string `json:"type"`

	Token      string `json:"token,omitempty"`
	SaveMode   string `json:"saveMode,omitempty"`
	UserName   string `json:"userName,omitempty"`
	DocumentID string `json:"documentId,omitempty"`

	ConnectionID string `json:"connectionId,omitempty"`
	Reason       string `json:"reason,omitempty"`

	Updates [][]byte `json:"updates,omitempty"`
	Update  []byte   `json:"update,omitempty"`

	ClientID string       `json:"clientId,omitempty"`
	User     *domain.User `json:"user,omitempty"`

	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
}

// RemoteError is an error reported by the endpoint itself.
type RemoteError struct {
	Name    string
	Message string
}

func (e *RemoteError) Error() string {
	switch {
	case e.Name == "":
		return e.text()
	case e.Message == "":
		return e.Name
	}
	return e.Name + ": " + e.Message
}

// text is the message shown to users, falling back to the error name.
func (e *RemoteError) text() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Name != "" {
		return e.Name
	}
	return "remote error"
}

// ErrorName returns the kind label carried in error notifications.
func ErrorName(err error) string {
	var remote *RemoteError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &remote) && remote.Name != "":
		return remote.Name
	case errors.Is(err, ErrAuthenticationFailed):
		return "AuthenticationError"
	case errors.Is(err, context.DeadlineExceeded):
		return "TimeoutError"
	default:
		return "ConnectionError"
	}
}

// ErrorMessage returns the human readable part of err.
func ErrorMessage(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.text()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
