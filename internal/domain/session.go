package domain

// State is the lifecycle phase of one session instance.
type State string

// Session states.
const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateSyncing      State = "syncing"
	StateSynced       State = "synced"
	StateDisconnected State = "disconnected"
	StateRetrying     State = "retrying"
	StateFailed       State = "failed"
)

// SessionStatus is the externally observable state of the session.
type SessionStatus struct {
	Connected    bool    `json:"connected"`
	Syncing      bool    `json:"syncing"`
	Synced       bool    `json:"synced"`
	Error        *string `json:"error"`
	ConnectionID *string `json:"connection_id"`
	Users        []User  `json:"users"`
	UserCount    int     `json:"user_count"`

	State       State  `json:"state"`
	DocumentID  string `json:"document_id,omitempty"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
}

// EmptyStatus returns the canonical disconnected status with no users.
func EmptyStatus() SessionStatus {
	return SessionStatus{
		Users: []User{},
		State: StateIdle,
	}
}

// Clone returns a deep copy so callers cannot mutate tracked state.
func (s SessionStatus) Clone() SessionStatus {
	out := s
	out.Users = CloneUsers(s.Users)
	if s.Error != nil {
		msg := *s.Error
		out.Error = &msg
	}
	if s.ConnectionID != nil {
		id := *s.ConnectionID
		out.ConnectionID = &id
	}
	return out
}
