// Package domain contains core domain types for collaborative sessions.
package domain

// User is one participant as shown to other participants.
type User struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// PeerState is one entry of the shared awareness map. User is nil for peers
// that have not published a user field yet.
type PeerState struct {
	ClientID string `json:"client_id"`
	User     *User  `json:"user,omitempty"`
}

// Presence is the participant list derived from awareness state.
type Presence struct {
	Users     []User `json:"users"`
	UserCount int    `json:"user_count"`
}

// CloneUsers returns a copy of users that is never nil.
func CloneUsers(users []User) []User {
	out := make([]User, len(users))
	copy(out, users)
	return out
}
