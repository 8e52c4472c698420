// Package transport connects a document replica to a synchronization endpoint.
package transport

import (
	"errors"
	"log/slog"

	"github.com/ashureev/collabsync/internal/config"
	"github.com/ashureev/collabsync/internal/domain"
	"github.com/ashureev/collabsync/internal/replica"
)

var (
	// ErrAuthenticationFailed is reported when the endpoint rejects the handshake.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrDestroyed is returned by operations on a destroyed transport.
	ErrDestroyed = errors.New("transport destroyed")
	// ErrNotConnected is returned when a send needs a live connection.
	ErrNotConnected = errors.New("transport not connected")
)

// Kind identifies a transport event class.
type Kind int

// Event kinds.
const (
	KindConnected Kind = iota + 1
	KindDisconnected
	KindSynced
	KindStatus
	KindError
	KindPresence
)

func (k Kind) String() string {
	switch k {
	case KindConnected:
		return "connected"
	case KindDisconnected:
		return "disconnected"
	case KindSynced:
		return "synced"
	case KindStatus:
		return "status"
	case KindError:
		return "error"
	case KindPresence:
		return "presence"
	default:
		return "unknown"
	}
}

// Phase is the connection phase carried by status events.
type Phase string

// Connection phases.
const (
	PhaseConnecting   Phase = "connecting"
	PhaseSyncing      Phase = "syncing"
	PhaseConnected    Phase = "connected"
	PhaseDisconnected Phase = "disconnected"
)

// Event is one lifecycle notification from a transport.
type Event struct {
	Kind         Kind
	Phase        Phase
	Reason       string
	ConnectionID string
	Err          error
}

// Listener receives transport events. Events from one transport are delivered
// one at a time in emission order.
type Listener func(Event)

// AuthPayload is what the endpoint receives at handshake time.
type AuthPayload struct {
	Token    string          `json:"token"`
	SaveMode config.SaveMode `json:"saveMode"`
	UserName string          `json:"userName"`
}

// Options configures a new transport.
type Options struct {
	URL          string
	DocumentID   string
	Token        string
	Authenticate func() AuthPayload
	Document     *replica.Doc
	AutoConnect  bool
	Logger       *slog.Logger
}

// Awareness is the shared presence map.
type Awareness interface {
	ClientID() string
	States() []domain.PeerState
	SetLocalUser(user domain.User)
	LocalUser() *domain.User
}

// Transport is the network connection to the synchronization endpoint.
type Transport interface {
	Connect()
	Disconnect()
	ForceSync()
	IsConnected() bool
	IsSynced() bool
	ConnectionID() string
	Awareness() Awareness
	Subscribe(l Listener) (unsubscribe func())
	Destroy()
}

// Factory opens a transport.
type Factory func(opts Options) (Transport, error)
