package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ashureev/collabsync/internal/domain"
	"github.com/ashureev/collabsync/internal/replica"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	readLimit        = 16 << 20

	reasonClientDisconnect = "client disconnect"
)

// WebSocket is a Transport speaking the JSON sync protocol over coder/websocket.
type WebSocket struct {
	opts      Options
	target    string
	logger    *slog.Logger
	events    *emitter
	awareness *AwarenessMap
	unobserve func()

	mu         sync.Mutex
	gen        uint64
	conn       *websocket.Conn
	cancel     context.CancelFunc
	connecting bool
	connected  bool
	synced     bool
	destroyed  bool
	connID     string
}

// NewWebSocket creates a transport bound to opts.Document. When
// opts.AutoConnect is set the first connection attempt starts immediately.
func NewWebSocket(opts Options) (*WebSocket, error) {
	if opts.URL == "" {
		return nil, errors.New("transport: endpoint url required")
	}
	if opts.DocumentID == "" {
		return nil, errors.New("transport: document id required")
	}
	if opts.Document == nil {
		return nil, errors.New("transport: document required")
	}
	base, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse endpoint url: %w", err)
	}
	switch base.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, fmt.Errorf("transport: unsupported endpoint scheme %q", base.Scheme)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	w := &WebSocket{
		opts:   opts,
		target: opts.URL + "/" + url.PathEscape(opts.DocumentID),
		logger: opts.Logger.With("document_id", opts.DocumentID),
		events: newEmitter(),
	}
	w.awareness = NewAwarenessMap(w.localAwarenessChanged)
	w.unobserve = opts.Document.Observe(w.documentUpdated)

	if opts.AutoConnect {
		w.Connect()
	}
	return w, nil
}

// NewWebSocketTransport adapts NewWebSocket to Factory.
func NewWebSocketTransport(opts Options) (Transport, error) {
	w, err := NewWebSocket(opts)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Subscribe registers l for lifecycle events.
func (w *WebSocket) Subscribe(l Listener) func() {
	return w.events.subscribe(l)
}

// Awareness returns the shared presence map.
func (w *WebSocket) Awareness() Awareness {
	return w.awareness
}

// IsConnected reports whether the handshake completed on a live socket.
func (w *WebSocket) IsConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

// IsSynced reports whether the initial sync finished on the current connection.
func (w *WebSocket) IsSynced() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.synced
}

// ConnectionID returns the id the endpoint assigned to the current connection.
func (w *WebSocket) ConnectionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connID
}

// Connect starts a connection attempt unless one is running or established.
func (w *WebSocket) Connect() {
	w.mu.Lock()
	if w.destroyed || w.connecting || w.connected {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.gen++
	gen := w.gen
	w.connecting = true
	w.cancel = cancel
	w.mu.Unlock()

	w.events.emit(Event{Kind: KindStatus, Phase: PhaseConnecting})
	go w.run(ctx, gen)
}

// Disconnect closes the current connection gracefully.
func (w *WebSocket) Disconnect() {
	w.mu.Lock()
	if w.destroyed || (!w.connected && !w.connecting) {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	conn := w.conn
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		go func() {
			_ = conn.Close(websocket.StatusNormalClosure, reasonClientDisconnect)
		}()
	}
}

// ForceSync asks the endpoint for a fresh sync pass.
func (w *WebSocket) ForceSync() {
	if !w.IsConnected() {
		return
	}
	w.events.emit(Event{Kind: KindStatus, Phase: PhaseSyncing})
	go func() {
		if err := w.send(message{Type: msgSync, DocumentID: w.opts.DocumentID}); err != nil {
			w.logger.Debug("Failed to send sync request", "error", err)
		}
	}()
}

// Destroy tears the transport down without waiting for the network. No
// events are delivered afterwards.
func (w *WebSocket) Destroy() {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	w.destroyed = true
	w.connected = false
	w.connecting = false
	w.synced = false
	cancel := w.cancel
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()

	w.unobserve()
	w.events.close()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		go func() {
			_ = conn.Close(websocket.StatusGoingAway, "transport destroyed")
		}()
	}
}

func (w *WebSocket) run(ctx context.Context, gen uint64) {
	conn, connID, err := w.open(ctx)
	if err != nil {
		w.mu.Lock()
		current := w.gen == gen && !w.destroyed
		if current {
			w.connecting = false
			w.cancel = nil
		}
		w.mu.Unlock()

		if current && ctx.Err() == nil {
			w.logger.Debug("Connection attempt failed", "error", err)
			w.events.emit(Event{Kind: KindError, Err: err})
		}
		return
	}

	w.mu.Lock()
	if w.gen != gen || w.destroyed || ctx.Err() != nil {
		w.mu.Unlock()
		_ = conn.CloseNow()
		return
	}
	w.conn = conn
	w.connecting = false
	w.connected = true
	w.synced = false
	w.connID = connID
	w.mu.Unlock()

	w.events.emit(Event{Kind: KindConnected, Phase: PhaseConnected, ConnectionID: connID})

	if local := w.awareness.LocalUser(); local != nil {
		if err := w.send(message{Type: msgAwareness, ClientID: w.awareness.ClientID(), User: local}); err != nil {
			w.logger.Debug("Failed to publish local awareness", "error", err)
		}
	}
	w.events.emit(Event{Kind: KindStatus, Phase: PhaseSyncing})
	if err := w.send(message{Type: msgSync, DocumentID: w.opts.DocumentID}); err != nil {
		w.logger.Debug("Failed to send sync request", "error", err)
	}

	readErr := w.readLoop(ctx, conn, gen)

	w.mu.Lock()
	current := w.gen == gen && !w.destroyed
	if current {
		w.conn = nil
		w.cancel = nil
		w.connected = false
		w.synced = false
	}
	w.mu.Unlock()
	_ = conn.CloseNow()

	if !current {
		return
	}
	presenceChanged := w.awareness.clearRemote()
	w.events.emit(Event{Kind: KindDisconnected, Phase: PhaseDisconnected, Reason: closeReason(ctx, readErr)})
	if presenceChanged {
		w.events.emit(Event{Kind: KindPresence})
	}
	// A drop the client did not ask for, and the server did not close
	// cleanly, is reported as an error so the session schedules a reconnect.
	if ctx.Err() == nil && websocket.CloseStatus(readErr) != websocket.StatusNormalClosure {
		w.events.emit(Event{Kind: KindError, Err: fmt.Errorf("connection lost: %w", readErr)})
	}
}

// open dials the endpoint and completes the auth handshake.
func (w *WebSocket) open(ctx context.Context) (*websocket.Conn, string, error) {
	header := http.Header{}
	if w.opts.Token != "" {
		header.Set("Authorization", "Bearer "+w.opts.Token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	conn, resp, err := websocket.Dial(dialCtx, w.target, &websocket.DialOptions{HTTPHeader: header})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, "", fmt.Errorf("dial %s: %w", w.target, err)
	}
	conn.SetReadLimit(readLimit)

	auth := AuthPayload{Token: w.opts.Token}
	if w.opts.Authenticate != nil {
		auth = w.opts.Authenticate()
	}
	req := message{
		Type:       msgAuth,
		Token:      auth.Token,
		SaveMode:   string(auth.SaveMode),
		UserName:   auth.UserName,
		DocumentID: w.opts.DocumentID,
	}
	if err := wsjson.Write(dialCtx, conn, req); err != nil {
		_ = conn.CloseNow()
		return nil, "", fmt.Errorf("send auth: %w", err)
	}

	var reply message
	if err := wsjson.Read(dialCtx, conn, &reply); err != nil {
		_ = conn.CloseNow()
		return nil, "", fmt.Errorf("read auth reply: %w", err)
	}
	switch reply.Type {
	case msgAuthenticated:
		connID := reply.ConnectionID
		if connID == "" {
			connID = uuid.NewString()
		}
		return conn, connID, nil
	case msgAuthFailed:
		_ = conn.Close(websocket.StatusPolicyViolation, "authentication failed")
		return nil, "", fmt.Errorf("%w: %s", ErrAuthenticationFailed, reply.Reason)
	case msgError:
		_ = conn.CloseNow()
		return nil, "", &RemoteError{Name: reply.Name, Message: reply.Message}
	default:
		_ = conn.CloseNow()
		return nil, "", fmt.Errorf("unexpected handshake reply %q", reply.Type)
	}
}

func (w *WebSocket) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64) error {
	for {
		var msg message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return err
		}
		w.handle(msg, gen)
	}
}

func (w *WebSocket) handle(msg message, gen uint64) {
	switch msg.Type {
	case msgSyncReply:
		for _, u := range msg.Updates {
			if err := w.opts.Document.Apply(u, replica.OriginRemote); err != nil {
				w.logger.Debug("Dropped sync update", "error", err)
			}
		}
		w.mu.Lock()
		current := w.gen == gen && w.connected
		if current {
			w.synced = true
		}
		w.mu.Unlock()
		if current {
			w.events.emit(Event{Kind: KindSynced})
		}

	case msgUpdate:
		if err := w.opts.Document.Apply(msg.Update, replica.OriginRemote); err != nil {
			w.logger.Debug("Dropped remote update", "error", err)
		}

	case msgAwareness:
		if w.awareness.setRemote(msg.ClientID, msg.User) {
			w.events.emit(Event{Kind: KindPresence})
		}

	case msgAwarenessRemove:
		if w.awareness.removeRemote(msg.ClientID) {
			w.events.emit(Event{Kind: KindPresence})
		}

	case msgError:
		w.events.emit(Event{Kind: KindError, Err: &RemoteError{Name: msg.Name, Message: msg.Message}})

	default:
		w.logger.Debug("Ignoring unknown message", "type", msg.Type)
	}
}

func (w *WebSocket) documentUpdated(update []byte, origin replica.Origin) {
	if origin != replica.OriginLocal {
		return
	}
	if err := w.send(message{Type: msgUpdate, Update: update}); err != nil && !errors.Is(err, ErrNotConnected) {
		w.logger.Debug("Failed to forward local update", "error", err)
	}
}

func (w *WebSocket) localAwarenessChanged(user *domain.User) {
	w.events.emit(Event{Kind: KindPresence})
	if !w.IsConnected() {
		return
	}
	go func() {
		if err := w.send(message{Type: msgAwareness, ClientID: w.awareness.ClientID(), User: user}); err != nil {
			w.logger.Debug("Failed to publish local awareness", "error", err)
		}
	}()
}

func (w *WebSocket) send(msg message) error {
	w.mu.Lock()
	conn := w.conn
	destroyed := w.destroyed
	w.mu.Unlock()
	if destroyed {
		return ErrDestroyed
	}
	if conn == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

func closeReason(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return reasonClientDisconnect
	}
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Reason != "" {
			return ce.Reason
		}
		return ce.Code.String()
	}
	return err.Error()
}
