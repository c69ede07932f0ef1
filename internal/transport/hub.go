// Package transport is the bidirectional message channel spec §4.6
// describes: client registry, subscription routing, broadcast, frame
// validation and auth. Built on the teacher's own websocket library
// (github.com/coder/websocket, never gorilla) and its read/write pump
// shape from server/websocket.go, with the client-registry/subscription-
// set pattern generalized from StrongheartedX-markdown-themes's hub.go
// (watchedFiles -> subscribedPtyIDs).
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/agmux/agmux-core/internal/notify"
	"github.com/agmux/agmux-core/internal/readiness"
	"github.com/agmux/agmux-core/internal/runtime"
	"github.com/agmux/agmux-core/internal/store"
	"github.com/agmux/agmux-core/internal/tmuxops"
)

const (
	pingInterval = 30 * time.Second
	pingTimeout  = 10 * time.Second
	sendBuffer   = 256
)

// Client is one connected browser, with its own subscription set —
// the hub weakly references PTY IDs through it, per spec §3's "the
// transport hub ... does not own sessions."
type Client struct {
	conn *websocket.Conn
	send chan []byte

	mu         sync.Mutex
	subscribed map[string]bool
}

func (c *Client) isSubscribed(ptyID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed[ptyID]
}

func (c *Client) subscribe(ptyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed[ptyID] = true
}

// Hub fans PTY output/exit events out to subscribed clients and routes
// inbound input/resize/scroll frames to the runtime provider.
type Hub struct {
	logger   *slog.Logger
	auth     *Auth
	rt       *runtime.Manager
	ready    *readiness.Engine
	store    *store.Store
	notifier *notify.Broadcaster

	mu      sync.RWMutex
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
}

func NewHub(logger *slog.Logger, auth *Auth, rt *runtime.Manager, ready *readiness.Engine, st *store.Store, notifier *notify.Broadcaster) *Hub {
	h := &Hub{
		logger:     logger,
		auth:       auth,
		rt:         rt,
		ready:      ready,
		store:      st,
		notifier:   notifier,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
	h.ready.SetTransitionHook(h.onReadinessTransition)
	go h.run()
	go h.fanOut()
	return h
}

// onReadinessTransition is the readiness engine's single notification
// choke point (spec §5): every state change, from either inference path,
// lands here once. It persists the readiness_trace row SPEC_FULL.md §6
// describes and, for the one transition a user away from the terminal
// actually needs to act on, pushes a notification.
func (h *Hub) onReadinessTransition(ptyID string, state readiness.State, source string) {
	if h.store != nil {
		if err := h.store.RecordReadinessTransition(ptyID, string(state), source, time.Now()); err != nil {
			h.logger.Debug("recording readiness transition failed", "err", err)
		}
	}
	if state != readiness.StatePermission || h.notifier == nil {
		return
	}
	name := ptyID
	if s, ok := h.rt.GetSummary(ptyID); ok && s.Name != "" {
		name = s.Name
	}
	h.notifier.NotifyPermissionPrompt(ptyID, name)
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		}
	}
}

// fanOut relays runtime output/exit events to subscribed clients, and
// feeds every output chunk through the readiness engine — the single
// choke point spec §5 requires for "at-most-one readiness tail mutation
// per chunk."
func (h *Hub) fanOut() {
	for {
		select {
		case ev, ok := <-h.rt.Output():
			if !ok {
				return
			}
			h.ready.FeedOutput(ev.ID, ev.Data, readiness.FamilyOther)
			h.broadcastTo(ev.ID, PtyOutputFrame{Type: FramePtyOutput, PtyID: ev.ID, Data: string(ev.Data)})
		case ev, ok := <-h.rt.Exit():
			if !ok {
				return
			}
			name := ev.ID
			if s, ok := h.rt.GetSummary(ev.ID); ok && s.Name != "" {
				name = s.Name
			}
			h.ready.Clear(ev.ID)
			if h.notifier != nil {
				h.notifier.NotifyExit(ev.ID, name, ev.Code)
			}
			h.broadcastAll(PtyExitFrame{Type: FramePtyExit, PtyID: ev.ID, Code: ev.Code, Signal: ev.Signal})
		}
	}
}

func (h *Hub) send(c *Client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("marshaling outbound frame", "err", err)
		return
	}
	select {
	case c.send <- data:
	default:
		// Slow client: drop it rather than block peers, per spec §5. The
		// removal goes through run() because broadcast callers hold h.mu
		// for reading here.
		go func() { h.unregister <- c }()
	}
}

// broadcastAll sends to every connected client — pty_list, pty_exit,
// trigger_fired, pty_highlight per spec §4.6.
func (h *Hub) broadcastAll(v any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		h.send(c, v)
	}
}

// broadcastTo sends only to clients subscribed to ptyID — pty_output.
func (h *Hub) broadcastTo(ptyID string, v any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.isSubscribed(ptyID) {
			h.send(c, v)
		}
	}
}

// HandleUpgrade upgrades an HTTP connection and starts the client's pump
// goroutines, per spec §4.6's connect lifecycle.
func (h *Hub) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !h.auth.CheckUpgrade(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"100.*.*.*", "*.ts.net", "localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(maxFramePayload)

	c := &Client{conn: conn, send: make(chan []byte, sendBuffer), subscribed: make(map[string]bool)}
	h.register <- c

	h.send(c, PtyListFrame{Type: FramePtyList, Ptys: summariesToAny(h.rt.List())})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer conn.CloseNow()

	go h.pingLoop(ctx, cancel, conn)
	go h.writePump(ctx, c, conn)
	h.readPump(ctx, cancel, c)
}

func summariesToAny(summaries []runtime.Summary) []any {
	out := make([]any, len(summaries))
	for i, s := range summaries {
		out[i] = s
	}
	return out
}

func (h *Hub) pingLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) writePump(ctx context.Context, c *Client, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(ctx context.Context, cancel context.CancelFunc, c *Client) {
	defer func() {
		cancel()
		h.unregister <- c
		c.conn.CloseNow()
	}()

	for {
		_, raw, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		frame, ok := ParseInboundFrame(raw)
		if !ok {
			continue
		}

		h.handleFrame(ctx, c, frame)
	}
}

func (h *Hub) handleFrame(ctx context.Context, c *Client, f InboundFrame) {
	switch f.Type {
	case FrameSubscribe:
		c.subscribe(f.PtyID)
		go h.sendInitialPaneCapture(ctx, c, f.PtyID)

	case FrameInput:
		h.ready.MarkInput(f.PtyID, []byte(f.Data))
		backend := h.backendFor(f.PtyID)
		h.rt.Write(f.PtyID, []byte(f.Data), backend)

	case FrameResize:
		backend := h.backendFor(f.PtyID)
		h.rt.Resize(f.PtyID, uint16(f.Cols), uint16(f.Rows), backend)

	case FrameTmuxControl:
		h.scrollTmuxPane(ctx, f)
	}
}

func (h *Hub) backendFor(ptyID string) runtime.Backend {
	if s, ok := h.rt.GetSummary(ptyID); ok {
		return s.Backend
	}
	return runtime.BackendPTY
}

// sendInitialPaneCapture is spec §4.6's "subscribe: ... if backing
// session is tmux, asynchronously capture the visible pane and emit one
// pty_output frame to the subscriber (newline-terminated)."
func (h *Hub) sendInitialPaneCapture(ctx context.Context, c *Client, ptyID string) {
	summary, ok := h.rt.GetSummary(ptyID)
	if !ok || summary.Backend != runtime.BackendTmux || summary.TmuxSession == "" {
		return
	}
	server := tmuxops.Server(summary.TmuxServer)
	content := tmuxops.CapturePane(ctx, server, summary.TmuxSession)
	if len(content) == 0 {
		return
	}
	h.send(c, PtyOutputFrame{Type: FramePtyOutput, PtyID: ptyID, Data: string(content) + "\n"})
}

// scrollTmuxPane is best-effort, per spec §4.6/§7: a scroll failure never
// propagates to the client.
func (h *Hub) scrollTmuxPane(ctx context.Context, f InboundFrame) {
	summary, ok := h.rt.GetSummary(f.PtyID)
	if !ok || summary.Backend != runtime.BackendTmux || summary.TmuxSession == "" {
		return
	}
	server := tmuxops.Server(summary.TmuxServer)
	tmuxops.ScrollHistory(ctx, server, summary.TmuxSession, f.Direction, f.Lines)
}
