package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pulse-chat/pulse-server/internal/wire"
)

const (
	// maxMessageSize is the maximum size in bytes of a single inbound WebSocket message.
	maxMessageSize = 4096

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// identifyTimeout is how long a client has to send identify or resume after connecting.
	identifyTimeout = 30 * time.Second
)

// Client represents a single WebSocket connection. Each client runs two goroutines (readPump and writePump) and
// communicates with the Hub via its send channel and callback methods. A connection is identified by its own id,
// independent of the authenticated user id, because one user's sockets may be spread across many connections and
// gateway instances.
type Client struct {
	id   uuid.UUID
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger

	// done is closed to signal that the client is shutting down. The send channel is never closed directly; writePump
	// and enqueue both select on done to detect termination, avoiding send-on-closed-channel panics that would
	// otherwise occur when unregister races with dispatch.
	done      chan struct{}
	closeOnce sync.Once

	// Session state, protected by mu. Fields are written during identify/resume and read by the Hub during dispatch.
	mu          sync.RWMutex
	userID      uuid.UUID
	displayName string
	sessionID   string
	seq         atomic.Int64
	identified  bool
	rooms       map[string]struct{}

	// Rate limiting state (only accessed from readPump, no mutex needed).
	eventCount  int
	windowStart time.Time
}

func newClient(hub *Hub, conn *websocket.Conn, logger zerolog.Logger) *Client {
	return &Client{
		id:    uuid.New(),
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, 256),
		done:  make(chan struct{}),
		log:   logger,
		rooms: make(map[string]struct{}),
	}
}

// closeSend signals the client's write loop to stop. It is safe to call from multiple goroutines; only the first call
// has any effect.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.done) })
}

// ID returns the connection id, stable for the lifetime of the socket.
func (c *Client) ID() uuid.UUID { return c.id }

// UserID returns the authenticated user ID, valid once IsIdentified is true.
func (c *Client) UserID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// SessionID returns the session identifier used for resume and replay.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// IsIdentified returns whether the client has completed authentication.
func (c *Client) IsIdentified() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identified
}

// roomIDs returns a snapshot of the rooms this connection has joined, for persisting across a disconnect.
func (c *Client) roomIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}

func (c *Client) addRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomID] = struct{}{}
}

func (c *Client) removeRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
}

func (c *Client) inRoom(roomID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[roomID]
	return ok
}

// markIdentified records the authenticated principal and session, completing the handshake.
func (c *Client) markIdentified(userID uuid.UUID, displayName, sessionID string, lastSeq int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.displayName = displayName
	c.sessionID = sessionID
	c.identified = true
	c.seq.Store(lastSeq)
}

// nextSeq increments and returns the next sequence number for a buffered dispatch.
func (c *Client) nextSeq() int64 {
	return c.seq.Add(1)
}

// currentSeq returns the current sequence number without incrementing.
func (c *Client) currentSeq() int64 {
	return c.seq.Load()
}

// dispatch sends a sequenced, replay-buffered server event to this connection. Sequenced events are the ones a
// reconnecting client must not silently miss (message_received, receipts); ephemeral events (typing) use
// dispatchEphemeral instead and skip the buffer entirely.
func (c *Client) dispatch(event string, data any) {
	payload, err := wire.Marshal(event, "", data)
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("failed to marshal dispatch")
		return
	}
	c.enqueue(payload)

	if !c.IsIdentified() {
		return
	}
	seq := c.nextSeq()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.hub.sessions.AppendReplay(ctx, c.SessionID(), seq, payload); err != nil {
		c.log.Warn().Err(err).Msg("failed to append replay buffer")
	}
}

// dispatchEphemeral sends a server event without sequencing or replay buffering.
func (c *Client) dispatchEphemeral(event string, data any) {
	payload, err := wire.Marshal(event, "", data)
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("failed to marshal dispatch")
		return
	}
	c.enqueue(payload)
}

// replySuccess sends a callback-style success response to an inbound frame identified by reqID.
func (c *Client) replySuccess(reqID string, extra any) {
	payload, err := wire.MarshalSuccess(reqID, extra)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal success reply")
		return
	}
	c.enqueue(payload)
}

// replyFailure sends a callback-style failure response to an inbound frame identified by reqID. The connection stays
// open: only handshake, decode, unknown-event, and rate-limit failures close it.
func (c *Client) replyFailure(reqID, code, message string) {
	payload, err := wire.MarshalFailure(reqID, code, message)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal failure reply")
		return
	}
	c.enqueue(payload)
}

// readPump reads messages from the WebSocket connection and routes them by event name. It runs in its own goroutine
// and is responsible for unregistering the client when the read loop exits.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	heartbeatInterval := c.hub.cfg.GatewayHeartbeatInterval
	c.conn.SetReadLimit(maxMessageSize)
	// Allow slightly more than one heartbeat interval before timing out, so a single missed heartbeat does not
	// immediately sever the connection.
	_ = c.conn.SetReadDeadline(time.Now().Add(heartbeatInterval + heartbeatInterval/2))

	identifyTimer := time.AfterFunc(identifyTimeout, func() {
		if !c.IsIdentified() {
			c.closeWithCode(CloseNotAuthenticated, "identify timeout")
		}
	})
	defer identifyTimer.Stop()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}

		if c.rateLimited() {
			c.closeWithCode(CloseRateLimited, "rate limit exceeded")
			return
		}

		var frame wire.Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.closeWithCode(CloseDecodeError, "invalid JSON")
			return
		}

		if !c.IsIdentified() && frame.Event != wire.EventIdentify && frame.Event != wire.EventResume {
			c.closeWithCode(CloseNotAuthenticated, "identify or resume required")
			return
		}

		switch frame.Event {
		case wire.EventIdentify:
			identifyTimer.Stop()
			c.handleIdentifyFrame(frame.ReqID, frame.Data)
		case wire.EventResume:
			identifyTimer.Stop()
			c.handleResumeFrame(frame.ReqID, frame.Data)
		case wire.EventHeartbeat:
			c.handleHeartbeat(heartbeatInterval)
		case wire.EventPing:
			c.handlePing(frame.ReqID)
		case wire.EventJoinConversation:
			c.hub.handleJoinConversation(c, frame.ReqID, frame.Data)
		case wire.EventLeaveConversation:
			c.hub.handleLeaveConversation(c, frame.ReqID, frame.Data)
		case wire.EventSendMessage:
			c.hub.handleSendMessage(c, frame.ReqID, frame.Data)
		case wire.EventTypingStart:
			c.hub.handleTyping(c, frame.ReqID, frame.Data, true)
		case wire.EventTypingStop:
			c.hub.handleTyping(c, frame.ReqID, frame.Data, false)
		case wire.EventMessageDelivered:
			c.hub.handleMessageDelivered(c, frame.ReqID, frame.Data)
		case wire.EventMessageRead:
			c.hub.handleMessageRead(c, frame.ReqID, frame.Data)
		default:
			c.closeWithCode(CloseUnknownEvent, "unknown event")
			return
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(heartbeatInterval + heartbeatInterval/2))
	}
}

// writePump writes messages from the send channel to the WebSocket connection. It runs in its own goroutine and
// exits when done is closed, draining any messages left in the buffer first.
func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		case <-c.done:
			for {
				select {
				case msg := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// handleHeartbeat touches the read deadline and, for identified clients, refreshes the presence TTL. No reply is
// sent; heartbeat is fire-and-forget liveness, unlike ping.
func (c *Client) handleHeartbeat(heartbeatInterval time.Duration) {
	_ = c.conn.SetReadDeadline(time.Now().Add(heartbeatInterval + heartbeatInterval/2))

	if !c.IsIdentified() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.hub.presence.Heartbeat(ctx, c.UserID()); err != nil {
		c.log.Warn().Err(err).Msg("failed to refresh presence heartbeat")
	}
}

// handlePing replies with a pong carrying the current server timestamp.
func (c *Client) handlePing(reqID string) {
	payload, err := wire.Marshal(wire.EventPong, reqID, struct {
		Timestamp int64 `json:"timestamp"`
	}{Timestamp: time.Now().UnixMilli()})
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal pong")
		return
	}
	c.enqueue(payload)
}

type identifyPayload struct {
	Token string `json:"token"`
}

// handleIdentifyFrame processes the authentication envelope. Failure closes the connection outright, since an
// unauthenticated socket has no other legal action to take.
func (c *Client) handleIdentifyFrame(reqID string, data json.RawMessage) {
	var payload identifyPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Token == "" {
		c.closeWithCode(CloseDecodeError, "invalid identify payload")
		return
	}
	c.hub.handleIdentify(c, reqID, payload.Token)
}

type resumePayload struct {
	Token     string `json:"token"`
	SessionID string `json:"sessionId"`
	Seq       int64  `json:"seq"`
}

// handleResumeFrame processes a reconnect attempt carrying a prior session id and last-seen sequence number.
func (c *Client) handleResumeFrame(reqID string, data json.RawMessage) {
	var payload resumePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Token == "" || payload.SessionID == "" {
		c.closeWithCode(CloseDecodeError, "invalid resume payload")
		return
	}
	c.hub.handleResume(c, reqID, payload.Token, payload.SessionID, payload.Seq)
}

// enqueue sends a message to the client's write channel. If the client has already been shut down the message is
// silently dropped. If the channel is full, the message is dropped and the connection is closed so a slow reader
// cannot stall the Hub's broadcast loop.
func (c *Client) enqueue(msg []byte) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- msg:
	case <-c.done:
	default:
		c.log.Warn().Msg("client send buffer full, closing connection")
		c.closeSend()
		_ = c.conn.Close()
	}
}

// closeWithCode sends a WebSocket close frame with the given code and reason, then closes the underlying connection.
func (c *Client) closeWithCode(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.conn.Close()
}

// rateLimited returns true if the client has exceeded the configured message rate limit for the current window.
func (c *Client) rateLimited() bool {
	now := time.Now()
	window := time.Duration(c.hub.cfg.RateLimitWSWindowSecond) * time.Second
	if now.Sub(c.windowStart) > window {
		c.eventCount = 0
		c.windowStart = now
	}
	c.eventCount++
	return c.eventCount > c.hub.cfg.RateLimitWSCount
}
