package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pulse-chat/pulse-server/internal/apierr"
	"github.com/pulse-chat/pulse-server/internal/auth"
	"github.com/pulse-chat/pulse-server/internal/config"
	"github.com/pulse-chat/pulse-server/internal/conversation"
	"github.com/pulse-chat/pulse-server/internal/message"
	"github.com/pulse-chat/pulse-server/internal/presence"
	"github.com/pulse-chat/pulse-server/internal/user"
	"github.com/pulse-chat/pulse-server/internal/wire"
)

// room holds the connections currently subscribed to one conversation's fan-out. Each room has its own lock so that
// broadcasting to a busy conversation never contends with membership changes in an unrelated one.
type room struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client // keyed by connection id; the same user may hold several
}

func newRoom() *room {
	return &room{clients: make(map[uuid.UUID]*Client)}
}

func (r *room) add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID()] = c
}

// remove deletes a connection and reports whether the room is now empty.
func (r *room) remove(connID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, connID)
	return len(r.clients) == 0
}

func (r *room) snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// conversationRoom builds the room key for a conversation id.
func conversationRoom(id uuid.UUID) string {
	return "conversation:" + id.String()
}

// Hub is the central WebSocket connection registry and event distributor. Connections are indexed by connection id
// (not user id) since one user's sockets may be spread across many connections and gateway instances; room
// membership is tracked separately so fan-out never needs to walk the full connection table.
type Hub struct {
	cfg *config.Config

	rdb           *redis.Client
	users         user.Repository
	conversations *conversation.Service
	messages      *message.Service
	presence      *presence.Store
	sessions      *SessionStore
	publisher     *Publisher
	log           zerolog.Logger

	mu        sync.RWMutex
	clients   map[uuid.UUID]*Client
	userConns map[uuid.UUID]int // live connection count per user, so presence only flips offline once the last socket drops

	roomsMu sync.RWMutex
	rooms   map[string]*room
}

// NewHub creates a new gateway hub.
func NewHub(
	rdb *redis.Client,
	cfg *config.Config,
	sessions *SessionStore,
	users user.Repository,
	conversations *conversation.Service,
	messages *message.Service,
	presenceStore *presence.Store,
	publisher *Publisher,
	logger zerolog.Logger,
) *Hub {
	return &Hub{
		cfg:           cfg,
		rdb:           rdb,
		users:         users,
		conversations: conversations,
		messages:      messages,
		presence:      presenceStore,
		sessions:      sessions,
		publisher:     publisher,
		log:           logger.With().Str("component", "gateway").Logger(),
		clients:       make(map[uuid.UUID]*Client),
		userConns:     make(map[uuid.UUID]int),
		rooms:         make(map[string]*room),
	}
}

// Run subscribes to the message bus and fans out newly sent messages to every connection in the sending
// conversation's room. It always re-reads the message from the database rather than trusting the bus payload, so
// every gateway instance's broadcast is identical regardless of which instance accepted the write.
func (h *Hub) Run(ctx context.Context) error {
	sub := h.rdb.Subscribe(ctx, messagesChannel)
	defer func() { _ = sub.Close() }()

	h.log.Info().Msg("gateway hub subscribed to message bus")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			h.handleBusMessage(ctx, msg.Payload)
		}
	}
}

func (h *Hub) handleBusMessage(ctx context.Context, payload string) {
	var tuple messageTuple
	if err := json.Unmarshal([]byte(payload), &tuple); err != nil {
		h.log.Warn().Err(err).Msg("invalid message tuple on bus")
		return
	}

	msg, err := h.messages.GetByID(ctx, tuple.MessageID)
	if err != nil {
		h.log.Warn().Err(err).Stringer("message_id", tuple.MessageID).Msg("failed to re-read message for fan-out")
		return
	}

	h.broadcastToRoom(conversationRoom(tuple.ConversationID), wire.EventMessageReceived, newMessageView(msg), true)
}

// messageView is the wire shape of a message dispatched to gateway clients.
type messageView struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversationId"`
	SenderID       uuid.UUID `json:"senderId"`
	Content        *string   `json:"content,omitempty"`
	Type           string    `json:"type"`
	MediaURL       *string   `json:"mediaUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func newMessageView(msg *message.Message) messageView {
	return messageView{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Type:           msg.Type,
		MediaURL:       msg.MediaPath,
		CreatedAt:      msg.CreatedAt,
	}
}

// ServeWebSocket initialises a new client for an upgraded WebSocket connection and runs its read/write pumps until
// the connection closes. Authentication happens after the handshake via the identify or resume event.
func (h *Hub) ServeWebSocket(conn *websocket.Conn) {
	client := newClient(h, conn, h.log)
	go client.writePump()
	client.readPump()
}

// register adds an authenticated client to the Hub, rejecting the connection if it is already at capacity.
func (h *Hub) register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) >= h.cfg.GatewayMaxConnections {
		return ErrMaxConnections
	}
	h.clients[client.ID()] = client
	return nil
}

// unregister removes a client from the Hub, leaves every room it had joined, and persists a resumable session. If
// this was the user's last live connection, presence flips offline and lastSeenAt is touched immediately; spec-level
// disconnect side effects are synchronous, not delayed, because multiple sockets per user already make presence a
// refcount rather than a single flag.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client.ID())
	h.mu.Unlock()

	client.closeSend()

	if !client.IsIdentified() {
		return
	}

	rooms := client.roomIDs()
	for _, roomKey := range rooms {
		h.leaveRoom(roomKey, client)
	}

	userID := client.UserID()
	h.mu.Lock()
	h.userConns[userID]--
	lastConn := h.userConns[userID] <= 0
	if lastConn {
		delete(h.userConns, userID)
	}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.sessions.Save(ctx, client.SessionID(), userID, client.currentSeq(), rooms); err != nil {
		h.log.Warn().Err(err).Stringer("user_id", userID).Msg("failed to save session on disconnect")
	}

	if !lastConn {
		return
	}
	if err := h.presence.MarkOffline(ctx, userID); err != nil {
		h.log.Warn().Err(err).Stringer("user_id", userID).Msg("failed to clear presence on disconnect")
	}
	if err := h.users.TouchLastSeen(ctx, userID); err != nil {
		h.log.Warn().Err(err).Stringer("user_id", userID).Msg("failed to touch last seen on disconnect")
	}
}

// subjectExists completes the Auth Verifier contract for socket authentication: a token's signature and expiry are
// not enough, its subject must also resolve to a persisted user, same as the REST guard's exists check.
func (h *Hub) subjectExists(userID uuid.UUID) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := h.users.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			h.log.Warn().Err(err).Stringer("user_id", userID).Msg("failed to verify token subject")
		}
		return false
	}
	return true
}

// handleIdentify authenticates a connection from a bearer token and registers it.
func (h *Hub) handleIdentify(client *Client, reqID, token string) {
	principal, err := auth.ValidateToken(token, h.cfg.JWTSecret, h.cfg.JWTIssuer)
	if err != nil {
		h.log.Debug().Err(err).Msg("identify token validation failed")
		client.closeWithCode(CloseAuthFailed, "invalid token")
		return
	}
	if !h.subjectExists(principal.UserID) {
		client.closeWithCode(CloseAuthFailed, "invalid token")
		return
	}

	sessionID := NewSessionID()
	client.markIdentified(principal.UserID, principal.DisplayName, sessionID, 0)

	if err := h.register(client); err != nil {
		h.log.Warn().Err(err).Msg("failed to register client")
		client.closeWithCode(CloseUnknownError, "too many connections")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h.mu.Lock()
	h.userConns[principal.UserID]++
	firstConn := h.userConns[principal.UserID] == 1
	h.mu.Unlock()

	if firstConn {
		if err := h.presence.MarkOnline(ctx, principal.UserID); err != nil {
			h.log.Warn().Err(err).Stringer("user_id", principal.UserID).Msg("failed to mark presence online")
		}
	}

	payload, err := wire.Marshal(wire.EventConnected, reqID, struct {
		UserID string `json:"userId"`
	}{UserID: principal.UserID.String()})
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal connected event")
		return
	}
	client.enqueue(payload)

	h.log.Info().Stringer("user_id", principal.UserID).Str("session_id", sessionID).Msg("client identified")
}

// handleResume restores a client's prior session: replaying missed dispatches, rejoining its rooms, and consuming
// the saved session so it cannot be resumed twice.
func (h *Hub) handleResume(client *Client, reqID, token, sessionID string, seq int64) {
	principal, err := auth.ValidateToken(token, h.cfg.JWTSecret, h.cfg.JWTIssuer)
	if err != nil {
		h.log.Debug().Err(err).Msg("resume token validation failed")
		client.closeWithCode(CloseAuthFailed, "invalid token")
		return
	}
	if !h.subjectExists(principal.UserID) {
		client.closeWithCode(CloseAuthFailed, "invalid token")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	loaded, err := h.sessions.Load(ctx, sessionID)
	if err != nil || loaded.UserID != principal.UserID {
		h.log.Debug().Err(err).Str("session_id", sessionID).Msg("session not found for resume")
		client.closeWithCode(CloseInvalidResume, "session not found or expired")
		return
	}

	missed, err := h.sessions.Replay(ctx, sessionID, seq)
	if err != nil {
		h.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to load replay buffer")
		client.closeWithCode(CloseInvalidResume, "failed to replay session")
		return
	}

	client.markIdentified(principal.UserID, principal.DisplayName, sessionID, loaded.LastSeq)

	if err := h.register(client); err != nil {
		h.log.Warn().Err(err).Msg("failed to register resumed client")
		client.closeWithCode(CloseUnknownError, "too many connections")
		return
	}

	h.mu.Lock()
	h.userConns[principal.UserID]++
	firstConn := h.userConns[principal.UserID] == 1
	h.mu.Unlock()

	if firstConn {
		if err := h.presence.MarkOnline(ctx, principal.UserID); err != nil {
			h.log.Warn().Err(err).Stringer("user_id", principal.UserID).Msg("failed to mark presence online")
		}
	}

	for _, roomKey := range loaded.RoomIDs {
		h.joinRoom(roomKey, client)
		client.addRoom(roomKey)
	}

	for _, frame := range missed {
		client.enqueue(frame)
	}

	if err := h.sessions.Delete(ctx, sessionID); err != nil {
		h.log.Warn().Err(err).Msg("failed to delete session after resume")
	}

	payload, err := wire.Marshal(wire.EventResumed, reqID, struct {
		LastSeq int64 `json:"lastSeq"`
	}{LastSeq: client.currentSeq()})
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal resumed event")
		return
	}
	client.enqueue(payload)

	h.log.Info().Stringer("user_id", principal.UserID).Str("session_id", sessionID).
		Int("replayed", len(missed)).Msg("client resumed")
}

type conversationScopedPayload struct {
	ConversationID string `json:"conversationId"`
}

// handleJoinConversation subscribes a connection to a conversation's room after verifying membership.
func (h *Hub) handleJoinConversation(client *Client, reqID string, data json.RawMessage) {
	var payload conversationScopedPayload
	convID, ok := h.parseConversationScoped(client, reqID, data, &payload)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.conversations.RequireMember(ctx, convID, client.UserID()); err != nil {
		h.replyAPIErr(client, reqID, err)
		return
	}

	roomKey := conversationRoom(convID)
	h.joinRoom(roomKey, client)
	client.addRoom(roomKey)
	client.replySuccess(reqID, nil)
}

// handleLeaveConversation unsubscribes a connection from a conversation's room.
func (h *Hub) handleLeaveConversation(client *Client, reqID string, data json.RawMessage) {
	var payload conversationScopedPayload
	convID, ok := h.parseConversationScoped(client, reqID, data, &payload)
	if !ok {
		return
	}

	roomKey := conversationRoom(convID)
	h.leaveRoom(roomKey, client)
	client.removeRoom(roomKey)
	client.replySuccess(reqID, nil)
}

type sendMessagePayload struct {
	ConversationID string          `json:"conversationId"`
	Type           string          `json:"type"`
	Content        *string         `json:"content,omitempty"`
	MediaURL       *string         `json:"mediaUrl,omitempty"`
	MediaMeta      json.RawMessage `json:"mediaMeta,omitempty"`
}

// handleSendMessage persists a new message then announces it on the bus for fan-out. The sender's callback reply
// acknowledges persistence immediately and does not wait for broadcast delivery.
func (h *Hub) handleSendMessage(client *Client, reqID string, data json.RawMessage) {
	var payload sendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		client.replyFailure(reqID, string(apierr.CodeBadRequest), "invalid payload")
		return
	}
	convID, err := uuid.Parse(payload.ConversationID)
	if err != nil {
		client.replyFailure(reqID, string(apierr.CodeBadRequest), "invalid conversation id")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg, err := h.messages.Send(ctx, message.SendParams{
		ConversationID: convID,
		SenderID:       client.UserID(),
		Content:        payload.Content,
		Type:           payload.Type,
		MediaPath:      payload.MediaURL,
		MediaMeta:      payload.MediaMeta,
	})
	if err != nil {
		h.replyAPIErr(client, reqID, err)
		return
	}

	if err := h.publisher.PublishMessage(ctx, msg.ID, msg.ConversationID, msg.SenderID); err != nil {
		h.log.Warn().Err(err).Stringer("message_id", msg.ID).Msg("failed to publish message to bus")
	}

	client.replySuccess(reqID, struct {
		MessageID string `json:"messageId"`
	}{MessageID: msg.ID.String()})
}

// handleTyping broadcasts a typing indicator to every other connection in the room. Membership is checked against
// the connection's own joined-room set rather than the database, since join_conversation already verified it and
// typing events are frequent enough that a DB round trip per keystroke would be wasteful.
func (h *Hub) handleTyping(client *Client, reqID string, data json.RawMessage, start bool) {
	var payload conversationScopedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		client.replyFailure(reqID, string(apierr.CodeBadRequest), "invalid payload")
		return
	}
	convID, err := uuid.Parse(payload.ConversationID)
	if err != nil {
		client.replyFailure(reqID, string(apierr.CodeBadRequest), "invalid conversation id")
		return
	}

	roomKey := conversationRoom(convID)
	if !client.inRoom(roomKey) {
		client.replyFailure(reqID, string(apierr.CodeNotMember), "join the conversation before typing")
		return
	}

	event := wire.EventUserTyping
	if !start {
		event = wire.EventUserTypingStop
	}

	typingData := struct {
		ConversationID string `json:"conversationId"`
		UserID         string `json:"userId"`
	}{ConversationID: payload.ConversationID, UserID: client.UserID().String()}

	h.broadcastToRoomExcept(roomKey, event, typingData, client.ID(), false)
	client.replySuccess(reqID, nil)
}

type messageDeliveredPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// handleMessageDelivered marks the message delivered for the actor and, if this transitioned the status, broadcasts
// the receipt to the room.
func (h *Hub) handleMessageDelivered(client *Client, reqID string, data json.RawMessage) {
	var payload messageDeliveredPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		client.replyFailure(reqID, string(apierr.CodeBadRequest), "invalid payload")
		return
	}
	convID, err := uuid.Parse(payload.ConversationID)
	if err != nil {
		client.replyFailure(reqID, string(apierr.CodeBadRequest), "invalid conversation id")
		return
	}
	msgID, err := uuid.Parse(payload.MessageID)
	if err != nil {
		client.replyFailure(reqID, string(apierr.CodeBadRequest), "invalid message id")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changed, err := h.messages.MarkDelivered(ctx, convID, msgID, client.UserID())
	if err != nil {
		h.replyAPIErr(client, reqID, err)
		return
	}

	if changed {
		h.broadcastToRoom(conversationRoom(convID), wire.EventMessageDelivery, struct {
			ConversationID string    `json:"conversationId"`
			MessageID      string    `json:"messageId"`
			UserID         string    `json:"userId"`
			DeliveredAt    time.Time `json:"deliveredAt"`
		}{
			ConversationID: payload.ConversationID,
			MessageID:      payload.MessageID,
			UserID:         client.UserID().String(),
			DeliveredAt:    time.Now().UTC(),
		}, true)
	}

	client.replySuccess(reqID, struct {
		Changed bool `json:"changed"`
	}{Changed: changed})
}

type messageReadPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

// handleMessageRead marks the given messages read for the actor and broadcasts a receipt for whichever ones actually
// transitioned state.
func (h *Hub) handleMessageRead(client *Client, reqID string, data json.RawMessage) {
	var payload messageReadPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		client.replyFailure(reqID, string(apierr.CodeBadRequest), "invalid payload")
		return
	}
	convID, err := uuid.Parse(payload.ConversationID)
	if err != nil {
		client.replyFailure(reqID, string(apierr.CodeBadRequest), "invalid conversation id")
		return
	}

	msgIDs := make([]uuid.UUID, 0, len(payload.MessageIDs))
	for _, raw := range payload.MessageIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			client.replyFailure(reqID, string(apierr.CodeBadRequest), "invalid message id: "+raw)
			return
		}
		msgIDs = append(msgIDs, id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updated, err := h.messages.MarkRead(ctx, convID, client.UserID(), msgIDs)
	if err != nil {
		h.replyAPIErr(client, reqID, err)
		return
	}

	updatedStrs := idsToStrings(updated)

	if len(updated) > 0 {
		h.broadcastToRoom(conversationRoom(convID), wire.EventMessageReadAck, struct {
			ConversationID string    `json:"conversationId"`
			MessageIDs     []string  `json:"messageIds"`
			UserID         string    `json:"userId"`
			ReadAt         time.Time `json:"readAt"`
		}{
			ConversationID: payload.ConversationID,
			MessageIDs:     updatedStrs,
			UserID:         client.UserID().String(),
			ReadAt:         time.Now().UTC(),
		}, true)
	}

	client.replySuccess(reqID, struct {
		MessageIDs []string `json:"messageIds"`
	}{MessageIDs: updatedStrs})
}

// parseConversationScoped decodes a {conversationId} payload, replying with a failure frame and returning ok=false
// on any error.
func (h *Hub) parseConversationScoped(client *Client, reqID string, data json.RawMessage, payload *conversationScopedPayload) (uuid.UUID, bool) {
	if err := json.Unmarshal(data, payload); err != nil {
		client.replyFailure(reqID, string(apierr.CodeBadRequest), "invalid payload")
		return uuid.UUID{}, false
	}
	convID, err := uuid.Parse(payload.ConversationID)
	if err != nil {
		client.replyFailure(reqID, string(apierr.CodeBadRequest), "invalid conversation id")
		return uuid.UUID{}, false
	}
	return convID, true
}

// replyAPIErr translates a classified apierr into a callback failure frame, falling back to an opaque dependency
// failure code if err was not produced by the apierr package.
func (h *Hub) replyAPIErr(client *Client, reqID string, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		h.log.Error().Err(err).Msg("unclassified error reached gateway handler")
		client.replyFailure(reqID, string(apierr.CodeDependencyFailure), "internal error")
		return
	}
	client.replyFailure(reqID, string(apiErr.Code), apiErr.Message)
}

// joinRoom adds a client to the named room, creating it if necessary.
func (h *Hub) joinRoom(roomKey string, client *Client) {
	h.roomsMu.Lock()
	r, ok := h.rooms[roomKey]
	if !ok {
		r = newRoom()
		h.rooms[roomKey] = r
	}
	h.roomsMu.Unlock()
	r.add(client)
}

// leaveRoom removes a client from the named room, deleting the room if it is left empty.
func (h *Hub) leaveRoom(roomKey string, client *Client) {
	h.roomsMu.RLock()
	r, ok := h.rooms[roomKey]
	h.roomsMu.RUnlock()
	if !ok {
		return
	}

	if r.remove(client.ID()) {
		h.roomsMu.Lock()
		if current, ok := h.rooms[roomKey]; ok && current == r {
			r.mu.RLock()
			empty := len(r.clients) == 0
			r.mu.RUnlock()
			if empty {
				delete(h.rooms, roomKey)
			}
		}
		h.roomsMu.Unlock()
	}
}

// broadcastToRoom sends an event to every connection currently in the named room.
func (h *Hub) broadcastToRoom(roomKey, event string, data any, sequenced bool) {
	h.broadcastToRoomExcept(roomKey, event, data, uuid.Nil, sequenced)
}

// broadcastToRoomExcept sends an event to every connection in the named room other than excludeConnID.
func (h *Hub) broadcastToRoomExcept(roomKey, event string, data any, excludeConnID uuid.UUID, sequenced bool) {
	h.roomsMu.RLock()
	r, ok := h.rooms[roomKey]
	h.roomsMu.RUnlock()
	if !ok {
		return
	}

	for _, c := range r.snapshot() {
		if c.ID() == excludeConnID {
			continue
		}
		if sequenced {
			c.dispatch(event, data)
		} else {
			c.dispatchEphemeral(event, data)
		}
	}
}

// Shutdown closes every active connection with a going-away status. Callers should stop accepting new upgrades
// before calling this and unsubscribe Run separately via context cancellation.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[uuid.UUID]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.closeWithCode(websocket.CloseGoingAway, "server shutting down")
		c.closeSend()
	}

	h.log.Info().Int("closed", len(clients)).Msg("gateway hub shut down")
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// idsToStrings converts message ids into their wire string representation.
func idsToStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
