// Package wire defines the JSON frame format exchanged over the gateway WebSocket connection.
//
// Unlike the opcode/sequence envelope of a Discord-style gateway, Pulse's wire format is event-named and
// callback-style: every inbound frame may carry a request id, and the gateway replies on the same id with
// {success:true, ...} or {success:false, error}. Server-originated frames (message_received, user_typing, ...)
// omit the request id entirely.
package wire

import "encoding/json"

// Frame is the envelope for every message exchanged over the gateway socket.
type Frame struct {
	Event string          `json:"event"`
	ReqID string          `json:"reqId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names, driven by the client.
const (
	EventIdentify          = "identify"
	EventResume            = "resume"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventMessageDelivered  = "message_delivered"
	EventMessageRead       = "message_read"
	EventHeartbeat         = "heartbeat"
	EventPing              = "ping"
)

// Outbound event names, emitted by the gateway.
const (
	EventConnected       = "connected"
	EventResumed         = "resumed"
	EventMessageReceived = "message_received"
	EventUserTyping      = "user_typing"
	EventUserTypingStop  = "user_typing_stop"
	EventMessageDelivery = "message_delivered"
	EventMessageReadAck  = "message_read"
	EventPong            = "pong"
)

// Reply is the callback-style failure payload for an inbound event: Success is false and Error carries the code.
// Successful replies are built by MarshalSuccess instead.
type Reply struct {
	Success bool        `json:"success"`
	Error   *ReplyError `json:"error,omitempty"`
}

// ReplyError carries a machine-readable code alongside a human-readable message, mirroring the REST error envelope.
type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Marshal serialises an event frame with optional request id and payload.
func Marshal(event, reqID string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Frame{Event: event, ReqID: reqID, Data: raw})
}

// MarshalSuccess builds a callback reply frame acknowledging an inbound event. Fields of extra are flattened
// alongside "success":true so the client sees e.g. {success:true, messageId:"..."} rather than a nested payload.
func MarshalSuccess(reqID string, extra any) ([]byte, error) {
	base := map[string]any{"success": true}
	if extra != nil {
		b, err := json.Marshal(extra)
		if err != nil {
			return nil, err
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, err
		}
		for k, v := range m {
			base[k] = v
		}
	}
	return Marshal("", reqID, base)
}

// MarshalFailure builds a callback reply frame rejecting an inbound event with a machine-readable code.
func MarshalFailure(reqID, code, message string) ([]byte, error) {
	return Marshal("", reqID, Reply{Success: false, Error: &ReplyError{Code: code, Message: message}})
}
