package models

import "time"

// WSEventType is one of the server->client event names the fanout plane
// emits, or one of the client->server event names it accepts.
type WSEventType string

const (
	// Server -> client.
	EventMessageNew          WSEventType = "message:new"
	EventMessageEdited       WSEventType = "message:edited"
	EventMessageDeleted      WSEventType = "message:deleted"
	EventMessageStatus       WSEventType = "message:status"
	EventReactionAdded       WSEventType = "reaction:added"
	EventReactionRemoved     WSEventType = "reaction:removed"
	EventUserTyping          WSEventType = "user_typing"
	EventUserOnline          WSEventType = "user:online"
	EventUserOffline         WSEventType = "user:offline"
	EventConversationUpdated WSEventType = "conversation_updated"
	EventMemberAdded         WSEventType = "member_added"
	EventMemberRemoved       WSEventType = "member_removed"
	EventMemberLeft          WSEventType = "member_left"
	EventNewPoll             WSEventType = "new_poll"
	EventPollVote            WSEventType = "poll_vote"
	EventPollClosed          WSEventType = "poll_closed"
	EventSenderKeyDistribute WSEventType = "sender_key_distribution"

	// Client -> server.
	EventJoinConversation  WSEventType = "join_conversation"
	EventLeaveConversation WSEventType = "leave_conversation"
	EventTypingStart       WSEventType = "typing_start"
	EventTypingStop        WSEventType = "typing_stop"
	EventACK               WSEventType = "ack"
)

// WSEnvelope wraps every message sent over a connection.
type WSEnvelope struct {
	ID             string      `json:"id"`
	Type           WSEventType `json:"type"`
	ConversationID *string     `json:"conversation_id,omitempty"`
	Data           interface{} `json:"data,omitempty"`
	Timestamp      int64       `json:"timestamp"`
}

// PresenceInfo is a user's online/offline status.
type PresenceInfo struct {
	UserID   string     `json:"user_id"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// TypingInfo is a typing-indicator broadcast.
type TypingInfo struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	DisplayName    string `json:"display_name"`
	IsTyping       bool   `json:"is_typing"`
}

// MessageStatusEvent is the payload of a message:status broadcast.
type MessageStatusEvent struct {
	MessageID string         `json:"message_id"`
	UserID    string         `json:"user_id"`
	Status    DeliveryStatus `json:"status"`
}

// SystemEventKind labels which kind of membership change a SYSTEM message
// represents, mirroring the member_added/member_removed/member_left
// WS event names.
type SystemEventKind string

const (
	SystemMemberAdded   SystemEventKind = "member_added"
	SystemMemberRemoved SystemEventKind = "member_removed"
	SystemMemberLeft    SystemEventKind = "member_left"
	SystemConversationUpdated SystemEventKind = "conversation_updated"
)
