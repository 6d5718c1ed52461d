package models

import "time"

// MessageType is the discriminator for the opaque metadata bag.
type MessageType string

const (
	MessageTypeText   MessageType = "TEXT"
	MessageTypeImage  MessageType = "IMAGE"
	MessageTypeFile   MessageType = "FILE"
	MessageTypeVoice  MessageType = "VOICE"
	MessageTypePoll   MessageType = "POLL"
	MessageTypeCall   MessageType = "CALL"
	MessageTypeSystem MessageType = "SYSTEM"
)

// DeliveryStatus is a per-recipient delivery-state value. Transitions are
// monotonic: sent -> delivered -> read, never backwards.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// statusRank gives the monotonic ordering used to reject regressions and
// to compute the sender-visible aggregate.
var statusRank = map[DeliveryStatus]int{
	StatusSent:      0,
	StatusDelivered: 1,
	StatusRead:      2,
}

// Rank returns s's position in the sent < delivered < read order.
func (s DeliveryStatus) Rank() int { return statusRank[s] }

// Message is a single message in a conversation, ordered within its
// conversation by SequenceNumber.
type Message struct {
	ID               string      `json:"id" db:"id"`
	ConversationID   string      `json:"conversation_id" db:"conversation_id"`
	SenderID         string      `json:"sender_id" db:"sender_id"`
	Content          *string     `json:"content,omitempty" db:"content"`
	Type             MessageType `json:"type" db:"type"`
	Metadata         JSONMap     `json:"metadata,omitempty" db:"metadata"`
	ReplyToID        *string     `json:"reply_to_id,omitempty" db:"reply_to_id"`
	IsEdited         bool        `json:"is_edited" db:"is_edited"`
	SequenceNumber   int64       `json:"sequence_number" db:"sequence_number"`
	Encrypted        bool        `json:"encrypted" db:"encrypted"`
	EncryptionVer    *int        `json:"encryption_version,omitempty" db:"encryption_version"`
	SenderKeyID      *string     `json:"sender_key_id,omitempty" db:"sender_key_id"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        *time.Time  `json:"updated_at,omitempty" db:"updated_at"`
	DeletedAt        *time.Time  `json:"deleted_at,omitempty" db:"deleted_at"`

	// Enrichment, not persisted on this row.
	Sender         *User              `json:"sender,omitempty" db:"-"`
	ReplyTo        *Message           `json:"reply_to,omitempty" db:"-"`
	Reactions      []*MessageReaction `json:"reactions,omitempty" db:"-"`
	AggregateStatus DeliveryStatus    `json:"status,omitempty" db:"-"`
	IsDeletedForMe bool               `json:"-" db:"-"`
}

// IsTombstone reports whether this message has been deleted for everyone.
func (m *Message) IsTombstone() bool { return m.DeletedAt != nil }

// MessageStatus is the per-recipient delivery row, composite-keyed on
// (message_id, user_id).
type MessageStatus struct {
	MessageID string         `json:"message_id" db:"message_id"`
	UserID    string         `json:"user_id" db:"user_id"`
	Status    DeliveryStatus `json:"status" db:"status"`
	Timestamp time.Time      `json:"timestamp" db:"timestamp"`
}

// MessageReaction is an emoji reaction; at most one exists per
// (message, user) at a time.
type MessageReaction struct {
	ID        string    `json:"id" db:"id"`
	MessageID string    `json:"message_id" db:"message_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Emoji     string    `json:"emoji" db:"emoji"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	User *User `json:"user,omitempty" db:"-"`
}

// UserDeletedMessage implements "delete for me": a composite-keyed tombstone
// visible only to the deleting user.
type UserDeletedMessage struct {
	UserID    string    `json:"user_id" db:"user_id"`
	MessageID string    `json:"message_id" db:"message_id"`
	DeletedAt time.Time `json:"deleted_at" db:"deleted_at"`
}

// SendMessageRequest is the REST/WS body for sending a message.
type SendMessageRequest struct {
	ConversationID   string      `json:"conversation_id" binding:"required"`
	Content          *string     `json:"content,omitempty"`
	Type             MessageType `json:"type"`
	Metadata         JSONMap     `json:"metadata,omitempty"`
	ReplyToID        *string     `json:"reply_to_id,omitempty"`
	Encrypted        bool        `json:"encrypted"`
	EncryptionVer    *int        `json:"encryption_version,omitempty"`
	SenderKeyID      *string     `json:"sender_key_id,omitempty"`
}

// EditMessageRequest is the REST body for editing a message.
type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// ReactionRequest is the REST body for adding a reaction.
type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// MarkReadRequest marks an explicit set of messages as read.
type MarkReadRequest struct {
	MessageIDs []string `json:"message_ids" binding:"required"`
}

// MarkConversationReadRequest marks every unread message in a conversation
// as read.
type MarkConversationReadRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
}

// SearchMessagesRequest filters a message search.
type SearchMessagesRequest struct {
	Query          string     `json:"query"`
	ConversationID *string    `json:"conversation_id,omitempty"`
	SenderID       *string    `json:"sender_id,omitempty"`
	From           *time.Time `json:"from,omitempty"`
	To             *time.Time `json:"to,omitempty"`
	Limit          int        `json:"limit"`
	Cursor         *string    `json:"cursor,omitempty"`
}

// Page is the standard envelope for cursor-paginated list responses.
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Pagination carries the cursor for the next page.
type Pagination struct {
	NextCursor *string `json:"next_cursor,omitempty"`
	HasMore    bool    `json:"has_more"`
	Limit      int     `json:"limit"`
}

// UnreadCountResponse carries a user's unread totals.
type UnreadCountResponse struct {
	Total          int            `json:"total"`
	ByConversation map[string]int `json:"by_conversation,omitempty"`
}

// FileUploadResult is the shape the message engine builds message.metadata
// from after a successful upload.
type FileUploadResult struct {
	FileName     string  `json:"fileName"`
	FileSize     int64   `json:"fileSize"`
	FileURL      string  `json:"fileUrl"`
	MimeType     string  `json:"mimeType"`
	ObjectKey    string  `json:"objectKey"`
	ThumbnailURL *string `json:"thumbnailUrl,omitempty"`
	DurationSecs *int    `json:"duration,omitempty"`
	Encryption   JSONMap `json:"encryption,omitempty"`
}
