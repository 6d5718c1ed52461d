package models

import "time"

// ConversationType distinguishes a two-party DM from an arbitrary-sized
// group.
type ConversationType string

const (
	ConversationDM    ConversationType = "dm"
	ConversationGroup ConversationType = "group"
)

// MemberRole is a ConversationMember's role within a conversation.
type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

// Conversation is a persistent group or direct conversation.
type Conversation struct {
	ID              string           `json:"id" db:"id"`
	Type            ConversationType `json:"type" db:"type"`
	Name            *string          `json:"name,omitempty" db:"name"`
	AvatarURL       *string          `json:"avatar_url,omitempty" db:"avatar_url"`
	AvatarObjectKey *string          `json:"avatar_object_key,omitempty" db:"avatar_object_key"`
	CreatedBy       *string          `json:"created_by,omitempty" db:"created_by"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`

	// Enrichment populated by the conversation engine, not persisted.
	Members      []*ConversationMember `json:"members,omitempty" db:"-"`
	DisplayName  string                `json:"display_name,omitempty" db:"-"`
	UnreadCount  int                   `json:"unread_count" db:"-"`
	LastMessage  *Message              `json:"last_message,omitempty" db:"-"`
	OtherUser    *User                 `json:"other_user,omitempty" db:"-"` // DMs only
}

// ConversationMember is the membership join row, composite-keyed on
// (conversation_id, user_id).
type ConversationMember struct {
	ConversationID string     `json:"conversation_id" db:"conversation_id"`
	UserID         string     `json:"user_id" db:"user_id"`
	Role           MemberRole `json:"role" db:"role"`
	JoinedAt       time.Time  `json:"joined_at" db:"joined_at"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty" db:"last_read_at"`
	IsMuted        bool       `json:"is_muted" db:"is_muted"`
	MuteUntil      *time.Time `json:"mute_until,omitempty" db:"mute_until"`

	User *User `json:"user,omitempty" db:"-"`
}

// CreateConversationRequest is the REST body for conversation creation.
type CreateConversationRequest struct {
	Type      ConversationType `json:"type" validate:"required,oneof=dm group"`
	MemberIDs []string         `json:"member_ids" validate:"required,min=1"`
	Name      *string          `json:"name,omitempty"`
	AvatarURL *string          `json:"avatar_url,omitempty"`
}

// UpdateConversationRequest is the REST body for updating a group's
// name/avatar.
type UpdateConversationRequest struct {
	Name      *string `json:"name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// ConversationListCursor is the decoded form of a pagination cursor over
// conversations: the id resolves to its updated_at, which becomes the
// filter bound for the next page.
type ConversationListCursor struct {
	ID        string
	UpdatedAt time.Time
}
