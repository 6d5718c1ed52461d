package models

import "time"

// NotificationPreferences holds a user's global notification settings.
type NotificationPreferences struct {
	UserID            string    `json:"user_id" db:"user_id"`
	MessagesEnabled   bool      `json:"messages_enabled" db:"messages_enabled"`
	RemindersEnabled  bool      `json:"reminders_enabled" db:"reminders_enabled"`
	SoundEnabled      bool      `json:"sound_enabled" db:"sound_enabled"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// MutedConversation silences a single conversation for a user, optionally
// until a given time.
type MutedConversation struct {
	UserID         string     `json:"user_id" db:"user_id"`
	ConversationID string     `json:"conversation_id" db:"conversation_id"`
	MutedUntil     *time.Time `json:"muted_until,omitempty" db:"muted_until"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// UpdateNotificationPreferencesRequest is the REST body for updating
// preferences.
type UpdateNotificationPreferencesRequest struct {
	MessagesEnabled  *bool `json:"messages_enabled,omitempty"`
	RemindersEnabled *bool `json:"reminders_enabled,omitempty"`
	SoundEnabled     *bool `json:"sound_enabled,omitempty"`
}

// MuteConversationRequest optionally schedules an unmute time.
type MuteConversationRequest struct {
	MutedUntil *time.Time `json:"muted_until,omitempty"`
}

// UserBlock suppresses per-recipient status creation for the blocker, per
// the message engine's send step. Grounded on the source's relationship
// model, which represents blocking as a RelationshipStatus value; this
// spec gives it its own narrow table instead since blocking here has no
// other relationship semantics (no following/connections).
type UserBlock struct {
	BlockerID string    `json:"blocker_id" db:"blocker_id"`
	BlockedID string    `json:"blocked_id" db:"blocked_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
