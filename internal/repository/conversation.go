package repository

import (
	"context"
	"time"

	"histeeria-backend/internal/models"
)

// ConversationRepository is the data-access contract for conversations and
// their membership.
type ConversationRepository interface {
	// Create persists a new conversation and its initial members in one
	// transaction. Returns the created conversation.
	Create(ctx context.Context, conv *models.Conversation, members []*models.ConversationMember) (*models.Conversation, error)

	// FindExistingDM returns the DM conversation between exactly these two
	// users, if one already exists.
	FindExistingDM(ctx context.Context, userA, userB string) (*models.Conversation, error)

	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	GetMembers(ctx context.Context, conversationID string) ([]*models.ConversationMember, error)
	GetMember(ctx context.Context, conversationID, userID string) (*models.ConversationMember, error)

	// ListForUser returns conversations the user belongs to, newest
	// updated_at first, filtered by the cursor if present.
	ListForUser(ctx context.Context, userID string, limit int, cursor *models.ConversationListCursor) ([]*models.Conversation, bool, error)

	// LastMessagesFor batch-fetches the most recent message per
	// conversation id, avoiding an N+1 query.
	LastMessagesFor(ctx context.Context, conversationIDs []string) (map[string]*models.Message, error)

	// UnreadCountsFor batch-fetches unread counts for a user across many
	// conversations, avoiding an N+1 query.
	UnreadCountsFor(ctx context.Context, userID string, conversationIDs []string) (map[string]int, error)

	// Update changes a group's name/avatar and bumps updated_at.
	Update(ctx context.Context, id string, name, avatarURL *string) error

	// TouchUpdatedAt bumps a conversation's updated_at, used on every
	// successful send.
	TouchUpdatedAt(ctx context.Context, id string, at time.Time) error

	// AddMembers inserts new members and, in the same transaction,
	// inserts the SYSTEM message recording the change.
	AddMembers(ctx context.Context, conversationID string, newMembers []*models.ConversationMember, systemMsg *models.Message) (*models.Message, error)

	// RemoveMember deletes a member and, in the same transaction, inserts
	// the SYSTEM message recording the change.
	RemoveMember(ctx context.Context, conversationID, targetUserID string, systemMsg *models.Message) (*models.Message, error)

	// UpdateWithSystemMessage updates a conversation's name/avatar and
	// inserts the accompanying SYSTEM message in one transaction.
	UpdateWithSystemMessage(ctx context.Context, id string, name, avatarURL *string, systemMsg *models.Message) (*models.Message, error)

	AdminCount(ctx context.Context, conversationID string) (int, error)

	// SearchForUser matches conversation name and member names, as a
	// case-insensitive substring, for conversations the user belongs to.
	SearchForUser(ctx context.Context, userID, query string, limit int) ([]*models.Conversation, error)
}
