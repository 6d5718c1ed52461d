package repository

import (
	"context"
	"time"

	"histeeria-backend/internal/models"
)

// MessageRepository is the data-access contract for messages, statuses,
// reactions and per-user deletion.
type MessageRepository interface {
	// Sequence numbers are assigned only inside CreateWithStatuses; the
	// interface has no separate method for them.

	// CreateWithStatuses assigns the next sequence number under a
	// conversation row lock, inserts the message, and inserts one
	// MessageStatus row per member in a single transaction.
	CreateWithStatuses(ctx context.Context, msg *models.Message, statuses []*models.MessageStatus) (*models.Message, error)

	GetByID(ctx context.Context, id string) (*models.Message, error)

	// ListForConversation returns messages ordered
	// (sequence_number DESC, created_at DESC, id DESC), excluding rows
	// the viewer has deleted-for-me, honoring the cursor.
	ListForConversation(ctx context.Context, conversationID, viewerID string, limit int, cursor *string) ([]*models.Message, bool, error)

	Edit(ctx context.Context, id, newContent string) error
	SoftDeleteForEveryone(ctx context.Context, id string, at time.Time) error
	DeleteForMe(ctx context.Context, userID, messageID string) error
	IsDeletedForMe(ctx context.Context, userID, messageID string) (bool, error)

	Search(ctx context.Context, req models.SearchMessagesRequest, requesterID string) ([]*models.Message, bool, error)

	// SendersFor batch-fetches unique sender profiles for a page of
	// messages in one call.
	SendersFor(ctx context.Context, senderIDs []string) (map[string]*models.User, error)

	// Statuses

	GetStatuses(ctx context.Context, messageID string) ([]*models.MessageStatus, error)
	GetStatus(ctx context.Context, messageID, userID string) (*models.MessageStatus, error)
	// AdvanceStatus sets status for (message, user) only if it is a
	// forward move per DeliveryStatus.Rank; returns the resulting status.
	AdvanceStatus(ctx context.Context, messageID, userID string, status models.DeliveryStatus, at time.Time) (models.DeliveryStatus, error)
	// PromoteSentToDelivered batch-promotes every `sent` row for a user
	// (across conversations) to `delivered`, used when they come online.
	PromoteSentToDelivered(ctx context.Context, userID string, at time.Time) (int, error)
	MarkRead(ctx context.Context, userID string, messageIDs []string, at time.Time) error
	MarkConversationRead(ctx context.Context, conversationID, userID string, at time.Time) error

	UnreadCount(ctx context.Context, userID string) (int, error)

	// Reactions

	AddReaction(ctx context.Context, messageID, userID, emoji string) (*models.MessageReaction, error)
	RemoveReaction(ctx context.Context, messageID, userID string) (bool, error)
	GetReaction(ctx context.Context, messageID, userID string) (*models.MessageReaction, error)
	GetReactions(ctx context.Context, messageID string) ([]*models.MessageReaction, error)
}
