package repository

import (
	"context"

	"histeeria-backend/internal/models"
)

// UserRepository is the data-access contract for the local user
// projection. Business logic depends only on this interface, never on
// the concrete Postgres provider.
type UserRepository interface {
	// UpsertByExternalIDOrEmail implements the dual-key upsert: look up
	// by external_user_id first, then by email, inserting only if
	// neither matches. This is the one operation in the whole repository
	// that must never be replaced by a plain insert-or-update, since it
	// is what keeps conversation history stable across upstream id
	// resets or email changes.
	UpsertByExternalIDOrEmail(ctx context.Context, u *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	SearchByDisplayName(ctx context.Context, query string, limit int) ([]*models.User, error)
}

// BlockRepository tracks one-directional user blocks.
type BlockRepository interface {
	IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error)
	BlockedByForMessage(ctx context.Context, recipientIDs []string, senderID string) (map[string]bool, error)
}
