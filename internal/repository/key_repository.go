package repository

import (
	"context"

	"histeeria-backend/internal/models"
)

// KeyRepository is the data-access contract for the E2EE key plane.
type KeyRepository interface {
	UpsertBundle(ctx context.Context, bundle *models.UserKeyBundle) error
	GetBundleStable(ctx context.Context, userID string) (*models.UserKeyBundle, error)

	UploadPreKeys(ctx context.Context, userID string, keys []models.PreKeyUpload) (int, error)
	PreKeyCount(ctx context.Context, userID string) (int, error)
	// ConsumeOneTimePreKey deletes and returns the lowest-id one-time
	// pre-key for a user in a single transaction so concurrent fetches
	// never return the same row. Returns (nil, nil) if none remain.
	ConsumeOneTimePreKey(ctx context.Context, userID string) (*models.OneTimePreKey, error)

	UpsertSenderKey(ctx context.Context, key *models.GroupSenderKey) error
	GetSenderKeys(ctx context.Context, conversationID string) ([]*models.GroupSenderKey, error)

	UpsertKeyBackup(ctx context.Context, backup *models.KeyBackup) error
	GetKeyBackup(ctx context.Context, userID string) (*models.KeyBackup, error)

	UpsertConversationKeyBackup(ctx context.Context, backup *models.ConversationKeyBackup) error
	GetConversationKeyBackup(ctx context.Context, userID, conversationID string) (*models.ConversationKeyBackup, error)
}
