package repository

import (
	"context"

	"histeeria-backend/internal/models"
)

// PreferencesRepository is the data-access contract for per-user
// notification preferences and per-conversation mutes.
type PreferencesRepository interface {
	GetPreferences(ctx context.Context, userID string) (*models.NotificationPreferences, error)
	UpsertPreferences(ctx context.Context, prefs *models.NotificationPreferences) error

	Mute(ctx context.Context, mute *models.MutedConversation) error
	Unmute(ctx context.Context, userID, conversationID string) error
	ListMuted(ctx context.Context, userID string) ([]*models.MutedConversation, error)
	IsMuted(ctx context.Context, userID, conversationID string) (bool, error)
}
