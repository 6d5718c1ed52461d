// Package notifyprefs implements per-user notification preferences and
// per-conversation mutes.
package notifyprefs

import (
	"context"
	"fmt"
	"time"

	"histeeria-backend/internal/models"
	"histeeria-backend/internal/repository"
	"histeeria-backend/pkg/apperr"
)

// Service owns preferences and mute state.
type Service struct {
	repo     repository.PreferencesRepository
	convRepo repository.ConversationRepository
}

// NewService creates a notification preferences engine.
func NewService(repo repository.PreferencesRepository, convRepo repository.ConversationRepository) *Service {
	return &Service{repo: repo, convRepo: convRepo}
}

// Get returns a user's notification preferences, defaulting to
// everything enabled if none were ever set.
func (s *Service) Get(ctx context.Context, userID string) (*models.NotificationPreferences, error) {
	return s.repo.GetPreferences(ctx, userID)
}

// Update applies a partial update to a user's preferences.
func (s *Service) Update(ctx context.Context, userID string, req models.UpdateNotificationPreferencesRequest) (*models.NotificationPreferences, error) {
	current, err := s.repo.GetPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	if req.MessagesEnabled != nil {
		current.MessagesEnabled = *req.MessagesEnabled
	}
	if req.RemindersEnabled != nil {
		current.RemindersEnabled = *req.RemindersEnabled
	}
	if req.SoundEnabled != nil {
		current.SoundEnabled = *req.SoundEnabled
	}
	current.UpdatedAt = time.Now()

	if err := s.repo.UpsertPreferences(ctx, current); err != nil {
		return nil, fmt.Errorf("upsert preferences: %w", err)
	}

	return current, nil
}

// Mute silences a conversation for the caller, optionally until a given time.
func (s *Service) Mute(ctx context.Context, userID, conversationID string, until *time.Time) error {
	member, err := s.convRepo.GetMember(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if member == nil {
		return apperr.ErrNotMember
	}

	return s.repo.Mute(ctx, &models.MutedConversation{
		UserID:         userID,
		ConversationID: conversationID,
		MutedUntil:     until,
		CreatedAt:      time.Now(),
	})
}

// Unmute clears a conversation's mute for the caller.
func (s *Service) Unmute(ctx context.Context, userID, conversationID string) error {
	return s.repo.Unmute(ctx, userID, conversationID)
}

// ListMuted returns every conversation the caller has muted.
func (s *Service) ListMuted(ctx context.Context, userID string) ([]*models.MutedConversation, error) {
	return s.repo.ListMuted(ctx, userID)
}

// IsMuted reports whether a conversation is currently muted for a user,
// treating a mute whose muted_until has passed as no longer muted.
func (s *Service) IsMuted(ctx context.Context, userID, conversationID string) (bool, error) {
	return s.repo.IsMuted(ctx, userID, conversationID)
}
