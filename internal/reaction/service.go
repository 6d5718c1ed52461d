// Package reaction implements emoji reactions on messages: at most one
// reaction per (message, user) at a time, switched rather than stacked.
package reaction

import (
	"context"
	"fmt"
	"time"

	"histeeria-backend/internal/models"
	"histeeria-backend/internal/realtime"
	"histeeria-backend/internal/repository"
	"histeeria-backend/pkg/apperr"

	"github.com/google/uuid"
)

// Service owns reaction add/remove.
type Service struct {
	repo     repository.MessageRepository
	convRepo repository.ConversationRepository
	rt       *realtime.Manager
}

// NewService creates a reaction engine.
func NewService(repo repository.MessageRepository, convRepo repository.ConversationRepository, rt *realtime.Manager) *Service {
	return &Service{repo: repo, convRepo: convRepo, rt: rt}
}

// Add reacts to a message with emoji. If the caller already reacted
// with a different emoji, the old reaction is removed first and both
// events are broadcast in remove-then-add order. Reacting twice with
// the same emoji is a conflict.
func (s *Service) Add(ctx context.Context, callerID, messageID, emoji string) (*models.MessageReaction, error) {
	msg, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, apperr.ErrNotFound
	}
	if member, err := s.convRepo.GetMember(ctx, msg.ConversationID, callerID); err != nil {
		return nil, err
	} else if member == nil {
		return nil, apperr.ErrNotMember
	}

	existing, err := s.repo.GetReaction(ctx, messageID, callerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Emoji == emoji {
			return nil, apperr.Conflict("already reacted with this emoji")
		}
		if _, err := s.repo.RemoveReaction(ctx, messageID, callerID); err != nil {
			return nil, fmt.Errorf("replace reaction: %w", err)
		}
		s.broadcast(ctx, msg.ConversationID, models.EventReactionRemoved, map[string]string{
			"message_id": messageID,
			"user_id":    callerID,
		})
	}

	reaction, err := s.repo.AddReaction(ctx, messageID, callerID, emoji)
	if err != nil {
		return nil, fmt.Errorf("add reaction: %w", err)
	}

	s.broadcast(ctx, msg.ConversationID, models.EventReactionAdded, reaction)

	return reaction, nil
}

// Remove clears the caller's reaction on a message, if any.
func (s *Service) Remove(ctx context.Context, callerID, messageID string) error {
	msg, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return apperr.ErrNotFound
	}

	removed, err := s.repo.RemoveReaction(ctx, messageID, callerID)
	if err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	if !removed {
		return nil
	}

	s.broadcast(ctx, msg.ConversationID, models.EventReactionRemoved, map[string]string{
		"message_id": messageID,
		"user_id":    callerID,
	})

	return nil
}

// List returns every reaction on a message.
func (s *Service) List(ctx context.Context, messageID string) ([]*models.MessageReaction, error) {
	return s.repo.GetReactions(ctx, messageID)
}

func (s *Service) broadcast(ctx context.Context, conversationID string, eventType models.WSEventType, data interface{}) {
	members, err := s.convRepo.GetMembers(ctx, conversationID)
	if err != nil {
		return
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	s.rt.BroadcastToUsers(ids, models.WSEnvelope{
		ID:             uuid.NewString(),
		Type:           eventType,
		ConversationID: &conversationID,
		Data:           data,
		Timestamp:      time.Now().Unix(),
	})
}
