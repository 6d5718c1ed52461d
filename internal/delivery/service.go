// Package delivery implements the per-recipient delivery-state machine
// (sent -> delivered -> read, monotonic) and read-watermark tracking.
package delivery

import (
	"context"
	"fmt"
	"log"
	"time"

	"histeeria-backend/internal/cache"
	"histeeria-backend/internal/models"
	"histeeria-backend/internal/realtime"
	"histeeria-backend/internal/repository"
	"histeeria-backend/pkg/apperr"

	"github.com/google/uuid"
)

// Service owns delivery-status transitions and unread-count tracking.
type Service struct {
	repo     repository.MessageRepository
	convRepo repository.ConversationRepository
	cache    *cache.MessageCacheService
	rt       *realtime.Manager
}

// NewService creates a delivery engine.
func NewService(repo repository.MessageRepository, convRepo repository.ConversationRepository, cache *cache.MessageCacheService, rt *realtime.Manager) *Service {
	return &Service{repo: repo, convRepo: convRepo, cache: cache, rt: rt}
}

// MarkDelivered advances a message to delivered for the caller, a no-op
// if the message is already delivered or read.
func (s *Service) MarkDelivered(ctx context.Context, callerID, messageID string) error {
	return s.advance(ctx, callerID, messageID, models.StatusDelivered)
}

// MarkRead advances an explicit set of messages to read for the caller.
func (s *Service) MarkRead(ctx context.Context, callerID string, messageIDs []string) error {
	now := time.Now()
	if err := s.repo.MarkRead(ctx, callerID, messageIDs, now); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	for _, id := range messageIDs {
		msg, err := s.repo.GetByID(ctx, id)
		if err != nil || msg == nil {
			continue
		}
		if s.cache != nil {
			s.cache.ResetUnread(ctx, msg.ConversationID, callerID)
		}
		s.notifySender(ctx, msg.SenderID, id, callerID, models.StatusRead, now)
	}

	return nil
}

// MarkConversationRead advances every unread message in a conversation
// to read for the caller, advancing their read watermark.
func (s *Service) MarkConversationRead(ctx context.Context, callerID, conversationID string) error {
	member, err := s.convRepo.GetMember(ctx, conversationID, callerID)
	if err != nil {
		return err
	}
	if member == nil {
		return apperr.ErrNotMember
	}

	now := time.Now()
	if err := s.repo.MarkConversationRead(ctx, conversationID, callerID, now); err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}

	if s.cache != nil {
		s.cache.ResetUnread(ctx, conversationID, callerID)
	}

	s.rt.BroadcastToConversation(conversationID, callerID, models.WSEnvelope{
		ID:             uuid.NewString(),
		Type:           models.EventMessageStatus,
		ConversationID: &conversationID,
		Data: models.MessageStatusEvent{
			UserID: callerID,
			Status: models.StatusRead,
		},
		Timestamp: now.Unix(),
	})

	return nil
}

// UnreadCount returns the caller's total unread message count.
func (s *Service) UnreadCount(ctx context.Context, callerID string) (*models.UnreadCountResponse, error) {
	if s.cache != nil {
		if counts, err := s.cache.GetUnreadCounts(ctx, callerID); err == nil && len(counts) > 0 {
			total := 0
			for _, c := range counts {
				total += c
			}
			return &models.UnreadCountResponse{Total: total, ByConversation: counts}, nil
		}
	}

	total, err := s.repo.UnreadCount(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("unread count: %w", err)
	}

	return &models.UnreadCountResponse{Total: total}, nil
}

// PromoteSentToDelivered is called when a user comes online: every
// message addressed to them still marked sent is promoted to delivered.
func (s *Service) PromoteSentToDelivered(ctx context.Context, userID string) {
	now := time.Now()
	count, err := s.repo.PromoteSentToDelivered(ctx, userID, now)
	if err != nil {
		log.Printf("[Delivery] failed to promote sent->delivered for %s: %v", userID, err)
		return
	}
	if count > 0 {
		log.Printf("[Delivery] promoted %d messages to delivered for %s", count, userID)
	}
}

func (s *Service) advance(ctx context.Context, callerID, messageID string, status models.DeliveryStatus) error {
	now := time.Now()
	resulting, err := s.repo.AdvanceStatus(ctx, messageID, callerID, status, now)
	if err != nil {
		return fmt.Errorf("advance status: %w", err)
	}

	msg, err := s.repo.GetByID(ctx, messageID)
	if err != nil || msg == nil {
		return err
	}

	s.notifySender(ctx, msg.SenderID, messageID, callerID, resulting, now)
	return nil
}

func (s *Service) notifySender(ctx context.Context, senderID, messageID, viewerID string, status models.DeliveryStatus, at time.Time) {
	s.rt.BroadcastToUser(senderID, models.WSEnvelope{
		ID:   uuid.NewString(),
		Type: models.EventMessageStatus,
		Data: models.MessageStatusEvent{
			MessageID: messageID,
			UserID:    viewerID,
			Status:    status,
		},
		Timestamp: at.Unix(),
	})
}
