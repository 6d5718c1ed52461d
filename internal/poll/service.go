// Package poll implements conversation polls: creation as a POLL
// message, idempotent voting, single-choice enforcement, tallying and
// closing.
package poll

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

// Service owns poll creation, voting, tallying and closing.
type Service struct {
	repo     repository.PollRepository
	msgRepo  repository.MessageRepository
	convRepo repository.ConversationRepository
	rt       *realtime.Manager
}

// NewService creates a poll engine.
func NewService(repo repository.PollRepository, msgRepo repository.MessageRepository, convRepo repository.ConversationRepository, rt *realtime.Manager) *Service {
	return &Service{repo: repo, msgRepo: msgRepo, convRepo: convRepo, rt: rt}
}

// Create attaches a new poll to a fresh POLL message in the conversation.
func (s *Service) Create(ctx context.Context, callerID string, req models.CreatePollRequest) (*models.Poll, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	member, err := s.convRepo.GetMember(ctx, req.ConversationID, callerID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperr.ErrNotMember
	}

	now := time.Now()
	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		SenderID:       callerID,
		Type:           models.MessageTypePoll,
		CreatedAt:      now,
	}
	pollModel := &models.Poll{
		ID:             uuid.NewString(),
		MessageID:      msg.ID,
		Question:       req.Question,
		MultipleChoice: req.MultipleChoice,
		ExpiresAt:      req.ExpiresAt,
		CreatedAt:      now,
	}

	created, err := s.repo.CreateWithMessage(ctx, msg, pollModel, req.Options)
	if err != nil {
		return nil, fmt.Errorf("create poll: %w", err)
	}

	s.convRepo.TouchUpdatedAt(ctx, req.ConversationID, now)
	s.broadcast(ctx, req.ConversationID, callerID, models.EventNewPoll, created)

	return created, nil
}

// Vote replaces the caller's ballot. A non-multiple-choice poll rejects
// more than one option id.
func (s *Service) Vote(ctx context.Context, callerID, pollID string, optionIDs []string) (*models.PollResults, error) {
	pollModel, conversationID, err := s.loadPollAndConversation(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if !pollModel.IsActive() {
		return nil, apperr.Conflict("poll is closed")
	}
	if !pollModel.MultipleChoice && len(optionIDs) > 1 {
		return nil, apperr.Validation("this poll only accepts a single choice")
	}

	member, err := s.convRepo.GetMember(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperr.ErrNotMember
	}

	options, err := s.repo.GetOptions(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("get options: %w", err)
	}
	validOptions := make(map[string]bool, len(options))
	for _, o := range options {
		validOptions[o.ID] = true
	}
	for _, id := range optionIDs {
		if !validOptions[id] {
			return nil, apperr.Validation("unknown option id")
		}
	}

	if err := s.repo.Vote(ctx, pollID, callerID, optionIDs); err != nil {
		return nil, fmt.Errorf("vote: %w", err)
	}

	results, err := s.tallyResults(ctx, pollModel, callerID)
	if err != nil {
		return nil, err
	}

	s.broadcast(ctx, conversationID, "", models.EventPollVote, results)

	return results, nil
}

// Close ends voting; only the conversation member who created the poll
// (the POLL message's sender) may close it.
func (s *Service) Close(ctx context.Context, callerID, pollID string) (*models.Poll, error) {
	pollModel, conversationID, err := s.loadPollAndConversation(ctx, pollID)
	if err != nil {
		return nil, err
	}

	msg, err := s.msgRepo.GetByID(ctx, pollModel.MessageID)
	if err != nil {
		return nil, err
	}
	if msg == nil || msg.SenderID != callerID {
		return nil, apperr.ErrNotSender
	}

	if err := s.repo.Close(ctx, pollID); err != nil {
		return nil, fmt.Errorf("close poll: %w", err)
	}

	closed, err := s.repo.GetByID(ctx, pollID)
	if err != nil {
		return nil, err
	}

	s.broadcast(ctx, conversationID, "", models.EventPollClosed, closed)

	return closed, nil
}

// Results returns the current tally and the caller's selection.
func (s *Service) Results(ctx context.Context, callerID, pollID string) (*models.PollResults, error) {
	pollModel, conversationID, err := s.loadPollAndConversation(ctx, pollID)
	if err != nil {
		return nil, err
	}

	member, err := s.convRepo.GetMember(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperr.ErrNotMember
	}

	return s.tallyResults(ctx, pollModel, callerID)
}

// loadPollAndConversation resolves a poll and the conversation id of
// its owning message, since Poll itself does not carry a conversation
// foreign key.
func (s *Service) loadPollAndConversation(ctx context.Context, pollID string) (*models.Poll, string, error) {
	pollModel, err := s.repo.GetByID(ctx, pollID)
	if err != nil {
		return nil, "", err
	}
	if pollModel == nil {
		return nil, "", apperr.ErrNotFound
	}

	msg, err := s.msgRepo.GetByID(ctx, pollModel.MessageID)
	if err != nil {
		return nil, "", err
	}
	if msg == nil {
		return nil, "", apperr.ErrNotFound
	}

	return pollModel, msg.ConversationID, nil
}

func (s *Service) tallyResults(ctx context.Context, pollModel *models.Poll, callerID string) (*models.PollResults, error) {
	options, total, err := s.repo.Tally(ctx, pollModel.ID)
	if err != nil {
		return nil, fmt.Errorf("tally: %w", err)
	}
	selection, err := s.repo.UserSelection(ctx, pollModel.ID, callerID)
	if err != nil {
		return nil, fmt.Errorf("user selection: %w", err)
	}

	return &models.PollResults{
		Poll:          pollModel,
		Options:       options,
		TotalVotes:    total,
		UserSelection: selection,
		IsClosed:      !pollModel.IsActive(),
	}, nil
}

func (s *Service) broadcast(ctx context.Context, conversationID, excludeUserID string, eventType models.WSEventType, data interface{}) {
	members, err := s.convRepo.GetMembers(ctx, conversationID)
	if err != nil {
		return
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.UserID != excludeUserID {
			ids = append(ids, m.UserID)
		}
	}
	s.rt.BroadcastToUsers(ids, models.WSEnvelope{
		ID:             uuid.NewString(),
		Type:           eventType,
		ConversationID: &conversationID,
		Data:           data,
		Timestamp:      time.Now().Unix(),
	})
}
