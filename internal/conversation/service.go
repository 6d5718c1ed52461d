// Package conversation implements conversation lifecycle: creation with
// DM de-duplication, membership mutation, and fuzzy search, all fanned
// out over the realtime plane as SYSTEM messages and WS events.
package conversation

import (
	"context"
	"fmt"
	"log"
	"time"

	"histeeria-backend/internal/cache"
	"histeeria-backend/internal/identity"
	"histeeria-backend/internal/models"
	"histeeria-backend/internal/realtime"
	"histeeria-backend/internal/repository"
	"histeeria-backend/pkg/apperr"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// Service owns conversation creation, membership and search.
type Service struct {
	repo        repository.ConversationRepository
	userRepo    repository.UserRepository
	identitySvc *identity.Service
	cache       *cache.MessageCacheService
	rt          *realtime.Manager
}

// NewService creates a conversation engine.
func NewService(repo repository.ConversationRepository, userRepo repository.UserRepository, identitySvc *identity.Service, cache *cache.MessageCacheService, rt *realtime.Manager) *Service {
	return &Service{repo: repo, userRepo: userRepo, identitySvc: identitySvc, cache: cache, rt: rt}
}

// Create makes a new DM or group conversation. For a DM, an existing
// conversation between the same two users is returned instead of a
// duplicate.
func (s *Service) Create(ctx context.Context, creatorID string, req models.CreateConversationRequest) (*models.Conversation, error) {
	if req.Type == models.ConversationDM {
		if len(req.MemberIDs) != 1 {
			return nil, apperr.Validation("a dm requires exactly one other member")
		}
		other := req.MemberIDs[0]
		if other == creatorID {
			return nil, apperr.Validation("cannot start a dm with yourself")
		}

		existing, err := s.repo.FindExistingDM(ctx, creatorID, other)
		if err != nil {
			return nil, fmt.Errorf("find existing dm: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	for _, id := range req.MemberIDs {
		if id == creatorID {
			return nil, apperr.Validation("do not include yourself in member_ids")
		}
	}

	allIDs := append([]string{creatorID}, req.MemberIDs...)
	found, err := s.userRepo.GetByIDs(ctx, allIDs)
	if err != nil {
		return nil, fmt.Errorf("validate members: %w", err)
	}
	foundIDs := make(map[string]bool, len(found))
	for _, u := range found {
		foundIDs[u.ID] = true
	}
	for _, id := range allIDs {
		if !foundIDs[id] {
			return nil, apperr.Validation("unknown member id")
		}
	}

	now := time.Now()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Name:      req.Name,
		AvatarURL: req.AvatarURL,
		CreatedBy: &creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	memberIDs := append([]string{creatorID}, req.MemberIDs...)
	members := make([]*models.ConversationMember, 0, len(memberIDs))
	seen := make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		role := models.MemberRoleMember
		if id == creatorID {
			role = models.MemberRoleAdmin
		}
		members = append(members, &models.ConversationMember{
			ConversationID: conv.ID,
			UserID:         id,
			Role:           role,
			JoinedAt:       now,
		})
	}

	created, err := s.repo.Create(ctx, conv, members)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	log.Printf("[Conversation] created %s conversation %s by %s", created.Type, created.ID, creatorID)

	for _, m := range members {
		if m.UserID == creatorID {
			continue
		}
		s.rt.BroadcastToUser(m.UserID, models.WSEnvelope{
			ID:             uuid.NewString(),
			Type:           models.EventConversationUpdated,
			ConversationID: &created.ID,
			Data:           created,
			Timestamp:      time.Now().Unix(),
		})
	}

	return created, nil
}

// Get returns a conversation if the caller is a member.
func (s *Service) Get(ctx context.Context, conversationID, callerID string) (*models.Conversation, error) {
	if _, err := s.requireMember(ctx, conversationID, callerID); err != nil {
		return nil, err
	}
	conv, err := s.repo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	members, err := s.repo.GetMembers(ctx, conversationID)
	if err == nil {
		conv.Members = members
		s.enrichMemberUsers(ctx, conv, callerID)
	}

	return conv, nil
}

// enrichMemberUsers populates each member's User field, and OtherUser for
// DMs, from the identity directory cache.
func (s *Service) enrichMemberUsers(ctx context.Context, conv *models.Conversation, callerID string) {
	if s.identitySvc == nil || len(conv.Members) == 0 {
		return
	}

	ids := make([]string, 0, len(conv.Members))
	for _, m := range conv.Members {
		ids = append(ids, m.UserID)
	}

	users, err := s.identitySvc.GetUsers(ctx, ids)
	if err != nil {
		log.Printf("[Conversation] directory lookup failed for %s: %v", conv.ID, err)
		return
	}

	for _, m := range conv.Members {
		m.User = users[m.UserID]
		if conv.Type == models.ConversationDM && m.UserID != callerID {
			conv.OtherUser = m.User
		}
	}
}

// List returns the caller's conversations, newest activity first, with
// last-message and unread-count enrichment.
func (s *Service) List(ctx context.Context, callerID string, limit int, cursorStr *string) (*models.Page[*models.Conversation], error) {
	var cursor *models.ConversationListCursor
	if cursorStr != nil && *cursorStr != "" {
		last, err := s.repo.GetByID(ctx, *cursorStr)
		if err != nil || last == nil {
			return nil, apperr.Validation("invalid cursor")
		}
		cursor = &models.ConversationListCursor{ID: last.ID, UpdatedAt: last.UpdatedAt}
	}

	conversations, hasMore, err := s.repo.ListForUser(ctx, callerID, limit, cursor)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	if len(conversations) > 0 {
		ids := make([]string, 0, len(conversations))
		for _, c := range conversations {
			ids = append(ids, c.ID)
		}

		lastMessages, err := s.repo.LastMessagesFor(ctx, ids)
		if err == nil {
			for _, c := range conversations {
				c.LastMessage = lastMessages[c.ID]
			}
		}

		unread, err := s.repo.UnreadCountsFor(ctx, callerID, ids)
		if err == nil {
			for _, c := range conversations {
				c.UnreadCount = unread[c.ID]
			}
		}
	}

	page := &models.Page[*models.Conversation]{
		Data: conversations,
		Pagination: models.Pagination{
			HasMore: hasMore,
			Limit:   limit,
		},
	}
	if hasMore && len(conversations) > 0 {
		next := conversations[len(conversations)-1].ID
		page.Pagination.NextCursor = &next
	}

	return page, nil
}

// Update changes a group's name/avatar; only admins may call this.
func (s *Service) Update(ctx context.Context, conversationID, callerID string, req models.UpdateConversationRequest) (*models.Conversation, error) {
	member, err := s.requireMember(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	if member.Role != models.MemberRoleAdmin {
		return nil, apperr.ErrNotAdmin
	}

	sysMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       callerID,
		Type:           models.MessageTypeSystem,
		Metadata: models.JSONMap{
			"kind": models.SystemConversationUpdated,
		},
		CreatedAt: time.Now(),
	}

	msg, err := s.repo.UpdateWithSystemMessage(ctx, conversationID, req.Name, req.AvatarURL, sysMsg)
	if err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}

	updated, err := s.repo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	s.broadcastToMembers(ctx, conversationID, callerID, models.EventConversationUpdated, updated)
	s.broadcastSystemMessage(ctx, conversationID, callerID, msg)

	return updated, nil
}

// AddMembers adds new members to a group; only admins may call this.
func (s *Service) AddMembers(ctx context.Context, conversationID, callerID string, newMemberIDs []string) error {
	member, err := s.requireMember(ctx, conversationID, callerID)
	if err != nil {
		return err
	}
	if member.Role != models.MemberRoleAdmin {
		return apperr.ErrNotAdmin
	}

	now := time.Now()
	newMembers := make([]*models.ConversationMember, 0, len(newMemberIDs))
	for _, id := range newMemberIDs {
		newMembers = append(newMembers, &models.ConversationMember{
			ConversationID: conversationID,
			UserID:         id,
			Role:           models.MemberRoleMember,
			JoinedAt:       now,
		})
	}

	sysMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       callerID,
		Type:           models.MessageTypeSystem,
		Metadata: models.JSONMap{
			"kind":    models.SystemMemberAdded,
			"members": newMemberIDs,
		},
		CreatedAt: now,
	}

	msg, err := s.repo.AddMembers(ctx, conversationID, newMembers, sysMsg)
	if err != nil {
		return fmt.Errorf("add members: %w", err)
	}

	for _, id := range newMemberIDs {
		s.rt.BroadcastToUser(id, models.WSEnvelope{
			ID:             uuid.NewString(),
			Type:           models.EventMemberAdded,
			ConversationID: &conversationID,
			Data:           msg,
			Timestamp:      time.Now().Unix(),
		})
	}
	s.broadcastSystemMessage(ctx, conversationID, "", msg)

	return nil
}

// RemoveMember removes a member from a group; only admins may remove
// someone else, but any member may remove themselves (leave).
func (s *Service) RemoveMember(ctx context.Context, conversationID, callerID, targetUserID string) error {
	member, err := s.requireMember(ctx, conversationID, callerID)
	if err != nil {
		return err
	}
	if callerID != targetUserID && member.Role != models.MemberRoleAdmin {
		return apperr.ErrNotAdmin
	}

	kind := models.SystemMemberRemoved
	if callerID == targetUserID {
		kind = models.SystemMemberLeft
	}

	if member.Role == models.MemberRoleAdmin && callerID == targetUserID {
		admins, err := s.repo.AdminCount(ctx, conversationID)
		if err != nil {
			return fmt.Errorf("admin count: %w", err)
		}
		if admins <= 1 {
			return apperr.Conflict("cannot leave as the only remaining admin")
		}
	}

	sysMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       callerID,
		Type:           models.MessageTypeSystem,
		Metadata: models.JSONMap{
			"kind":   kind,
			"target": targetUserID,
		},
		CreatedAt: time.Now(),
	}

	msg, err := s.repo.RemoveMember(ctx, conversationID, targetUserID, sysMsg)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}

	s.rt.LeaveConversation(targetUserID, conversationID)
	s.broadcastSystemMessage(ctx, conversationID, "", msg)

	eventType := models.EventMemberRemoved
	if kind == models.SystemMemberLeft {
		eventType = models.EventMemberLeft
	}
	s.rt.BroadcastToUser(targetUserID, models.WSEnvelope{
		ID:             uuid.NewString(),
		Type:           eventType,
		ConversationID: &conversationID,
		Data:           msg,
		Timestamp:      time.Now().Unix(),
	})

	return nil
}

// Search matches conversations the user belongs to by a case-insensitive
// substring of their name or a member's display name.
func (s *Service) Search(ctx context.Context, callerID, query string, limit int) ([]*models.Conversation, error) {
	if query == "" {
		return nil, apperr.Validation("query is required")
	}
	return s.repo.SearchForUser(ctx, callerID, normalizeQuery(query), limit)
}

// IsMember reports whether userID belongs to conversationID; used by the
// realtime manager's join hook and by other engines' membership checks.
func (s *Service) IsMember(ctx context.Context, conversationID, userID string) bool {
	member, err := s.repo.GetMember(ctx, conversationID, userID)
	return err == nil && member != nil
}

func (s *Service) requireMember(ctx context.Context, conversationID, userID string) (*models.ConversationMember, error) {
	member, err := s.repo.GetMember(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperr.ErrNotMember
	}
	return member, nil
}

func (s *Service) broadcastToMembers(ctx context.Context, conversationID, excludeUserID string, eventType models.WSEventType, data interface{}) {
	members, err := s.repo.GetMembers(ctx, conversationID)
	if err != nil {
		log.Printf("[Conversation] failed to list members for broadcast: %v", err)
		return
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.UserID == excludeUserID {
			continue
		}
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

func (s *Service) broadcastSystemMessage(ctx context.Context, conversationID, excludeUserID string, msg *models.Message) {
	s.broadcastToMembers(ctx, conversationID, excludeUserID, models.EventMessageNew, msg)
}

// normalizeQuery strips accents and punctuation word-by-word via the
// same slug rules conversation display names are normalized with, so a
// search for "jose" matches a member or group named "José", while
// keeping the per-word boundaries the fuzzy ILIKE fallback relies on.
func normalizeQuery(query string) string {
	words := []string{}
	word := ""
	for _, r := range query {
		if r == ' ' {
			if word != "" {
				words = append(words, slug.Make(word))
				word = ""
			}
			continue
		}
		word += string(r)
	}
	if word != "" {
		words = append(words, slug.Make(word))
	}

	normalized := ""
	for i, w := range words {
		if i > 0 {
			normalized += " "
		}
		normalized += w
	}
	return normalized
}

func encodeCursor(c *models.Conversation) string {
	return fmt.Sprintf("%s|%d", c.ID, c.UpdatedAt.UnixNano())
}

func decodeCursor(s string) (*models.ConversationListCursor, error) {
	var id string
	var nanos int64
	if _, err := fmt.Sscanf(s, "%s", &id); err != nil {
		return nil, err
	}
	idx := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '|' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("malformed cursor")
	}
	id = s[:idx]
	if _, err := fmt.Sscanf(s[idx+1:], "%d", &nanos); err != nil {
		return nil, err
	}
	return &models.ConversationListCursor{ID: id, UpdatedAt: time.Unix(0, nanos)}, nil
}
