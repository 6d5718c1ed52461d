// Package message implements message send/edit/delete/list/search and
// file uploads, broadcasting every mutation over the realtime plane.
package message

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log"
	"time"

	"histeeria-backend/internal/cache"
	"histeeria-backend/internal/models"
	"histeeria-backend/internal/realtime"
	"histeeria-backend/internal/repository"
	"histeeria-backend/internal/storage"
	"histeeria-backend/pkg/apperr"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	maxUploadBytes  = 50 << 20 // 50MiB
	thumbnailWidth  = 320
	thumbnailHeight = 320
)

// Service owns message send/edit/delete/list/search/upload.
type Service struct {
	repo      repository.MessageRepository
	convRepo  repository.ConversationRepository
	blockRepo repository.BlockRepository
	cache     *cache.MessageCacheService
	rt        *realtime.Manager
	storage   *storage.StorageService
	publicURL string
}

// NewService creates a message engine.
func NewService(
	repo repository.MessageRepository,
	convRepo repository.ConversationRepository,
	blockRepo repository.BlockRepository,
	cache *cache.MessageCacheService,
	rt *realtime.Manager,
	storageSvc *storage.StorageService,
) *Service {
	return &Service{repo: repo, convRepo: convRepo, blockRepo: blockRepo, cache: cache, rt: rt, storage: storageSvc}
}

// Send creates a message, assigns it a sequence number, fans out
// per-member delivery statuses and broadcasts it over the realtime
// plane, skipping members who have blocked the sender.
func (s *Service) Send(ctx context.Context, senderID string, req models.SendMessageRequest) (*models.Message, error) {
	member, err := s.convRepo.GetMember(ctx, req.ConversationID, senderID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperr.ErrNotMember
	}

	if req.ReplyToID != nil {
		replyTo, err := s.repo.GetByID(ctx, *req.ReplyToID)
		if err != nil {
			return nil, err
		}
		if replyTo == nil || replyTo.ConversationID != req.ConversationID {
			return nil, apperr.Validation("reply_to_id does not belong to this conversation")
		}
	}

	members, err := s.convRepo.GetMembers(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("get members: %w", err)
	}

	recipientIDs := make([]string, 0, len(members))
	for _, m := range members {
		if m.UserID != senderID {
			recipientIDs = append(recipientIDs, m.UserID)
		}
	}

	blocked := map[string]bool{}
	if s.blockRepo != nil && len(recipientIDs) > 0 {
		blocked, err = s.blockRepo.BlockedByForMessage(ctx, recipientIDs, senderID)
		if err != nil {
			log.Printf("[Message] block lookup failed, proceeding without suppression: %v", err)
			blocked = map[string]bool{}
		}
	}

	now := time.Now()
	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		SenderID:       senderID,
		Content:        req.Content,
		Type:           req.Type,
		Metadata:       req.Metadata,
		ReplyToID:      req.ReplyToID,
		Encrypted:      req.Encrypted,
		EncryptionVer:  req.EncryptionVer,
		SenderKeyID:    req.SenderKeyID,
		CreatedAt:      now,
	}
	if msg.Type == "" {
		msg.Type = models.MessageTypeText
	}

	statuses := make([]*models.MessageStatus, 0, len(members))
	for _, m := range members {
		if m.UserID != senderID && blocked[m.UserID] {
			continue
		}
		status := models.StatusSent
		if m.UserID == senderID {
			status = models.StatusRead
		}
		statuses = append(statuses, &models.MessageStatus{
			MessageID: msg.ID,
			UserID:    m.UserID,
			Status:    status,
			Timestamp: now,
		})
	}

	created, err := s.repo.CreateWithStatuses(ctx, msg, statuses)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	created.AggregateStatus = aggregateStatus(statuses, senderID, senderID)

	if err := s.convRepo.TouchUpdatedAt(ctx, req.ConversationID, now); err != nil {
		log.Printf("[Message] failed to bump conversation updated_at: %v", err)
	}

	if s.cache != nil {
		s.cache.PrependMessage(ctx, created)
		s.cache.InvalidateUserConversations(ctx, senderID)
		for _, id := range recipientIDs {
			s.cache.InvalidateUserConversations(ctx, id)
			if !blocked[id] {
				s.cache.IncrementUnread(ctx, req.ConversationID, id)
			}
		}
	}

	log.Printf("[Message] 📡 %s sent message %s in conversation %s (seq %d)", senderID, created.ID, req.ConversationID, created.SequenceNumber)

	broadcastIDs := make([]string, 0, len(recipientIDs))
	for _, id := range recipientIDs {
		if !blocked[id] {
			broadcastIDs = append(broadcastIDs, id)
		}
	}
	s.rt.BroadcastToUsers(broadcastIDs, models.WSEnvelope{
		ID:             uuid.NewString(),
		Type:           models.EventMessageNew,
		ConversationID: &req.ConversationID,
		Data:           created,
		Timestamp:      now.Unix(),
	})

	go s.promoteDeliveredForOnlineRecipients(broadcastIDs, created.ID)

	return created, nil
}

// promoteDeliveredForOnlineRecipients advances sent->delivered for any
// recipient that already has a live connection, matching the delivery
// state machine's "online receipt is implicit delivery" rule.
func (s *Service) promoteDeliveredForOnlineRecipients(recipientIDs []string, messageID string) {
	ctx := context.Background()
	now := time.Now()
	for _, id := range recipientIDs {
		if !s.rt.IsUserConnected(id) {
			continue
		}
		status, err := s.repo.AdvanceStatus(ctx, messageID, id, models.StatusDelivered, now)
		if err != nil {
			continue
		}
		s.rt.BroadcastToUser(id, models.WSEnvelope{
			ID:        uuid.NewString(),
			Type:      models.EventMessageStatus,
			Data:      models.MessageStatusEvent{MessageID: messageID, UserID: id, Status: status},
			Timestamp: now.Unix(),
		})
	}
}

// Edit changes a message's content; only the original sender may edit,
// and only while the message is not deleted.
func (s *Service) Edit(ctx context.Context, callerID, messageID, newContent string) (*models.Message, error) {
	msg, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, apperr.ErrNotFound
	}
	if msg.SenderID != callerID {
		return nil, apperr.ErrNotSender
	}
	if msg.IsTombstone() {
		return nil, apperr.Conflict("cannot edit a deleted message")
	}

	if err := s.repo.Edit(ctx, messageID, newContent); err != nil {
		return nil, fmt.Errorf("edit message: %w", err)
	}

	updated, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.InvalidateConversationCache(ctx, msg.ConversationID)
	}

	s.broadcastToConversation(ctx, msg.ConversationID, callerID, models.EventMessageEdited, updated)

	return updated, nil
}

// DeleteForEveryone tombstones a message visibly for every member;
// only the sender may call this.
func (s *Service) DeleteForEveryone(ctx context.Context, callerID, messageID string) error {
	msg, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return apperr.ErrNotFound
	}
	if msg.SenderID != callerID {
		return apperr.ErrNotSender
	}

	now := time.Now()
	if err := s.repo.SoftDeleteForEveryone(ctx, messageID, now); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidateConversationCache(ctx, msg.ConversationID)
	}

	s.broadcastToConversation(ctx, msg.ConversationID, "", models.EventMessageDeleted, map[string]string{
		"message_id":      messageID,
		"conversation_id": msg.ConversationID,
	})

	return nil
}

// DeleteForMe hides a message from only the caller's view.
func (s *Service) DeleteForMe(ctx context.Context, callerID, messageID string) error {
	return s.repo.DeleteForMe(ctx, callerID, messageID)
}

// List returns a conversation's messages, newest first, honoring the
// caller's delete-for-me tombstones and enriching tombstoned messages
// and sender profiles.
func (s *Service) List(ctx context.Context, callerID, conversationID string, limit int, cursor *string) (*models.Page[*models.Message], error) {
	member, err := s.convRepo.GetMember(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperr.ErrNotMember
	}

	messages, hasMore, err := s.repo.ListForConversation(ctx, conversationID, callerID, limit, cursor)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if err := s.enrichSenders(ctx, messages); err != nil {
		log.Printf("[Message] sender enrichment failed: %v", err)
	}
	s.enrichAggregateStatus(ctx, messages, callerID)

	page := &models.Page[*models.Message]{
		Data: messages,
		Pagination: models.Pagination{
			HasMore: hasMore,
			Limit:   limit,
		},
	}
	if hasMore && len(messages) > 0 {
		next := messages[len(messages)-1].ID
		page.Pagination.NextCursor = &next
	}

	return page, nil
}

// Search finds messages matching req, scoped to conversations the
// caller belongs to.
func (s *Service) Search(ctx context.Context, callerID string, req models.SearchMessagesRequest) (*models.Page[*models.Message], error) {
	if req.ConversationID != nil {
		member, err := s.convRepo.GetMember(ctx, *req.ConversationID, callerID)
		if err != nil {
			return nil, err
		}
		if member == nil {
			return nil, apperr.ErrNotMember
		}
	}

	messages, hasMore, err := s.repo.Search(ctx, req, callerID)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}

	if err := s.enrichSenders(ctx, messages); err != nil {
		log.Printf("[Message] sender enrichment failed: %v", err)
	}
	s.enrichAggregateStatus(ctx, messages, callerID)

	page := &models.Page[*models.Message]{
		Data:       messages,
		Pagination: models.Pagination{HasMore: hasMore, Limit: req.Limit},
	}
	if hasMore && len(messages) > 0 {
		next := messages[len(messages)-1].ID
		page.Pagination.NextCursor = &next
	}

	return page, nil
}

func (s *Service) enrichSenders(ctx context.Context, messages []*models.Message) error {
	if len(messages) == 0 {
		return nil
	}
	senderIDs := make([]string, 0, len(messages))
	for _, m := range messages {
		senderIDs = append(senderIDs, m.SenderID)
	}
	senders, err := s.repo.SendersFor(ctx, senderIDs)
	if err != nil {
		return err
	}
	for _, m := range messages {
		m.Sender = senders[m.SenderID]
	}
	return nil
}

// enrichAggregateStatus computes each message's viewer-facing status: for
// the sender, the worst-case status across all recipients; for anyone
// else, just their own row.
func (s *Service) enrichAggregateStatus(ctx context.Context, messages []*models.Message, viewerID string) {
	for _, m := range messages {
		statuses, err := s.repo.GetStatuses(ctx, m.ID)
		if err != nil {
			log.Printf("[Message] status lookup failed for %s: %v", m.ID, err)
			continue
		}
		m.AggregateStatus = aggregateStatus(statuses, viewerID, m.SenderID)
	}
}

// aggregateStatus computes a message's status as seen by viewerID. If the
// viewer is the sender: sent if any recipient is still sent, else read if
// all recipients are read, else delivered. Otherwise it's just the
// viewer's own row.
func aggregateStatus(statuses []*models.MessageStatus, viewerID, senderID string) models.DeliveryStatus {
	if viewerID != senderID {
		for _, st := range statuses {
			if st.UserID == viewerID {
				return st.Status
			}
		}
		return ""
	}

	anySent := false
	allRead := true
	for _, st := range statuses {
		if st.UserID == senderID {
			continue
		}
		if st.Status == models.StatusSent {
			anySent = true
		}
		if st.Status != models.StatusRead {
			allRead = false
		}
	}
	if anySent {
		return models.StatusSent
	}
	if allRead {
		return models.StatusRead
	}
	return models.StatusDelivered
}

// Upload stores a file (image/voice/generic) for a conversation member,
// detecting its MIME type by magic bytes rather than trusting the
// client-supplied Content-Type, and generating a thumbnail for
// plaintext images. The detected type is recorded as is; no type is
// rejected.
func (s *Service) Upload(ctx context.Context, senderID, conversationID string, filename string, data []byte, messageType models.MessageType) (*models.FileUploadResult, error) {
	if len(data) > maxUploadBytes {
		return nil, apperr.Validation("file exceeds maximum upload size")
	}

	member, err := s.convRepo.GetMember(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperr.ErrNotMember
	}

	mtype := mimetype.Detect(data)
	objectKey := fmt.Sprintf("messages/%s/%s-%s", conversationID, uuid.NewString(), filename)

	if _, err := s.storage.Upload(ctx, objectKey, bytes.NewReader(data), &storage.UploadOptions{
		ContentType: mtype.String(),
		ACL:         "private",
	}); err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}

	result := &models.FileUploadResult{
		FileName:  filename,
		FileSize:  int64(len(data)),
		FileURL:   proxyURL(objectKey),
		MimeType:  mtype.String(),
		ObjectKey: objectKey,
	}

	if messageType == models.MessageTypeImage {
		if thumbKey, err := s.generateThumbnail(ctx, conversationID, data); err == nil {
			url := proxyURL(thumbKey)
			result.ThumbnailURL = &url
		} else {
			log.Printf("[Message] thumbnail generation skipped: %v", err)
		}
	}

	return result, nil
}

func (s *Service) generateThumbnail(ctx context.Context, conversationID string, data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	thumb := imaging.Fit(img, thumbnailWidth, thumbnailHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 80}); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}

	key := fmt.Sprintf("messages/%s/thumbnails/%s.jpg", conversationID, uuid.NewString())
	if _, err := s.storage.Upload(ctx, key, bytes.NewReader(buf.Bytes()), &storage.UploadOptions{
		ContentType: "image/jpeg",
		ACL:         "private",
	}); err != nil {
		return "", fmt.Errorf("upload thumbnail: %w", err)
	}

	return key, nil
}

// proxyURL builds the authenticated file-proxy path for an object key;
// uploads are always private, so clients never see a direct bucket URL.
func proxyURL(objectKey string) string {
	return "/api/v1/files/" + objectKey
}

func (s *Service) broadcastToConversation(ctx context.Context, conversationID, excludeUserID string, eventType models.WSEventType, data interface{}) {
	members, err := s.convRepo.GetMembers(ctx, conversationID)
	if err != nil {
		log.Printf("[Message] failed to list members for broadcast: %v", err)
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
