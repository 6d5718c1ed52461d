package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"histeeria-backend/internal/models"

	"github.com/go-redis/redis/v8"
)

// MessageCacheService handles caching for the messaging system: recent
// messages, conversation lists, presence, typing indicators and unread
// counts. Every key is scoped by the opaque string ids used throughout
// the domain model.
type MessageCacheService struct {
	redis *redis.Client
}

// NewMessageCacheService creates a new message cache service.
func NewMessageCacheService(redisClient *redis.Client) *MessageCacheService {
	return &MessageCacheService{
		redis: redisClient,
	}
}

const (
	keyConversationMessages = "msg:conv:%s"  // LIST
	keyUserConversations    = "conv:list:%s" // STRING (JSON)
	keyUserPresence         = "presence:%s"  // HASH (is_online, last_seen)
	keyTyping               = "typing:%s:%s" // STRING (3s TTL), conversation_id:user_id
	keyUnreadCounts         = "unread:%s"    // HASH (conversation_id -> count)
	keyKeyBundleStable      = "keys:bundle:%s" // STRING (JSON), 10min TTL
)

// ============================================
// MESSAGE CACHING
// ============================================

// CacheMessages caches the last 20 messages for a conversation.
func (s *MessageCacheService) CacheMessages(ctx context.Context, conversationID string, messages []*models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	key := fmt.Sprintf(keyConversationMessages, conversationID)
	s.redis.Del(ctx, key)

	for i := len(messages) - 1; i >= 0; i-- {
		msgJSON, err := json.Marshal(messages[i])
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := s.redis.LPush(ctx, key, msgJSON).Err(); err != nil {
			return fmt.Errorf("failed to cache message: %w", err)
		}
	}

	s.redis.LTrim(ctx, key, 0, 19)
	s.redis.Expire(ctx, key, 1*time.Hour)

	return nil
}

// GetCachedMessages retrieves cached messages for a conversation, oldest first.
func (s *MessageCacheService) GetCachedMessages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	key := fmt.Sprintf(keyConversationMessages, conversationID)

	results, err := s.redis.LRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached messages: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	messages := make([]*models.Message, 0, len(results))
	for _, result := range results {
		var msg models.Message
		if err := json.Unmarshal([]byte(result), &msg); err != nil {
			continue
		}
		messages = append(messages, &msg)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// InvalidateConversationCache removes cached messages for a conversation.
func (s *MessageCacheService) InvalidateConversationCache(ctx context.Context, conversationID string) error {
	key := fmt.Sprintf(keyConversationMessages, conversationID)
	return s.redis.Del(ctx, key).Err()
}

// PrependMessage adds a newly sent message to the cache.
func (s *MessageCacheService) PrependMessage(ctx context.Context, message *models.Message) error {
	key := fmt.Sprintf(keyConversationMessages, message.ConversationID)

	msgJSON, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	s.redis.LPush(ctx, key, msgJSON)
	s.redis.LTrim(ctx, key, 0, 19)
	s.redis.Expire(ctx, key, 1*time.Hour)

	return nil
}

// ============================================
// CONVERSATION LIST CACHING
// ============================================

// CacheConversations caches a user's conversation list for 5 minutes.
func (s *MessageCacheService) CacheConversations(ctx context.Context, userID string, conversations []*models.Conversation) error {
	key := fmt.Sprintf(keyUserConversations, userID)

	data, err := json.Marshal(conversations)
	if err != nil {
		return fmt.Errorf("failed to marshal conversations: %w", err)
	}

	return s.redis.Set(ctx, key, data, 5*time.Minute).Err()
}

// GetCachedConversations retrieves a user's cached conversation list.
func (s *MessageCacheService) GetCachedConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	key := fmt.Sprintf(keyUserConversations, userID)

	data, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached conversations: %w", err)
	}

	var conversations []*models.Conversation
	if err := json.Unmarshal([]byte(data), &conversations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversations: %w", err)
	}

	return conversations, nil
}

// InvalidateUserConversations removes a user's cached conversation list.
func (s *MessageCacheService) InvalidateUserConversations(ctx context.Context, userID string) error {
	key := fmt.Sprintf(keyUserConversations, userID)
	return s.redis.Del(ctx, key).Err()
}

// ============================================
// PRESENCE TRACKING
// ============================================

// SetUserOnline marks a user online with a 90s TTL. The realtime plane calls
// it once, on a user's first connection; nothing refreshes the TTL after that.
func (s *MessageCacheService) SetUserOnline(ctx context.Context, userID string) error {
	key := fmt.Sprintf(keyUserPresence, userID)

	err := s.redis.HSet(ctx, key, map[string]interface{}{
		"is_online": "true",
		"last_seen": time.Now().Unix(),
	}).Err()
	if err != nil {
		return err
	}

	return s.redis.Expire(ctx, key, 90*time.Second).Err()
}

// SetUserOffline marks a user offline, recording the last-seen timestamp.
func (s *MessageCacheService) SetUserOffline(ctx context.Context, userID string) error {
	key := fmt.Sprintf(keyUserPresence, userID)

	return s.redis.HSet(ctx, key, map[string]interface{}{
		"is_online": "false",
		"last_seen": time.Now().Unix(),
	}).Err()
}

// GetUserPresence retrieves a user's presence status.
func (s *MessageCacheService) GetUserPresence(ctx context.Context, userID string) (isOnline bool, lastSeen time.Time, err error) {
	key := fmt.Sprintf(keyUserPresence, userID)

	result, err := s.redis.HGetAll(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, err
	}
	if len(result) == 0 {
		return false, time.Time{}, nil
	}

	isOnline = result["is_online"] == "true"
	if lastSeenStr, ok := result["last_seen"]; ok {
		var lastSeenUnix int64
		fmt.Sscanf(lastSeenStr, "%d", &lastSeenUnix)
		lastSeen = time.Unix(lastSeenUnix, 0)
	}

	return isOnline, lastSeen, nil
}

// GetMultiplePresence retrieves presence for a batch of users via a pipeline.
func (s *MessageCacheService) GetMultiplePresence(ctx context.Context, userIDs []string) (map[string]*models.PresenceInfo, error) {
	result := make(map[string]*models.PresenceInfo)

	pipe := s.redis.Pipeline()
	cmds := make(map[string]*redis.StringStringMapCmd)

	for _, userID := range userIDs {
		key := fmt.Sprintf(keyUserPresence, userID)
		cmds[userID] = pipe.HGetAll(ctx, key)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	for userID, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			result[userID] = &models.PresenceInfo{UserID: userID, IsOnline: false}
			continue
		}

		isOnline := data["is_online"] == "true"
		var lastSeen *time.Time
		if lastSeenStr, ok := data["last_seen"]; ok {
			var lastSeenUnix int64
			fmt.Sscanf(lastSeenStr, "%d", &lastSeenUnix)
			t := time.Unix(lastSeenUnix, 0)
			lastSeen = &t
		}

		result[userID] = &models.PresenceInfo{UserID: userID, IsOnline: isOnline, LastSeen: lastSeen}
	}

	return result, nil
}

// ============================================
// TYPING INDICATORS
// ============================================

// SetTyping marks a user as typing in a conversation for 3 seconds.
func (s *MessageCacheService) SetTyping(ctx context.Context, conversationID, userID string) error {
	key := fmt.Sprintf(keyTyping, conversationID, userID)
	return s.redis.Set(ctx, key, "1", 3*time.Second).Err()
}

// ClearTyping removes a user's typing indicator.
func (s *MessageCacheService) ClearTyping(ctx context.Context, conversationID, userID string) error {
	key := fmt.Sprintf(keyTyping, conversationID, userID)
	return s.redis.Del(ctx, key).Err()
}

// GetTypingUsers returns the users currently typing in a conversation.
func (s *MessageCacheService) GetTypingUsers(ctx context.Context, conversationID string) ([]string, error) {
	pattern := fmt.Sprintf(keyTyping, conversationID, "*")

	var cursor uint64
	var keys []string
	for {
		var err error
		var batch []string
		batch, cursor, err = s.redis.Scan(ctx, cursor, pattern, 10).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if cursor == 0 {
			break
		}
	}

	prefix := fmt.Sprintf("typing:%s:", conversationID)
	userIDs := make([]string, 0, len(keys))
	for _, key := range keys {
		if len(key) > len(prefix) {
			userIDs = append(userIDs, key[len(prefix):])
		}
	}

	return userIDs, nil
}

// ============================================
// UNREAD COUNTS
// ============================================

// IncrementUnread increments a user's unread count for a conversation.
func (s *MessageCacheService) IncrementUnread(ctx context.Context, conversationID, userID string) error {
	key := fmt.Sprintf(keyUnreadCounts, userID)
	return s.redis.HIncrBy(ctx, key, conversationID, 1).Err()
}

// ResetUnread clears a user's unread count for a conversation.
func (s *MessageCacheService) ResetUnread(ctx context.Context, conversationID, userID string) error {
	key := fmt.Sprintf(keyUnreadCounts, userID)
	return s.redis.HDel(ctx, key, conversationID).Err()
}

// GetUnreadCounts retrieves all of a user's per-conversation unread counts.
func (s *MessageCacheService) GetUnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	key := fmt.Sprintf(keyUnreadCounts, userID)

	result, err := s.redis.HGetAll(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return make(map[string]int), nil
		}
		return nil, err
	}

	counts := make(map[string]int)
	for convID, countStr := range result {
		var count int
		fmt.Sscanf(countStr, "%d", &count)
		counts[convID] = count
	}

	return counts, nil
}

// GetTotalUnread sums a user's unread counts across all conversations.
func (s *MessageCacheService) GetTotalUnread(ctx context.Context, userID string) (int, error) {
	counts, err := s.GetUnreadCounts(ctx, userID)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, count := range counts {
		total += count
	}

	return total, nil
}

// ============================================
// KEY BUNDLE CACHING
// ============================================

// CacheKeyBundleStable caches the non-consumable part of a key bundle
// (identity key + signed pre-key) for 10 minutes; the one-time pre-key
// is never cached, since handing it out twice would break the E2EE
// session setup it guards.
func (s *MessageCacheService) CacheKeyBundleStable(ctx context.Context, userID string, bundle *models.UserKeyBundle) error {
	key := fmt.Sprintf(keyKeyBundleStable, userID)

	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("failed to marshal key bundle: %w", err)
	}

	return s.redis.Set(ctx, key, data, 10*time.Minute).Err()
}

// GetCachedKeyBundleStable retrieves the cached stable part of a key bundle.
func (s *MessageCacheService) GetCachedKeyBundleStable(ctx context.Context, userID string) (*models.UserKeyBundle, error) {
	key := fmt.Sprintf(keyKeyBundleStable, userID)

	data, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached key bundle: %w", err)
	}

	var bundle models.UserKeyBundle
	if err := json.Unmarshal([]byte(data), &bundle); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key bundle: %w", err)
	}

	return &bundle, nil
}

// InvalidateKeyBundleStable drops the cached stable bundle, used after a re-upload.
func (s *MessageCacheService) InvalidateKeyBundleStable(ctx context.Context, userID string) error {
	key := fmt.Sprintf(keyKeyBundleStable, userID)
	return s.redis.Del(ctx, key).Err()
}

// ============================================
// CLEANUP METHODS
// ============================================

// CleanupStalePresence is a no-op placeholder; presence keys carry their
// own TTL and expire on their own.
func (s *MessageCacheService) CleanupStalePresence(ctx context.Context) error {
	return nil
}

// CleanupExpiredTyping is a no-op placeholder; typing keys carry their
// own TTL and expire on their own.
func (s *MessageCacheService) CleanupExpiredTyping(ctx context.Context) error {
	return nil
}
