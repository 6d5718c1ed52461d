package reaction

import (
	"context"
	"testing"
	"time"

	"histeeria-backend/internal/models"
	"histeeria-backend/internal/realtime"
	"histeeria-backend/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMessageRepo struct {
	messages  map[string]*models.Message
	reactions map[string]*models.MessageReaction // key: messageID+"/"+userID
}

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{
		messages:  make(map[string]*models.Message),
		reactions: make(map[string]*models.MessageReaction),
	}
}

func (m *mockMessageRepo) key(messageID, userID string) string { return messageID + "/" + userID }

func (m *mockMessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	return m.messages[id], nil
}

func (m *mockMessageRepo) GetReaction(ctx context.Context, messageID, userID string) (*models.MessageReaction, error) {
	return m.reactions[m.key(messageID, userID)], nil
}

func (m *mockMessageRepo) AddReaction(ctx context.Context, messageID, userID, emoji string) (*models.MessageReaction, error) {
	r := &models.MessageReaction{MessageID: messageID, UserID: userID, Emoji: emoji}
	m.reactions[m.key(messageID, userID)] = r
	return r, nil
}

func (m *mockMessageRepo) RemoveReaction(ctx context.Context, messageID, userID string) (bool, error) {
	k := m.key(messageID, userID)
	if _, ok := m.reactions[k]; !ok {
		return false, nil
	}
	delete(m.reactions, k)
	return true, nil
}

func (m *mockMessageRepo) GetReactions(ctx context.Context, messageID string) ([]*models.MessageReaction, error) {
	var out []*models.MessageReaction
	for _, r := range m.reactions {
		if r.MessageID == messageID {
			out = append(out, r)
		}
	}
	return out, nil
}

// The remaining MessageRepository methods are unused by the reaction
// engine; stubbed to satisfy the interface.
func (m *mockMessageRepo) CreateWithStatuses(ctx context.Context, msg *models.Message, statuses []*models.MessageStatus) (*models.Message, error) {
	return nil, nil
}
func (m *mockMessageRepo) ListForConversation(ctx context.Context, conversationID, viewerID string, limit int, cursor *string) ([]*models.Message, bool, error) {
	return nil, false, nil
}
func (m *mockMessageRepo) Edit(ctx context.Context, id, newContent string) error { return nil }
func (m *mockMessageRepo) SoftDeleteForEveryone(ctx context.Context, id string, at time.Time) error {
	return nil
}
func (m *mockMessageRepo) DeleteForMe(ctx context.Context, userID, messageID string) error { return nil }
func (m *mockMessageRepo) IsDeletedForMe(ctx context.Context, userID, messageID string) (bool, error) {
	return false, nil
}
func (m *mockMessageRepo) Search(ctx context.Context, req models.SearchMessagesRequest, requesterID string) ([]*models.Message, bool, error) {
	return nil, false, nil
}
func (m *mockMessageRepo) SendersFor(ctx context.Context, senderIDs []string) (map[string]*models.User, error) {
	return nil, nil
}
func (m *mockMessageRepo) GetStatuses(ctx context.Context, messageID string) ([]*models.MessageStatus, error) {
	return nil, nil
}
func (m *mockMessageRepo) GetStatus(ctx context.Context, messageID, userID string) (*models.MessageStatus, error) {
	return nil, nil
}
func (m *mockMessageRepo) AdvanceStatus(ctx context.Context, messageID, userID string, status models.DeliveryStatus, at time.Time) (models.DeliveryStatus, error) {
	return status, nil
}
func (m *mockMessageRepo) PromoteSentToDelivered(ctx context.Context, userID string, at time.Time) (int, error) {
	return 0, nil
}
func (m *mockMessageRepo) MarkRead(ctx context.Context, userID string, messageIDs []string, at time.Time) error {
	return nil
}
func (m *mockMessageRepo) MarkConversationRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	return nil
}
func (m *mockMessageRepo) UnreadCount(ctx context.Context, userID string) (int, error) { return 0, nil }

type mockConvRepo struct {
	members map[string]*models.ConversationMember // key: conversationID+"/"+userID
}

func (c *mockConvRepo) key(conversationID, userID string) string { return conversationID + "/" + userID }

func (c *mockConvRepo) GetMember(ctx context.Context, conversationID, userID string) (*models.ConversationMember, error) {
	return c.members[c.key(conversationID, userID)], nil
}

func (c *mockConvRepo) GetMembers(ctx context.Context, conversationID string) ([]*models.ConversationMember, error) {
	var out []*models.ConversationMember
	for _, m := range c.members {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

// The remaining ConversationRepository methods are unused by the
// reaction engine; stubbed to satisfy the interface.
func (c *mockConvRepo) Create(ctx context.Context, conv *models.Conversation, members []*models.ConversationMember) (*models.Conversation, error) {
	return nil, nil
}
func (c *mockConvRepo) FindExistingDM(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	return nil, nil
}
func (c *mockConvRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	return nil, nil
}
func (c *mockConvRepo) ListForUser(ctx context.Context, userID string, limit int, cursor *models.ConversationListCursor) ([]*models.Conversation, bool, error) {
	return nil, false, nil
}
func (c *mockConvRepo) LastMessagesFor(ctx context.Context, conversationIDs []string) (map[string]*models.Message, error) {
	return nil, nil
}
func (c *mockConvRepo) UnreadCountsFor(ctx context.Context, userID string, conversationIDs []string) (map[string]int, error) {
	return nil, nil
}
func (c *mockConvRepo) Update(ctx context.Context, id string, name, avatarURL *string) error {
	return nil
}
func (c *mockConvRepo) TouchUpdatedAt(ctx context.Context, id string, at time.Time) error {
	return nil
}
func (c *mockConvRepo) AddMembers(ctx context.Context, conversationID string, newMembers []*models.ConversationMember, systemMsg *models.Message) (*models.Message, error) {
	return nil, nil
}
func (c *mockConvRepo) RemoveMember(ctx context.Context, conversationID, targetUserID string, systemMsg *models.Message) (*models.Message, error) {
	return nil, nil
}
func (c *mockConvRepo) UpdateWithSystemMessage(ctx context.Context, id string, name, avatarURL *string, systemMsg *models.Message) (*models.Message, error) {
	return nil, nil
}
func (c *mockConvRepo) AdminCount(ctx context.Context, conversationID string) (int, error) {
	return 0, nil
}
func (c *mockConvRepo) SearchForUser(ctx context.Context, userID, query string, limit int) ([]*models.Conversation, error) {
	return nil, nil
}

func newTestService(t *testing.T) (*Service, *mockMessageRepo, *mockConvRepo) {
	t.Helper()
	msgRepo := newMockMessageRepo()
	convRepo := &mockConvRepo{members: make(map[string]*models.ConversationMember)}
	rt := realtime.NewManager(realtime.Hooks{})
	return NewService(msgRepo, convRepo, rt), msgRepo, convRepo
}

func TestAdd_FirstReaction(t *testing.T) {
	svc, msgRepo, convRepo := newTestService(t)
	msgRepo.messages["m1"] = &models.Message{ID: "m1", ConversationID: "c1"}
	convRepo.members[convRepo.key("c1", "u1")] = &models.ConversationMember{ConversationID: "c1", UserID: "u1"}

	reaction, err := svc.Add(context.Background(), "u1", "m1", "👍")
	require.NoError(t, err)
	assert.Equal(t, "👍", reaction.Emoji)
}

func TestAdd_SameEmojiTwiceConflicts(t *testing.T) {
	svc, msgRepo, convRepo := newTestService(t)
	msgRepo.messages["m1"] = &models.Message{ID: "m1", ConversationID: "c1"}
	convRepo.members[convRepo.key("c1", "u1")] = &models.ConversationMember{ConversationID: "c1", UserID: "u1"}

	_, err := svc.Add(context.Background(), "u1", "m1", "👍")
	require.NoError(t, err)

	_, err = svc.Add(context.Background(), "u1", "m1", "👍")
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.As(err).Kind)
}

func TestAdd_SwitchingEmojiReplacesReaction(t *testing.T) {
	svc, msgRepo, convRepo := newTestService(t)
	msgRepo.messages["m1"] = &models.Message{ID: "m1", ConversationID: "c1"}
	convRepo.members[convRepo.key("c1", "u1")] = &models.ConversationMember{ConversationID: "c1", UserID: "u1"}

	_, err := svc.Add(context.Background(), "u1", "m1", "👍")
	require.NoError(t, err)

	reaction, err := svc.Add(context.Background(), "u1", "m1", "❤️")
	require.NoError(t, err)
	assert.Equal(t, "❤️", reaction.Emoji)

	all, err := svc.List(context.Background(), "m1")
	require.NoError(t, err)
	assert.Len(t, all, 1, "switching emoji should not stack reactions")
}

func TestAdd_NonMemberRejected(t *testing.T) {
	svc, msgRepo, _ := newTestService(t)
	msgRepo.messages["m1"] = &models.Message{ID: "m1", ConversationID: "c1"}

	_, err := svc.Add(context.Background(), "intruder", "m1", "👍")
	require.Error(t, err)
	assert.Equal(t, apperr.ErrNotMember, err)
}

func TestRemove_NoReactionIsNoop(t *testing.T) {
	svc, msgRepo, _ := newTestService(t)
	msgRepo.messages["m1"] = &models.Message{ID: "m1", ConversationID: "c1"}

	err := svc.Remove(context.Background(), "u1", "m1")
	assert.NoError(t, err)
}
