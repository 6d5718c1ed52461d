package notifyprefs

import (
	"context"
	"testing"
	"time"

	"histeeria-backend/internal/models"
	"histeeria-backend/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPrefsRepo struct {
	prefs map[string]*models.NotificationPreferences
	muted map[string]*models.MutedConversation // key: userID+"/"+conversationID
}

func newMockPrefsRepo() *mockPrefsRepo {
	return &mockPrefsRepo{
		prefs: make(map[string]*models.NotificationPreferences),
		muted: make(map[string]*models.MutedConversation),
	}
}

func (r *mockPrefsRepo) key(userID, conversationID string) string { return userID + "/" + conversationID }

func (r *mockPrefsRepo) GetPreferences(ctx context.Context, userID string) (*models.NotificationPreferences, error) {
	if p, ok := r.prefs[userID]; ok {
		return p, nil
	}
	return &models.NotificationPreferences{UserID: userID, MessagesEnabled: true, RemindersEnabled: true, SoundEnabled: true}, nil
}

func (r *mockPrefsRepo) UpsertPreferences(ctx context.Context, prefs *models.NotificationPreferences) error {
	r.prefs[prefs.UserID] = prefs
	return nil
}

func (r *mockPrefsRepo) Mute(ctx context.Context, mute *models.MutedConversation) error {
	r.muted[r.key(mute.UserID, mute.ConversationID)] = mute
	return nil
}

func (r *mockPrefsRepo) Unmute(ctx context.Context, userID, conversationID string) error {
	delete(r.muted, r.key(userID, conversationID))
	return nil
}

func (r *mockPrefsRepo) ListMuted(ctx context.Context, userID string) ([]*models.MutedConversation, error) {
	var out []*models.MutedConversation
	for _, m := range r.muted {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *mockPrefsRepo) IsMuted(ctx context.Context, userID, conversationID string) (bool, error) {
	_, ok := r.muted[r.key(userID, conversationID)]
	return ok, nil
}

type mockConvMembership struct {
	members map[string]bool // key: conversationID+"/"+userID
}

func (c *mockConvMembership) key(conversationID, userID string) string { return conversationID + "/" + userID }

func (c *mockConvMembership) GetMember(ctx context.Context, conversationID, userID string) (*models.ConversationMember, error) {
	if c.members[c.key(conversationID, userID)] {
		return &models.ConversationMember{ConversationID: conversationID, UserID: userID}, nil
	}
	return nil, nil
}

func (c *mockConvMembership) GetMembers(ctx context.Context, conversationID string) ([]*models.ConversationMember, error) {
	return nil, nil
}
func (c *mockConvMembership) Create(ctx context.Context, conv *models.Conversation, members []*models.ConversationMember) (*models.Conversation, error) {
	return nil, nil
}
func (c *mockConvMembership) FindExistingDM(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	return nil, nil
}
func (c *mockConvMembership) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	return nil, nil
}
func (c *mockConvMembership) ListForUser(ctx context.Context, userID string, limit int, cursor *models.ConversationListCursor) ([]*models.Conversation, bool, error) {
	return nil, false, nil
}
func (c *mockConvMembership) LastMessagesFor(ctx context.Context, conversationIDs []string) (map[string]*models.Message, error) {
	return nil, nil
}
func (c *mockConvMembership) UnreadCountsFor(ctx context.Context, userID string, conversationIDs []string) (map[string]int, error) {
	return nil, nil
}
func (c *mockConvMembership) Update(ctx context.Context, id string, name, avatarURL *string) error {
	return nil
}
func (c *mockConvMembership) TouchUpdatedAt(ctx context.Context, id string, at time.Time) error {
	return nil
}
func (c *mockConvMembership) AddMembers(ctx context.Context, conversationID string, newMembers []*models.ConversationMember, systemMsg *models.Message) (*models.Message, error) {
	return nil, nil
}
func (c *mockConvMembership) RemoveMember(ctx context.Context, conversationID, targetUserID string, systemMsg *models.Message) (*models.Message, error) {
	return nil, nil
}
func (c *mockConvMembership) UpdateWithSystemMessage(ctx context.Context, id string, name, avatarURL *string, systemMsg *models.Message) (*models.Message, error) {
	return nil, nil
}
func (c *mockConvMembership) AdminCount(ctx context.Context, conversationID string) (int, error) {
	return 0, nil
}
func (c *mockConvMembership) SearchForUser(ctx context.Context, userID, query string, limit int) ([]*models.Conversation, error) {
	return nil, nil
}

func TestGet_DefaultsToAllEnabled(t *testing.T) {
	svc := NewService(newMockPrefsRepo(), &mockConvMembership{members: map[string]bool{}})

	prefs, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, prefs.MessagesEnabled)
	assert.True(t, prefs.RemindersEnabled)
	assert.True(t, prefs.SoundEnabled)
}

func TestUpdate_PartialUpdateOnlyTouchesGivenFields(t *testing.T) {
	svc := NewService(newMockPrefsRepo(), &mockConvMembership{members: map[string]bool{}})

	disabled := false
	updated, err := svc.Update(context.Background(), "u1", models.UpdateNotificationPreferencesRequest{
		MessagesEnabled: &disabled,
	})
	require.NoError(t, err)
	assert.False(t, updated.MessagesEnabled)
	assert.True(t, updated.RemindersEnabled, "fields not named in the request must be left untouched")
	assert.True(t, updated.SoundEnabled)
}

func TestMute_RequiresMembership(t *testing.T) {
	svc := NewService(newMockPrefsRepo(), &mockConvMembership{members: map[string]bool{}})

	err := svc.Mute(context.Background(), "outsider", "c1", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.ErrNotMember, err)
}

func TestMuteThenUnmute(t *testing.T) {
	prefsRepo := newMockPrefsRepo()
	convRepo := &mockConvMembership{members: map[string]bool{"c1/u1": true}}
	svc := NewService(prefsRepo, convRepo)

	require.NoError(t, svc.Mute(context.Background(), "u1", "c1", nil))

	muted, err := prefsRepo.IsMuted(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.True(t, muted)

	require.NoError(t, svc.Unmute(context.Background(), "u1", "c1"))

	muted, err = prefsRepo.IsMuted(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.False(t, muted)
}
