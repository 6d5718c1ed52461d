package conversation

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

type mockConvRepo struct {
	conversations map[string]*models.Conversation
	membersByConv map[string][]*models.ConversationMember
	dms           map[string]*models.Conversation // key: sorted "userA/userB"
}

func newMockConvRepo() *mockConvRepo {
	return &mockConvRepo{
		conversations: make(map[string]*models.Conversation),
		membersByConv: make(map[string][]*models.ConversationMember),
		dms:           make(map[string]*models.Conversation),
	}
}

func dmKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "/" + b
}

func (r *mockConvRepo) Create(ctx context.Context, conv *models.Conversation, members []*models.ConversationMember) (*models.Conversation, error) {
	r.conversations[conv.ID] = conv
	r.membersByConv[conv.ID] = members
	if conv.Type == models.ConversationDM && len(members) == 2 {
		r.dms[dmKey(members[0].UserID, members[1].UserID)] = conv
	}
	return conv, nil
}

func (r *mockConvRepo) FindExistingDM(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	return r.dms[dmKey(userA, userB)], nil
}

func (r *mockConvRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	return r.conversations[id], nil
}

func (r *mockConvRepo) GetMembers(ctx context.Context, conversationID string) ([]*models.ConversationMember, error) {
	return r.membersByConv[conversationID], nil
}

func (r *mockConvRepo) GetMember(ctx context.Context, conversationID, userID string) (*models.ConversationMember, error) {
	for _, m := range r.membersByConv[conversationID] {
		if m.UserID == userID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *mockConvRepo) ListForUser(ctx context.Context, userID string, limit int, cursor *models.ConversationListCursor) ([]*models.Conversation, bool, error) {
	return nil, false, nil
}
func (r *mockConvRepo) LastMessagesFor(ctx context.Context, conversationIDs []string) (map[string]*models.Message, error) {
	return nil, nil
}
func (r *mockConvRepo) UnreadCountsFor(ctx context.Context, userID string, conversationIDs []string) (map[string]int, error) {
	return nil, nil
}
func (r *mockConvRepo) Update(ctx context.Context, id string, name, avatarURL *string) error {
	return nil
}
func (r *mockConvRepo) TouchUpdatedAt(ctx context.Context, id string, at time.Time) error {
	return nil
}
func (r *mockConvRepo) AddMembers(ctx context.Context, conversationID string, newMembers []*models.ConversationMember, systemMsg *models.Message) (*models.Message, error) {
	r.membersByConv[conversationID] = append(r.membersByConv[conversationID], newMembers...)
	return systemMsg, nil
}
func (r *mockConvRepo) RemoveMember(ctx context.Context, conversationID, targetUserID string, systemMsg *models.Message) (*models.Message, error) {
	kept := r.membersByConv[conversationID][:0]
	for _, m := range r.membersByConv[conversationID] {
		if m.UserID != targetUserID {
			kept = append(kept, m)
		}
	}
	r.membersByConv[conversationID] = kept
	return systemMsg, nil
}
func (r *mockConvRepo) UpdateWithSystemMessage(ctx context.Context, id string, name, avatarURL *string, systemMsg *models.Message) (*models.Message, error) {
	if conv, ok := r.conversations[id]; ok {
		if name != nil {
			conv.Name = name
		}
		if avatarURL != nil {
			conv.AvatarURL = avatarURL
		}
	}
	return systemMsg, nil
}
func (r *mockConvRepo) AdminCount(ctx context.Context, conversationID string) (int, error) {
	count := 0
	for _, m := range r.membersByConv[conversationID] {
		if m.Role == models.MemberRoleAdmin {
			count++
		}
	}
	return count, nil
}
func (r *mockConvRepo) SearchForUser(ctx context.Context, userID, query string, limit int) ([]*models.Conversation, error) {
	return nil, nil
}

type mockUserRepo struct {
	known map[string]bool
}

func newMockUserRepo(ids ...string) *mockUserRepo {
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	return &mockUserRepo{known: known}
}

func (u *mockUserRepo) UpsertByExternalIDOrEmail(ctx context.Context, usr *models.User) (*models.User, error) {
	return usr, nil
}
func (u *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) { return nil, nil }
func (u *mockUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	out := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u.known[id] {
			out = append(out, &models.User{ID: id})
		}
	}
	return out, nil
}
func (u *mockUserRepo) SearchByDisplayName(ctx context.Context, query string, limit int) ([]*models.User, error) {
	return nil, nil
}

func newTestService() (*Service, *mockConvRepo) {
	repo := newMockConvRepo()
	rt := realtime.NewManager(realtime.Hooks{})
	return NewService(repo, newMockUserRepo("u1", "u2", "u3"), nil, nil, rt), repo
}

func TestCreate_DMDedup(t *testing.T) {
	svc, _ := newTestService()

	first, err := svc.Create(context.Background(), "u1", models.CreateConversationRequest{
		Type:      models.ConversationDM,
		MemberIDs: []string{"u2"},
	})
	require.NoError(t, err)

	second, err := svc.Create(context.Background(), "u1", models.CreateConversationRequest{
		Type:      models.ConversationDM,
		MemberIDs: []string{"u2"},
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "creating a dm twice between the same pair must return the existing conversation")
}

func TestCreate_DMDedupSymmetric(t *testing.T) {
	svc, _ := newTestService()

	first, err := svc.Create(context.Background(), "u1", models.CreateConversationRequest{
		Type:      models.ConversationDM,
		MemberIDs: []string{"u2"},
	})
	require.NoError(t, err)

	second, err := svc.Create(context.Background(), "u2", models.CreateConversationRequest{
		Type:      models.ConversationDM,
		MemberIDs: []string{"u1"},
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "dm dedup must be symmetric regardless of who initiates")
}

func TestCreate_DMWithSelfRejected(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), "u1", models.CreateConversationRequest{
		Type:      models.ConversationDM,
		MemberIDs: []string{"u1"},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.As(err).Kind)
}

func TestCreate_CreatorBecomesAdmin(t *testing.T) {
	svc, repo := newTestService()

	conv, err := svc.Create(context.Background(), "u1", models.CreateConversationRequest{
		Type:      models.ConversationGroup,
		MemberIDs: []string{"u2", "u3"},
	})
	require.NoError(t, err)

	members := repo.membersByConv[conv.ID]
	var creatorRole models.MemberRole
	for _, m := range members {
		if m.UserID == "u1" {
			creatorRole = m.Role
		}
	}
	assert.Equal(t, models.MemberRoleAdmin, creatorRole)
}

func TestCreate_RejectsCreatorInMemberIDs(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), "u1", models.CreateConversationRequest{
		Type:      models.ConversationGroup,
		MemberIDs: []string{"u1", "u2"},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.As(err).Kind)
}

func TestCreate_RejectsUnknownMember(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), "u1", models.CreateConversationRequest{
		Type:      models.ConversationGroup,
		MemberIDs: []string{"ghost"},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.As(err).Kind)
}

func TestRemoveMember_LastAdminCannotLeave(t *testing.T) {
	svc, repo := newTestService()

	conv, err := svc.Create(context.Background(), "u1", models.CreateConversationRequest{
		Type:      models.ConversationGroup,
		MemberIDs: []string{"u2"},
	})
	require.NoError(t, err)
	_ = repo

	err = svc.RemoveMember(context.Background(), conv.ID, "u1", "u1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.As(err).Kind)
}

func TestRemoveMember_NonAdminCanLeaveThemselves(t *testing.T) {
	svc, _ := newTestService()

	conv, err := svc.Create(context.Background(), "u1", models.CreateConversationRequest{
		Type:      models.ConversationGroup,
		MemberIDs: []string{"u2"},
	})
	require.NoError(t, err)

	err = svc.RemoveMember(context.Background(), conv.ID, "u2", "u2")
	assert.NoError(t, err)
}

func TestUpdate_NonAdminRejected(t *testing.T) {
	svc, _ := newTestService()

	conv, err := svc.Create(context.Background(), "u1", models.CreateConversationRequest{
		Type:      models.ConversationGroup,
		MemberIDs: []string{"u2"},
	})
	require.NoError(t, err)

	newName := "renamed"
	_, err = svc.Update(context.Background(), conv.ID, "u2", models.UpdateConversationRequest{Name: &newName})
	require.Error(t, err)
	assert.Equal(t, apperr.ErrNotAdmin, err)
}
