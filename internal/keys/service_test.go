package keys

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"histeeria-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockKeyRepo struct {
	preKeyCount int
}

func (m *mockKeyRepo) UpsertBundle(ctx context.Context, bundle *models.UserKeyBundle) error { return nil }
func (m *mockKeyRepo) GetBundleStable(ctx context.Context, userID string) (*models.UserKeyBundle, error) {
	return nil, nil
}
func (m *mockKeyRepo) UploadPreKeys(ctx context.Context, userID string, keys []models.PreKeyUpload) (int, error) {
	m.preKeyCount += len(keys)
	return len(keys), nil
}
func (m *mockKeyRepo) PreKeyCount(ctx context.Context, userID string) (int, error) {
	return m.preKeyCount, nil
}
func (m *mockKeyRepo) ConsumeOneTimePreKey(ctx context.Context, userID string) (*models.OneTimePreKey, error) {
	return nil, nil
}
func (m *mockKeyRepo) UpsertSenderKey(ctx context.Context, key *models.GroupSenderKey) error { return nil }
func (m *mockKeyRepo) GetSenderKeys(ctx context.Context, conversationID string) ([]*models.GroupSenderKey, error) {
	return nil, nil
}
func (m *mockKeyRepo) UpsertKeyBackup(ctx context.Context, backup *models.KeyBackup) error { return nil }
func (m *mockKeyRepo) GetKeyBackup(ctx context.Context, userID string) (*models.KeyBackup, error) {
	return nil, nil
}
func (m *mockKeyRepo) UpsertConversationKeyBackup(ctx context.Context, backup *models.ConversationKeyBackup) error {
	return nil
}
func (m *mockKeyRepo) GetConversationKeyBackup(ctx context.Context, userID, conversationID string) (*models.ConversationKeyBackup, error) {
	return nil, nil
}

func randomCurve25519Key(t *testing.T) string {
	t.Helper()
	raw := make([]byte, curve25519KeySize)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestValidatePublicKey_RejectsWrongLength(t *testing.T) {
	short := base64.StdEncoding.EncodeToString([]byte("too short"))
	err := validatePublicKey(short)
	require.Error(t, err)
}

func TestValidatePublicKey_RejectsInvalidBase64(t *testing.T) {
	err := validatePublicKey("not-valid-base64!!")
	require.Error(t, err)
}

func TestValidatePublicKey_AcceptsCorrectLength(t *testing.T) {
	key := randomCurve25519Key(t)
	assert.NoError(t, validatePublicKey(key))
}

func TestFingerprint_DeterministicForSameKey(t *testing.T) {
	key := randomCurve25519Key(t)

	fp1, err := fingerprint(key)
	require.NoError(t, err)
	fp2, err := fingerprint(key)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2)
}

func TestFingerprint_DiffersForDifferentKeys(t *testing.T) {
	fp1, err := fingerprint(randomCurve25519Key(t))
	require.NoError(t, err)
	fp2, err := fingerprint(randomCurve25519Key(t))
	require.NoError(t, err)

	assert.NotEqual(t, fp1, fp2)
}

func TestPreKeyCount_LowWatermark(t *testing.T) {
	repo := &mockKeyRepo{preKeyCount: 3}
	svc := NewService(repo, nil, nil, nil)

	count, low, err := svc.PreKeyCount(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.True(t, low, "count below minPreKeyWatermark should signal low watermark")
}

func TestPreKeyCount_AboveWatermark(t *testing.T) {
	repo := &mockKeyRepo{preKeyCount: minPreKeyWatermark + 5}
	svc := NewService(repo, nil, nil, nil)

	_, low, err := svc.PreKeyCount(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, low)
}

func TestUploadPreKeys_RejectsMalformedKey(t *testing.T) {
	repo := &mockKeyRepo{}
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.UploadPreKeys(context.Background(), "u1", models.UploadPreKeysRequest{
		PreKeys: []models.PreKeyUpload{{PreKeyID: 1, PublicKey: "not-base64!!"}},
	})
	require.Error(t, err)
}
