// Package keys implements the E2EE key plane: identity/signed/one-time
// pre-key bundles, atomic consume-on-fetch, group sender-key
// distribution over the realtime plane, and PIN-encrypted backups. The
// server only ever stores and relays ciphertext and public key
// material; it never holds a private key and never decrypts anything.
package keys

import (
	"context"
	"fmt"
	"time"

	"histeeria-backend/internal/cache"
	"histeeria-backend/internal/models"
	"histeeria-backend/internal/realtime"
	"histeeria-backend/internal/repository"
	"histeeria-backend/pkg/apperr"

	"github.com/google/uuid"
)

// minPreKeyWatermark is the one-time pre-key count below which a client
// should be nudged to replenish; exposed via PreKeyCount's response.
const minPreKeyWatermark = 10

// Service owns the key plane.
type Service struct {
	repo     repository.KeyRepository
	convRepo repository.ConversationRepository
	cache    *cache.MessageCacheService
	rt       *realtime.Manager
}

// NewService creates a key-plane engine.
func NewService(repo repository.KeyRepository, convRepo repository.ConversationRepository, cache *cache.MessageCacheService, rt *realtime.Manager) *Service {
	return &Service{repo: repo, convRepo: convRepo, cache: cache, rt: rt}
}

// UploadBundle registers or rotates a user's identity key and signed
// pre-key. Rotating invalidates any cached stable bundle.
func (s *Service) UploadBundle(ctx context.Context, userID string, req models.UploadBundleRequest) error {
	if err := validatePublicKey(req.IdentityKey); err != nil {
		return err
	}
	if err := validatePublicKey(req.SignedPreKey); err != nil {
		return err
	}
	if req.SignedPreKeySignature == "" {
		return apperr.Validation("signed pre-key signature is required")
	}

	bundle := &models.UserKeyBundle{
		UserID:                userID,
		IdentityKey:           req.IdentityKey,
		SignedPreKey:          req.SignedPreKey,
		SignedPreKeySignature: req.SignedPreKeySignature,
		SignedPreKeyID:        req.SignedPreKeyID,
		UpdatedAt:             time.Now(),
	}

	if err := s.repo.UpsertBundle(ctx, bundle); err != nil {
		return fmt.Errorf("upsert bundle: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidateKeyBundleStable(ctx, userID)
	}

	return nil
}

// FetchBundle returns a peer's key bundle for X3DH session setup. The
// stable part (identity key + signed pre-key) is cache-first; the
// one-time pre-key is always consumed fresh from storage so it is never
// handed to two callers.
func (s *Service) FetchBundle(ctx context.Context, peerID string) (*models.KeyBundle, error) {
	stable, err := s.stableBundle(ctx, peerID)
	if err != nil {
		return nil, err
	}
	if stable == nil {
		return nil, apperr.ErrUserNotFound
	}

	otp, err := s.repo.ConsumeOneTimePreKey(ctx, peerID)
	if err != nil {
		return nil, fmt.Errorf("consume one-time pre-key: %w", err)
	}

	return &models.KeyBundle{
		UserID:                stable.UserID,
		IdentityKey:           stable.IdentityKey,
		SignedPreKey:          stable.SignedPreKey,
		SignedPreKeySignature: stable.SignedPreKeySignature,
		SignedPreKeyID:        stable.SignedPreKeyID,
		OneTimePreKey:         otp,
	}, nil
}

// Fingerprint returns an out-of-band verification string for a user's
// current identity key, for safety-number style comparison.
func (s *Service) Fingerprint(ctx context.Context, userID string) (string, error) {
	stable, err := s.stableBundle(ctx, userID)
	if err != nil {
		return "", err
	}
	if stable == nil {
		return "", apperr.ErrUserNotFound
	}
	return fingerprint(stable.IdentityKey)
}

func (s *Service) stableBundle(ctx context.Context, userID string) (*models.UserKeyBundle, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetCachedKeyBundleStable(ctx, userID); err == nil && cached != nil {
			return cached, nil
		}
	}

	bundle, err := s.repo.GetBundleStable(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get bundle: %w", err)
	}
	if bundle == nil {
		return nil, nil
	}

	if s.cache != nil {
		s.cache.CacheKeyBundleStable(ctx, userID, bundle)
	}

	return bundle, nil
}

// UploadPreKeys replenishes a user's one-time pre-key pool and returns
// how many keys this call stored.
func (s *Service) UploadPreKeys(ctx context.Context, userID string, req models.UploadPreKeysRequest) (int, error) {
	for _, k := range req.PreKeys {
		if err := validatePublicKey(k.PublicKey); err != nil {
			return 0, err
		}
	}

	count, err := s.repo.UploadPreKeys(ctx, userID, req.PreKeys)
	if err != nil {
		return 0, fmt.Errorf("upload pre-keys: %w", err)
	}
	return count, nil
}

// PreKeyCount reports how many one-time pre-keys remain, and whether
// the caller should be prompted to replenish.
func (s *Service) PreKeyCount(ctx context.Context, userID string) (count int, lowWatermark bool, err error) {
	count, err = s.repo.PreKeyCount(ctx, userID)
	if err != nil {
		return 0, false, fmt.Errorf("pre-key count: %w", err)
	}
	return count, count < minPreKeyWatermark, nil
}

// DistributeSenderKey persists a member's group sender key and relays it
// over the realtime plane to the listed recipients; listed users who
// are not members of the conversation are skipped.
func (s *Service) DistributeSenderKey(ctx context.Context, senderID string, req models.DistributeSenderKeyRequest) error {
	if err := validatePublicKey(req.PublicKey); err != nil {
		return err
	}

	member, err := s.convRepo.GetMember(ctx, req.ConversationID, senderID)
	if err != nil {
		return err
	}
	if member == nil {
		return apperr.ErrNotMember
	}

	key := &models.GroupSenderKey{
		ConversationID: req.ConversationID,
		SenderID:       senderID,
		SenderKeyID:    req.SenderKeyID,
		PublicKey:      req.PublicKey,
		ChainKey:       req.ChainKey,
		CreatedAt:      time.Now(),
	}
	if err := s.repo.UpsertSenderKey(ctx, key); err != nil {
		return fmt.Errorf("upsert sender key: %w", err)
	}

	recipients := make([]string, 0, len(req.RecipientIDs))
	for _, id := range req.RecipientIDs {
		m, err := s.convRepo.GetMember(ctx, req.ConversationID, id)
		if err != nil || m == nil {
			continue
		}
		recipients = append(recipients, id)
	}

	s.rt.BroadcastToUsers(recipients, models.WSEnvelope{
		ID:             uuid.NewString(),
		Type:           models.EventSenderKeyDistribute,
		ConversationID: &req.ConversationID,
		Data:           key,
		Timestamp:      time.Now().Unix(),
	})

	return nil
}

// SenderKeys returns every group sender key distributed in a
// conversation, gated on the caller being a current member.
func (s *Service) SenderKeys(ctx context.Context, callerID, conversationID string) ([]*models.GroupSenderKey, error) {
	member, err := s.convRepo.GetMember(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperr.ErrNotMember
	}

	return s.repo.GetSenderKeys(ctx, conversationID)
}

// UploadKeyBackup stores a PIN-encrypted backup of a user's whole
// identity. The server cannot decrypt this; it only stores ciphertext
// and the KDF parameters the client needs to re-derive the wrapping key.
func (s *Service) UploadKeyBackup(ctx context.Context, userID string, req models.UploadKeyBackupRequest) error {
	backup := &models.KeyBackup{
		UserID:          userID,
		EncryptedData:   req.EncryptedData,
		Nonce:           req.Nonce,
		Salt:            req.Salt,
		KDFName:         req.KDFName,
		Version:         req.Version,
		IdentityKeyHash: req.IdentityKeyHash,
		UpdatedAt:       time.Now(),
	}
	if err := s.repo.UpsertKeyBackup(ctx, backup); err != nil {
		return fmt.Errorf("upsert key backup: %w", err)
	}
	return nil
}

// GetKeyBackup retrieves the caller's own whole-identity backup.
func (s *Service) GetKeyBackup(ctx context.Context, userID string) (*models.KeyBackup, error) {
	backup, err := s.repo.GetKeyBackup(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get key backup: %w", err)
	}
	if backup == nil {
		return nil, apperr.ErrNotFound
	}
	return backup, nil
}

// UploadConversationKeyBackup stores a PIN-encrypted backup of a
// group's sender-key material for the caller.
func (s *Service) UploadConversationKeyBackup(ctx context.Context, userID string, req models.UploadConversationKeyBackupRequest) error {
	member, err := s.convRepo.GetMember(ctx, req.ConversationID, userID)
	if err != nil {
		return err
	}
	if member == nil {
		return apperr.ErrNotMember
	}

	backup := &models.ConversationKeyBackup{
		UserID:         userID,
		ConversationID: req.ConversationID,
		EncryptedKey:   req.EncryptedKey,
		Nonce:          req.Nonce,
		UpdatedAt:      time.Now(),
	}
	if err := s.repo.UpsertConversationKeyBackup(ctx, backup); err != nil {
		return fmt.Errorf("upsert conversation key backup: %w", err)
	}
	return nil
}

// GetConversationKeyBackup retrieves the caller's per-conversation
// sender-key backup.
func (s *Service) GetConversationKeyBackup(ctx context.Context, userID, conversationID string) (*models.ConversationKeyBackup, error) {
	backup, err := s.repo.GetConversationKeyBackup(ctx, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation key backup: %w", err)
	}
	if backup == nil {
		return nil, apperr.ErrNotFound
	}
	return backup, nil
}
