package postgres

import (
	"context"
	"time"

	"histeeria-backend/internal/models"
	"histeeria-backend/pkg/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// KeyRepo implements repository.KeyRepository against the relational
// store; every method here only ever touches public key material.
type KeyRepo struct {
	pool *pgxpool.Pool
}

// NewKeyRepo constructs a KeyRepo.
func NewKeyRepo(pool *pgxpool.Pool) *KeyRepo {
	return &KeyRepo{pool: pool}
}

// UpsertBundle registers or replaces a user's identity + signed pre-key.
func (r *KeyRepo) UpsertBundle(ctx context.Context, bundle *models.UserKeyBundle) error {
	now := time.Now().UTC()
	const q = `
		INSERT INTO user_key_bundles (user_id, identity_key, signed_prekey, signed_prekey_signature,
			signed_prekey_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
		ON CONFLICT (user_id) DO UPDATE SET
			identity_key=$2, signed_prekey=$3, signed_prekey_signature=$4, signed_prekey_id=$5, updated_at=$6`
	_, err := r.pool.Exec(ctx, q, bundle.UserID, bundle.IdentityKey, bundle.SignedPreKey,
		bundle.SignedPreKeySignature, bundle.SignedPreKeyID, now)
	return err
}

// GetBundleStable fetches the long-lived part of a user's bundle,
// excluding any one-time pre-key (that is consumed separately).
func (r *KeyRepo) GetBundleStable(ctx context.Context, userID string) (*models.UserKeyBundle, error) {
	const q = `
		SELECT user_id, identity_key, signed_prekey, signed_prekey_signature, signed_prekey_id, created_at, updated_at
		FROM user_key_bundles WHERE user_id=$1`
	var b models.UserKeyBundle
	err := r.pool.QueryRow(ctx, q, userID).Scan(&b.UserID, &b.IdentityKey, &b.SignedPreKey,
		&b.SignedPreKeySignature, &b.SignedPreKeyID, &b.CreatedAt, &b.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("key bundle not found")
	}
	return &b, err
}

// UploadPreKeys inserts a replenishment batch of one-time pre-keys and
// returns the count inserted.
func (r *KeyRepo) UploadPreKeys(ctx context.Context, userID string, keys []models.PreKeyUpload) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	const insert = `INSERT INTO one_time_prekeys (id, user_id, prekey_id, public_key) VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id, prekey_id) DO NOTHING`
	inserted := 0
	for _, k := range keys {
		tag, err := tx.Exec(ctx, insert, uuid.NewString(), userID, k.PreKeyID, k.PublicKey)
		if err != nil {
			return 0, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, tx.Commit(ctx)
}

// PreKeyCount reports how many one-time pre-keys remain for a user, used
// to trigger client-side replenishment below a low-water mark.
func (r *KeyRepo) PreKeyCount(ctx context.Context, userID string) (int, error) {
	const q = `SELECT count(*) FROM one_time_prekeys WHERE user_id=$1`
	var n int
	err := r.pool.QueryRow(ctx, q, userID).Scan(&n)
	return n, err
}

// ConsumeOneTimePreKey deletes and returns the lowest-id one-time
// pre-key for a user in a single transaction, so concurrent fetches for
// the same user never hand out the same key twice.
func (r *KeyRepo) ConsumeOneTimePreKey(ctx context.Context, userID string) (*models.OneTimePreKey, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const selectQ = `
		SELECT id, user_id, prekey_id, public_key FROM one_time_prekeys
		WHERE user_id=$1 ORDER BY prekey_id ASC LIMIT 1 FOR UPDATE SKIP LOCKED`
	var k models.OneTimePreKey
	err = tx.QueryRow(ctx, selectQ, userID).Scan(&k.ID, &k.UserID, &k.PreKeyID, &k.PublicKey)
	if err == pgx.ErrNoRows {
		return nil, tx.Commit(ctx)
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM one_time_prekeys WHERE id=$1`, k.ID); err != nil {
		return nil, err
	}
	return &k, tx.Commit(ctx)
}

// UpsertSenderKey registers or replaces a member's group sender key for
// a conversation.
func (r *KeyRepo) UpsertSenderKey(ctx context.Context, key *models.GroupSenderKey) error {
	key.CreatedAt = time.Now().UTC()
	const q = `
		INSERT INTO group_sender_keys (conversation_id, sender_id, sender_key_id, public_key, chain_key, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (conversation_id, sender_id) DO UPDATE SET
			sender_key_id=$3, public_key=$4, chain_key=$5, created_at=$6`
	_, err := r.pool.Exec(ctx, q, key.ConversationID, key.SenderID, key.SenderKeyID, key.PublicKey,
		key.ChainKey, key.CreatedAt)
	return err
}

// GetSenderKeys lists every member's current sender key for a
// conversation, for a newly joining member to catch up on.
func (r *KeyRepo) GetSenderKeys(ctx context.Context, conversationID string) ([]*models.GroupSenderKey, error) {
	const q = `
		SELECT conversation_id, sender_id, sender_key_id, public_key, chain_key, created_at
		FROM group_sender_keys WHERE conversation_id=$1`
	rows, err := r.pool.Query(ctx, q, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.GroupSenderKey
	for rows.Next() {
		var k models.GroupSenderKey
		if err := rows.Scan(&k.ConversationID, &k.SenderID, &k.SenderKeyID, &k.PublicKey, &k.ChainKey, &k.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}

// UpsertKeyBackup stores or replaces a user's PIN-encrypted whole-identity backup.
func (r *KeyRepo) UpsertKeyBackup(ctx context.Context, backup *models.KeyBackup) error {
	backup.UpdatedAt = time.Now().UTC()
	const q = `
		INSERT INTO key_backups (user_id, encrypted_data, nonce, salt, kdf_name, version, identity_key_hash, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (user_id) DO UPDATE SET
			encrypted_data=$2, nonce=$3, salt=$4, kdf_name=$5, version=$6, identity_key_hash=$7, updated_at=$8`
	_, err := r.pool.Exec(ctx, q, backup.UserID, backup.EncryptedData, backup.Nonce, backup.Salt,
		backup.KDFName, backup.Version, backup.IdentityKeyHash, backup.UpdatedAt)
	return err
}

// GetKeyBackup fetches a user's whole-identity backup.
func (r *KeyRepo) GetKeyBackup(ctx context.Context, userID string) (*models.KeyBackup, error) {
	const q = `
		SELECT user_id, encrypted_data, nonce, salt, kdf_name, version, identity_key_hash, updated_at
		FROM key_backups WHERE user_id=$1`
	var b models.KeyBackup
	err := r.pool.QueryRow(ctx, q, userID).Scan(&b.UserID, &b.EncryptedData, &b.Nonce, &b.Salt, &b.KDFName,
		&b.Version, &b.IdentityKeyHash, &b.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("key backup not found")
	}
	return &b, err
}

// UpsertConversationKeyBackup stores or replaces a user's encrypted
// backup of one group's sender-key material.
func (r *KeyRepo) UpsertConversationKeyBackup(ctx context.Context, backup *models.ConversationKeyBackup) error {
	backup.UpdatedAt = time.Now().UTC()
	const q = `
		INSERT INTO conversation_key_backups (user_id, conversation_id, encrypted_key, nonce, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id, conversation_id) DO UPDATE SET
			encrypted_key=$3, nonce=$4, updated_at=$5`
	_, err := r.pool.Exec(ctx, q, backup.UserID, backup.ConversationID, backup.EncryptedKey, backup.Nonce, backup.UpdatedAt)
	return err
}

// GetConversationKeyBackup fetches a user's encrypted per-conversation
// key backup.
func (r *KeyRepo) GetConversationKeyBackup(ctx context.Context, userID, conversationID string) (*models.ConversationKeyBackup, error) {
	const q = `
		SELECT user_id, conversation_id, encrypted_key, nonce, updated_at
		FROM conversation_key_backups WHERE user_id=$1 AND conversation_id=$2`
	var b models.ConversationKeyBackup
	err := r.pool.QueryRow(ctx, q, userID, conversationID).Scan(&b.UserID, &b.ConversationID, &b.EncryptedKey, &b.Nonce, &b.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("conversation key backup not found")
	}
	return &b, err
}
