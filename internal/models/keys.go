package models

import "time"

// UserKeyBundle holds a user's long-lived identity and currently signed
// pre-key. Private keys never appear anywhere in this model; the server
// only ever stores and relays public material.
type UserKeyBundle struct {
	UserID                string    `json:"user_id" db:"user_id"`
	IdentityKey           string    `json:"identity_key" db:"identity_key"`
	SignedPreKey          string    `json:"signed_prekey" db:"signed_prekey"`
	SignedPreKeySignature string    `json:"signed_prekey_signature" db:"signed_prekey_signature"`
	SignedPreKeyID        int       `json:"signed_prekey_id" db:"signed_prekey_id"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time `json:"updated_at" db:"updated_at"`
}

// OneTimePreKey is consumed (deleted) atomically the first time it is
// handed out by a bundle fetch.
type OneTimePreKey struct {
	ID        string `json:"id" db:"id"`
	UserID    string `json:"user_id" db:"user_id"`
	PreKeyID  int    `json:"prekey_id" db:"prekey_id"`
	PublicKey string `json:"public_key" db:"public_key"`
}

// KeyBundle is the wire shape returned by a bundle fetch.
type KeyBundle struct {
	UserID                string         `json:"user_id"`
	IdentityKey            string        `json:"identity_key"`
	SignedPreKey          string         `json:"signed_prekey"`
	SignedPreKeySignature string         `json:"signed_prekey_signature"`
	SignedPreKeyID        int            `json:"signed_prekey_id"`
	OneTimePreKey         *OneTimePreKey `json:"one_time_prekey,omitempty"`
}

// GroupSenderKey is a member's group-encryption key for one conversation.
type GroupSenderKey struct {
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	SenderID       string    `json:"sender_id" db:"sender_id"`
	SenderKeyID    string    `json:"sender_key_id" db:"sender_key_id"`
	PublicKey      string    `json:"public_key" db:"public_key"`
	ChainKey       *string   `json:"chain_key,omitempty" db:"chain_key"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// KeyBackup is a PIN-encrypted backup of a user's whole identity. The
// server stores only ciphertext and KDF parameters; it can never decrypt
// on the user's behalf.
type KeyBackup struct {
	UserID          string    `json:"user_id" db:"user_id"`
	EncryptedData   string    `json:"encrypted_data" db:"encrypted_data"`
	Nonce           string    `json:"nonce" db:"nonce"`
	Salt            string    `json:"salt" db:"salt"`
	KDFName         string    `json:"kdf_name" db:"kdf_name"`
	Version         int       `json:"version" db:"version"`
	IdentityKeyHash string    `json:"identity_key_hash" db:"identity_key_hash"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// ConversationKeyBackup is a per-conversation variant of KeyBackup, used
// to back up a group's sender-key material.
type ConversationKeyBackup struct {
	UserID         string    `json:"user_id" db:"user_id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	EncryptedKey   string    `json:"encrypted_key" db:"encrypted_key"`
	Nonce          string    `json:"nonce" db:"nonce"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// UploadBundleRequest registers/updates a user's identity + signed pre-key.
type UploadBundleRequest struct {
	IdentityKey           string `json:"identity_key" binding:"required"`
	SignedPreKey          string `json:"signed_prekey" binding:"required"`
	SignedPreKeySignature string `json:"signed_prekey_signature" binding:"required"`
	SignedPreKeyID        int    `json:"signed_prekey_id" binding:"required"`
}

// UploadPreKeysRequest replenishes one-time pre-keys.
type UploadPreKeysRequest struct {
	PreKeys []PreKeyUpload `json:"prekeys" binding:"required,min=1,max=100"`
}

// PreKeyUpload is a single one-time pre-key in an upload batch.
type PreKeyUpload struct {
	PreKeyID  int    `json:"prekey_id" binding:"required"`
	PublicKey string `json:"public_key" binding:"required"`
}

// DistributeSenderKeyRequest fans a group sender key out over the realtime
// plane to the listed recipients.
type DistributeSenderKeyRequest struct {
	ConversationID string   `json:"conversation_id" binding:"required"`
	SenderKeyID    string   `json:"sender_key_id" binding:"required"`
	PublicKey      string   `json:"public_key" binding:"required"`
	ChainKey       *string  `json:"chain_key,omitempty"`
	RecipientIDs   []string `json:"recipient_ids" binding:"required,min=1"`
}

// UploadKeyBackupRequest stores an encrypted whole-identity backup.
type UploadKeyBackupRequest struct {
	EncryptedData   string `json:"encrypted_data" binding:"required"`
	Nonce           string `json:"nonce" binding:"required"`
	Salt            string `json:"salt" binding:"required"`
	KDFName         string `json:"kdf_name" binding:"required"`
	Version         int    `json:"version" binding:"required"`
	IdentityKeyHash string `json:"identity_key_hash" binding:"required"`
}

// UploadConversationKeyBackupRequest stores an encrypted per-conversation
// key backup.
type UploadConversationKeyBackupRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	EncryptedKey   string `json:"encrypted_key" binding:"required"`
	Nonce          string `json:"nonce" binding:"required"`
}
