package postgres

import (
	"context"
	"fmt"
	"time"

	"histeeria-backend/internal/models"
	"histeeria-backend/pkg/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepo implements repository.MessageRepository.
type MessageRepo struct {
	pool *pgxpool.Pool
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

const messageColumns = `id, conversation_id, sender_id, content, type, metadata, reply_to_id, is_edited,
	sequence_number, encrypted, encryption_version, sender_key_id, created_at, updated_at, deleted_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Type, &m.Metadata,
		&m.ReplyToID, &m.IsEdited, &m.SequenceNumber, &m.Encrypted, &m.EncryptionVer, &m.SenderKeyID,
		&m.CreatedAt, &m.UpdatedAt, &m.DeletedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateWithStatuses locks the conversation row, assigns the next
// sequence number, inserts the message and one MessageStatus row per
// member, all in one transaction. Concurrent sends to the same
// conversation serialize on the row lock; sends to other conversations
// do not contend.
func (r *MessageRepo) CreateWithStatuses(ctx context.Context, msg *models.Message, statuses []*models.MessageStatus) (*models.Message, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT 1 FROM conversations WHERE id=$1 FOR UPDATE`, msg.ConversationID); err != nil {
		return nil, err
	}
	var nextSeq int64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number),0)+1 FROM messages WHERE conversation_id=$1`,
		msg.ConversationID).Scan(&nextSeq); err != nil {
		return nil, err
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.SequenceNumber = nextSeq
	msg.CreatedAt = time.Now().UTC()

	const insert = `
		INSERT INTO messages (id, conversation_id, sender_id, content, type, metadata, reply_to_id,
			is_edited, sequence_number, encrypted, encryption_version, sender_key_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,false,$8,$9,$10,$11,$12)`
	if _, err := tx.Exec(ctx, insert, msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.Type,
		msg.Metadata, msg.ReplyToID, msg.SequenceNumber, msg.Encrypted, msg.EncryptionVer,
		msg.SenderKeyID, msg.CreatedAt); err != nil {
		return nil, err
	}

	const insertStatus = `INSERT INTO message_statuses (message_id, user_id, status, timestamp) VALUES ($1,$2,$3,$4)`
	for _, s := range statuses {
		s.MessageID = msg.ID
		if _, err := tx.Exec(ctx, insertStatus, s.MessageID, s.UserID, s.Status, s.Timestamp); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at=$2 WHERE id=$1`, msg.ConversationID, msg.CreatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}

// GetByID fetches a single message.
func (r *MessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	m, err := scanMessage(r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, id))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("message not found")
	}
	return m, err
}

// ListForConversation pages messages newest-first, excluding rows the
// viewer has deleted-for-me.
func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID, viewerID string, limit int, cursor *string) ([]*models.Message, bool, error) {
	args := []interface{}{conversationID, viewerID}
	q := `SELECT ` + messageColumns + ` FROM messages msg
		WHERE msg.conversation_id = $1
		  AND NOT EXISTS (SELECT 1 FROM user_deleted_messages d WHERE d.user_id=$2 AND d.message_id=msg.id)`
	if cursor != nil {
		args = append(args, *cursor)
		q += ` AND msg.sequence_number < (SELECT sequence_number FROM messages WHERE id=$3)`
	}
	q += fmt.Sprintf(` ORDER BY msg.sequence_number DESC, msg.created_at DESC, msg.id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit+1)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, false, err
		}
		out = append(out, m)
	}
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, rows.Err()
}

// Edit updates a message's content and marks it edited.
func (r *MessageRepo) Edit(ctx context.Context, id, newContent string) error {
	const q = `UPDATE messages SET content=$2, is_edited=true, updated_at=now() WHERE id=$1 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, id, newContent)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("message not found or already deleted")
	}
	return nil
}

// SoftDeleteForEveryone sets deleted_at, turning the row into a tombstone.
func (r *MessageRepo) SoftDeleteForEveryone(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE messages SET deleted_at=$2 WHERE id=$1 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Validation("message already deleted")
	}
	return nil
}

// DeleteForMe inserts the per-user tombstone row.
func (r *MessageRepo) DeleteForMe(ctx context.Context, userID, messageID string) error {
	const q = `INSERT INTO user_deleted_messages (user_id, message_id, deleted_at) VALUES ($1,$2,now())
		ON CONFLICT DO NOTHING`
	_, err := r.pool.Exec(ctx, q, userID, messageID)
	return err
}

// IsDeletedForMe reports whether the user has deleted-for-me this message.
func (r *MessageRepo) IsDeletedForMe(ctx context.Context, userID, messageID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM user_deleted_messages WHERE user_id=$1 AND message_id=$2)`
	var exists bool
	err := r.pool.QueryRow(ctx, q, userID, messageID).Scan(&exists)
	return exists, err
}

// Search does a case-insensitive substring search, defaulting to the
// requester's own conversations unless a specific conversation is named.
func (r *MessageRepo) Search(ctx context.Context, req models.SearchMessagesRequest, requesterID string) ([]*models.Message, bool, error) {
	args := []interface{}{requesterID}
	q := `SELECT ` + messageColumns + ` FROM messages msg
		WHERE msg.conversation_id IN (SELECT conversation_id FROM conversation_members WHERE user_id=$1)
		  AND msg.deleted_at IS NULL`
	if req.Query != "" {
		args = append(args, req.Query)
		q += fmt.Sprintf(` AND msg.content ILIKE '%%' || $%d || '%%'`, len(args))
	}
	if req.ConversationID != nil {
		args = append(args, *req.ConversationID)
		q += fmt.Sprintf(` AND msg.conversation_id = $%d`, len(args))
	}
	if req.SenderID != nil {
		args = append(args, *req.SenderID)
		q += fmt.Sprintf(` AND msg.sender_id = $%d`, len(args))
	}
	if req.From != nil {
		args = append(args, *req.From)
		q += fmt.Sprintf(` AND msg.created_at >= $%d`, len(args))
	}
	if req.To != nil {
		args = append(args, *req.To)
		q += fmt.Sprintf(` AND msg.created_at <= $%d`, len(args))
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit+1)
	q += fmt.Sprintf(` ORDER BY msg.created_at DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, false, err
		}
		out = append(out, m)
	}
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, rows.Err()
}

// SendersFor batch-fetches unique sender profiles for a page of messages.
func (r *MessageRepo) SendersFor(ctx context.Context, senderIDs []string) (map[string]*models.User, error) {
	users := NewUserRepo(r.pool)
	list, err := users.GetByIDs(ctx, dedupe(senderIDs))
	if err != nil {
		return nil, err
	}
	out := make(map[string]*models.User, len(list))
	for _, u := range list {
		out[u.ID] = u
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// GetStatuses lists every per-recipient status row for a message.
func (r *MessageRepo) GetStatuses(ctx context.Context, messageID string) ([]*models.MessageStatus, error) {
	const q = `SELECT message_id, user_id, status, timestamp FROM message_statuses WHERE message_id=$1`
	rows, err := r.pool.Query(ctx, q, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.MessageStatus
	for rows.Next() {
		var s models.MessageStatus
		if err := rows.Scan(&s.MessageID, &s.UserID, &s.Status, &s.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// GetStatus fetches one (message, user) status row.
func (r *MessageRepo) GetStatus(ctx context.Context, messageID, userID string) (*models.MessageStatus, error) {
	const q = `SELECT message_id, user_id, status, timestamp FROM message_statuses WHERE message_id=$1 AND user_id=$2`
	var s models.MessageStatus
	err := r.pool.QueryRow(ctx, q, messageID, userID).Scan(&s.MessageID, &s.UserID, &s.Status, &s.Timestamp)
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("message status not found")
	}
	return &s, err
}

// AdvanceStatus moves (message, user) forward to status if, and only if,
// it is not already at or past that rank.
func (r *MessageRepo) AdvanceStatus(ctx context.Context, messageID, userID string, status models.DeliveryStatus, at time.Time) (models.DeliveryStatus, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	var current models.DeliveryStatus
	err = tx.QueryRow(ctx, `SELECT status FROM message_statuses WHERE message_id=$1 AND user_id=$2 FOR UPDATE`,
		messageID, userID).Scan(&current)
	if err == pgx.ErrNoRows {
		return "", apperr.NotFound("message status not found")
	}
	if err != nil {
		return "", err
	}

	if status.Rank() <= current.Rank() {
		return current, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `UPDATE message_statuses SET status=$3, timestamp=$4 WHERE message_id=$1 AND user_id=$2`,
		messageID, userID, status, at); err != nil {
		return "", err
	}
	return status, tx.Commit(ctx)
}

// PromoteSentToDelivered batch-promotes a user's sent rows to delivered,
// used when the fanout plane observes them coming online.
func (r *MessageRepo) PromoteSentToDelivered(ctx context.Context, userID string, at time.Time) (int, error) {
	const q = `UPDATE message_statuses SET status='delivered', timestamp=$2 WHERE user_id=$1 AND status='sent'`
	tag, err := r.pool.Exec(ctx, q, userID, at)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// MarkRead advances an explicit set of message ids to read and advances
// the read watermark monotonically.
func (r *MessageRepo) MarkRead(ctx context.Context, userID string, messageIDs []string, at time.Time) error {
	if len(messageIDs) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const q = `UPDATE message_statuses SET status='read', timestamp=$3
		WHERE user_id=$2 AND message_id = ANY($1) AND status <> 'read'`
	if _, err := tx.Exec(ctx, q, messageIDs, userID, at); err != nil {
		return err
	}

	if err := advanceWatermark(ctx, tx, userID, messageIDs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkConversationRead advances every unread message in a conversation to
// read for the given user, and advances their read watermark.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const q = `
		UPDATE message_statuses s SET status='read', timestamp=$3
		FROM messages m
		WHERE s.message_id = m.id AND m.conversation_id=$1 AND s.user_id=$2 AND s.status <> 'read'`
	if _, err := tx.Exec(ctx, q, conversationID, userID, at); err != nil {
		return err
	}

	const watermark = `
		UPDATE conversation_members SET last_read_at = GREATEST(COALESCE(last_read_at, to_timestamp(0)), $3)
		WHERE conversation_id=$1 AND user_id=$2`
	if _, err := tx.Exec(ctx, watermark, conversationID, userID, at); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func advanceWatermark(ctx context.Context, tx pgx.Tx, userID string, messageIDs []string) error {
	const q = `
		UPDATE conversation_members cm
		SET last_read_at = GREATEST(COALESCE(cm.last_read_at, to_timestamp(0)), sub.max_created)
		FROM (
			SELECT conversation_id, max(created_at) AS max_created
			FROM messages WHERE id = ANY($1)
			GROUP BY conversation_id
		) sub
		WHERE cm.conversation_id = sub.conversation_id AND cm.user_id = $2`
	_, err := tx.Exec(ctx, q, messageIDs, userID)
	return err
}

// UnreadCount returns a user's total unread count across all conversations.
func (r *MessageRepo) UnreadCount(ctx context.Context, userID string) (int, error) {
	const q = `
		SELECT count(*)
		FROM messages msg
		JOIN conversation_members m ON m.conversation_id = msg.conversation_id AND m.user_id = $1
		WHERE msg.sender_id <> $1 AND msg.deleted_at IS NULL
		  AND msg.created_at > COALESCE(m.last_read_at, to_timestamp(0))`
	var n int
	err := r.pool.QueryRow(ctx, q, userID).Scan(&n)
	return n, err
}

// AddReaction inserts a reaction after any switch logic the caller already
// performed (remove-then-add); a conflict here means the same emoji was
// already present for this user.
func (r *MessageRepo) AddReaction(ctx context.Context, messageID, userID, emoji string) (*models.MessageReaction, error) {
	existing, err := r.GetReaction(ctx, messageID, userID)
	if err == nil && existing != nil && existing.Emoji == emoji {
		return nil, apperr.Conflict("reaction already exists")
	}

	reaction := &models.MessageReaction{
		ID:        uuid.NewString(),
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now().UTC(),
	}
	const q = `INSERT INTO message_reactions (id, message_id, user_id, emoji, created_at) VALUES ($1,$2,$3,$4,$5)`
	if _, err := r.pool.Exec(ctx, q, reaction.ID, reaction.MessageID, reaction.UserID, reaction.Emoji,
		reaction.CreatedAt); err != nil {
		return nil, err
	}
	return reaction, nil
}

// RemoveReaction deletes a user's reaction from a message; idempotent by
// not-found semantics (returns false, nil if there was nothing to remove).
func (r *MessageRepo) RemoveReaction(ctx context.Context, messageID, userID string) (bool, error) {
	const q = `DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2`
	tag, err := r.pool.Exec(ctx, q, messageID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetReaction fetches a single user's reaction on a message, if any.
func (r *MessageRepo) GetReaction(ctx context.Context, messageID, userID string) (*models.MessageReaction, error) {
	const q = `SELECT id, message_id, user_id, emoji, created_at FROM message_reactions WHERE message_id=$1 AND user_id=$2`
	var m models.MessageReaction
	err := r.pool.QueryRow(ctx, q, messageID, userID).Scan(&m.ID, &m.MessageID, &m.UserID, &m.Emoji, &m.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("reaction not found")
	}
	return &m, err
}

// GetReactions lists every reaction on a message.
func (r *MessageRepo) GetReactions(ctx context.Context, messageID string) ([]*models.MessageReaction, error) {
	const q = `SELECT id, message_id, user_id, emoji, created_at FROM message_reactions WHERE message_id=$1`
	rows, err := r.pool.Query(ctx, q, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.MessageReaction
	for rows.Next() {
		var m models.MessageReaction
		if err := rows.Scan(&m.ID, &m.MessageID, &m.UserID, &m.Emoji, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
