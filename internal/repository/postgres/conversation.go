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

// ConversationRepo implements repository.ConversationRepository.
type ConversationRepo struct {
	pool *pgxpool.Pool
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

// Create inserts a conversation and its initial members in one transaction.
func (r *ConversationRepo) Create(ctx context.Context, conv *models.Conversation, members []*models.ConversationMember) (*models.Conversation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	conv.CreatedAt, conv.UpdatedAt = now, now

	const insertConv = `
		INSERT INTO conversations (id, type, name, avatar_url, avatar_object_key, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := tx.Exec(ctx, insertConv, conv.ID, conv.Type, conv.Name, conv.AvatarURL,
		conv.AvatarObjectKey, conv.CreatedBy, conv.CreatedAt, conv.UpdatedAt); err != nil {
		return nil, err
	}

	const insertMember = `
		INSERT INTO conversation_members (conversation_id, user_id, role, joined_at, is_muted)
		VALUES ($1,$2,$3,$4,false)`
	for _, m := range members {
		m.ConversationID = conv.ID
		if m.JoinedAt.IsZero() {
			m.JoinedAt = now
		}
		if _, err := tx.Exec(ctx, insertMember, m.ConversationID, m.UserID, m.Role, m.JoinedAt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	conv.Members = members
	return conv, nil
}

// FindExistingDM returns the DM between exactly these two users, if any.
func (r *ConversationRepo) FindExistingDM(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	const q = `
		SELECT c.id, c.type, c.name, c.avatar_url, c.avatar_object_key, c.created_by, c.created_at, c.updated_at
		FROM conversations c
		WHERE c.type = 'dm'
		  AND EXISTS (SELECT 1 FROM conversation_members m WHERE m.conversation_id=c.id AND m.user_id=$1)
		  AND EXISTS (SELECT 1 FROM conversation_members m WHERE m.conversation_id=c.id AND m.user_id=$2)
		  AND (SELECT count(*) FROM conversation_members m WHERE m.conversation_id=c.id) = 2
		LIMIT 1`
	conv, err := scanConversation(r.pool.QueryRow(ctx, q, userA, userB))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return conv, err
}

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var c models.Conversation
	if err := row.Scan(&c.ID, &c.Type, &c.Name, &c.AvatarURL, &c.AvatarObjectKey, &c.CreatedBy,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByID fetches a conversation's base row.
func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	const q = `SELECT id, type, name, avatar_url, avatar_object_key, created_by, created_at, updated_at
		FROM conversations WHERE id=$1`
	c, err := scanConversation(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("conversation not found")
	}
	return c, err
}

// GetMembers lists every member of a conversation.
func (r *ConversationRepo) GetMembers(ctx context.Context, conversationID string) ([]*models.ConversationMember, error) {
	const q = `SELECT conversation_id, user_id, role, joined_at, last_read_at, is_muted, mute_until
		FROM conversation_members WHERE conversation_id=$1`
	rows, err := r.pool.Query(ctx, q, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ConversationMember
	for rows.Next() {
		var m models.ConversationMember
		if err := rows.Scan(&m.ConversationID, &m.UserID, &m.Role, &m.JoinedAt, &m.LastReadAt,
			&m.IsMuted, &m.MuteUntil); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// GetMember fetches a single membership row, used to enforce membership
// and admin checks before every mutating conversation/message operation.
func (r *ConversationRepo) GetMember(ctx context.Context, conversationID, userID string) (*models.ConversationMember, error) {
	const q = `SELECT conversation_id, user_id, role, joined_at, last_read_at, is_muted, mute_until
		FROM conversation_members WHERE conversation_id=$1 AND user_id=$2`
	var m models.ConversationMember
	err := r.pool.QueryRow(ctx, q, conversationID, userID).Scan(&m.ConversationID, &m.UserID, &m.Role,
		&m.JoinedAt, &m.LastReadAt, &m.IsMuted, &m.MuteUntil)
	if err == pgx.ErrNoRows {
		return nil, apperr.ErrNotMember
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListForUser pages conversations by updated_at desc, id desc.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string, limit int, cursor *models.ConversationListCursor) ([]*models.Conversation, bool, error) {
	args := []interface{}{userID}
	q := `
		SELECT c.id, c.type, c.name, c.avatar_url, c.avatar_object_key, c.created_by, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id AND m.user_id = $1`
	if cursor != nil {
		q += ` WHERE c.updated_at < $2 OR (c.updated_at = $2 AND c.id < $3)`
		args = append(args, cursor.UpdatedAt, cursor.ID)
	}
	q += fmt.Sprintf(` ORDER BY c.updated_at DESC, c.id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit+1)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var out []*models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, false, err
		}
		out = append(out, c)
	}
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, rows.Err()
}

// LastMessagesFor batch-fetches each conversation's newest message.
func (r *ConversationRepo) LastMessagesFor(ctx context.Context, conversationIDs []string) (map[string]*models.Message, error) {
	result := make(map[string]*models.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return result, nil
	}
	const q = `
		SELECT DISTINCT ON (conversation_id)
			id, conversation_id, sender_id, content, type, metadata, reply_to_id, is_edited,
			sequence_number, encrypted, encryption_version, sender_key_id, created_at, updated_at, deleted_at
		FROM messages
		WHERE conversation_id = ANY($1)
		ORDER BY conversation_id, sequence_number DESC`
	rows, err := r.pool.Query(ctx, q, conversationIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result[m.ConversationID] = m
	}
	return result, rows.Err()
}

// UnreadCountsFor batch-computes unread counts per conversation for a user.
func (r *ConversationRepo) UnreadCountsFor(ctx context.Context, userID string, conversationIDs []string) (map[string]int, error) {
	result := make(map[string]int, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return result, nil
	}
	const q = `
		SELECT msg.conversation_id, count(*)
		FROM messages msg
		JOIN conversation_members m ON m.conversation_id = msg.conversation_id AND m.user_id = $1
		WHERE msg.conversation_id = ANY($2)
		  AND msg.sender_id <> $1
		  AND msg.deleted_at IS NULL
		  AND msg.created_at > COALESCE(m.last_read_at, to_timestamp(0))
		GROUP BY msg.conversation_id`
	rows, err := r.pool.Query(ctx, q, userID, conversationIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		result[id] = count
	}
	return result, rows.Err()
}

// Update changes name/avatar without a system message (internal helper).
func (r *ConversationRepo) Update(ctx context.Context, id string, name, avatarURL *string) error {
	const q = `UPDATE conversations SET name=COALESCE($2,name), avatar_url=COALESCE($3,avatar_url), updated_at=now() WHERE id=$1`
	_, err := r.pool.Exec(ctx, q, id, name, avatarURL)
	return err
}

// TouchUpdatedAt bumps a conversation's updated_at on every successful send.
func (r *ConversationRepo) TouchUpdatedAt(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE conversations SET updated_at=$2 WHERE id=$1`
	_, err := r.pool.Exec(ctx, q, id, at)
	return err
}

// AddMembers inserts new members and the accompanying SYSTEM message in
// one transaction.
func (r *ConversationRepo) AddMembers(ctx context.Context, conversationID string, newMembers []*models.ConversationMember, systemMsg *models.Message) (*models.Message, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	const insertMember = `INSERT INTO conversation_members (conversation_id, user_id, role, joined_at, is_muted)
		VALUES ($1,$2,'member',$3,false) ON CONFLICT DO NOTHING`
	for _, m := range newMembers {
		if _, err := tx.Exec(ctx, insertMember, conversationID, m.UserID, now); err != nil {
			return nil, err
		}
	}

	msg, err := insertSystemMessage(ctx, tx, systemMsg)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at=$2 WHERE id=$1`, conversationID, now); err != nil {
		return nil, err
	}
	return msg, tx.Commit(ctx)
}

// RemoveMember deletes a member and inserts the accompanying SYSTEM
// message in one transaction.
func (r *ConversationRepo) RemoveMember(ctx context.Context, conversationID, targetUserID string, systemMsg *models.Message) (*models.Message, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM conversation_members WHERE conversation_id=$1 AND user_id=$2`,
		conversationID, targetUserID); err != nil {
		return nil, err
	}
	msg, err := insertSystemMessage(ctx, tx, systemMsg)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at=now() WHERE id=$1`, conversationID); err != nil {
		return nil, err
	}
	return msg, tx.Commit(ctx)
}

// UpdateWithSystemMessage updates name/avatar and inserts the SYSTEM
// message recording it, in one transaction.
func (r *ConversationRepo) UpdateWithSystemMessage(ctx context.Context, id string, name, avatarURL *string, systemMsg *models.Message) (*models.Message, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const q = `UPDATE conversations SET name=COALESCE($2,name), avatar_url=COALESCE($3,avatar_url), updated_at=now() WHERE id=$1`
	if _, err := tx.Exec(ctx, q, id, name, avatarURL); err != nil {
		return nil, err
	}
	msg, err := insertSystemMessage(ctx, tx, systemMsg)
	if err != nil {
		return nil, err
	}
	return msg, tx.Commit(ctx)
}

func insertSystemMessage(ctx context.Context, tx pgx.Tx, msg *models.Message) (*models.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, err := tx.Exec(ctx, `SELECT 1 FROM conversations WHERE id=$1 FOR UPDATE`, msg.ConversationID); err != nil {
		return nil, err
	}
	var nextSeq int64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number),0)+1 FROM messages WHERE conversation_id=$1`,
		msg.ConversationID).Scan(&nextSeq); err != nil {
		return nil, err
	}
	msg.SequenceNumber = nextSeq
	msg.Type = models.MessageTypeSystem
	msg.CreatedAt = time.Now().UTC()

	const insert = `
		INSERT INTO messages (id, conversation_id, sender_id, content, type, metadata, reply_to_id,
			is_edited, sequence_number, encrypted, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,false,$8,false,$9)`
	_, err := tx.Exec(ctx, insert, msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.Type,
		msg.Metadata, msg.ReplyToID, msg.SequenceNumber, msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// AdminCount returns how many admins a conversation currently has.
func (r *ConversationRepo) AdminCount(ctx context.Context, conversationID string) (int, error) {
	const q = `SELECT count(*) FROM conversation_members WHERE conversation_id=$1 AND role='admin'`
	var n int
	err := r.pool.QueryRow(ctx, q, conversationID).Scan(&n)
	return n, err
}

// SearchForUser returns the user's conversations whose name, or another
// member's display name, contains query case-insensitively, most recently
// updated first. No similarity scoring or ranking by match quality is applied.
func (r *ConversationRepo) SearchForUser(ctx context.Context, userID, query string, limit int) ([]*models.Conversation, error) {
	const q = `
		SELECT DISTINCT c.id, c.type, c.name, c.avatar_url, c.avatar_object_key, c.created_by, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id AND m.user_id = $1
		LEFT JOIN conversation_members om ON om.conversation_id = c.id AND om.user_id <> $1
		LEFT JOIN users ou ON ou.id = om.user_id
		WHERE c.name ILIKE '%' || $2 || '%' OR ou.display_name ILIKE '%' || $2 || '%'
		ORDER BY c.updated_at DESC
		LIMIT $3`
	rows, err := r.pool.Query(ctx, q, userID, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
