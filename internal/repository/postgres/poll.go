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

// PollRepo implements repository.PollRepository.
type PollRepo struct {
	pool *pgxpool.Pool
}

// NewPollRepo constructs a PollRepo.
func NewPollRepo(pool *pgxpool.Pool) *PollRepo {
	return &PollRepo{pool: pool}
}

// CreateWithMessage inserts the POLL message (claiming the next sequence
// number under the same conversation row lock messages use), the poll
// row, and its options, all in one transaction.
func (r *PollRepo) CreateWithMessage(ctx context.Context, msg *models.Message, poll *models.Poll, optionTexts []string) (*models.Poll, error) {
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
	msg.Type = models.MessageTypePoll

	const insertMsg = `
		INSERT INTO messages (id, conversation_id, sender_id, content, type, metadata, sequence_number, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := tx.Exec(ctx, insertMsg, msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.Type,
		msg.Metadata, msg.SequenceNumber, msg.CreatedAt); err != nil {
		return nil, err
	}

	if poll.ID == "" {
		poll.ID = uuid.NewString()
	}
	poll.MessageID = msg.ID
	poll.CreatedAt = msg.CreatedAt

	const insertPoll = `
		INSERT INTO polls (id, message_id, question, multiple_choice, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := tx.Exec(ctx, insertPoll, poll.ID, poll.MessageID, poll.Question, poll.MultipleChoice,
		poll.ExpiresAt, poll.CreatedAt); err != nil {
		return nil, err
	}

	poll.Options = make([]models.PollOption, 0, len(optionTexts))
	const insertOption = `INSERT INTO poll_options (id, poll_id, option_text, position) VALUES ($1,$2,$3,$4)`
	for i, text := range optionTexts {
		opt := models.PollOption{ID: uuid.NewString(), PollID: poll.ID, OptionText: text, Position: i}
		if _, err := tx.Exec(ctx, insertOption, opt.ID, opt.PollID, opt.OptionText, opt.Position); err != nil {
			return nil, err
		}
		poll.Options = append(poll.Options, opt)
	}

	if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at=$2 WHERE id=$1`, msg.ConversationID, msg.CreatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return poll, nil
}

func scanPoll(row pgx.Row) (*models.Poll, error) {
	var p models.Poll
	if err := row.Scan(&p.ID, &p.MessageID, &p.Question, &p.MultipleChoice, &p.ExpiresAt, &p.ClosedAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

const pollColumns = `id, message_id, question, multiple_choice, expires_at, closed_at, created_at`

// GetByID fetches a poll by its own id.
func (r *PollRepo) GetByID(ctx context.Context, pollID string) (*models.Poll, error) {
	p, err := scanPoll(r.pool.QueryRow(ctx, `SELECT `+pollColumns+` FROM polls WHERE id=$1`, pollID))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("poll not found")
	}
	return p, err
}

// GetByMessageID fetches a poll by the message that carries it.
func (r *PollRepo) GetByMessageID(ctx context.Context, messageID string) (*models.Poll, error) {
	p, err := scanPoll(r.pool.QueryRow(ctx, `SELECT `+pollColumns+` FROM polls WHERE message_id=$1`, messageID))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("poll not found")
	}
	return p, err
}

// GetOptions lists a poll's options in display order.
func (r *PollRepo) GetOptions(ctx context.Context, pollID string) ([]models.PollOption, error) {
	const q = `SELECT id, poll_id, option_text, position FROM poll_options WHERE poll_id=$1 ORDER BY position`
	rows, err := r.pool.Query(ctx, q, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PollOption
	for rows.Next() {
		var o models.PollOption
		if err := rows.Scan(&o.ID, &o.PollID, &o.OptionText, &o.Position); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Vote locks the poll row, clears the user's prior ballot, and inserts
// the new selection — a delete-then-insert that makes re-voting
// idempotent regardless of whether the poll allows multiple choices.
func (r *PollRepo) Vote(ctx context.Context, pollID, userID string, optionIDs []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var closedAt *time.Time
	if err := tx.QueryRow(ctx, `SELECT closed_at FROM polls WHERE id=$1 FOR UPDATE`, pollID).Scan(&closedAt); err != nil {
		if err == pgx.ErrNoRows {
			return apperr.NotFound("poll not found")
		}
		return err
	}
	if closedAt != nil {
		return apperr.Conflict("poll is closed")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM poll_votes WHERE poll_id=$1 AND user_id=$2`, pollID, userID); err != nil {
		return err
	}

	const insert = `INSERT INTO poll_votes (id, poll_id, option_id, user_id, created_at) VALUES ($1,$2,$3,$4,$5)`
	now := time.Now().UTC()
	for _, optionID := range optionIDs {
		if _, err := tx.Exec(ctx, insert, uuid.NewString(), pollID, optionID, userID, now); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// UserSelection returns the option ids a user has currently selected.
func (r *PollRepo) UserSelection(ctx context.Context, pollID, userID string) ([]string, error) {
	const q = `SELECT option_id FROM poll_votes WHERE poll_id=$1 AND user_id=$2`
	rows, err := r.pool.Query(ctx, q, pollID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Tally counts votes per option plus the poll's total vote count.
func (r *PollRepo) Tally(ctx context.Context, pollID string) ([]models.PollOptionResult, int, error) {
	const q = `
		SELECT o.id, o.option_text, o.position, count(v.id)
		FROM poll_options o
		LEFT JOIN poll_votes v ON v.option_id = o.id
		WHERE o.poll_id = $1
		GROUP BY o.id, o.option_text, o.position
		ORDER BY o.position`
	rows, err := r.pool.Query(ctx, q, pollID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.PollOptionResult
	total := 0
	for rows.Next() {
		var res models.PollOptionResult
		if err := rows.Scan(&res.ID, &res.OptionText, &res.Position, &res.VotesCount); err != nil {
			return nil, 0, err
		}
		out = append(out, res)
		total += res.VotesCount
	}
	return out, total, rows.Err()
}

// Close marks a poll closed; further votes are rejected.
func (r *PollRepo) Close(ctx context.Context, pollID string) error {
	const q = `UPDATE polls SET closed_at=now() WHERE id=$1 AND closed_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, pollID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("poll already closed")
	}
	return nil
}
