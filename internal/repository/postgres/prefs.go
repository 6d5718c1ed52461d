package postgres

import (
	"context"
	"time"

	"histeeria-backend/internal/models"
	"histeeria-backend/pkg/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PreferencesRepo implements repository.PreferencesRepository.
type PreferencesRepo struct {
	pool *pgxpool.Pool
}

// NewPreferencesRepo constructs a PreferencesRepo.
func NewPreferencesRepo(pool *pgxpool.Pool) *PreferencesRepo {
	return &PreferencesRepo{pool: pool}
}

// GetPreferences fetches a user's notification settings, defaulting to
// all-enabled if the row has never been written.
func (r *PreferencesRepo) GetPreferences(ctx context.Context, userID string) (*models.NotificationPreferences, error) {
	const q = `
		SELECT user_id, messages_enabled, reminders_enabled, sound_enabled, updated_at
		FROM notification_preferences WHERE user_id=$1`
	var p models.NotificationPreferences
	err := r.pool.QueryRow(ctx, q, userID).Scan(&p.UserID, &p.MessagesEnabled, &p.RemindersEnabled,
		&p.SoundEnabled, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return &models.NotificationPreferences{
			UserID: userID, MessagesEnabled: true, RemindersEnabled: true, SoundEnabled: true,
			UpdatedAt: time.Now().UTC(),
		}, nil
	}
	return &p, err
}

// UpsertPreferences writes a user's notification settings.
func (r *PreferencesRepo) UpsertPreferences(ctx context.Context, prefs *models.NotificationPreferences) error {
	prefs.UpdatedAt = time.Now().UTC()
	const q = `
		INSERT INTO notification_preferences (user_id, messages_enabled, reminders_enabled, sound_enabled, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id) DO UPDATE SET
			messages_enabled=$2, reminders_enabled=$3, sound_enabled=$4, updated_at=$5`
	_, err := r.pool.Exec(ctx, q, prefs.UserID, prefs.MessagesEnabled, prefs.RemindersEnabled,
		prefs.SoundEnabled, prefs.UpdatedAt)
	return err
}

// Mute silences a conversation for a user, optionally until a given time.
func (r *PreferencesRepo) Mute(ctx context.Context, mute *models.MutedConversation) error {
	mute.CreatedAt = time.Now().UTC()
	const q = `
		INSERT INTO muted_conversations (user_id, conversation_id, muted_until, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id, conversation_id) DO UPDATE SET muted_until=$3, created_at=$4`
	_, err := r.pool.Exec(ctx, q, mute.UserID, mute.ConversationID, mute.MutedUntil, mute.CreatedAt)
	return err
}

// Unmute removes a conversation's mute for a user.
func (r *PreferencesRepo) Unmute(ctx context.Context, userID, conversationID string) error {
	const q = `DELETE FROM muted_conversations WHERE user_id=$1 AND conversation_id=$2`
	tag, err := r.pool.Exec(ctx, q, userID, conversationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("conversation is not muted")
	}
	return nil
}

// ListMuted lists every conversation a user currently has muted,
// including ones whose scheduled unmute time has already passed (the
// caller is responsible for filtering those out, matching how IsMuted
// treats expiry).
func (r *PreferencesRepo) ListMuted(ctx context.Context, userID string) ([]*models.MutedConversation, error) {
	const q = `SELECT user_id, conversation_id, muted_until, created_at FROM muted_conversations WHERE user_id=$1`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.MutedConversation
	for rows.Next() {
		var m models.MutedConversation
		if err := rows.Scan(&m.UserID, &m.ConversationID, &m.MutedUntil, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// IsMuted reports whether a conversation is currently muted for a user,
// treating an elapsed muted_until as no longer muted.
func (r *PreferencesRepo) IsMuted(ctx context.Context, userID, conversationID string) (bool, error) {
	const q = `
		SELECT muted_until FROM muted_conversations WHERE user_id=$1 AND conversation_id=$2`
	var until *time.Time
	err := r.pool.QueryRow(ctx, q, userID, conversationID).Scan(&until)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if until != nil && time.Now().After(*until) {
		return false, nil
	}
	return true, nil
}
