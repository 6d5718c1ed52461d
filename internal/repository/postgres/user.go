// Package postgres implements every repository interface in
// internal/repository against the relational store via pgx. The schema
// itself is out of scope for this core; these queries assume tables named
// after the models they read and write.
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

// UserRepo implements repository.UserRepository.
type UserRepo struct {
	pool *pgxpool.Pool
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// UpsertByExternalIDOrEmail is the load-bearing dual-key upsert: external
// id first, then email, insert only if neither matched.
func (r *UserRepo) UpsertByExternalIDOrEmail(ctx context.Context, u *models.User) (*models.User, error) {
	existing, err := r.findByExternalOrEmail(ctx, u.ExternalUserID, u.Email)
	if err != nil && err != pgx.ErrNoRows {
		return nil, err
	}

	now := time.Now().UTC()
	if existing == nil {
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		u.LastSyncedAt = now
		u.CreatedAt = now
		const insert = `
			INSERT INTO users (id, external_user_id, email, first_name, last_name, display_name,
				image_url, title, division, role, is_active, is_leader, settings, last_synced_at, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
		_, err := r.pool.Exec(ctx, insert, u.ID, u.ExternalUserID, u.Email, u.FirstName, u.LastName,
			u.DisplayName, u.ImageURL, u.Title, u.Division, u.Role, u.IsActive, u.IsLeader, u.Settings,
			u.LastSyncedAt, u.CreatedAt)
		if err != nil {
			return nil, err
		}
		return u, nil
	}

	u.ID = existing.ID
	u.CreatedAt = existing.CreatedAt
	u.LastSyncedAt = now
	const update = `
		UPDATE users SET external_user_id=$2, email=$3, first_name=$4, last_name=$5, display_name=$6,
			image_url=$7, title=$8, division=$9, role=$10, is_active=$11, is_leader=$12, settings=$13,
			last_synced_at=$14
		WHERE id=$1`
	_, err = r.pool.Exec(ctx, update, u.ID, u.ExternalUserID, u.Email, u.FirstName, u.LastName,
		u.DisplayName, u.ImageURL, u.Title, u.Division, u.Role, u.IsActive, u.IsLeader, u.Settings,
		u.LastSyncedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepo) findByExternalOrEmail(ctx context.Context, externalID, email string) (*models.User, error) {
	const q = `
		SELECT id, external_user_id, email, first_name, last_name, display_name, image_url, title,
			division, role, is_active, is_leader, settings, last_synced_at, created_at
		FROM users WHERE external_user_id = $1
		UNION ALL
		SELECT id, external_user_id, email, first_name, last_name, display_name, image_url, title,
			division, role, is_active, is_leader, settings, last_synced_at, created_at
		FROM users WHERE external_user_id <> $1 AND email = $2
		LIMIT 1`
	row := r.pool.QueryRow(ctx, q, externalID, email)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if u.Settings == nil {
		u.Settings = models.JSONMap{}
	}
	err := row.Scan(&u.ID, &u.ExternalUserID, &u.Email, &u.FirstName, &u.LastName, &u.DisplayName,
		&u.ImageURL, &u.Title, &u.Division, &u.Role, &u.IsActive, &u.IsLeader, &u.Settings,
		&u.LastSyncedAt, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID fetches a single user.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	const q = `
		SELECT id, external_user_id, email, first_name, last_name, display_name, image_url, title,
			division, role, is_active, is_leader, settings, last_synced_at, created_at
		FROM users WHERE id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, apperr.ErrUserNotFound
	}
	return u, err
}

// GetByIDs batch-fetches users, used for the single-call sender/member
// enrichment the message and conversation engines rely on.
func (r *UserRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `
		SELECT id, external_user_id, email, first_name, last_name, display_name, image_url, title,
			division, role, is_active, is_leader, settings, last_synced_at, created_at
		FROM users WHERE id = ANY($1)`
	rows, err := r.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SearchByDisplayName does a case-insensitive substring match as the
// fallback path for member-name fuzzy search.
func (r *UserRepo) SearchByDisplayName(ctx context.Context, query string, limit int) ([]*models.User, error) {
	const q = `
		SELECT id, external_user_id, email, first_name, last_name, display_name, image_url, title,
			division, role, is_active, is_leader, settings, last_synced_at, created_at
		FROM users WHERE display_name ILIKE '%' || $1 || '%' LIMIT $2`
	rows, err := r.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// BlockRepo implements repository.BlockRepository.
type BlockRepo struct {
	pool *pgxpool.Pool
}

// NewBlockRepo constructs a BlockRepo.
func NewBlockRepo(pool *pgxpool.Pool) *BlockRepo {
	return &BlockRepo{pool: pool}
}

// IsBlocked reports whether blocker has blocked blocked.
func (r *BlockRepo) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM user_blocks WHERE blocker_id=$1 AND blocked_id=$2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, q, blockerID, blockedID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// BlockedByForMessage reports, for every candidate recipient, whether that
// recipient has blocked the sender — suppressing status creation for them.
func (r *BlockRepo) BlockedByForMessage(ctx context.Context, recipientIDs []string, senderID string) (map[string]bool, error) {
	result := make(map[string]bool, len(recipientIDs))
	if len(recipientIDs) == 0 {
		return result, nil
	}
	const q = `SELECT blocker_id FROM user_blocks WHERE blocker_id = ANY($1) AND blocked_id = $2`
	rows, err := r.pool.Query(ctx, q, recipientIDs, senderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result[id] = true
	}
	return result, rows.Err()
}
