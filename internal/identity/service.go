// Package identity is the gateway between the external identity
// provider's bearer token and the local user projection: it resolves a
// JWT's claims into a stable local user row via the dual-key upsert, and
// serves the cached batch lookups every other engine uses to enrich
// senders, members and search results.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"histeeria-backend/internal/cache"
	"histeeria-backend/internal/models"
	"histeeria-backend/internal/repository"
)

const directoryCacheTTL = 5 * time.Minute

const keyDirectoryUser = "identity:user:%s"

// Service resolves identities and serves the user directory cache.
type Service struct {
	repo  repository.UserRepository
	cache cache.CacheProvider
}

// NewService creates an identity gateway.
func NewService(repo repository.UserRepository, cacheProvider cache.CacheProvider) *Service {
	return &Service{repo: repo, cache: cacheProvider}
}

// Resolve upserts the local user row for claims, dual-keyed by external
// id first and email second, and returns the stabilized row. This is the
// one place a JWT's claims are allowed to touch the users table.
func (s *Service) Resolve(ctx context.Context, claims *models.JWTClaims) (*models.User, error) {
	external := claims.ExternalID()
	u := &models.User{
		ExternalUserID: external,
		Email:          claims.Email,
		DisplayName:    claims.Name,
		Role:           models.UserRole(claims.Role),
		IsActive:       true,
	}
	if u.DisplayName == "" {
		u.DisplayName = external
	}
	if claims.Image != "" {
		u.ImageURL = &claims.Image
	}

	resolved, err := s.repo.UpsertByExternalIDOrEmail(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	if s.cache != nil {
		s.cache.Delete(ctx, fmt.Sprintf(keyDirectoryUser, resolved.ID))
	}

	return resolved, nil
}

// GetUsers batch-fetches the user directory for ids, serving whatever it
// can from cache and falling back to the repository for the rest.
func (s *Service) GetUsers(ctx context.Context, ids []string) (map[string]*models.User, error) {
	out := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	missing := ids
	if s.cache != nil {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = fmt.Sprintf(keyDirectoryUser, id)
		}
		values, err := s.cache.MGet(ctx, keys)
		if err != nil {
			log.Printf("[Identity] directory cache read failed, falling back to repository: %v", err)
		} else {
			missing = missing[:0]
			for i, v := range values {
				if v == "" {
					missing = append(missing, ids[i])
					continue
				}
				var u models.User
				if err := json.Unmarshal([]byte(v), &u); err != nil {
					missing = append(missing, ids[i])
					continue
				}
				out[u.ID] = &u
			}
		}
	}

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := s.repo.GetByIDs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}

	if s.cache != nil {
		items := make(map[string]string, len(fetched))
		for _, u := range fetched {
			data, err := json.Marshal(u)
			if err != nil {
				continue
			}
			items[fmt.Sprintf(keyDirectoryUser, u.ID)] = string(data)
		}
		if len(items) > 0 {
			if err := s.cache.MSet(ctx, items, directoryCacheTTL); err != nil {
				log.Printf("[Identity] directory cache write failed: %v", err)
			}
		}
	}

	for _, u := range fetched {
		out[u.ID] = u
	}

	return out, nil
}
