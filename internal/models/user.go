package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole mirrors the external identity provider's role claim.
type UserRole string

const (
	RoleAdmin  UserRole = "ADMIN"
	RoleLeader UserRole = "LEADER"
	RoleMember UserRole = "MEMBER"
)

// User is the local projection of an externally-authenticated identity.
// It is created on first identity-gateway resolution and refreshed on
// every re-sync via the dual-key upsert (external id, falling back to
// email) that internal/identity performs.
type User struct {
	ID             string    `json:"id" db:"id"`
	ExternalUserID string    `json:"external_user_id" db:"external_user_id"`
	Email          string    `json:"email" db:"email"`
	FirstName      *string   `json:"first_name,omitempty" db:"first_name"`
	LastName       *string   `json:"last_name,omitempty" db:"last_name"`
	DisplayName    string    `json:"display_name" db:"display_name"`
	ImageURL       *string   `json:"image_url,omitempty" db:"image_url"`
	Title          *string   `json:"title,omitempty" db:"title"`
	Division       *string   `json:"division,omitempty" db:"division"`
	Role           UserRole  `json:"role" db:"role"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	IsLeader       bool      `json:"is_leader" db:"is_leader"`
	Settings       JSONMap   `json:"settings,omitempty" db:"settings"`
	LastSyncedAt   time.Time `json:"last_synced_at" db:"last_synced_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// JWTClaims are the claims the identity gateway trusts from a bearer
// token. RegisteredClaims carries sub/exp/iat; the rest is optional
// enrichment used on first upsert.
type JWTClaims struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	Image string `json:"image,omitempty"`
	jwt.RegisteredClaims
}

// ExternalID returns whichever of sub/id identifies the caller upstream.
func (c JWTClaims) ExternalID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.ID
}

// UserResponse is the safe, wire-facing projection of User.
type UserResponse struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Email       string  `json:"email"`
	ImageURL    *string `json:"image_url,omitempty"`
	Title       *string `json:"title,omitempty"`
	IsActive    bool    `json:"is_active"`
}

// ToResponse strips internal-only fields from User.
func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		ImageURL:    u.ImageURL,
		Title:       u.Title,
		IsActive:    u.IsActive,
	}
}
