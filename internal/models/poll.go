package models

import (
	"time"

	"histeeria-backend/pkg/apperr"
)

// Poll is attached to the POLL message that created it; MessageID is
// unique, so there is exactly one poll per message.
type Poll struct {
	ID             string       `json:"id" db:"id"`
	MessageID      string       `json:"message_id" db:"message_id"`
	Question       string       `json:"question" db:"question"`
	MultipleChoice bool         `json:"multiple_choice" db:"multiple_choice"`
	ExpiresAt      *time.Time   `json:"expires_at,omitempty" db:"expires_at"`
	ClosedAt       *time.Time   `json:"closed_at,omitempty" db:"closed_at"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	Options        []PollOption `json:"options,omitempty" db:"-"`
}

// PollOption is one of a poll's 2+ choices.
type PollOption struct {
	ID         string `json:"id" db:"id"`
	PollID     string `json:"poll_id" db:"poll_id"`
	OptionText string `json:"option_text" db:"option_text"`
	Position   int    `json:"position" db:"position"`
}

// PollVote is a single user's ballot for one option. The engine, not a
// schema constraint, enforces the single-choice invariant: the unique
// constraint here is (poll, option, user), not (poll, user), matching
// the source's looser schema.
type PollVote struct {
	ID        string    `json:"id" db:"id"`
	PollID    string    `json:"poll_id" db:"poll_id"`
	OptionID  string    `json:"option_id" db:"option_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CreatePollRequest is the REST body for creating a poll, attached to a
// new POLL message in the given conversation.
type CreatePollRequest struct {
	ConversationID string   `json:"conversation_id" binding:"required"`
	Question       string   `json:"question" binding:"required,max=280"`
	Options        []string `json:"options" binding:"required,min=2"`
	MultipleChoice bool     `json:"multiple_choice"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// VotePollRequest casts (or replaces) a user's ballot.
type VotePollRequest struct {
	OptionIDs []string `json:"option_ids" binding:"required,min=1"`
}

// PollResults is the tally returned from get_poll and after every vote.
type PollResults struct {
	Poll          *Poll              `json:"poll"`
	Options       []PollOptionResult `json:"options"`
	TotalVotes    int                `json:"total_votes"`
	UserSelection []string           `json:"user_selection"`
	IsClosed      bool               `json:"is_closed"`
}

// PollOptionResult is one option's tally.
type PollOptionResult struct {
	ID         string  `json:"id"`
	OptionText string  `json:"option_text"`
	Position   int     `json:"position"`
	VotesCount int     `json:"votes_count"`
}

// Validate checks the poll-creation request's shape.
func (r *CreatePollRequest) Validate() error {
	if len(r.Options) < 2 {
		return apperr.Validation("a poll needs at least 2 options")
	}
	seen := make(map[string]bool, len(r.Options))
	for _, option := range r.Options {
		if len(option) == 0 {
			return apperr.Validation("poll options cannot be empty")
		}
		if len(option) > 200 {
			return apperr.Validation("poll option is too long")
		}
		if seen[option] {
			return apperr.Validation("poll options must be distinct")
		}
		seen[option] = true
	}
	return nil
}

// IsActive reports whether the poll still accepts votes.
func (p *Poll) IsActive() bool {
	if p.ClosedAt != nil {
		return false
	}
	if p.ExpiresAt != nil && !time.Now().Before(*p.ExpiresAt) {
		return false
	}
	return true
}
