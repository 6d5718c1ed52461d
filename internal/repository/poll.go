package repository

import (
	"context"

	"histeeria-backend/internal/models"
)

// PollRepository is the data-access contract for polls attached to
// messages.
type PollRepository interface {
	// CreateWithMessage inserts the POLL message, the poll row, and its
	// options in one transaction.
	CreateWithMessage(ctx context.Context, msg *models.Message, poll *models.Poll, optionTexts []string) (*models.Poll, error)

	GetByID(ctx context.Context, pollID string) (*models.Poll, error)
	GetByMessageID(ctx context.Context, messageID string) (*models.Poll, error)
	GetOptions(ctx context.Context, pollID string) ([]models.PollOption, error)

	// Vote locks the poll row, deletes the user's prior votes, and
	// inserts the new ones, all in one transaction.
	Vote(ctx context.Context, pollID, userID string, optionIDs []string) error

	UserSelection(ctx context.Context, pollID, userID string) ([]string, error)
	Tally(ctx context.Context, pollID string) ([]models.PollOptionResult, int, error)

	Close(ctx context.Context, pollID string) error
}
