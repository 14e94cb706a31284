package repositories

import (
	"context"
	"time"

	"github.com/devilmonastery/arachnid/internal/domain/entities"
)

// AssociationRepository handles persistence of Telegram/Discord identity links
type AssociationRepository interface {
	// GetByTelegramID retrieves the association owned by a Telegram user
	GetByTelegramID(ctx context.Context, telegramID int64) (*entities.Association, error)

	// GetByDiscordID retrieves the association pointing at a Discord member
	GetByDiscordID(ctx context.Context, discordID int64) (*entities.Association, error)

	// Create inserts a new association.
	// Returns ErrUniquenessViolation if either id is already linked.
	Create(ctx context.Context, association *entities.Association) error

	// Replace atomically deletes old (if non-nil) and inserts association.
	// Returns ErrUniquenessViolation if the insert collides with another row.
	Replace(ctx context.Context, old, association *entities.Association) error

	// DeleteByTelegramIDs removes the associations of the given Telegram users
	// that were linked before the cutoff, returning the number of rows removed
	DeleteByTelegramIDs(ctx context.Context, telegramIDs []int64, linkedBefore time.Time) (int64, error)

	// DeleteByDiscordIDs removes the associations pointing at the given Discord
	// members that were linked before the cutoff
	DeleteByDiscordIDs(ctx context.Context, discordIDs []int64, linkedBefore time.Time) (int64, error)

	// List returns every association ordered by link time
	List(ctx context.Context) ([]*entities.Association, error)
}
