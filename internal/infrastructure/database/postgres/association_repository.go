package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/devilmonastery/arachnid/internal/domain/entities"
	"github.com/devilmonastery/arachnid/internal/domain/repositories"
	"github.com/devilmonastery/arachnid/internal/pkg/metrics"
)

// uniqueViolation is the SQLSTATE raised when a primary key or unique constraint is hit
const uniqueViolation = "23505"

const associationColumns = `telegram_id, discord_id, telegram_name, discord_name, linked_at`

const insertAssociation = `
		INSERT INTO user_associations (telegram_id, discord_id, telegram_name, discord_name, linked_at)
		VALUES ($1, $2, $3, $4, $5)
	`

// AssociationRepository implements repositories.AssociationRepository for PostgreSQL
type AssociationRepository struct {
	db  *sqlx.DB
	log *slog.Logger
}

// NewAssociationRepository creates a new association repository
func NewAssociationRepository(db *sqlx.DB) repositories.AssociationRepository {
	return &AssociationRepository{
		db:  db,
		log: slog.Default().With(slog.String("repo", "association")),
	}
}

// GetByTelegramID retrieves the association owned by a Telegram user
func (r *AssociationRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*entities.Association, error) {
	query := `
		SELECT ` + associationColumns + `
		FROM user_associations
		WHERE telegram_id = $1
	`
	return r.getOne(ctx, "get_by_telegram_id", query, telegramID)
}

// GetByDiscordID retrieves the association pointing at a Discord member
func (r *AssociationRepository) GetByDiscordID(ctx context.Context, discordID int64) (*entities.Association, error) {
	query := `
		SELECT ` + associationColumns + `
		FROM user_associations
		WHERE discord_id = $1
	`
	return r.getOne(ctx, "get_by_discord_id", query, discordID)
}

func (r *AssociationRepository) getOne(ctx context.Context, operation, query string, id int64) (*entities.Association, error) {
	start := time.Now()
	var err error
	var rows int64
	defer func() {
		metrics.RecordDBOperation("association", operation, time.Since(start), rows, err)
	}()

	var association entities.Association
	err = r.db.GetContext(ctx, &association, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
			return nil, repositories.ErrAssociationNotFound
		}
		return nil, err
	}

	rows = 1
	return &association, nil
}

// Create inserts a new association
func (r *AssociationRepository) Create(ctx context.Context, association *entities.Association) error {
	start := time.Now()
	var err error
	var rows int64
	defer func() {
		metrics.RecordDBOperation("association", "create", time.Since(start), rows, err)
	}()

	r.log.Debug("creating association",
		slog.Int64("telegram_id", association.TelegramID),
		slog.Int64("discord_id", association.DiscordID))

	_, err = r.db.ExecContext(ctx, insertAssociation,
		association.TelegramID,
		association.DiscordID,
		association.TelegramName,
		association.DiscordName,
		association.LinkedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}

	rows = 1
	return nil
}

// Replace deletes old and inserts association in one transaction
func (r *AssociationRepository) Replace(ctx context.Context, old, association *entities.Association) error {
	if old == nil {
		return r.Create(ctx, association)
	}

	start := time.Now()
	var err error
	var rows int64
	defer func() {
		metrics.RecordDBOperation("association", "replace", time.Since(start), rows, err)
	}()

	r.log.Debug("replacing association",
		slog.Int64("telegram_id", association.TelegramID),
		slog.Int64("old_discord_id", old.DiscordID),
		slog.Int64("new_discord_id", association.DiscordID))

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM user_associations WHERE telegram_id = $1 AND discord_id = $2`,
		old.TelegramID, old.DiscordID)
	if err != nil {
		return err
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, insertAssociation,
		association.TelegramID,
		association.DiscordID,
		association.TelegramName,
		association.DiscordName,
		association.LinkedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	rows = deleted + 1
	return nil
}

// DeleteByTelegramIDs removes associations of the given Telegram users linked before the cutoff
func (r *AssociationRepository) DeleteByTelegramIDs(ctx context.Context, telegramIDs []int64, linkedBefore time.Time) (int64, error) {
	return r.deleteMany(ctx, "delete_by_telegram_ids",
		`DELETE FROM user_associations WHERE telegram_id = ANY($1) AND linked_at < $2`,
		telegramIDs, linkedBefore)
}

// DeleteByDiscordIDs removes associations pointing at the given Discord members linked before the cutoff
func (r *AssociationRepository) DeleteByDiscordIDs(ctx context.Context, discordIDs []int64, linkedBefore time.Time) (int64, error) {
	return r.deleteMany(ctx, "delete_by_discord_ids",
		`DELETE FROM user_associations WHERE discord_id = ANY($1) AND linked_at < $2`,
		discordIDs, linkedBefore)
}

func (r *AssociationRepository) deleteMany(ctx context.Context, operation, query string, ids []int64, linkedBefore time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	start := time.Now()
	var err error
	var rows int64
	defer func() {
		metrics.RecordDBOperation("association", operation, time.Since(start), rows, err)
	}()

	result, err := r.db.ExecContext(ctx, query, pq.Array(ids), linkedBefore)
	if err != nil {
		return 0, err
	}

	rows, err = result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// List returns every association ordered by link time
func (r *AssociationRepository) List(ctx context.Context) ([]*entities.Association, error) {
	start := time.Now()
	var err error
	var associations []*entities.Association
	defer func() {
		metrics.RecordDBOperation("association", "list", time.Since(start), int64(len(associations)), err)
	}()

	query := `
		SELECT ` + associationColumns + `
		FROM user_associations
		ORDER BY linked_at, telegram_id
	`

	err = r.db.SelectContext(ctx, &associations, query)
	if err != nil {
		return nil, err
	}
	return associations, nil
}

// mapWriteError translates unique constraint failures into ErrUniquenessViolation
func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", repositories.ErrUniquenessViolation, pqErr.Constraint)
	}
	return err
}
