package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/devilmonastery/arachnid/internal/domain/repositories"
	"github.com/devilmonastery/arachnid/internal/pkg/logger"
	"github.com/devilmonastery/arachnid/internal/pkg/metrics"
)

// SweepReport summarizes one sweep run
type SweepReport struct {
	// Scanned is the number of associations (telegram) or role holders (discord) examined
	Scanned int
	// Removed is the number of association rows deleted
	Removed int
	// Revoked is the number of role grants removed
	Revoked int
	// Cutoff is when the live directory was fetched. Rows linked at or after it are never removed.
	Cutoff time.Time
}

// Reconciler corrects drift between the association store and the two live directories
type Reconciler struct {
	telegram     TelegramDirectory
	discord      DiscordDirectory
	store        repositories.AssociationRepository
	cache        *RosterCache
	locks        *LinkLocks
	targetChatID int64
	log          *slog.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(
	telegram TelegramDirectory,
	discord DiscordDirectory,
	store repositories.AssociationRepository,
	cache *RosterCache,
	locks *LinkLocks,
	targetChatID int64,
	log *slog.Logger,
) *Reconciler {
	return &Reconciler{
		telegram:     telegram,
		discord:      discord,
		store:        store,
		cache:        cache,
		locks:        locks,
		targetChatID: targetChatID,
		log:          log,
	}
}

// SweepTelegram deletes every association whose Telegram user has left the target chat
func (r *Reconciler) SweepTelegram(ctx context.Context) (report *SweepReport, err error) {
	log := logger.WithSweep(r.log, "telegram")
	report = &SweepReport{}
	start := time.Now()
	defer func() {
		metrics.RecordSweep("telegram", report.Removed, 0, err)
		if err == nil {
			logger.WithDuration(log, time.Since(start)).Info("sweep completed",
				slog.Int("scanned", report.Scanned),
				slog.Int("removed", report.Removed))
		}
	}()

	chat, ok := r.cache.Chat(r.targetChatID)
	if !ok {
		return report, ErrChatNotRegistered
	}

	report.Cutoff = time.Now().UTC()
	members, err := r.telegram.ChatMembers(ctx, chat)
	if err != nil {
		return report, telegramError("fetch chat members", err)
	}
	r.cache.StoreRoster(chat.ID, members, report.Cutoff)

	associations, err := r.store.List(ctx)
	if err != nil {
		return report, storeError("list", err)
	}
	report.Scanned = len(associations)

	var stale []int64
	for _, a := range associations {
		if !members.Contains(a.TelegramID) && a.LinkedAt.Before(report.Cutoff) {
			log.Info("telegram user left the target chat",
				slog.Int64("telegram_id", a.TelegramID),
				slog.Int64("discord_id", a.DiscordID))
			stale = append(stale, a.TelegramID)
		}
	}

	removed, err := r.store.DeleteByTelegramIDs(ctx, stale, report.Cutoff)
	if err != nil {
		return report, storeError("delete by telegram ids", err)
	}
	report.Removed = int(removed)
	metrics.Associations.Set(float64(len(associations) - report.Removed))

	return report, nil
}

// SweepDiscord revokes the target role from every holder without an association,
// then deletes associations whose member no longer holds the role
func (r *Reconciler) SweepDiscord(ctx context.Context) (report *SweepReport, err error) {
	log := logger.WithSweep(r.log, "discord")
	report = &SweepReport{}
	start := time.Now()
	defer func() {
		metrics.RecordSweep("discord", report.Removed, report.Revoked, err)
		if err == nil {
			logger.WithDuration(log, time.Since(start)).Info("sweep completed",
				slog.Int("scanned", report.Scanned),
				slog.Int("revoked", report.Revoked),
				slog.Int("removed", report.Removed))
		}
	}()

	report.Cutoff = time.Now().UTC()
	holders, err := r.discord.RoleHolders(ctx)
	if err != nil {
		return report, discordError("list role holders", err)
	}
	report.Scanned = len(holders)

	associations, err := r.store.List(ctx)
	if err != nil {
		return report, storeError("list", err)
	}

	linked := make(map[int64]struct{}, len(associations))
	for _, a := range associations {
		linked[a.DiscordID] = struct{}{}
	}

	holding := make(map[int64]struct{}, len(holders))
	for _, holder := range holders {
		holding[holder.ID] = struct{}{}
		if _, ok := linked[holder.ID]; ok {
			continue
		}

		revoked, err := r.revokeUnlinked(ctx, holder.ID)
		if err != nil {
			return report, err
		}
		if revoked {
			log.Info("revoked role from unlinked discord member",
				slog.Int64("discord_id", holder.ID),
				slog.String("discord_name", holder.Handle()))
			report.Revoked++
		}
	}

	var dangling []int64
	for _, a := range associations {
		if _, ok := holding[a.DiscordID]; !ok && a.LinkedAt.Before(report.Cutoff) {
			log.Info("linked discord member no longer holds the role",
				slog.Int64("telegram_id", a.TelegramID),
				slog.Int64("discord_id", a.DiscordID))
			dangling = append(dangling, a.DiscordID)
		}
	}

	removed, err := r.store.DeleteByDiscordIDs(ctx, dangling, report.Cutoff)
	if err != nil {
		return report, storeError("delete by discord ids", err)
	}
	report.Removed = int(removed)
	metrics.Associations.Set(float64(len(associations) - report.Removed))

	return report, nil
}

// revokeUnlinked re-checks the store under the member's lock so a link being
// committed right now keeps its grant
func (r *Reconciler) revokeUnlinked(ctx context.Context, discordID int64) (bool, error) {
	unlock := r.locks.LockDiscord(discordID)
	defer unlock()

	_, err := r.store.GetByDiscordID(ctx, discordID)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, repositories.ErrAssociationNotFound):
		return false, storeError("get by discord id", err)
	}

	if err := r.discord.RevokeRole(ctx, discordID); err != nil {
		return false, discordError("revoke role", err)
	}
	return true, nil
}
