package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/devilmonastery/arachnid/internal/domain/entities"
	"github.com/devilmonastery/arachnid/internal/domain/repositories"
	"github.com/devilmonastery/arachnid/internal/pkg/logger"
	"github.com/devilmonastery/arachnid/internal/pkg/metrics"
)

// LinkOutcome is the terminal state of one link request
type LinkOutcome string

const (
	OutcomeIgnored             LinkOutcome = "ignored"
	OutcomeHelp                LinkOutcome = "help"
	OutcomeNotMember           LinkOutcome = "not_member"
	OutcomeIdentityNotFound    LinkOutcome = "identity_not_found"
	OutcomeTargetAlreadyLinked LinkOutcome = "target_already_linked"
	OutcomeCreated             LinkOutcome = "created"
	OutcomeReplaced            LinkOutcome = "replaced"
	OutcomeFailed              LinkOutcome = "failed"
)

// LinkResult describes how a link request ended
type LinkResult struct {
	Outcome LinkOutcome
	// Reason is the rejection error for rejected outcomes
	Reason error
	// Association is the committed link for created and replaced outcomes
	Association *entities.Association
	// Previous is the association that was replaced
	Previous *entities.Association
}

// LinkResolver verifies a Telegram user against the target chat and links
// them to a Discord member, granting the target role
type LinkResolver struct {
	telegram     TelegramDirectory
	discord      DiscordDirectory
	store        repositories.AssociationRepository
	cache        *RosterCache
	locks        *LinkLocks
	messages     *Messages
	targetChatID int64
	target       entities.DiscordTarget
	log          *slog.Logger
}

// NewLinkResolver creates a new link resolver
func NewLinkResolver(
	telegram TelegramDirectory,
	discord DiscordDirectory,
	store repositories.AssociationRepository,
	cache *RosterCache,
	locks *LinkLocks,
	messages *Messages,
	targetChatID int64,
	target entities.DiscordTarget,
	log *slog.Logger,
) *LinkResolver {
	return &LinkResolver{
		telegram:     telegram,
		discord:      discord,
		store:        store,
		cache:        cache,
		locks:        locks,
		messages:     messages,
		targetChatID: targetChatID,
		target:       target,
		log:          log,
	}
}

// HandleMessage implements MessageHandler. Rejections are not errors; only
// platform and store failures are returned.
func (r *LinkResolver) HandleMessage(ctx context.Context, msg entities.InboundMessage, users map[int64]entities.TelegramUser) error {
	_, err := r.Resolve(ctx, msg, users)
	return err
}

// Resolve runs the link protocol for one private message
func (r *LinkResolver) Resolve(ctx context.Context, msg entities.InboundMessage, users map[int64]entities.TelegramUser) (*LinkResult, error) {
	sender, ok := users[msg.SenderID]
	if !ok {
		sender, ok = r.cache.User(msg.SenderID)
	}
	if !ok || sender.Bot {
		r.log.Debug("ignoring message from unknown sender",
			slog.Int64("telegram_id", msg.SenderID))
		return r.finish(OutcomeIgnored, nil), nil
	}

	log := logger.WithTelegramUser(r.log, sender.ID)

	if msg.IsStartCommand() {
		return r.help(ctx, log, sender)
	}

	chat, ok := r.cache.Chat(r.targetChatID)
	if !ok {
		return r.fail(ctx, log, sender, ErrChatNotRegistered)
	}

	r.reply(ctx, log, sender, r.messages.Checking())

	// Membership is checked against a live roster, never the cache
	fetchedAt := time.Now().UTC()
	members, err := r.telegram.ChatMembers(ctx, chat)
	if err != nil {
		return r.fail(ctx, log, sender, telegramError("fetch chat members", err))
	}
	r.cache.StoreRoster(chat.ID, members, fetchedAt)

	if !members.Contains(sender.ID) {
		log.Info("link rejected, sender not in target chat")
		return r.reject(ctx, log, sender, OutcomeNotMember, ErrNotMember, r.messages.NotMember())
	}

	handle, err := entities.ParseDiscordHandle(msg.Text)
	if err != nil {
		log.Info("link rejected, message is not a discord handle")
		return r.reject(ctx, log, sender, OutcomeIdentityNotFound, ErrIdentityNotFound, r.messages.IdentityNotFound())
	}

	member, err := r.discord.ResolveMember(ctx, handle)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			log.Info("link rejected, discord member not found", slog.String("handle", handle.String()))
			return r.reject(ctx, log, sender, OutcomeIdentityNotFound, ErrIdentityNotFound, r.messages.IdentityNotFound())
		}
		return r.fail(ctx, log, sender, discordError("resolve member", err))
	}

	return r.commit(ctx, log, sender, *member)
}

// commit checks existing links and creates or replaces the association while
// holding the locks of both identities
func (r *LinkResolver) commit(ctx context.Context, log *slog.Logger, sender entities.TelegramUser, member entities.DiscordMember) (*LinkResult, error) {
	unlock := r.locks.LockPair(sender.ID, member.ID)
	defer unlock()

	log = log.With(slog.Int64("discord_id", member.ID))
	data := MessageData{
		ChatTitle: r.chatTitle(),
		GuildName: r.target.GuildName,
		RoleName:  r.target.RoleName,
		New:       member.Handle(),
	}

	_, err := r.store.GetByDiscordID(ctx, member.ID)
	switch {
	case err == nil:
		log.Info("link rejected, discord member already linked")
		return r.reject(ctx, log, sender, OutcomeTargetAlreadyLinked, ErrTargetAlreadyLinked, r.messages.AlreadyLinked(data))
	case !errors.Is(err, repositories.ErrAssociationNotFound):
		return r.fail(ctx, log, sender, storeError("get by discord id", err))
	}

	previous, err := r.store.GetByTelegramID(ctx, sender.ID)
	if err != nil {
		if !errors.Is(err, repositories.ErrAssociationNotFound) {
			return r.fail(ctx, log, sender, storeError("get by telegram id", err))
		}
		previous = nil
	}

	// Grant before writing: a lost write leaves an orphan grant, which the Discord sweep revokes
	if err := r.discord.GrantRole(ctx, member.ID); err != nil {
		return r.fail(ctx, log, sender, discordError("grant role", err))
	}

	association := entities.NewAssociation(sender, member)
	if previous != nil {
		err = r.store.Replace(ctx, previous, association)
	} else {
		err = r.store.Create(ctx, association)
	}
	if err != nil {
		if isConflict(err) {
			log.Warn("association write lost a uniqueness race", slog.String("error", err.Error()))
			return r.reject(ctx, log, sender, OutcomeTargetAlreadyLinked, ErrTargetAlreadyLinked, r.messages.AlreadyLinked(data))
		}
		log.Error("role granted but association not stored, discord sweep will revoke it",
			slog.String("error", err.Error()))
		return r.fail(ctx, log, sender, storeError("write association", err))
	}

	if previous == nil {
		log.Info("association created", slog.String("discord_name", association.DiscordName))
		r.reply(ctx, log, sender, r.messages.Linked(data))
		return r.finishCommitted(OutcomeCreated, association, nil), nil
	}

	r.revokePrevious(ctx, log, previous)

	data.Old = previous.DiscordName
	log.Info("association replaced",
		slog.Int64("old_discord_id", previous.DiscordID),
		slog.String("old_discord_name", previous.DiscordName),
		slog.String("discord_name", association.DiscordName))
	r.reply(ctx, log, sender, r.messages.Replaced(data))
	return r.finishCommitted(OutcomeReplaced, association, previous), nil
}

// revokePrevious removes the role from the member that was linked before.
// It is best-effort: failures are left for the Discord sweep.
func (r *LinkResolver) revokePrevious(ctx context.Context, log *slog.Logger, previous *entities.Association) {
	log = log.With(slog.Int64("old_discord_id", previous.DiscordID))

	if _, err := r.discord.Member(ctx, previous.DiscordID); err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			log.Info("previous discord member left the guild, skipping revoke")
			return
		}
		log.Warn("failed to look up previous discord member, skipping revoke", slog.String("error", err.Error()))
		return
	}

	if err := r.discord.RevokeRole(ctx, previous.DiscordID); err != nil {
		log.Warn("failed to revoke role from previous discord member", slog.String("error", err.Error()))
	}
}

func (r *LinkResolver) help(ctx context.Context, log *slog.Logger, sender entities.TelegramUser) (*LinkResult, error) {
	r.reply(ctx, log, sender, r.messages.Help(MessageData{
		ChatTitle: r.chatTitle(),
		GuildName: r.target.GuildName,
		RoleName:  r.target.RoleName,
	}))
	return r.finish(OutcomeHelp, nil), nil
}

// chatTitle names the target chat, falling back to its id until the chat has
// been seen in an update
func (r *LinkResolver) chatTitle() string {
	if chat, ok := r.cache.Chat(r.targetChatID); ok && chat.Title != "" {
		return chat.Title
	}
	return strconv.FormatInt(r.targetChatID, 10)
}

func (r *LinkResolver) reject(ctx context.Context, log *slog.Logger, sender entities.TelegramUser, outcome LinkOutcome, reason error, text string) (*LinkResult, error) {
	r.reply(ctx, log, sender, text)
	return r.finish(outcome, reason), nil
}

// fail aborts the request, tells the user to retry later and returns err to the pipeline
func (r *LinkResolver) fail(ctx context.Context, log *slog.Logger, sender entities.TelegramUser, err error) (*LinkResult, error) {
	r.reply(ctx, log, sender, r.messages.TryLater())
	return r.finish(OutcomeFailed, err), err
}

func (r *LinkResolver) reply(ctx context.Context, log *slog.Logger, sender entities.TelegramUser, text string) {
	if err := r.telegram.SendMessage(ctx, sender, text); err != nil {
		log.Warn("failed to send telegram message", slog.String("error", err.Error()))
	}
}

func (r *LinkResolver) finish(outcome LinkOutcome, reason error) *LinkResult {
	metrics.LinkRequests.WithLabelValues(string(outcome)).Inc()
	return &LinkResult{Outcome: outcome, Reason: reason}
}

func (r *LinkResolver) finishCommitted(outcome LinkOutcome, association, previous *entities.Association) *LinkResult {
	result := r.finish(outcome, nil)
	result.Association = association
	result.Previous = previous
	return result
}
