package services

import (
	"context"

	"github.com/devilmonastery/arachnid/internal/domain/entities"
)

// TelegramDirectory is the live view of Telegram used by the resolver and sweeper
type TelegramDirectory interface {
	// SendMessage sends a private message to the user
	SendMessage(ctx context.Context, user entities.TelegramUser, text string) error

	// ChatMembers fetches the full current roster of a chat. The fetch strategy
	// depends on chat.Kind: channels are paged, basic groups use the full chat.
	ChatMembers(ctx context.Context, chat entities.TelegramChat) (entities.Roster, error)
}

// DiscordDirectory is the live view of the target guild and role
type DiscordDirectory interface {
	// ResolveMember finds the guild member matching the handle.
	// Returns ErrMemberNotFound if nobody matches.
	ResolveMember(ctx context.Context, handle entities.DiscordHandle) (*entities.DiscordMember, error)

	// Member fetches a guild member by id. Returns ErrMemberNotFound if they left.
	Member(ctx context.Context, discordID int64) (*entities.DiscordMember, error)

	// GrantRole adds the target role to the member
	GrantRole(ctx context.Context, discordID int64) error

	// RevokeRole removes the target role from the member
	RevokeRole(ctx context.Context, discordID int64) error

	// RoleHolders lists every guild member currently holding the target role
	RoleHolders(ctx context.Context) ([]entities.DiscordMember, error)

	// Target describes the guild and role for help messages
	Target(ctx context.Context) (entities.DiscordTarget, error)
}
