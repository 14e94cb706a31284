package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/devilmonastery/arachnid/internal/domain/entities"
	"github.com/devilmonastery/arachnid/internal/domain/services"
	"github.com/devilmonastery/arachnid/internal/pkg/idgen"
)

// Discord returns at most 1000 members per page
const membersPageSize = 1000

// Directory implements services.DiscordDirectory for one guild and role
type Directory struct {
	session *discordgo.Session
	guildID string
	roleID  string
	log     *slog.Logger
}

// NewDirectory creates a directory over an existing session
func NewDirectory(session *discordgo.Session, guildID, roleID string, log *slog.Logger) *Directory {
	return &Directory{
		session: session,
		guildID: guildID,
		roleID:  roleID,
		log:     log,
	}
}

// ResolveMember searches the guild by username and returns the exact match.
// The search is a prefix match capped at one page; when the page is full and
// holds no exact match, the whole guild is scanned instead.
func (d *Directory) ResolveMember(ctx context.Context, handle entities.DiscordHandle) (*entities.DiscordMember, error) {
	candidates, err := d.session.GuildMembersSearch(d.guildID, handle.Username, membersPageSize, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("search guild members for %q: %w", handle.String(), err)
	}

	if member, ok := matchHandle(candidates, handle, d.log); ok {
		return &member, nil
	}
	if len(candidates) < membersPageSize {
		return nil, services.ErrMemberNotFound
	}

	d.log.Debug("member search page full, scanning guild", slog.String("handle", handle.String()))
	var found *entities.DiscordMember
	err = d.scanMembers(ctx, func(members []*discordgo.Member) bool {
		if member, ok := matchHandle(members, handle, d.log); ok {
			found = &member
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, services.ErrMemberNotFound
	}
	return found, nil
}

func matchHandle(members []*discordgo.Member, handle entities.DiscordHandle, log *slog.Logger) (entities.DiscordMember, bool) {
	for _, m := range members {
		member, err := convertMember(m)
		if err != nil {
			log.Warn("skipping malformed guild member", slog.String("error", err.Error()))
			continue
		}
		if handle.Matches(member) {
			return member, true
		}
	}
	return entities.DiscordMember{}, false
}

// Member fetches a guild member by id
func (d *Directory) Member(ctx context.Context, discordID int64) (*entities.DiscordMember, error) {
	m, err := d.session.GuildMember(d.guildID, idgen.FormatDiscordID(discordID), discordgo.WithContext(ctx))
	if err != nil {
		if isUnknownMember(err) {
			return nil, services.ErrMemberNotFound
		}
		return nil, fmt.Errorf("get guild member %d: %w", discordID, err)
	}

	member, err := convertMember(m)
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// GrantRole adds the target role to the member
func (d *Directory) GrantRole(ctx context.Context, discordID int64) error {
	userID := idgen.FormatDiscordID(discordID)
	if err := d.session.GuildMemberRoleAdd(d.guildID, userID, d.roleID, discordgo.WithContext(ctx)); err != nil {
		if isUnknownMember(err) {
			return services.ErrMemberNotFound
		}
		return fmt.Errorf("add role %s to %s: %w", d.roleID, userID, err)
	}

	d.log.Info("granted discord role",
		slog.String("user_id", userID),
		slog.String("role_id", d.roleID))
	return nil
}

// RevokeRole removes the target role. A member who already left counts as revoked.
func (d *Directory) RevokeRole(ctx context.Context, discordID int64) error {
	userID := idgen.FormatDiscordID(discordID)
	if err := d.session.GuildMemberRoleRemove(d.guildID, userID, d.roleID, discordgo.WithContext(ctx)); err != nil {
		if isUnknownMember(err) {
			return nil
		}
		return fmt.Errorf("remove role %s from %s: %w", d.roleID, userID, err)
	}

	d.log.Info("revoked discord role",
		slog.String("user_id", userID),
		slog.String("role_id", d.roleID))
	return nil
}

// RoleHolders pages through the whole guild and keeps members with the target role
func (d *Directory) RoleHolders(ctx context.Context) ([]entities.DiscordMember, error) {
	var holders []entities.DiscordMember
	totalFetched := 0

	err := d.scanMembers(ctx, func(members []*discordgo.Member) bool {
		holders = append(holders, filterRoleHolders(members, d.roleID, d.log)...)
		totalFetched += len(members)
		return true
	})
	if err != nil {
		return nil, err
	}

	d.log.Debug("listed role holders",
		slog.String("guild_id", d.guildID),
		slog.Int("members_scanned", totalFetched),
		slog.Int("holders", len(holders)))
	return holders, nil
}

// scanMembers feeds every page of guild members to visit until it returns false
func (d *Directory) scanMembers(ctx context.Context, visit func([]*discordgo.Member) bool) error {
	after := ""
	for {
		members, err := d.session.GuildMembers(d.guildID, after, membersPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("list guild members after %q: %w", after, err)
		}
		if len(members) == 0 || !visit(members) || len(members) < membersPageSize {
			return nil
		}
		last := members[len(members)-1]
		if last.User == nil {
			return errors.New("guild member page ends with a member without user")
		}
		after = last.User.ID
	}
}

// Target looks up the guild and role names
func (d *Directory) Target(ctx context.Context) (entities.DiscordTarget, error) {
	guild, err := d.session.Guild(d.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return entities.DiscordTarget{}, fmt.Errorf("get guild %s: %w", d.guildID, err)
	}

	roles, err := d.session.GuildRoles(d.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return entities.DiscordTarget{}, fmt.Errorf("get roles of guild %s: %w", d.guildID, err)
	}

	for _, role := range roles {
		if role.ID == d.roleID {
			return entities.DiscordTarget{
				GuildID:   guild.ID,
				GuildName: guild.Name,
				RoleID:    role.ID,
				RoleName:  role.Name,
			}, nil
		}
	}
	return entities.DiscordTarget{}, fmt.Errorf("role %s not found in guild %s", d.roleID, guild.Name)
}

func filterRoleHolders(members []*discordgo.Member, roleID string, log *slog.Logger) []entities.DiscordMember {
	var holders []entities.DiscordMember
	for _, m := range members {
		member, err := convertMember(m)
		if err != nil {
			log.Warn("skipping malformed guild member", slog.String("error", err.Error()))
			continue
		}
		if member.HasRole(roleID) {
			holders = append(holders, member)
		}
	}
	return holders
}

func convertMember(m *discordgo.Member) (entities.DiscordMember, error) {
	if m == nil || m.User == nil {
		return entities.DiscordMember{}, errors.New("guild member without user")
	}
	id, err := idgen.ParseDiscordID(m.User.ID)
	if err != nil {
		return entities.DiscordMember{}, err
	}
	return entities.DiscordMember{
		ID:            id,
		Username:      m.User.Username,
		Discriminator: m.User.Discriminator,
		GlobalName:    m.User.GlobalName,
		Roles:         m.Roles,
	}, nil
}

// isUnknownMember reports whether Discord rejected the call because the user is not in the guild
func isUnknownMember(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code != 0 {
		return restErr.Message.Code == discordgo.ErrCodeUnknownMember || restErr.Message.Code == discordgo.ErrCodeUnknownUser
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
