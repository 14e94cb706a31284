package entities

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidHandle is returned when text cannot be parsed as a Discord handle
var ErrInvalidHandle = errors.New("invalid discord handle")

var (
	legacyHandlePattern = regexp.MustCompile(`^(.{2,32})#(\d{4})$`)
	modernHandlePattern = regexp.MustCompile(`^[a-z0-9_.]{2,32}$`)
)

// DiscordMember is a member of the target guild
type DiscordMember struct {
	ID            int64
	Username      string
	Discriminator string
	GlobalName    string
	Roles         []string
}

// Handle returns name#1234 for legacy accounts and the bare username otherwise
func (m DiscordMember) Handle() string {
	if m.Discriminator == "" || m.Discriminator == "0" {
		return m.Username
	}
	return m.Username + "#" + m.Discriminator
}

// HasRole reports whether the member holds the given role id
func (m DiscordMember) HasRole(roleID string) bool {
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// DiscordHandle is a parsed user-supplied Discord identity
type DiscordHandle struct {
	Username      string
	Discriminator string
}

// ParseDiscordHandle accepts "Nick#1234" or a unique username like "nick.name"
func ParseDiscordHandle(text string) (DiscordHandle, error) {
	text = strings.TrimSpace(text)
	if m := legacyHandlePattern.FindStringSubmatch(text); m != nil {
		if m[2] == "0000" || strings.ContainsAny(m[1], "@#:") {
			return DiscordHandle{}, ErrInvalidHandle
		}
		return DiscordHandle{Username: m[1], Discriminator: m[2]}, nil
	}
	lower := strings.ToLower(text)
	if modernHandlePattern.MatchString(lower) {
		return DiscordHandle{Username: lower}, nil
	}
	return DiscordHandle{}, ErrInvalidHandle
}

// Matches reports whether the handle identifies the member
func (h DiscordHandle) Matches(m DiscordMember) bool {
	if h.Discriminator != "" {
		return m.Username == h.Username && m.Discriminator == h.Discriminator
	}
	if m.Discriminator != "" && m.Discriminator != "0" {
		return false
	}
	return strings.EqualFold(m.Username, h.Username)
}

// String formats the handle the way users type it
func (h DiscordHandle) String() string {
	if h.Discriminator == "" {
		return h.Username
	}
	return h.Username + "#" + h.Discriminator
}

// DiscordTarget names the guild and role granted to linked members
type DiscordTarget struct {
	GuildID   string
	GuildName string
	RoleID    string
	RoleName  string
}
