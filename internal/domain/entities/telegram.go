package entities

import "strings"

// ChatKind determines how the roster of a Telegram chat is fetched
type ChatKind int

const (
	// ChatKindBasic is a small group whose members come with the full chat metadata
	ChatKindBasic ChatKind = iota
	// ChatKindChannel is a channel or supergroup, listed page by page
	ChatKindChannel
)

// String returns the kind name used in logs
func (k ChatKind) String() string {
	switch k {
	case ChatKindBasic:
		return "basic"
	case ChatKindChannel:
		return "channel"
	default:
		return "unknown"
	}
}

// TelegramUser is a Telegram account as observed in updates or rosters
type TelegramUser struct {
	ID         int64
	AccessHash int64
	Username   string
	FirstName  string
	LastName   string
	Bot        bool
}

// DisplayName returns the @username if set, otherwise the full name
func (u TelegramUser) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return "unknown"
	}
	return name
}

// TelegramChat is the metadata of a Telegram group or channel
type TelegramChat struct {
	ID         int64
	AccessHash int64
	Title      string
	Kind       ChatKind
}

// Roster maps Telegram user ids to the members of a chat
type Roster map[int64]TelegramUser

// Contains reports whether the user id is present in the roster
func (r Roster) Contains(userID int64) bool {
	_, ok := r[userID]
	return ok
}

// InboundMessage is a private message sent to the bot
type InboundMessage struct {
	ID       int
	SenderID int64
	Text     string
}

// IsStartCommand reports whether the message is the /start command,
// optionally with a deep-link payload or a bot mention
func (m InboundMessage) IsStartCommand() bool {
	fields := strings.Fields(m.Text)
	if len(fields) == 0 {
		return false
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return cmd == "/start"
}
