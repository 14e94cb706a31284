package entities

import "time"

// Association links a Telegram user to the Discord member that was granted the
// target role on their behalf. Both ids are unique across the table.
type Association struct {
	TelegramID   int64     `json:"telegram_id" db:"telegram_id"`
	DiscordID    int64     `json:"discord_id" db:"discord_id"`
	TelegramName string    `json:"telegram_name" db:"telegram_name"`
	DiscordName  string    `json:"discord_name" db:"discord_name"`
	LinkedAt     time.Time `json:"linked_at" db:"linked_at"`
}

// NewAssociation builds an association stamped with the current UTC time
func NewAssociation(user TelegramUser, member DiscordMember) *Association {
	return &Association{
		TelegramID:   user.ID,
		DiscordID:    member.ID,
		TelegramName: user.DisplayName(),
		DiscordName:  member.Handle(),
		LinkedAt:     time.Now().UTC(),
	}
}
