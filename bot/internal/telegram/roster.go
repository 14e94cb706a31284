package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gotd/td/tg"

	"github.com/devilmonastery/arachnid/internal/domain/entities"
)

const participantsPageSize = 200

// Queries appended one rune at a time when a filter stops short of the chat's
// participant count. Telegram caps every filter at roughly 10k results.
const (
	searchAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	maxSearchDepth = 3
)

// ErrIncompleteRoster is returned when Telegram would not list every participant.
// Callers must not treat the partial result as the chat's membership.
var ErrIncompleteRoster = errors.New("incomplete chat roster")

// ChatMembers fetches the complete roster of the chat
func (c *Client) ChatMembers(ctx context.Context, chat entities.TelegramChat) (entities.Roster, error) {
	switch chat.Kind {
	case entities.ChatKindChannel:
		return c.channelMembers(ctx, chat)
	default:
		return c.basicChatMembers(ctx, chat)
	}
}

// channelMembers lists recent participants and, past the listing cap, searches
// by name prefix until the roster reaches the reported participant count
func (c *Client) channelMembers(ctx context.Context, chat entities.TelegramChat) (entities.Roster, error) {
	roster := make(entities.Roster)
	channel := &tg.InputChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash}

	total, complete, err := c.participantPages(ctx, channel, &tg.ChannelParticipantsRecent{}, roster)
	if err != nil {
		return nil, fmt.Errorf("get participants of channel %d: %w", chat.ID, err)
	}

	if !complete {
		c.log.Info("recent participants capped, searching the rest",
			slog.Int64("chat_id", chat.ID),
			slog.Int("participants", total),
			slog.Int("listed", len(roster)))
		for _, r := range searchAlphabet {
			if len(roster) >= total {
				break
			}
			if err := c.searchParticipants(ctx, channel, string(r), 1, total, roster); err != nil {
				return nil, fmt.Errorf("search participants of channel %d: %w", chat.ID, err)
			}
		}
	}

	if len(roster) < total {
		return nil, fmt.Errorf("%w: channel %d reports %d participants, fetched %d",
			ErrIncompleteRoster, chat.ID, total, len(roster))
	}

	c.log.Debug("fetched channel roster",
		slog.Int64("chat_id", chat.ID),
		slog.Int("members", len(roster)))
	return roster, nil
}

func (c *Client) searchParticipants(ctx context.Context, channel tg.InputChannelClass, query string, depth, total int, roster entities.Roster) error {
	_, complete, err := c.participantPages(ctx, channel, &tg.ChannelParticipantsSearch{Q: query}, roster)
	if err != nil || complete || depth >= maxSearchDepth {
		return err
	}

	for _, r := range searchAlphabet {
		if len(roster) >= total {
			return nil
		}
		if err := c.searchParticipants(ctx, channel, query+string(r), depth+1, total, roster); err != nil {
			return err
		}
	}
	return nil
}

// participantPages pages through one participants filter into roster. It
// returns the count Telegram reports for the filter and whether every one of
// them was listed.
func (c *Client) participantPages(ctx context.Context, channel tg.InputChannelClass, filter tg.ChannelParticipantsFilterClass, roster entities.Roster) (int, bool, error) {
	offset, count := 0, 0
	for {
		res, err := c.api.ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
			Channel: channel,
			Filter:  filter,
			Offset:  offset,
			Limit:   participantsPageSize,
		})
		if err != nil {
			if waited, waitErr := c.floodWait(ctx, err); waited {
				continue
			} else if waitErr != nil {
				err = waitErr
			}
			return 0, false, fmt.Errorf("offset %d: %w", offset, err)
		}

		page, ok := res.(*tg.ChannelsChannelParticipants)
		if !ok {
			return 0, false, fmt.Errorf("unexpected participants response %T", res)
		}
		count = page.Count

		users := convertUsers(page.Users)
		for _, p := range page.Participants {
			id, ok := participantUserID(p)
			if !ok {
				continue
			}
			if user, ok := users[id]; ok {
				roster[id] = user
			} else if _, seen := roster[id]; !seen {
				roster[id] = entities.TelegramUser{ID: id}
			}
		}

		offset += len(page.Participants)
		if len(page.Participants) == 0 || offset >= count {
			return count, offset >= count, nil
		}
	}
}

// participantUserID returns the user behind a current participant. Banned and
// departed entries are not members.
func participantUserID(p tg.ChannelParticipantClass) (int64, bool) {
	switch p := p.(type) {
	case *tg.ChannelParticipant:
		return p.UserID, true
	case *tg.ChannelParticipantSelf:
		return p.UserID, true
	case *tg.ChannelParticipantAdmin:
		return p.UserID, true
	case *tg.ChannelParticipantCreator:
		return p.UserID, true
	default:
		return 0, false
	}
}

// basicChatMembers reads the participant list from the full chat metadata
func (c *Client) basicChatMembers(ctx context.Context, chat entities.TelegramChat) (entities.Roster, error) {
	full, err := c.api.MessagesGetFullChat(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("get full chat %d: %w", chat.ID, err)
	}
	return basicRoster(full)
}

func basicRoster(full *tg.MessagesChatFull) (entities.Roster, error) {
	chatFull, ok := full.FullChat.(*tg.ChatFull)
	if !ok {
		return nil, fmt.Errorf("unexpected full chat %T", full.FullChat)
	}
	participants, ok := chatFull.Participants.(*tg.ChatParticipants)
	if !ok {
		return nil, fmt.Errorf("%w: participants of chat %d are hidden", ErrIncompleteRoster, chatFull.ID)
	}

	users := convertUsers(full.Users)
	roster := make(entities.Roster, len(participants.Participants))
	for _, p := range participants.Participants {
		id := p.GetUserID()
		if user, ok := users[id]; ok {
			roster[id] = user
		} else {
			roster[id] = entities.TelegramUser{ID: id}
		}
	}
	return roster, nil
}
