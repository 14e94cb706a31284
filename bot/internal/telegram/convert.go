package telegram

import (
	"github.com/gotd/td/tg"

	"github.com/devilmonastery/arachnid/internal/domain/entities"
	"github.com/devilmonastery/arachnid/internal/domain/services"
)

// convertUpdates maps an MTProto updates container to a pipeline event.
// The second result is the update type name used for metrics.
func convertUpdates(u tg.UpdatesClass) (services.Event, string) {
	switch u := u.(type) {
	case *tg.Updates:
		return buildEvent(u.Updates, u.Users, u.Chats), "updates"
	case *tg.UpdatesCombined:
		return buildEvent(u.Updates, u.Users, u.Chats), "updates_combined"
	case *tg.UpdateShort:
		return buildEvent([]tg.UpdateClass{u.Update}, nil, nil), "update_short"
	case *tg.UpdateShortMessage:
		ev := services.Event{}
		if !u.Out {
			ev.Messages = []entities.InboundMessage{{ID: u.ID, SenderID: u.UserID, Text: u.Message}}
		}
		return ev, "update_short_message"
	case *tg.UpdatesTooLong:
		return services.Event{}, "updates_too_long"
	default:
		return services.Event{}, "other"
	}
}

func buildEvent(updates []tg.UpdateClass, users []tg.UserClass, chats []tg.ChatClass) services.Event {
	ev := services.Event{
		Chats: convertChats(chats),
		Users: convertUsers(users),
	}
	for _, update := range updates {
		if msg, ok := privateMessage(update); ok {
			ev.Messages = append(ev.Messages, msg)
		}
	}
	return ev
}

// privateMessage extracts an incoming one-to-one message
func privateMessage(update tg.UpdateClass) (entities.InboundMessage, bool) {
	newMessage, ok := update.(*tg.UpdateNewMessage)
	if !ok {
		return entities.InboundMessage{}, false
	}
	msg, ok := newMessage.Message.(*tg.Message)
	if !ok || msg.Out {
		return entities.InboundMessage{}, false
	}
	peer, ok := msg.PeerID.(*tg.PeerUser)
	if !ok {
		return entities.InboundMessage{}, false
	}
	return entities.InboundMessage{ID: msg.ID, SenderID: peer.UserID, Text: msg.Message}, true
}

func convertUsers(users []tg.UserClass) map[int64]entities.TelegramUser {
	if len(users) == 0 {
		return nil
	}
	out := make(map[int64]entities.TelegramUser, len(users))
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			out[user.ID] = convertUser(user)
		}
	}
	return out
}

func convertUser(u *tg.User) entities.TelegramUser {
	return entities.TelegramUser{
		ID:         u.ID,
		AccessHash: u.AccessHash,
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Bot:        u.Bot,
	}
}

func convertChats(chats []tg.ChatClass) map[int64]entities.TelegramChat {
	if len(chats) == 0 {
		return nil
	}
	out := make(map[int64]entities.TelegramChat, len(chats))
	for _, c := range chats {
		switch c := c.(type) {
		case *tg.Chat:
			out[c.ID] = entities.TelegramChat{ID: c.ID, Title: c.Title, Kind: entities.ChatKindBasic}
		case *tg.Channel:
			out[c.ID] = entities.TelegramChat{ID: c.ID, AccessHash: c.AccessHash, Title: c.Title, Kind: entities.ChatKindChannel}
		}
	}
	return out
}
