package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devilmonastery/arachnid/internal/domain/entities"
	"github.com/devilmonastery/arachnid/internal/domain/repositories"
)

func TestResolverHelp(t *testing.T) {
	user := testUser(7, "seven")
	f := newFixture(t, newFakeTelegram(user), newFakeDiscord(), newMemStore())

	for _, text := range []string{"/start", "/start payload", "/start@arachnid_bot"} {
		result, err := f.send(t, user, text)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", text, err)
		}
		if result.Outcome != OutcomeHelp {
			t.Errorf("Resolve(%q) outcome = %s, want %s", text, result.Outcome, OutcomeHelp)
		}
	}

	help := f.telegram.lastMessageTo(7)
	for _, want := range []string{"Secret Chat", "verified", "Spider Den"} {
		if !strings.Contains(help, want) {
			t.Errorf("help message %q does not mention %q", help, want)
		}
	}
	if calls := f.store.callCount(); calls != 0 {
		t.Errorf("store calls = %d, want 0", calls)
	}
	if f.telegram.fetches != 0 {
		t.Errorf("roster fetches = %d, want 0", f.telegram.fetches)
	}
}

func TestResolverHelpBeforeChatRegistered(t *testing.T) {
	user := testUser(7, "seven")
	telegram := newFakeTelegram(user)
	messages, err := NewMessages(MessageTemplates{})
	if err != nil {
		t.Fatalf("NewMessages() error = %v", err)
	}
	resolver := NewLinkResolver(telegram, newFakeDiscord(), newMemStore(), NewRosterCache(), NewLinkLocks(),
		messages, testChatID, testTarget(), discardLogger())

	users := map[int64]entities.TelegramUser{user.ID: user}
	result, err := resolver.Resolve(context.Background(), entities.InboundMessage{ID: 1, SenderID: user.ID, Text: "/start"}, users)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.Outcome != OutcomeHelp {
		t.Fatalf("Resolve() outcome = %s, want %s", result.Outcome, OutcomeHelp)
	}

	help := telegram.lastMessageTo(7)
	if !strings.Contains(help, fmt.Sprint(testChatID)) {
		t.Errorf("help message %q does not name the chat by id", help)
	}
	if strings.Contains(help, "chat  ") || strings.Contains(help, "chat ,") {
		t.Errorf("help message %q has an empty chat title", help)
	}
}

func TestResolverNotMember(t *testing.T) {
	stranger := testUser(42, "stranger")
	f := newFixture(t, newFakeTelegram(testUser(7, "seven")), newFakeDiscord(testMember(99, "nick")), newMemStore())

	result, err := f.send(t, stranger, "nick")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.Outcome != OutcomeNotMember || !errors.Is(result.Reason, ErrNotMember) {
		t.Errorf("Resolve() = %s (%v), want %s", result.Outcome, result.Reason, OutcomeNotMember)
	}

	msgs := f.telegram.messagesTo(42)
	if len(msgs) != 2 || msgs[0] != f.messages.Checking() || msgs[1] != f.messages.NotMember() {
		t.Errorf("messages = %q, want checking then not-member", msgs)
	}
	if pairs := f.store.pairs(); len(pairs) != 0 {
		t.Errorf("store rows = %v, want none", pairs)
	}
	if f.discord.grantCount() != 0 {
		t.Errorf("grants = %d, want 0", f.discord.grantCount())
	}
}

func TestResolverIdentityNotFound(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "unknown legacy handle", text: "nick#1234"},
		{name: "unknown modern handle", text: "nobody"},
		{name: "not a handle", text: "hello there!"},
		{name: "zero discriminator", text: "nick#0000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := testUser(7, "seven")
			f := newFixture(t, newFakeTelegram(user), newFakeDiscord(testMember(99, "nick")), newMemStore())

			result, err := f.send(t, user, tt.text)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if result.Outcome != OutcomeIdentityNotFound || !errors.Is(result.Reason, ErrIdentityNotFound) {
				t.Errorf("Resolve(%q) = %s, want %s", tt.text, result.Outcome, OutcomeIdentityNotFound)
			}
			if got := f.telegram.lastMessageTo(7); got != f.messages.IdentityNotFound() {
				t.Errorf("last message = %q, want identity-not-found", got)
			}
			if pairs := f.store.pairs(); len(pairs) != 0 {
				t.Errorf("store rows = %v, want none", pairs)
			}
		})
	}
}

func TestResolverCreate(t *testing.T) {
	user := testUser(7, "seven")
	f := newFixture(t, newFakeTelegram(user), newFakeDiscord(testMember(99, "nick")), newMemStore())

	result, err := f.send(t, user, "Nick")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.Outcome != OutcomeCreated {
		t.Fatalf("Resolve() outcome = %s, want %s", result.Outcome, OutcomeCreated)
	}

	if got := f.store.pairs(); len(got) != 1 || got[0] != [2]int64{7, 99} {
		t.Errorf("store rows = %v, want [[7 99]]", got)
	}
	if !f.discord.hasRole(99) {
		t.Error("member 99 was not granted the role")
	}
	if result.Association.TelegramName != "@seven" || result.Association.DiscordName != "nick" {
		t.Errorf("association names = %q/%q", result.Association.TelegramName, result.Association.DiscordName)
	}
	if got := f.telegram.lastMessageTo(7); got != f.messages.Linked(MessageData{}) {
		t.Errorf("last message = %q, want linked", got)
	}
	if _, ok := f.cache.Roster(testChatID); !ok {
		t.Error("live roster was not stored in the cache")
	}
}

func TestResolverLegacyHandle(t *testing.T) {
	user := testUser(7, "seven")
	legacy := entities.DiscordMember{ID: 99, Username: "Nick", Discriminator: "1234"}
	f := newFixture(t, newFakeTelegram(user), newFakeDiscord(legacy), newMemStore())

	result, err := f.send(t, user, "Nick#1234")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.Outcome != OutcomeCreated {
		t.Fatalf("Resolve() outcome = %s, want %s", result.Outcome, OutcomeCreated)
	}
	if result.Association.DiscordName != "Nick#1234" {
		t.Errorf("discord name = %q, want Nick#1234", result.Association.DiscordName)
	}
}

func TestResolverReplace(t *testing.T) {
	user := testUser(7, "seven")
	discord := newFakeDiscord(testMember(98, "oldnick"), testMember(99, "newnick"))
	discord.holders[98] = true
	store := newMemStore(entities.Association{TelegramID: 7, DiscordID: 98, DiscordName: "oldnick", LinkedAt: time.Now().Add(-time.Hour)})
	f := newFixture(t, newFakeTelegram(user), discord, store)

	result, err := f.send(t, user, "newnick")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.Outcome != OutcomeReplaced {
		t.Fatalf("Resolve() outcome = %s, want %s", result.Outcome, OutcomeReplaced)
	}
	if result.Previous == nil || result.Previous.DiscordID != 98 {
		t.Errorf("previous = %+v, want discord id 98", result.Previous)
	}

	if got := store.pairs(); len(got) != 1 || got[0] != [2]int64{7, 99} {
		t.Errorf("store rows = %v, want exactly [[7 99]]", got)
	}
	if discord.hasRole(98) {
		t.Error("old member 98 still holds the role")
	}
	if !discord.hasRole(99) {
		t.Error("new member 99 was not granted the role")
	}

	msg := f.telegram.lastMessageTo(7)
	if !strings.Contains(msg, "oldnick") || !strings.Contains(msg, "newnick") {
		t.Errorf("replacement message %q should name old and new handles", msg)
	}
}

func TestResolverReplaceSkipsRevokeWhenPreviousLeft(t *testing.T) {
	user := testUser(7, "seven")
	discord := newFakeDiscord(testMember(99, "newnick"))
	store := newMemStore(entities.Association{TelegramID: 7, DiscordID: 98, DiscordName: "gone", LinkedAt: time.Now().Add(-time.Hour)})
	f := newFixture(t, newFakeTelegram(user), discord, store)

	result, err := f.send(t, user, "newnick")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.Outcome != OutcomeReplaced {
		t.Fatalf("Resolve() outcome = %s, want %s", result.Outcome, OutcomeReplaced)
	}
	if revoked := discord.revoked(); len(revoked) != 0 {
		t.Errorf("revokes = %v, want none", revoked)
	}
	if got := store.pairs(); len(got) != 1 || got[0] != [2]int64{7, 99} {
		t.Errorf("store rows = %v, want [[7 99]]", got)
	}
}

func TestResolverTargetAlreadyLinked(t *testing.T) {
	owner := entities.Association{TelegramID: 5, DiscordID: 99, DiscordName: "nick", LinkedAt: time.Now().Add(-time.Hour)}

	tests := []struct {
		name      string
		requester int64
	}{
		{name: "other user", requester: 8},
		{name: "same user again", requester: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := testUser(tt.requester, "someone")
			store := newMemStore(owner)
			f := newFixture(t, newFakeTelegram(user), newFakeDiscord(testMember(99, "nick")), store)

			result, err := f.send(t, user, "nick")
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if result.Outcome != OutcomeTargetAlreadyLinked || !errors.Is(result.Reason, ErrTargetAlreadyLinked) {
				t.Errorf("Resolve() outcome = %s, want %s", result.Outcome, OutcomeTargetAlreadyLinked)
			}
			if got := store.pairs(); len(got) != 1 || got[0] != [2]int64{5, 99} {
				t.Errorf("store rows = %v, want [[5 99]] untouched", got)
			}
			if f.discord.grantCount() != 0 {
				t.Errorf("grants = %d, want 0", f.discord.grantCount())
			}
			if !strings.Contains(f.telegram.lastMessageTo(tt.requester), "nick") {
				t.Errorf("already-linked message should name the handle")
			}
		})
	}
}

func TestResolverUniquenessViolationIsRejection(t *testing.T) {
	user := testUser(7, "seven")
	store := newMemStore()
	store.createErr = fmt.Errorf("%w: user_associations_discord_id_key", repositories.ErrUniquenessViolation)
	f := newFixture(t, newFakeTelegram(user), newFakeDiscord(testMember(99, "nick")), store)

	result, err := f.send(t, user, "nick")
	if err != nil {
		t.Fatalf("Resolve() error = %v, want rejection without error", err)
	}
	if result.Outcome != OutcomeTargetAlreadyLinked {
		t.Errorf("Resolve() outcome = %s, want %s", result.Outcome, OutcomeTargetAlreadyLinked)
	}
}

func TestResolverConcurrentRequestsForSameMember(t *testing.T) {
	const requesters = 8

	var users []entities.TelegramUser
	for i := range requesters {
		users = append(users, testUser(int64(100+i), fmt.Sprintf("user%d", i)))
	}
	store := newMemStore()
	f := newFixture(t, newFakeTelegram(users...), newFakeDiscord(testMember(99, "nick")), store)

	results := make([]*LinkResult, requesters)
	var wg sync.WaitGroup
	for i, user := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.send(t, user, "nick")
			if err != nil {
				t.Errorf("Resolve() error = %v", err)
				return
			}
			results[i] = result
		}()
	}
	wg.Wait()

	created := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		switch r.Outcome {
		case OutcomeCreated:
			created++
		case OutcomeTargetAlreadyLinked:
		default:
			t.Errorf("unexpected outcome %s", r.Outcome)
		}
	}
	if created != 1 {
		t.Errorf("created = %d, want exactly 1", created)
	}
	if got := store.pairs(); len(got) != 1 || got[0][1] != 99 {
		t.Errorf("store rows = %v, want one row for member 99", got)
	}
}

func TestResolverFailures(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(f *fixture)
		persistence bool
		orphanGrant bool
	}{
		{
			name:  "roster fetch fails",
			setup: func(f *fixture) { f.telegram.fetchErr = errors.New("FLOOD_WAIT") },
		},
		{
			name:  "discord lookup fails",
			setup: func(f *fixture) { f.discord.resolveErr = errors.New("502 bad gateway") },
		},
		{
			name:  "grant fails",
			setup: func(f *fixture) { f.discord.grantErr = errors.New("403 missing permissions") },
		},
		{
			name:        "store write fails after grant",
			setup:       func(f *fixture) { f.store.createErr = errors.New("connection refused") },
			persistence: true,
			orphanGrant: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := testUser(7, "seven")
			f := newFixture(t, newFakeTelegram(user), newFakeDiscord(testMember(99, "nick")), newMemStore())
			tt.setup(f)

			result, err := f.send(t, user, "nick")
			if err == nil {
				t.Fatal("Resolve() error = nil, want failure")
			}
			if result.Outcome != OutcomeFailed {
				t.Errorf("Resolve() outcome = %s, want %s", result.Outcome, OutcomeFailed)
			}
			if IsRejection(err) {
				t.Errorf("failure %v classified as rejection", err)
			}
			if tt.persistence != IsPersistenceError(err) {
				t.Errorf("IsPersistenceError(%v) = %v, want %v", err, !tt.persistence, tt.persistence)
			}
			if !tt.persistence && !IsPlatformError(err) {
				t.Errorf("IsPlatformError(%v) = false, want true", err)
			}
			if got := f.telegram.lastMessageTo(7); got != f.messages.TryLater() {
				t.Errorf("last message = %q, want try-later", got)
			}
			if f.discord.hasRole(99) != tt.orphanGrant {
				t.Errorf("member 99 holds role = %v, want %v", !tt.orphanGrant, tt.orphanGrant)
			}
		})
	}
}

func TestResolverIgnoresUnknownSender(t *testing.T) {
	f := newFixture(t, newFakeTelegram(), newFakeDiscord(), newMemStore())

	result, err := f.resolver.Resolve(context.Background(), entities.InboundMessage{ID: 1, SenderID: 13, Text: "nick"}, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.Outcome != OutcomeIgnored {
		t.Errorf("Resolve() outcome = %s, want %s", result.Outcome, OutcomeIgnored)
	}
	if len(f.telegram.sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(f.telegram.sent))
	}
}

func TestResolverUsesCachedSender(t *testing.T) {
	user := testUser(7, "seven")
	f := newFixture(t, newFakeTelegram(user), newFakeDiscord(testMember(99, "nick")), newMemStore())
	f.cache.Merge(nil, map[int64]entities.TelegramUser{7: user})

	result, err := f.resolver.Resolve(context.Background(), entities.InboundMessage{ID: 1, SenderID: 7, Text: "nick"}, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.Outcome != OutcomeCreated {
		t.Errorf("Resolve() outcome = %s, want %s", result.Outcome, OutcomeCreated)
	}
}
