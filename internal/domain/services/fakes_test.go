package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/devilmonastery/arachnid/internal/domain/entities"
	"github.com/devilmonastery/arachnid/internal/domain/repositories"
)

const (
	testChatID = int64(-1001234)
	testRoleID = "555"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory AssociationRepository enforcing both unique keys
type memStore struct {
	mu    sync.Mutex
	rows  map[int64]entities.Association
	calls int

	createErr  error
	replaceErr error
	listErr    error
}

func newMemStore(rows ...entities.Association) *memStore {
	s := &memStore{rows: make(map[int64]entities.Association)}
	for _, r := range rows {
		s.rows[r.TelegramID] = r
	}
	return s
}

func (s *memStore) GetByTelegramID(ctx context.Context, telegramID int64) (*entities.Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if a, ok := s.rows[telegramID]; ok {
		return &a, nil
	}
	return nil, repositories.ErrAssociationNotFound
}

func (s *memStore) GetByDiscordID(ctx context.Context, discordID int64) (*entities.Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for _, a := range s.rows {
		if a.DiscordID == discordID {
			return &a, nil
		}
	}
	return nil, repositories.ErrAssociationNotFound
}

func (s *memStore) insertLocked(a *entities.Association) error {
	if _, ok := s.rows[a.TelegramID]; ok {
		return fmt.Errorf("%w: user_associations_pkey", repositories.ErrUniquenessViolation)
	}
	for _, row := range s.rows {
		if row.DiscordID == a.DiscordID {
			return fmt.Errorf("%w: user_associations_discord_id_key", repositories.ErrUniquenessViolation)
		}
	}
	s.rows[a.TelegramID] = *a
	return nil
}

func (s *memStore) Create(ctx context.Context, a *entities.Association) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.createErr != nil {
		return s.createErr
	}
	return s.insertLocked(a)
}

func (s *memStore) Replace(ctx context.Context, old, a *entities.Association) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.replaceErr != nil {
		return s.replaceErr
	}
	if old == nil {
		return s.insertLocked(a)
	}

	previous, had := s.rows[old.TelegramID]
	if had && previous.DiscordID == old.DiscordID {
		delete(s.rows, old.TelegramID)
	}
	if err := s.insertLocked(a); err != nil {
		if had {
			s.rows[old.TelegramID] = previous
		}
		return err
	}
	return nil
}

func (s *memStore) DeleteByTelegramIDs(ctx context.Context, ids []int64, linkedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	var n int64
	for _, id := range ids {
		if a, ok := s.rows[id]; ok && a.LinkedAt.Before(linkedBefore) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) DeleteByDiscordIDs(ctx context.Context, ids []int64, linkedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var n int64
	for tid, a := range s.rows {
		if want[a.DiscordID] && a.LinkedAt.Before(linkedBefore) {
			delete(s.rows, tid)
			n++
		}
	}
	return n, nil
}

func (s *memStore) List(ctx context.Context) ([]*entities.Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]*entities.Association, 0, len(s.rows))
	for _, a := range s.rows {
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out, nil
}

// pairs returns the stored (telegram, discord) id pairs sorted by telegram id
func (s *memStore) pairs() [][2]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][2]int64, 0, len(s.rows))
	for _, a := range s.rows {
		out = append(out, [2]int64{a.TelegramID, a.DiscordID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func (s *memStore) backdate(telegramID int64, by time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.rows[telegramID]
	a.LinkedAt = a.LinkedAt.Add(-by)
	s.rows[telegramID] = a
}

func (s *memStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type sentMessage struct {
	to   int64
	text string
}

// fakeTelegram serves a fixed roster and records outgoing messages
type fakeTelegram struct {
	mu       sync.Mutex
	roster   entities.Roster
	fetchErr error
	sent     []sentMessage
	fetches  int
}

func newFakeTelegram(members ...entities.TelegramUser) *fakeTelegram {
	f := &fakeTelegram{roster: make(entities.Roster)}
	for _, m := range members {
		f.roster[m.ID] = m
	}
	return f
}

func (f *fakeTelegram) SendMessage(ctx context.Context, user entities.TelegramUser, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to: user.ID, text: text})
	return nil
}

func (f *fakeTelegram) ChatMembers(ctx context.Context, chat entities.TelegramChat) (entities.Roster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make(entities.Roster, len(f.roster))
	for id, u := range f.roster {
		out[id] = u
	}
	return out, nil
}

func (f *fakeTelegram) leave(userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.roster, userID)
}

func (f *fakeTelegram) messagesTo(userID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.to == userID {
			out = append(out, m.text)
		}
	}
	return out
}

func (f *fakeTelegram) lastMessageTo(userID int64) string {
	msgs := f.messagesTo(userID)
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

// fakeDiscord is a guild with one target role
type fakeDiscord struct {
	mu      sync.Mutex
	members map[int64]entities.DiscordMember
	holders map[int64]bool

	resolveErr error
	grantErr   error
	grants     []int64
	revokes    []int64
}

func newFakeDiscord(members ...entities.DiscordMember) *fakeDiscord {
	f := &fakeDiscord{
		members: make(map[int64]entities.DiscordMember),
		holders: make(map[int64]bool),
	}
	for _, m := range members {
		f.members[m.ID] = m
	}
	return f
}

func (f *fakeDiscord) ResolveMember(ctx context.Context, handle entities.DiscordHandle) (*entities.DiscordMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	for _, m := range f.members {
		if handle.Matches(m) {
			return &m, nil
		}
	}
	return nil, ErrMemberNotFound
}

func (f *fakeDiscord) Member(ctx context.Context, discordID int64) (*entities.DiscordMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[discordID]
	if !ok {
		return nil, ErrMemberNotFound
	}
	return &m, nil
}

func (f *fakeDiscord) GrantRole(ctx context.Context, discordID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grantErr != nil {
		return f.grantErr
	}
	f.grants = append(f.grants, discordID)
	f.holders[discordID] = true
	return nil
}

func (f *fakeDiscord) RevokeRole(ctx context.Context, discordID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokes = append(f.revokes, discordID)
	delete(f.holders, discordID)
	return nil
}

func (f *fakeDiscord) RoleHolders(ctx context.Context) ([]entities.DiscordMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.DiscordMember
	for id := range f.holders {
		m, ok := f.members[id]
		if !ok {
			m = entities.DiscordMember{ID: id}
		}
		m.Roles = []string{testRoleID}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDiscord) Target(ctx context.Context) (entities.DiscordTarget, error) {
	return testTarget(), nil
}

func (f *fakeDiscord) hasRole(discordID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holders[discordID]
}

func (f *fakeDiscord) grantCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.grants)
}

func (f *fakeDiscord) revoked() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.revokes...)
}

func testTarget() entities.DiscordTarget {
	return entities.DiscordTarget{
		GuildID:   "1",
		GuildName: "Spider Den",
		RoleID:    testRoleID,
		RoleName:  "verified",
	}
}

func testUser(id int64, username string) entities.TelegramUser {
	return entities.TelegramUser{ID: id, AccessHash: id * 10, Username: username}
}

func testMember(id int64, username string) entities.DiscordMember {
	return entities.DiscordMember{ID: id, Username: username, Discriminator: "0"}
}

// fixture wires a resolver and reconciler over shared fakes
type fixture struct {
	telegram   *fakeTelegram
	discord    *fakeDiscord
	store      *memStore
	cache      *RosterCache
	messages   *Messages
	resolver   *LinkResolver
	reconciler *Reconciler
}

func newFixture(t *testing.T, telegram *fakeTelegram, discord *fakeDiscord, store *memStore) *fixture {
	t.Helper()

	messages, err := NewMessages(MessageTemplates{})
	if err != nil {
		t.Fatalf("NewMessages() error = %v", err)
	}

	cache := NewRosterCache()
	cache.Merge(map[int64]entities.TelegramChat{
		testChatID: {ID: testChatID, AccessHash: 77, Title: "Secret Chat", Kind: entities.ChatKindChannel},
	}, nil)

	locks := NewLinkLocks()
	log := discardLogger()

	return &fixture{
		telegram:   telegram,
		discord:    discord,
		store:      store,
		cache:      cache,
		messages:   messages,
		resolver:   NewLinkResolver(telegram, discord, store, cache, locks, messages, testChatID, testTarget(), log),
		reconciler: NewReconciler(telegram, discord, store, cache, locks, testChatID, log),
	}
}

// send delivers a private message from user with the user attached to the event
func (f *fixture) send(t *testing.T, user entities.TelegramUser, text string) (*LinkResult, error) {
	t.Helper()
	users := map[int64]entities.TelegramUser{user.ID: user}
	return f.resolver.Resolve(context.Background(), entities.InboundMessage{ID: 1, SenderID: user.ID, Text: text}, users)
}
