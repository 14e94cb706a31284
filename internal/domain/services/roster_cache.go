package services

import (
	"maps"
	"sync"
	"time"

	"github.com/devilmonastery/arachnid/internal/domain/entities"
	"github.com/devilmonastery/arachnid/internal/pkg/metrics"
)

// RosterSnapshot is the membership of a chat as of FetchedAt
type RosterSnapshot struct {
	Members   entities.Roster
	FetchedAt time.Time
}

// RosterCache is the process-wide view of chats, users and chat rosters seen so far.
// Merges are last-write-wins per id; reads return copies.
type RosterCache struct {
	mu      sync.RWMutex
	chats   map[int64]entities.TelegramChat
	users   map[int64]entities.TelegramUser
	rosters map[int64]RosterSnapshot
}

// NewRosterCache creates an empty cache
func NewRosterCache() *RosterCache {
	return &RosterCache{
		chats:   make(map[int64]entities.TelegramChat),
		users:   make(map[int64]entities.TelegramUser),
		rosters: make(map[int64]RosterSnapshot),
	}
}

// Merge stores the chat and user metadata attached to an event
func (c *RosterCache) Merge(chats map[int64]entities.TelegramChat, users map[int64]entities.TelegramUser) {
	if len(chats) == 0 && len(users) == 0 {
		return
	}

	c.mu.Lock()
	maps.Copy(c.chats, chats)
	maps.Copy(c.users, users)
	chatCount, userCount := len(c.chats), len(c.users)
	c.mu.Unlock()

	metrics.CacheSize.WithLabelValues("chats").Set(float64(chatCount))
	metrics.CacheSize.WithLabelValues("users").Set(float64(userCount))
}

// StoreRoster records a freshly fetched roster and learns its users
func (c *RosterCache) StoreRoster(chatID int64, members entities.Roster, fetchedAt time.Time) {
	snapshot := RosterSnapshot{Members: maps.Clone(members), FetchedAt: fetchedAt}

	c.mu.Lock()
	if current, ok := c.rosters[chatID]; ok && current.FetchedAt.After(fetchedAt) {
		c.mu.Unlock()
		return
	}
	c.rosters[chatID] = snapshot
	maps.Copy(c.users, members)
	rosterCount, userCount := len(c.rosters), len(c.users)
	c.mu.Unlock()

	metrics.CacheSize.WithLabelValues("rosters").Set(float64(rosterCount))
	metrics.CacheSize.WithLabelValues("users").Set(float64(userCount))
}

// Chat returns the metadata of a chat if it has been observed
func (c *RosterCache) Chat(chatID int64) (entities.TelegramChat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chat, ok := c.chats[chatID]
	return chat, ok
}

// User returns a known Telegram user
func (c *RosterCache) User(userID int64) (entities.TelegramUser, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	user, ok := c.users[userID]
	return user, ok
}

// Roster returns a copy of the last stored roster of a chat
func (c *RosterCache) Roster(chatID int64) (RosterSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot, ok := c.rosters[chatID]
	if !ok {
		return RosterSnapshot{}, false
	}
	return RosterSnapshot{Members: maps.Clone(snapshot.Members), FetchedAt: snapshot.FetchedAt}, true
}
