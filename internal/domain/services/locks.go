package services

import "sync"

// LinkLocks serializes link commits and sweep corrections per identity.
// Callers that need both locks take the Telegram lock first.
type LinkLocks struct {
	telegram keyedMutex
	discord  keyedMutex
}

// NewLinkLocks creates an empty lock set
func NewLinkLocks() *LinkLocks {
	return &LinkLocks{
		telegram: keyedMutex{locks: make(map[int64]*refLock)},
		discord:  keyedMutex{locks: make(map[int64]*refLock)},
	}
}

// LockPair locks a Telegram user and a Discord member and returns the unlock func
func (l *LinkLocks) LockPair(telegramID, discordID int64) func() {
	unlockTelegram := l.telegram.lock(telegramID)
	unlockDiscord := l.discord.lock(discordID)
	return func() {
		unlockDiscord()
		unlockTelegram()
	}
}

// LockDiscord locks a single Discord member and returns the unlock func
func (l *LinkLocks) LockDiscord(discordID int64) func() {
	return l.discord.lock(discordID)
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds or waits on
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refLock
}

func (k *keyedMutex) lock(key int64) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
