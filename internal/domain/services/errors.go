package services

import (
	"errors"
	"fmt"

	"github.com/devilmonastery/arachnid/internal/domain/repositories"
)

// Link request rejections. These are terminal, shown to the user, and never retried.
var (
	// ErrNotMember is returned when the sender is not in the target Telegram chat
	ErrNotMember = errors.New("sender is not a member of the target chat")

	// ErrIdentityNotFound is returned when the message is not a Discord handle or
	// no guild member matches it
	ErrIdentityNotFound = errors.New("discord identity not found")

	// ErrTargetAlreadyLinked is returned when the Discord member already has an association
	ErrTargetAlreadyLinked = errors.New("discord member is already linked")
)

// ErrMemberNotFound is returned by a DiscordDirectory when no guild member matches
var ErrMemberNotFound = errors.New("discord member not found")

// ErrChatNotRegistered is returned when the target chat has not yet appeared in any update
var ErrChatNotRegistered = errors.New("target chat not registered")

// PlatformError wraps a failed call to Telegram or Discord
type PlatformError struct {
	Platform string
	Op       string
	Err      error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed association store call
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("association store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func telegramError(op string, err error) error {
	return &PlatformError{Platform: "telegram", Op: op, Err: err}
}

func discordError(op string, err error) error {
	return &PlatformError{Platform: "discord", Op: op, Err: err}
}

func storeError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// IsPlatformError checks if the error came from a Telegram or Discord call
func IsPlatformError(err error) bool {
	var pe *PlatformError
	return errors.As(err, &pe)
}

// IsPersistenceError checks if the error came from the association store
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsRejection checks if the error is a user-facing rejection rather than a failure
func IsRejection(err error) bool {
	return errors.Is(err, ErrNotMember) ||
		errors.Is(err, ErrIdentityNotFound) ||
		errors.Is(err, ErrTargetAlreadyLinked)
}

// isConflict reports whether a store write lost a uniqueness race
func isConflict(err error) bool {
	return errors.Is(err, repositories.ErrUniquenessViolation)
}
