package repositories

import "errors"

// Domain-specific repository errors
var (
	// ErrAssociationNotFound is returned when no association matches the lookup
	ErrAssociationNotFound = errors.New("association not found")

	// ErrUniquenessViolation is returned when a write would give a Telegram user
	// or a Discord member a second association
	ErrUniquenessViolation = errors.New("association uniqueness violation")
)
