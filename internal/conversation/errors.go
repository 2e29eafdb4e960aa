package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no conversation exists for a phone number.
	ErrNotFound = errors.New("conversation: not found")

	// ErrDuplicateKey is returned when creating a conversation for a phone number that already has one.
	ErrDuplicateKey = errors.New("conversation: duplicate phone number")

	// ErrStorageUnavailable wraps every document store failure.
	ErrStorageUnavailable = errors.New("conversation: storage unavailable")

	// ErrMalformedMessage is returned for inbound records missing required fields.
	ErrMalformedMessage = errors.New("conversation: malformed message")

	// ErrConflict is returned by Save when the stored version moved on.
	ErrConflict = errors.New("conversation: concurrent update")

	// ErrDuplicateMessage is returned when a message id was already applied.
	ErrDuplicateMessage = errors.New("conversation: message already applied")
)

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, reason)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
