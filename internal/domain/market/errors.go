package market

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is. Operations wrap them with
// fmt.Errorf("%w: ...") to add detail without losing the category.
var (
	// ErrValidation: role mismatch or malformed payload, rejected before
	// any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound: a referenced entity id is absent from the store.
	ErrNotFound = errors.New("not found")
	// ErrConflict: the operation is legal in shape but not in the current
	// state (open loan request exists, offer no longer pending, ...).
	ErrConflict = errors.New("conflict")
	// ErrProtocol: agreement handshake failure (snapshot mismatch,
	// timeout). Terminal for the handshake, never corrupts entity state.
	ErrProtocol = errors.New("protocol failure")
)

// ErrUnknownCandidate: the counterparty has no directory entry, so a
// direct message cannot be addressed to it.
var ErrUnknownCandidate = fmt.Errorf("%w: unknown candidate", ErrProtocol)
