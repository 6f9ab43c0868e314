package service

import (
	"errors"
	"fmt"

	"github.com/AdamBeresnev/duel-organizer/internal/apperr"
	"github.com/AdamBeresnev/duel-organizer/internal/store"
	"github.com/google/uuid"
)

// lookupErr reports a missing row as NotFound and wraps anything else.
func lookupErr(err error, what string, id uuid.UUID) error {
	if store.IsNotFound(err) {
		return apperr.NotFound("%s %s not found", what, id)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// staleErr turns a lost guarded update into a Conflict.
func staleErr(err error, msg string) error {
	if errors.Is(err, store.ErrStaleWrite) {
		return apperr.Wrap(apperr.KindConflict, err, msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
