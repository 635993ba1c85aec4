// Package store provides the transactional entity store backing the game.
// All records under one hangout form a single entity group: a transaction
// reads and writes any of them atomically, and two transactions on the same
// hangout are serialized (by locking in the memory store, by serializable
// isolation plus retry in the Postgres store). The state machine relies on
// this to evaluate guards and apply effects without observing stale state.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/partydeck/hangout-backend/internal/game"
)

// ErrContention is returned once bounded transaction retries are exhausted.
var ErrContention = errors.New("transaction contention not resolved after retries")

// Store runs transactions scoped to one hangout's entity group.
type Store interface {
	// Update runs fn in a read-write transaction. If fn returns an error the
	// transaction is rolled back and the error is returned unchanged.
	// Transient contention is retried with fn re-invoked on a fresh view.
	Update(ctx context.Context, hangoutID string, fn func(tx game.Tx) error) error
	// View runs fn read-only. Writes through the Tx are rejected.
	View(ctx context.Context, hangoutID string, fn func(tx game.Tx) error) error
	// ExpiredHangouts lists hangout ids whose current game sits in a resting
	// phase past its round deadline. Used by the stalled-round sweeper.
	ExpiredHangouts(ctx context.Context, now time.Time) ([]string, error)
}

var errReadOnly = errors.New("write attempted in a read-only transaction")
