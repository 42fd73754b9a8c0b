package alert

import (
	"context"
	goerrors "errors"
)

// Store is the persistence boundary the Engine depends on. The concrete
// implementation lives in internal/store and is backed by Postgres; this
// interface exists so the Engine's evaluation logic can be tested against
// an in-memory fake without pulling in pgx.
type Store interface {
	// Insert persists a new subscription row with Active=true and a zero
	// State, returning it with its assigned id and CreatedAt populated.
	Insert(ctx context.Context, req Request) (*Subscription, error)

	// LoadActive returns every row with active=true, ordered ascending
	// by id (the spec's tie-breaking rule for a single evaluation pass).
	LoadActive(ctx context.Context) ([]Subscription, error)

	// ApplyEvaluation writes every mutated subscription and appends every
	// notification in a single transaction, so the "fired" bit and the
	// notification log entry can never disagree.
	ApplyEvaluation(ctx context.Context, updated []Subscription, notifications []Notification) error
}

// transientError is implemented by Store errors the spec's "Transient
// database" policy applies to (connection-lost, serialization-failure):
// the current evaluation pass is dropped and logged rather than surfaced
// as a failure, since the next BlockEvent gives the pass a fresh chance.
type transientError interface {
	Transient() bool
}

// isTransient reports whether err, or anything it wraps, is a transient
// Store error.
func isTransient(err error) bool {
	var t transientError
	if !goerrors.As(err, &t) {
		return false
	}
	return t.Transient()
}
