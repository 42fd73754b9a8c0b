package store

import (
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
)

// ErrTransient wraps a Postgres error the spec classifies as transient
// (connection-lost, serialization-failure): the caller should abort the
// current operation and retry on the next opportunity rather than treating
// it as fatal.
type ErrTransient struct{ cause error }

func (e ErrTransient) Error() string { return e.cause.Error() }
func (e ErrTransient) Unwrap() error { return e.cause }

// Transient satisfies the alert package's transientError interface, so the
// Engine can drop-and-continue on this error without a direct dependency
// on this package's concrete type.
func (e ErrTransient) Transient() bool { return true }

// classify wraps err in ErrTransient when its Postgres error code is one
// the spec's "Transient database" policy applies to; otherwise it is
// returned unchanged, which the caller should treat as fatal enough to
// surface (e.g. a schema-missing error at startup).
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		// Connection-lost/timeout errors don't carry a PgError at all;
		// they are exactly the "upstream went away" case the spec wants
		// treated as transient.
		return ErrTransient{cause: err}
	}

	switch pgErr.Code {
	case pgerrcode.SerializationFailure,
		pgerrcode.DeadlockDetected,
		pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return ErrTransient{cause: err}
	default:
		return err
	}
}
