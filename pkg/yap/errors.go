package yap

import (
	"errors"
	"fmt"
)

// Kind enumerates the engine's error taxonomy (spec §7). Kinds, not
// names: callers branch on Kind, not on message text.
type Kind int

const (
	// KindOpenError: the file cannot be opened or is not a valid database.
	KindOpenError Kind = iota
	// KindSchemaMismatch: user_version is newer than this build understands.
	KindSchemaMismatch
	// KindBusy: write lane contention beyond the configured retry budget.
	KindBusy
	// KindCorrupt: an invariant was violated, or SQLite reports corruption.
	KindCorrupt
	// KindCommitFailed: SQLite commit returned an error.
	KindCommitFailed
	// KindReadOnly: a mutating call was made on a read Transaction.
	KindReadOnly
	// KindTransactionExpired: a Transaction was used after its block returned.
	KindTransactionExpired
	// KindCancelled: an async submission whose Connection closed before running.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindOpenError:
		return "OpenError"
	case KindSchemaMismatch:
		return "SchemaMismatch"
	case KindBusy:
		return "Busy"
	case KindCorrupt:
		return "Corrupt"
	case KindCommitFailed:
		return "CommitFailed"
	case KindReadOnly:
		return "ReadOnly"
	case KindTransactionExpired:
		return "TransactionExpired"
	case KindCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error is the single error type the engine returns. Op names the
// operation that failed (e.g. "open", "read_write", "commit"); Err, if
// non-nil, is the underlying cause (a SQLite driver error, typically).
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("yap: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("yap: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrReadOnly) etc. match any *Error of the
// corresponding Kind, independent of Op/Err.
func (e *Error) Is(target error) bool {
	var sentinel Kind
	switch {
	case target == ErrOpenError:
		sentinel = KindOpenError
	case target == ErrSchemaMismatch:
		sentinel = KindSchemaMismatch
	case target == ErrBusy:
		sentinel = KindBusy
	case target == ErrCorrupt:
		sentinel = KindCorrupt
	case target == ErrCommitFailed:
		sentinel = KindCommitFailed
	case target == ErrReadOnly:
		sentinel = KindReadOnly
	case target == ErrTransactionExpired:
		sentinel = KindTransactionExpired
	case target == ErrCancelled:
		sentinel = KindCancelled
	default:
		return false
	}
	return e.Kind == sentinel
}

// ErrorCode, Context, and SuggestedAction implement the engine's
// RecoverableError shape so embedding CLIs can surface structured
// diagnostics the way internal/output does.
func (e *Error) ErrorCode() string { return e.Kind.String() }

func (e *Error) Context() map[string]string {
	ctx := map[string]string{"op": e.Op}
	if e.Err != nil {
		ctx["cause"] = e.Err.Error()
	}
	return ctx
}

func (e *Error) SuggestedAction() string {
	switch e.Kind {
	case KindBusy:
		return "retry the operation; if it persists, check for a long-running writer holding the write lane"
	case KindSchemaMismatch:
		return "upgrade to a build that understands this schema version"
	case KindCorrupt:
		return "the database handle is no longer usable; reopen the Database"
	default:
		return ""
	}
}

// Sentinel errors. Use errors.Is(err, yap.ErrBusy) etc.
var (
	ErrOpenError           = &Error{Kind: KindOpenError}
	ErrSchemaMismatch      = &Error{Kind: KindSchemaMismatch}
	ErrBusy                = &Error{Kind: KindBusy}
	ErrCorrupt             = &Error{Kind: KindCorrupt}
	ErrCommitFailed        = &Error{Kind: KindCommitFailed}
	ErrReadOnly            = &Error{Kind: KindReadOnly}
	ErrTransactionExpired  = &Error{Kind: KindTransactionExpired}
	ErrCancelled           = &Error{Kind: KindCancelled}
)

// newError builds an *Error wrapping cause under op/kind.
func newError(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// asYapError is a small helper for tests and callers that want to peel
// the concrete type off without importing errors.As at every call site.
func asYapError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
