package yap

import "database/sql"

// Hooks is the injected capability set a subclass provides (spec §9:
// "Polymorphism here is data, not inheritance"). The engine is agnostic
// about collection shape beyond keying by opaque string; Hooks is how a
// concrete schema plugs into that contract.
type Hooks struct {
	// CreateTables runs once per Open, after the engine's own yap table
	// exists, inside the same bootstrap transaction. Returning false (with
	// a nil error) tells Open no new tables were needed; returning an
	// error aborts Open with OpenError.
	CreateTables func(tx *sql.Tx) (bool, error)

	// Prepare runs asynchronously on the snapshot lane once Open's
	// bootstrap transaction has committed. It is the hook's chance to
	// warm any subclass-level prepared statements or caches; the engine
	// does not wait for it to finish before returning from Open.
	Prepare func(db *sql.DB)

	// CacheChangesetBlockFrom derives a per-key disposition function from
	// a committed Changeset — the only way a cache view learns about
	// writes (spec §4.1).
	CacheChangesetBlockFrom func(cs *Changeset) func(key string) Disposition
}

func (h Hooks) validate() error {
	if h.CacheChangesetBlockFrom == nil {
		return newError(KindOpenError, "open", errMissingHook("CacheChangesetBlockFrom"))
	}
	return nil
}

type errMissingHook string

func (e errMissingHook) Error() string { return "yap: missing required hook: " + string(e) }
