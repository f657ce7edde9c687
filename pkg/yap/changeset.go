package yap

import "sort"

// Op is the logical mutation recorded against one key within a
// Transaction's changeset accumulator.
type Op int

const (
	OpSet Op = iota
	OpRemove
)

// Disposition is the verdict cache_changeset_block_from reports for a
// given key: untouched, modified (treated the same as deleted by cache
// views — both simply evict), or deleted.
type Disposition int

const (
	Unchanged Disposition = 0
	Deleted   Disposition = -1
	Modified  Disposition = 1
)

// Changeset is the complete record of one committed read-write
// transaction's effects (spec §3, §GLOSSARY). Mutations is
// collection -> key -> Op, already coalesced (last writer wins within
// the originating Transaction).
type Changeset struct {
	Timestamp float64
	Mutations map[string]map[string]Op
}

// newChangeset returns an empty, ready-to-accumulate Changeset.
func newChangeset() *Changeset {
	return &Changeset{Mutations: make(map[string]map[string]Op)}
}

func (cs *Changeset) empty() bool {
	return cs == nil || len(cs.Mutations) == 0
}

func (cs *Changeset) record(collection, key string, op Op) {
	m, ok := cs.Mutations[collection]
	if !ok {
		m = make(map[string]Op)
		cs.Mutations[collection] = m
	}
	// Last writer wins within a Transaction: later calls simply overwrite.
	m[key] = op
}

// flatKey joins collection+key into the single string the cache views
// use, matching the engine's "opaque blob keyed by string" contract.
func flatKey(collection, key string) string {
	return collection + "\x00" + key
}

// changesetLog is the Database's ordered, prunable record of committed
// (and, transiently, pending) changesets, guarded by the snapshot lane.
type changesetLog struct {
	pending   []*Changeset
	committed []*Changeset
}

func newChangesetLog() *changesetLog {
	return &changesetLog{}
}

func (l *changesetLog) addPending(cs *Changeset) {
	l.pending = append(l.pending, cs)
}

// commit moves cs from pending to committed. cs must be the same
// pointer previously passed to addPending.
func (l *changesetLog) commit(cs *Changeset) {
	for i, p := range l.pending {
		if p == cs {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			break
		}
	}
	l.committed = append(l.committed, cs)
}

// discard removes cs from pending without committing it (rollback path).
func (l *changesetLog) discard(cs *Changeset) {
	for i, p := range l.pending {
		if p == cs {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			return
		}
	}
}

// since returns every pending-or-committed Changeset with
// fromExclusive < ts <= untilInclusive, in timestamp order — used by a
// reader caught in the commit race (spec §4.2 step 4).
func (l *changesetLog) since(fromExclusive, untilInclusive float64) []*Changeset {
	var out []*Changeset
	consider := func(cs *Changeset) {
		if cs.Timestamp > fromExclusive && cs.Timestamp <= untilInclusive {
			out = append(out, cs)
		}
	}
	for _, cs := range l.committed {
		consider(cs)
	}
	for _, cs := range l.pending {
		consider(cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// prune drops committed changesets whose timestamp is <= the minimum
// snapshot timestamp across all live connections — spec §3's retention
// invariant. watermark is +Inf (prune everything) when there are no
// live connections, since nothing remains to replay a changeset for.
func (l *changesetLog) prune(watermark float64) {
	kept := l.committed[:0]
	for _, cs := range l.committed {
		if cs.Timestamp > watermark {
			kept = append(kept, cs)
		}
	}
	l.committed = kept
}
