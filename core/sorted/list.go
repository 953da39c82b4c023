// Package sorted maintains the index of open positions ordered by
// descending nominal collateral ratio. The index is an arena-backed
// doubly linked list: callers supply a hint for where a ratio belongs,
// the hint is validated in O(1), and only a stale hint degrades into a
// linear descend/ascend scan. Keeping hints fresh is the caller's job,
// the amortized cost is then constant per insert.
package sorted

import (
	"code.halcyonprotocol.io/halcyon/core/types"
	"code.halcyonprotocol.io/halcyon/libs/num"
	"code.halcyonprotocol.io/halcyon/logging"
)

// RatioSource resolves the current nominal collateral ratio of an
// indexed position, the position ledger implements this.
type RatioSource interface {
	NICR(party string) (*num.Uint, error)
}

// node links one indexed identifier to its neighbours. Empty string
// means no neighbour on that side.
type node struct {
	prev string
	next string
}

// List is the sorted index. Head holds the highest NICR (safest), tail
// the lowest (riskiest).
type List struct {
	Config
	log    *logging.Logger
	ratios RatioSource

	nodes map[string]*node
	head  string
	tail  string
}

// New instantiates a new sorted index.
func New(log *logging.Logger, config Config, ratios RatioSource) *List {
	log = log.Named(namedLogger)
	log.SetLevel(config.Level.Get())

	return &List{
		Config: config,
		log:    log,
		ratios: ratios,
		nodes:  map[string]*node{},
	}
}

// ReloadConf updates the internal configuration of the sorted index.
func (l *List) ReloadConf(cfg Config) {
	l.log.Info("reloading configuration")
	if l.log.GetLevel() != cfg.Level.Get() {
		l.log.Info("updating log level",
			logging.String("old", l.log.GetLevel().String()),
			logging.String("new", cfg.Level.String()),
		)
		l.log.SetLevel(cfg.Level.Get())
	}
	l.Config = cfg
}

// Len returns the number of indexed identifiers.
func (l *List) Len() uint64 {
	return uint64(len(l.nodes))
}

// Contains returns whether the identifier is indexed.
func (l *List) Contains(id string) bool {
	_, ok := l.nodes[id]
	return ok
}

// First returns the identifier with the highest NICR, false on an
// empty index.
func (l *List) First() (string, bool) {
	return l.head, l.head != ""
}

// Last returns the identifier with the lowest NICR, false on an empty
// index.
func (l *List) Last() (string, bool) {
	return l.tail, l.tail != ""
}

// Next returns the identifier after id (next lower NICR), false at the
// tail or when id is not indexed.
func (l *List) Next(id string) (string, bool) {
	n, ok := l.nodes[id]
	if !ok || n.next == "" {
		return "", false
	}
	return n.next, true
}

// Prev returns the identifier before id (next higher NICR), false at
// the head or when id is not indexed.
func (l *List) Prev(id string) (string, bool) {
	n, ok := l.nodes[id]
	if !ok || n.prev == "" {
		return "", false
	}
	return n.prev, true
}

// Insert adds the identifier at the position its NICR belongs, using
// the supplied hints as a starting point.
func (l *List) Insert(id string, nicr *num.Uint, prevHint, nextHint string) error {
	if l.Len() >= l.MaxSize {
		return types.ErrListFull
	}
	if l.Contains(id) {
		return types.ErrAlreadyExists
	}
	if nicr == nil || nicr.IsZero() {
		return types.ErrInvalidRatio
	}

	prev, next := prevHint, nextHint
	if !l.CheckPosition(nicr, prev, next) {
		prev, next = l.FindPosition(nicr, prev, next)
	}
	l.link(id, prev, next)
	return nil
}

// Remove unlinks the identifier from the index.
func (l *List) Remove(id string) error {
	n, ok := l.nodes[id]
	if !ok {
		return types.ErrNotFound
	}
	if n.prev != "" {
		l.nodes[n.prev].next = n.next
	} else {
		l.head = n.next
	}
	if n.next != "" {
		l.nodes[n.next].prev = n.prev
	} else {
		l.tail = n.prev
	}
	delete(l.nodes, id)
	return nil
}

// Reinsert moves an already indexed identifier to where its new NICR
// belongs. Used after any balance change so the ordering reflects the
// fresh ratio.
func (l *List) Reinsert(id string, newNICR *num.Uint, prevHint, nextHint string) error {
	if !l.Contains(id) {
		return types.ErrNotFound
	}
	if newNICR == nil || newNICR.IsZero() {
		return types.ErrInvalidRatio
	}
	if err := l.Remove(id); err != nil {
		return err
	}
	return l.Insert(id, newNICR, prevHint, nextHint)
}

// CheckPosition validates in O(1) whether (prev, next) is still a legal
// insertion point for the given NICR: prev and next adjacent, prev's
// ratio at least nicr, nicr at least next's ratio, with the ends of the
// list treated as unbounded.
func (l *List) CheckPosition(nicr *num.Uint, prev, next string) bool {
	if prev == "" && next == "" {
		// `(null, null)` is a valid insert position if the list is empty
		return l.Len() == 0
	}
	if prev == "" {
		// `(null, next)` is a valid insert position if `next` is the head of the list
		return l.head == next && nicr.GTE(l.nicrOf(next))
	}
	if next == "" {
		// `(prev, null)` is a valid insert position if `prev` is the tail of the list
		return l.tail == prev && nicr.LTE(l.nicrOf(prev))
	}
	n, ok := l.nodes[prev]
	if !ok {
		return false
	}
	return n.next == next && l.nicrOf(prev).GTE(nicr) && nicr.GTE(l.nicrOf(next))
}

// FindPosition derives a valid insert position for the given NICR,
// starting from the hints when they are still partially usable and
// falling back to a full descend from the head otherwise. Worst case
// O(n), amortized O(1) when callers keep hints fresh.
func (l *List) FindPosition(nicr *num.Uint, prevHint, nextHint string) (string, string) {
	prev, next := prevHint, nextHint
	if prev != "" {
		if !l.Contains(prev) || nicr.GT(l.nicrOf(prev)) {
			// `prev` does not exist anymore or now has a smaller NICR than the given NICR
			prev = ""
		}
	}
	if next != "" {
		if !l.Contains(next) || nicr.LT(l.nicrOf(next)) {
			// `next` does not exist anymore or now has a larger NICR than the given NICR
			next = ""
		}
	}
	switch {
	case prev == "" && next == "":
		// no hint is usable, descend from the head of the list
		return l.descend(nicr, l.head)
	case prev == "":
		return l.ascend(nicr, next)
	default:
		return l.descend(nicr, prev)
	}
}

// descend the list (larger NICRs to smaller NICRs) to find a valid
// insert position, starting at startID.
func (l *List) descend(nicr *num.Uint, startID string) (string, string) {
	if startID == "" {
		return "", ""
	}
	// if startID is the head, check if the insert position is before it
	if l.head == startID && nicr.GTE(l.nicrOf(startID)) {
		return "", startID
	}
	prev := startID
	next := l.nodes[prev].next
	for prev != "" && !l.CheckPosition(nicr, prev, next) {
		prev = l.nodes[prev].next
		next = ""
		if prev != "" {
			next = l.nodes[prev].next
		}
	}
	return prev, next
}

// ascend the list (smaller NICRs to larger NICRs) to find a valid
// insert position, starting at startID.
func (l *List) ascend(nicr *num.Uint, startID string) (string, string) {
	if startID == "" {
		return "", ""
	}
	// if startID is the tail, check if the insert position is after it
	if l.tail == startID && nicr.LTE(l.nicrOf(startID)) {
		return startID, ""
	}
	next := startID
	prev := l.nodes[next].prev
	for next != "" && !l.CheckPosition(nicr, prev, next) {
		next = l.nodes[next].prev
		prev = ""
		if next != "" {
			prev = l.nodes[next].prev
		}
	}
	return prev, next
}

func (l *List) link(id, prev, next string) {
	n := &node{prev: prev, next: next}
	switch {
	case prev == "" && next == "":
		l.head = id
		l.tail = id
	case prev == "":
		n.next = l.head
		l.nodes[l.head].prev = id
		l.head = id
	case next == "":
		n.prev = l.tail
		l.nodes[l.tail].next = id
		l.tail = id
	default:
		l.nodes[prev].next = id
		l.nodes[next].prev = id
	}
	l.nodes[id] = n
	if l.log.GetLevel() == logging.DebugLevel {
		l.log.Debug("indexed position",
			logging.String("id", id),
			logging.String("prev", n.prev),
			logging.String("next", n.next),
		)
	}
}

// nicrOf resolves the current ratio of an indexed identifier. The
// ledger and the index hold exactly one entry per open position, a miss
// here means the two went out of sync.
func (l *List) nicrOf(id string) *num.Uint {
	nicr, err := l.ratios.NICR(id)
	if err != nil {
		l.log.Panic("sorted index entry without a backing position",
			logging.String("id", id),
			logging.Error(err),
		)
	}
	return nicr
}
