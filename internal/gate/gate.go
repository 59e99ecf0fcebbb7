// Package gate implements the concurrency gate (spec.md §4.3, C5): a fixed
// ceiling on how many records may be running at once, with FIFO-by-
// submission-order admission and no priority or preemption. It is grounded
// on the teacher's internal/resources.Manager (CPU-thread allocation
// tracking), but deliberately drops that file's throughput-based
// auto-scaling: spec.md §4.3 pins maxActive to a fixed, caller-supplied
// value clamped to [1,5], so Gate only tracks admission counts, never
// measures throughput.
package gate

import "github.com/hyunhwa/concurrencynetwork-go/internal/record"

const (
	minActive = 1
	maxActive = 5
)

// Gate bounds how many records may be concurrently running. It holds no
// reference to any record beyond the active count -- the coordinator's
// record.Set remains the single source of truth for which records exist.
// Gate is not safe for concurrent use; it is only ever touched from the
// owning coordinator's single-writer actor goroutine (spec.md §5).
type Gate struct {
	limit  int
	active int
}

// New creates a gate with the given limit, clamped to [1,5] per spec.md
// §4.3. A limit outside that range is silently clamped rather than
// rejected, matching the teacher's resources.Manager constructor, which
// clamps rather than errors on an out-of-range worker count.
func New(limit int) *Gate {
	if limit < minActive {
		limit = minActive
	}
	if limit > maxActive {
		limit = maxActive
	}
	return &Gate{limit: limit}
}

// Limit returns the gate's clamped concurrency ceiling.
func (g *Gate) Limit() int {
	return g.limit
}

// Active returns how many records the gate currently considers running.
func (g *Gate) Active() int {
	return g.active
}

// TryStartNext scans candidates in order and returns the first one eligible
// to start -- preferred, if non-nil and itself eligible, takes priority over
// the scan, matching spec.md §4.3's "resuming an explicitly-requested record
// takes precedence over the next one in submission order" rule. It returns
// nil if the gate is already at its limit or no candidate is in
// record.StateNew/StateSuspended. Eligibility looks at state only; whether
// the record has a task yet is not checked.
//
// TryStartNext does not mutate record state or call Resume() -- the caller
// (the coordinator's actor) does that once it receives the chosen record
// back, and must call Release() when that record later stops running.
func (g *Gate) TryStartNext(preferred *record.Record, candidates []*record.Record) *record.Record {
	if g.active >= g.limit {
		return nil
	}

	if preferred != nil && eligible(preferred) {
		g.active++
		return preferred
	}

	for _, r := range candidates {
		if r == preferred {
			continue
		}
		if eligible(r) {
			g.active++
			return r
		}
	}
	return nil
}

// Release frees one admission slot. Callers must invoke this exactly once
// per successful TryStartNext, when the returned record stops running
// (completes, fails, is canceled, or is suspended).
func (g *Gate) Release() {
	if g.active > 0 {
		g.active--
	}
}

func eligible(r *record.Record) bool {
	switch r.State() {
	case record.StateNew, record.StateSuspended:
		return true
	default:
		return false
	}
}
