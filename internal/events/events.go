// Package events implements the two-level event-stream protocol from
// spec.md §4.1: per-unit streams multiplexed under an aggregate stream. A
// stream is "cold w.r.t. construction but hot w.r.t. subscription" (spec.md
// §6) -- in this Go rendering that means a buffered channel the coordinator
// starts writing to the moment the batch is accepted; the caller must range
// over it to observe events, and the coordinator closes it exactly once
// when the stream reaches its terminal event (spec.md I2/I3/I5).
package events

import "github.com/hyunhwa/concurrencynetwork-go/internal/record"

// UnitEvent is one of Start, Update, Completed, or Errored.
type UnitEvent interface{ isUnitEvent() }

// UnitStart is emitted exactly once per record, immediately before its
// underlying task is resumed for the first time.
type UnitStart struct {
	Index int
	Info  record.Snapshot
}

func (UnitStart) isUnitEvent() {}

// UnitUpdate is emitted subject to the progress throttle (internal/progress).
type UnitUpdate struct {
	Current, Total float64
}

func (UnitUpdate) isUnitEvent() {}

// UnitCompleted is emitted at most once, terminal for the stream. For
// downloads Body is the downloaded file contents; for uploads it is the
// accumulated server response bytes.
type UnitCompleted struct {
	Body []byte
	Info record.Snapshot
}

func (UnitCompleted) isUnitEvent() {}

// UnitErrored is delivered instead of UnitCompleted when the record's
// attempt fails; it is the last value sent on the channel before it is
// closed.
type UnitErrored struct {
	Err error
}

func (UnitErrored) isUnitEvent() {}

// UnitEventStream is the read end of one record's event channel.
type UnitEventStream <-chan UnitEvent

// AggregateEvent is one of Start, Unit, AllCompleted, or Errored.
type AggregateEvent interface{ isAggregateEvent() }

// AggregateStart is emitted once, before any unit event, synchronously with
// the call that accepted the batch.
type AggregateStart struct {
	Records []record.Snapshot
}

func (AggregateStart) isAggregateEvent() {}

// AggregateUnit wraps one record's unit stream; one is delivered per
// record, in submission order.
type AggregateUnit struct {
	Stream UnitEventStream
}

func (AggregateUnit) isAggregateEvent() {}

// AggregateAllCompleted is emitted once, after every unit stream has
// completed successfully.
type AggregateAllCompleted struct {
	Records []record.Snapshot
}

func (AggregateAllCompleted) isAggregateEvent() {}

// AggregateErrored is delivered instead of AggregateAllCompleted when
// Stop(err) is invoked, or when policy surfaces the first unit error to the
// aggregate stream (spec.md §8 scenario 4).
type AggregateErrored struct {
	Err error
}

func (AggregateErrored) isAggregateEvent() {}

// AggregateEventStream is the read end of one batch's aggregate channel.
type AggregateEventStream <-chan AggregateEvent
