// Package downloader implements the Downloader coordinator (spec.md §4.5,
// C7): accepts one or many descriptor.Downloadable values, drives each
// through httptask, and reports progress via the two-level event-stream
// protocol (internal/events). It is grounded on the teacher's
// internal/transfer.Queue/TransferTask pattern (internal/transfer/queue.go,
// task.go) for its lifecycle/state-machine shape, but rendered as a
// single-writer actor goroutine instead of a mutex-guarded passive queue:
// spec.md §5 requires "no lock on the records array because only the
// serialized context reads/writes it", which an actor gives for free.
package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/hyunhwa/concurrencynetwork-go/internal/config"
	"github.com/hyunhwa/concurrencynetwork-go/internal/descriptor"
	"github.com/hyunhwa/concurrencynetwork-go/internal/events"
	"github.com/hyunhwa/concurrencynetwork-go/internal/gate"
	"github.com/hyunhwa/concurrencynetwork-go/internal/httptask"
	"github.com/hyunhwa/concurrencynetwork-go/internal/logging"
	"github.com/hyunhwa/concurrencynetwork-go/internal/progress"
	"github.com/hyunhwa/concurrencynetwork-go/internal/record"
	"github.com/hyunhwa/concurrencynetwork-go/internal/xerrors"
)

// Coordinator is the C7 Downloader. All exported methods are safe to call
// from any goroutine; they post a closure onto the coordinator's single
// actor goroutine and block until it runs, matching spec.md §5's
// "suspend on the context boundary".
type Coordinator struct {
	cmd    chan func()
	gate   *gate.Gate
	adapter httptask.Adapter
	cfg    config.EngineConfig
	logger *logging.Logger

	// Batch state -- touched only from inside the actor goroutine.
	records     *record.Set
	descriptors map[*record.Record]descriptor.Downloadable
	sinks       map[*record.Record]chan events.UnitEvent
	throttles   map[*record.Record]*progress.Throttle
	aggCh       chan events.AggregateEvent
	aggClosed   bool
}

// New creates a Downloader coordinator using adapter for its HTTP tasks.
func New(adapter httptask.Adapter, cfg config.EngineConfig, logger *logging.Logger) *Coordinator {
	c := &Coordinator{
		cmd:     make(chan func()),
		gate:    gate.New(cfg.MaxActive),
		adapter: adapter,
		cfg:     cfg,
		logger:  logger,
	}
	c.resetBatchState()
	go c.loop()
	return c
}

func (c *Coordinator) loop() {
	for fn := range c.cmd {
		fn()
	}
}

// post runs fn on the actor goroutine and waits for it to finish. It must
// never be called from inside the actor goroutine itself (from fn, or
// anything fn calls) -- doing so would deadlock, since the actor isn't
// reading c.cmd again until the current job returns.
func (c *Coordinator) post(fn func()) {
	done := make(chan struct{})
	c.cmd <- func() {
		fn()
		close(done)
	}
	<-done
}

// Events is the single-transfer form: creates a one-element batch and
// returns the unit stream for its record.
func (c *Coordinator) Events(d descriptor.Downloadable) events.UnitEventStream {
	agg := c.EventsMany([]descriptor.Downloadable{d})
	<-agg // AggregateStart
	next, ok := <-agg
	if ok {
		if u, ok := next.(events.AggregateUnit); ok {
			return u.Stream
		}
	}
	ch := make(chan events.UnitEvent)
	close(ch)
	return ch
}

// EventsMany is the multi-transfer form: emits start{records} synchronously,
// then a unit{stream} event per record in submission order.
func (c *Coordinator) EventsMany(ds []descriptor.Downloadable) events.AggregateEventStream {
	aggCh := make(chan events.AggregateEvent, len(ds)+2)
	c.post(func() {
		c.resetBatchState()
		c.aggCh = aggCh

		recs := make([]*record.Record, len(ds))
		snaps := make([]record.Snapshot, len(ds))
		for i, d := range ds {
			r := record.New()
			identity, _ := d.IdentityKey()
			c.records.Add(r, identity, "")
			c.descriptors[r] = applyDefaultTimeout(d, c.cfg.DefaultTimeout)
			recs[i] = r
			snaps[i] = r.Clone()
		}
		c.emitAggregate(events.AggregateStart{Records: snaps})

		for _, r := range recs {
			c.initRecord(r)
		}

		if len(recs) == 0 {
			c.finishAggregateSuccess()
		}
	})
	return aggCh
}

// applyDefaultTimeout fills in d.Timeout from the engine's DefaultTimeout
// when the descriptor didn't specify its own.
func applyDefaultTimeout(d descriptor.Downloadable, def time.Duration) descriptor.Downloadable {
	if d.Timeout == 0 {
		d.Timeout = def
	}
	return d
}

// Pause suspends every currently-running record, per spec.md §4.5: ask the
// task for a resume token; if one comes back, replace the handle with a
// resume-from-token handle and remember the token, else plain-suspend.
func (c *Coordinator) Pause() {
	c.post(func() {
		for _, r := range c.records.All() {
			if r.State() != record.StateRunning {
				continue
			}
			task := r.Task()
			tok := task.CancelProducingResumeToken()
			if tok != nil {
				r.SetResumeToken(tok)
				if h, err := c.adapter.NewDownload(context.Background(), c.descriptors[r], tok, c.callbacksFor(r)); err == nil {
					r.SetTask(h)
				}
			} else {
				task.Suspend()
			}
			r.SetState(record.StateSuspended)
			c.gate.Release()
		}
	})
}

// Resume invokes the gate for every non-completed record. A record that
// failed but was left carrying a resume token (see handleDidFail) is
// revived to Suspended first -- this is what spec.md §4.5 means by "this
// positions the record for a possible future resume() even though the
// current attempt failed".
func (c *Coordinator) Resume() {
	c.post(func() {
		for _, r := range c.records.All() {
			switch r.State() {
			case record.StateCompleted, record.StateCanceled:
				continue
			case record.StateFailed:
				if r.ResumeToken() == nil {
					continue
				}
				r.SetState(record.StateSuspended)
			}
			c.tryStart(r)
		}
	})
}

// Stop is terminal cleanup: finishes the aggregate stream (with err if
// given), cancels every record's task, finishes every unit stream, and
// clears the batch. A second Stop call is a no-op, satisfying P7.
func (c *Coordinator) Stop(err error) {
	c.post(func() {
		c.closeAggregate(err)

		for _, r := range c.records.All() {
			switch r.State() {
			case record.StateCompleted, record.StateFailed, record.StateCanceled:
				continue
			}
			if task := r.Task(); task != nil {
				task.Cancel()
			}
			finalErr := err
			if finalErr == nil {
				finalErr = xerrors.CanceledByUser{}
			}
			r.SetErr(finalErr)
			r.SetState(record.StateCanceled)
			c.emitUnit(r, events.UnitErrored{Err: finalErr})
			c.closeSink(r)
		}

		c.resetBatchState()
	})
}

func (c *Coordinator) resetBatchState() {
	c.records = record.NewSet()
	c.descriptors = make(map[*record.Record]descriptor.Downloadable)
	c.sinks = make(map[*record.Record]chan events.UnitEvent)
	c.throttles = make(map[*record.Record]*progress.Throttle)
	c.aggCh = nil
	c.aggClosed = false
}

func (c *Coordinator) initRecord(r *record.Record) {
	ch := make(chan events.UnitEvent, 8)
	c.sinks[r] = ch
	// The aggregate may already be closed by an earlier record in this same
	// submission loop (e.g. record #0 failed synchronously) -- r still gets
	// its own unit stream and runs to completion, it just never surfaces on
	// the now-finished aggregate stream (spec.md §8.4).
	c.emitAggregate(events.AggregateUnit{Stream: ch})
	c.throttles[r] = progress.NewThrottle(c.cfg.ProgressIntervalPct)

	d := c.descriptors[r]
	if _, err := d.SourceURL(); err != nil {
		c.failRecord(r, xerrors.InvalidURL{Cause: err})
		return
	}

	h, err := c.adapter.NewDownload(context.Background(), d, nil, c.callbacksFor(r))
	if err != nil {
		c.failRecord(r, err)
		return
	}
	r.SetTask(h)
	c.tryStart(r)
}

func (c *Coordinator) callbacksFor(r *record.Record) httptask.Callbacks {
	return httptask.Callbacks{
		DidWrite: func(current, total int64) {
			c.post(func() { c.handleDidWrite(r, current, total) })
		},
		DidComplete: func(resp httptask.Response) {
			c.post(func() { c.handleDidComplete(r, resp) })
		},
		DidFail: func(err error) {
			c.post(func() { c.handleDidFail(r, err) })
		},
	}
}

// tryStart asks the gate to admit preferred (if eligible) or the next
// eligible record in submission order, then emits UnitStart and calls
// Resume() on the chosen record's task.
func (c *Coordinator) tryStart(preferred *record.Record) {
	started := c.gate.TryStartNext(preferred, c.records.All())
	if started == nil {
		return
	}
	if started.Task() == nil {
		// Not initialized yet; initRecord calls tryStart again once its task exists.
		c.gate.Release()
		return
	}
	started.SetState(record.StateStarting)
	idx := c.records.Index(started)
	c.emitUnit(started, events.UnitStart{Index: idx, Info: started.Clone()})
	started.SetState(record.StateRunning)
	started.Task().Resume()
}

func (c *Coordinator) handleDidWrite(r *record.Record, current, total int64) {
	r.SetProgress(float64(current), float64(total))
	th := c.throttles[r]
	if th == nil {
		return
	}
	if th.ShouldEmit(float64(current), float64(total)) {
		c.emitUnit(r, events.UnitUpdate{Current: float64(current), Total: float64(total)})
	}
}

func (c *Coordinator) handleDidComplete(r *record.Record, resp httptask.Response) {
	d := c.descriptors[r]
	if d.DestDir != nil {
		if err := saveToDestination(d, resp.Body); err != nil {
			c.gate.Release()
			c.failRecord(r, err)
			return
		}
	}
	r.SetState(record.StateCompleted)
	c.gate.Release()
	c.emitUnit(r, events.UnitCompleted{Body: resp.Body, Info: r.Clone()})
	c.closeSink(r)
	c.afterTerminal()
}

func (c *Coordinator) handleDidFail(r *record.Record, err error) {
	if c.logger != nil {
		c.logger.Errorf("download %s failed: %v", r.ID(), err)
	}
	if carrier, ok := asResumeTokenCarrier(err); ok {
		tok := carrier.ResumeToken()
		r.SetResumeToken(tok)
		d := c.descriptors[r]
		if h, herr := c.adapter.NewDownload(context.Background(), d, tok, c.callbacksFor(r)); herr == nil {
			r.SetTask(h)
		}
	}

	wasAdmitted := r.State() == record.StateStarting || r.State() == record.StateRunning
	r.SetErr(err)
	r.SetState(record.StateFailed)
	if wasAdmitted {
		c.gate.Release()
	}
	c.emitUnit(r, events.UnitErrored{Err: err})
	c.closeSink(r)
	c.surfaceErrorToAggregate(err)
	c.afterTerminal()
}

func (c *Coordinator) failRecord(r *record.Record, err error) {
	r.SetErr(err)
	r.SetState(record.StateFailed)
	c.emitUnit(r, events.UnitErrored{Err: err})
	c.closeSink(r)
	c.surfaceErrorToAggregate(err)
	c.afterTerminal()
}

// afterTerminal recomputes allDone strictly after the just-finished
// record's terminal transition was applied (spec.md §9 Open Question,
// resolved as "after"), and starts the next eligible record regardless.
func (c *Coordinator) afterTerminal() {
	if c.records.AllCompleted() {
		c.finishAggregateSuccess()
	}
	c.tryStart(nil)
}

func (c *Coordinator) finishAggregateSuccess() {
	if c.aggClosed {
		return
	}
	c.aggClosed = true
	if c.aggCh == nil {
		return
	}
	c.aggCh <- events.AggregateAllCompleted{Records: c.records.Snapshots()}
	close(c.aggCh)
}

// surfaceErrorToAggregate implements the policy from spec.md §8 scenario 4:
// the first unit error closes the aggregate stream with AggregateErrored,
// even though other units may still be running and will complete on their
// own unit streams independently.
func (c *Coordinator) surfaceErrorToAggregate(err error) {
	if c.aggClosed {
		return
	}
	c.aggClosed = true
	if c.aggCh == nil {
		return
	}
	c.aggCh <- events.AggregateErrored{Err: err}
	close(c.aggCh)
}

// closeAggregate finishes the aggregate stream for Stop (spec.md §4.5): with
// AggregateErrored{err} if Stop was given one, or AggregateAllCompleted only
// if every record had genuinely reached StateCompleted already -- otherwise
// this is a cancellation, not a completion (I3/P4), and is reported as
// AggregateErrored{CanceledByUser} instead.
func (c *Coordinator) closeAggregate(err error) {
	if c.aggClosed {
		return
	}
	if err == nil && !c.records.AllCompleted() {
		err = xerrors.CanceledByUser{}
	}
	c.aggClosed = true
	if c.aggCh == nil {
		return
	}
	if err != nil {
		c.aggCh <- events.AggregateErrored{Err: err}
	} else {
		c.aggCh <- events.AggregateAllCompleted{Records: c.records.Snapshots()}
	}
	close(c.aggCh)
}

// emitAggregate sends ev on the aggregate stream unless it has already been
// closed (or no batch has assigned a stream yet), guarding every aggregate
// send against the now-closed-or-nil channel left behind by a prior batch.
func (c *Coordinator) emitAggregate(ev events.AggregateEvent) bool {
	if c.aggClosed || c.aggCh == nil {
		return false
	}
	c.aggCh <- ev
	return true
}

func (c *Coordinator) emitUnit(r *record.Record, ev events.UnitEvent) {
	if ch := c.sinks[r]; ch != nil {
		ch <- ev
	}
}

func (c *Coordinator) closeSink(r *record.Record) {
	if ch := c.sinks[r]; ch != nil {
		close(ch)
		delete(c.sinks, r)
	}
}

func asResumeTokenCarrier(err error) (xerrors.ResumeTokenCarrier, bool) {
	var carrier xerrors.ResumeTokenCarrier
	if errors.As(err, &carrier) {
		return carrier, true
	}
	return nil, false
}

// saveToDestination implements spec.md §4.5's save policy: verify the
// destination is a local file URL, create missing intermediate
// directories, then atomically replace any existing file via a
// temp-file-then-rename, grounded on the teacher's
// internal/cloud/download/resume.go SaveDownloadState pattern.
func saveToDestination(d descriptor.Downloadable, body []byte) error {
	if d.DestDir.Scheme != "" && d.DestDir.Scheme != "file" {
		return xerrors.InvalidFileURL{URL: d.DestDir.String()}
	}
	path, err := d.DestinationPath()
	if err != nil {
		return xerrors.InvalidFileURL{URL: d.DestDir.String()}
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.NoDataInLocal{Cause: err}
	}

	tmp, err := os.CreateTemp(dir, ".download-*.tmp")
	if err != nil {
		return xerrors.NoDataInLocal{Cause: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return xerrors.NoDataInLocal{Cause: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return xerrors.NoDataInLocal{Cause: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return xerrors.NoDataInLocal{Cause: err}
	}
	return nil
}
