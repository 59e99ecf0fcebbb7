// Package uploader implements the Uploader coordinator (spec.md §4.6, C8).
// It mirrors internal/downloader's actor/command-channel shape almost
// exactly, differing only where spec.md §4.6 calls out: multipart spool-file
// construction (internal/uploader/multipart), size enforcement against
// MaxBytes before a task ever starts, response-buffer capture instead of a
// destination write, and no upload-side resume token.
package uploader

import (
	"context"
	"fmt"
	"io"
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
	"github.com/hyunhwa/concurrencynetwork-go/internal/uploader/multipart"
	"github.com/hyunhwa/concurrencynetwork-go/internal/xerrors"
)

const defaultSpoolDirName = "transferengine-upload-spool"

// Options configures spool-directory behavior beyond config.EngineConfig,
// matching spec.md §6's "willResetDirectory" constructor argument.
type Options struct {
	SpoolDir            string
	WillResetDirectory  bool
}

// Coordinator is the C8 Uploader.
type Coordinator struct {
	cmd     chan func()
	gate    *gate.Gate
	adapter httptask.Adapter
	cfg     config.EngineConfig
	logger  *logging.Logger
	spoolDir string

	records     *record.Set
	descriptors map[*record.Record]descriptor.Uploadable
	sinks       map[*record.Record]chan events.UnitEvent
	throttles   map[*record.Record]*progress.Throttle
	aggCh       chan events.AggregateEvent
	aggClosed   bool
}

// New creates an Uploader coordinator. opts.SpoolDir defaults to
// os.TempDir()/transferengine-upload-spool; WillResetDirectory deletes and
// recreates it up front, matching spec.md §6's persisted-state contract.
func New(adapter httptask.Adapter, cfg config.EngineConfig, logger *logging.Logger, opts Options) (*Coordinator, error) {
	dir := opts.SpoolDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), defaultSpoolDirName)
	}
	if opts.WillResetDirectory {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("uploader: reset spool dir: %w", err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("uploader: create spool dir: %w", err)
	}

	c := &Coordinator{
		cmd:      make(chan func()),
		gate:     gate.New(cfg.MaxActive),
		adapter:  adapter,
		cfg:      cfg,
		logger:   logger,
		spoolDir: dir,
	}
	c.resetBatchState()
	go c.loop()
	return c, nil
}

func (c *Coordinator) loop() {
	for fn := range c.cmd {
		fn()
	}
}

func (c *Coordinator) post(fn func()) {
	done := make(chan struct{})
	c.cmd <- func() {
		fn()
		close(done)
	}
	<-done
}

// Events is the single-transfer form.
func (c *Coordinator) Events(u descriptor.Uploadable) events.UnitEventStream {
	agg := c.EventsMany([]descriptor.Uploadable{u})
	<-agg
	next, ok := <-agg
	if ok {
		if au, ok := next.(events.AggregateUnit); ok {
			return au.Stream
		}
	}
	ch := make(chan events.UnitEvent)
	close(ch)
	return ch
}

// EventsMany is the multi-transfer form.
func (c *Coordinator) EventsMany(us []descriptor.Uploadable) events.AggregateEventStream {
	aggCh := make(chan events.AggregateEvent, len(us)+2)
	c.post(func() {
		c.resetBatchState()
		c.aggCh = aggCh

		recs := make([]*record.Record, len(us))
		snaps := make([]record.Snapshot, len(us))
		for i, u := range us {
			r := record.New()
			c.records.Add(r, r.ID(), "")
			c.descriptors[r] = applyDefaultTimeout(u, c.cfg.DefaultTimeout)
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

func applyDefaultTimeout(u descriptor.Uploadable, def time.Duration) descriptor.Uploadable {
	if u.Timeout == 0 {
		u.Timeout = def
	}
	return u
}

// Pause suspends every running record. Uploads have no resume-token
// equivalent (spec.md §4.6): CancelProducingResumeToken always returns nil
// for the default adapter's upload handle, so this degrades to plain
// suspend.
func (c *Coordinator) Pause() {
	c.post(func() {
		for _, r := range c.records.All() {
			if r.State() != record.StateRunning {
				continue
			}
			r.Task().Suspend()
			r.SetState(record.StateSuspended)
			c.gate.Release()
		}
	})
}

// Resume invokes the gate for every non-completed record.
func (c *Coordinator) Resume() {
	c.post(func() {
		for _, r := range c.records.All() {
			if r.State() == record.StateCompleted {
				continue
			}
			c.tryStart(r)
		}
	})
}

// Stop is terminal cleanup, mirroring internal/downloader.Coordinator.Stop.
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
	c.descriptors = make(map[*record.Record]descriptor.Uploadable)
	c.sinks = make(map[*record.Record]chan events.UnitEvent)
	c.throttles = make(map[*record.Record]*progress.Throttle)
	c.aggCh = nil
	c.aggClosed = false
}

// initRecord builds the multipart spool file, enforces MaxBytes (spec.md
// §4.6 "Size enforcement") before ever starting a task, then hands the
// spool file to the adapter as the upload body.
func (c *Coordinator) initRecord(r *record.Record) {
	ch := make(chan events.UnitEvent, 8)
	c.sinks[r] = ch
	// The aggregate may already be closed by an earlier record in this same
	// submission loop -- r still gets its own unit stream and runs to
	// completion, it just never surfaces on the now-finished aggregate
	// stream (spec.md §8.4).
	c.emitAggregate(events.AggregateUnit{Stream: ch})
	c.throttles[r] = progress.NewThrottle(c.cfg.ProgressIntervalPct)

	u := c.descriptors[r]
	if _, err := u.SourceURL(); err != nil {
		c.failRecord(r, xerrors.InvalidURL{Cause: err})
		return
	}

	body, err := multipart.Build(r.ID(), u)
	if err != nil {
		c.failRecord(r, err)
		return
	}

	spoolPath := filepath.Join(c.spoolDir, r.ID())
	if err := spoolToDisk(spoolPath, body.Reader); err != nil {
		c.failRecord(r, xerrors.NoDataInLocal{Cause: err})
		return
	}
	defer os.Remove(spoolPath)

	f, err := os.Open(spoolPath)
	if err != nil {
		c.failRecord(r, xerrors.NoDataInLocal{Cause: err})
		return
	}

	withContentType := u
	if withContentType.Headers == nil {
		withContentType.Headers = make(map[string][]string)
	} else {
		withContentType.Headers = withContentType.Headers.Clone()
	}
	if withContentType.Headers.Get("Content-Type") == "" {
		withContentType.Headers.Set("Content-Type", body.ContentType)
	}
	c.descriptors[r] = withContentType

	h, err := c.adapter.NewUpload(context.Background(), withContentType, f, body.Size, c.callbacksFor(r, f))
	if err != nil {
		f.Close()
		c.failRecord(r, err)
		return
	}
	r.SetTask(h)
	c.tryStart(r)
}

func spoolToDisk(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}

func (c *Coordinator) callbacksFor(r *record.Record, spoolFile *os.File) httptask.Callbacks {
	return httptask.Callbacks{
		DidWrite: func(current, total int64) {
			c.post(func() { c.handleDidWrite(r, current, total) })
		},
		DidComplete: func(resp httptask.Response) {
			c.post(func() {
				spoolFile.Close()
				c.handleDidComplete(r, resp)
			})
		},
		DidFail: func(err error) {
			c.post(func() {
				spoolFile.Close()
				c.handleDidFail(r, err)
			})
		},
	}
}

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

// handleDidComplete implements spec.md §4.6's "Response capture"/"Completion
// decision": the adapter's Response.Body already is the accumulated server
// response (httptask reads it fully before invoking DidComplete, same
// temp-file-read rule as downloads), and DidComplete is only invoked on
// 2xx, so a successful callback always means completed.
func (c *Coordinator) handleDidComplete(r *record.Record, resp httptask.Response) {
	r.SetState(record.StateCompleted)
	c.gate.Release()
	c.emitUnit(r, events.UnitCompleted{Body: resp.Body, Info: r.Clone()})
	c.closeSink(r)
	c.afterTerminal()
}

func (c *Coordinator) handleDidFail(r *record.Record, err error) {
	if c.logger != nil {
		c.logger.Errorf("upload %s failed: %v", r.ID(), err)
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

// closeAggregate finishes the aggregate stream for Stop (spec.md §4.6): with
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
