package uploader

import (
	"context"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/hyunhwa/concurrencynetwork-go/internal/config"
	"github.com/hyunhwa/concurrencynetwork-go/internal/descriptor"
	"github.com/hyunhwa/concurrencynetwork-go/internal/events"
	"github.com/hyunhwa/concurrencynetwork-go/internal/httptask"
)

// fakeAdapter completes every upload synchronously, letting these tests
// drive the coordinator's event stream without an HTTP round trip.
type fakeAdapter struct {
	respBody []byte
	failErr  error
}

func (a *fakeAdapter) NewDownload(ctx context.Context, d descriptor.Downloadable, resumeToken []byte, cb httptask.Callbacks) (httptask.Handle, error) {
	return &fakeHandle{respBody: a.respBody, failErr: a.failErr, cb: cb}, nil
}

func (a *fakeAdapter) NewUpload(ctx context.Context, u descriptor.Uploadable, body io.Reader, bodySize int64, cb httptask.Callbacks) (httptask.Handle, error) {
	// Drain the spool file body the same way a real transport would, so the
	// uploader's temp spool file gets closed/removed normally.
	io.Copy(io.Discard, body)
	return &fakeHandle{respBody: a.respBody, failErr: a.failErr, cb: cb, bodySize: bodySize}, nil
}

type fakeHandle struct {
	respBody []byte
	failErr  error
	cb       httptask.Callbacks
	bodySize int64
	state    httptask.State
}

func (h *fakeHandle) State() httptask.State { return h.state }
func (h *fakeHandle) Resume() {
	go func() {
		if h.failErr != nil {
			h.state = httptask.StateFailed
			if h.cb.DidFail != nil {
				h.cb.DidFail(h.failErr)
			}
			return
		}
		if h.cb.DidWrite != nil {
			h.cb.DidWrite(h.bodySize, h.bodySize)
		}
		h.state = httptask.StateCompleted
		if h.cb.DidComplete != nil {
			h.cb.DidComplete(httptask.Response{StatusCode: 200, Body: h.respBody})
		}
	}()
}
func (h *fakeHandle) Suspend()                          { h.state = httptask.StateSuspended }
func (h *fakeHandle) Cancel()                           { h.state = httptask.StateCanceled }
func (h *fakeHandle) CancelProducingResumeToken() []byte { h.Cancel(); return nil }

func testConfig() config.EngineConfig {
	cfg := config.DefaultEngineConfig()
	cfg.DefaultTimeout = time.Second
	return cfg
}

func drainUnit(t *testing.T, stream events.UnitEventStream, timeout time.Duration) []events.UnitEvent {
	t.Helper()
	var got []events.UnitEvent
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-stream:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-deadline:
			t.Fatal("timed out draining unit stream")
		}
	}
}

func newTestCoordinator(t *testing.T, adapter httptask.Adapter) *Coordinator {
	t.Helper()
	c, err := New(adapter, testConfig(), nil, Options{SpoolDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestEventsSingleUploadCompletes(t *testing.T) {
	c := newTestCoordinator(t, &fakeAdapter{respBody: []byte("server response")})
	dest, _ := url.Parse("https://example.com/upload")

	stream := c.Events(descriptor.Uploadable{
		SourceURL: descriptor.StaticURL(dest),
		Payload: descriptor.Payload{
			Kind:     descriptor.PayloadInlineData,
			Data:     []byte("file body"),
			FileName: "file.bin",
		},
	})
	got := drainUnit(t, stream, 2*time.Second)

	if len(got) < 2 {
		t.Fatalf("expected at least start+completed events, got %d", len(got))
	}
	last := got[len(got)-1]
	completed, ok := last.(events.UnitCompleted)
	if !ok {
		t.Fatalf("last event = %T, want UnitCompleted", last)
	}
	if string(completed.Body) != "server response" {
		t.Errorf("Body = %q, want %q", completed.Body, "server response")
	}
}

func TestEventsUploadEnforcesMaxBytes(t *testing.T) {
	c := newTestCoordinator(t, &fakeAdapter{respBody: []byte("ok")})
	dest, _ := url.Parse("https://example.com/upload")

	stream := c.Events(descriptor.Uploadable{
		SourceURL: descriptor.StaticURL(dest),
		MaxBytes:  1,
		Payload: descriptor.Payload{
			Kind:     descriptor.PayloadInlineData,
			Data:     []byte("more than one byte"),
			FileName: "file.bin",
		},
	})
	got := drainUnit(t, stream, 2*time.Second)

	last := got[len(got)-1]
	if _, ok := last.(events.UnitErrored); !ok {
		t.Fatalf("last event = %T, want UnitErrored", last)
	}
}

func TestEventsManyUploadsAllComplete(t *testing.T) {
	c := newTestCoordinator(t, &fakeAdapter{respBody: []byte("ok")})
	dest, _ := url.Parse("https://example.com/upload")

	mkUpload := func(name string) descriptor.Uploadable {
		return descriptor.Uploadable{
			SourceURL: descriptor.StaticURL(dest),
			Payload: descriptor.Payload{
				Kind:     descriptor.PayloadInlineData,
				Data:     []byte("data"),
				FileName: name,
			},
		}
	}

	agg := c.EventsMany([]descriptor.Uploadable{mkUpload("a.bin"), mkUpload("b.bin")})

	var unitStreams []events.UnitEventStream
	sawAllCompleted := false
	deadline := time.After(2 * time.Second)
loop:
	for {
		select {
		case ev, ok := <-agg:
			if !ok {
				break loop
			}
			switch e := ev.(type) {
			case events.AggregateUnit:
				unitStreams = append(unitStreams, e.Stream)
			case events.AggregateAllCompleted:
				sawAllCompleted = true
			}
		case <-deadline:
			t.Fatal("timed out draining aggregate stream")
		}
	}

	if !sawAllCompleted {
		t.Fatal("expected AggregateAllCompleted")
	}
	if len(unitStreams) != 2 {
		t.Fatalf("expected 2 unit streams, got %d", len(unitStreams))
	}
	for _, s := range unitStreams {
		drainUnit(t, s, 2*time.Second)
	}
}

func TestUploadStopIsIdempotent(t *testing.T) {
	c := newTestCoordinator(t, &fakeAdapter{respBody: []byte("x")})
	c.Stop(nil)
	c.Stop(nil)
}
