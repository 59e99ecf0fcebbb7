package httptask

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/hyunhwa/concurrencynetwork-go/internal/descriptor"
	"github.com/hyunhwa/concurrencynetwork-go/internal/xerrors"
)

func waitCallbacks(t *testing.T, timeout time.Duration, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for task callback")
	}
}

func TestDownloadHandleCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	adapter := NewDefaultAdapter(srv.Client())

	done := make(chan struct{})
	var resp Response
	h, err := adapter.NewDownload(context.Background(), descriptor.Downloadable{SourceURL: descriptor.StaticURL(u)}, nil, Callbacks{
		DidComplete: func(r Response) { resp = r; close(done) },
		DidFail:     func(err error) { t.Errorf("unexpected failure: %v", err); close(done) },
	})
	if err != nil {
		t.Fatalf("NewDownload() error = %v", err)
	}
	h.Resume()
	waitCallbacks(t, 2*time.Second, done)

	if string(resp.Body) != "hello world" {
		t.Errorf("Body = %q, want %q", resp.Body, "hello world")
	}
	if h.State() != StateCompleted {
		t.Errorf("State() = %v, want StateCompleted", h.State())
	}
}

func TestDownloadHandleReportsProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "11")
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	adapter := NewDefaultAdapter(srv.Client())

	done := make(chan struct{})
	var mu sync.Mutex
	var lastCurrent, lastTotal int64
	h, _ := adapter.NewDownload(context.Background(), descriptor.Downloadable{SourceURL: descriptor.StaticURL(u)}, nil, Callbacks{
		DidWrite: func(current, total int64) {
			mu.Lock()
			lastCurrent, lastTotal = current, total
			mu.Unlock()
		},
		DidComplete: func(Response) { close(done) },
		DidFail:     func(error) { close(done) },
	})
	h.Resume()
	waitCallbacks(t, 2*time.Second, done)

	mu.Lock()
	defer mu.Unlock()
	if lastCurrent != 11 || lastTotal != 11 {
		t.Errorf("last progress = (%d, %d), want (11, 11)", lastCurrent, lastTotal)
	}
}

func TestDownloadHandleServerErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html><body>Bad Gateway</body></html>"))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	adapter := NewDefaultAdapter(srv.Client())

	done := make(chan struct{})
	var gotErr error
	h, _ := adapter.NewDownload(context.Background(), descriptor.Downloadable{SourceURL: descriptor.StaticURL(u)}, nil, Callbacks{
		DidComplete: func(Response) { close(done) },
		DidFail:     func(err error) { gotErr = err; close(done) },
	})
	h.Resume()
	waitCallbacks(t, 2*time.Second, done)

	var htmlErr xerrors.ServerErrorHTML
	if !errors.As(gotErr, &htmlErr) {
		t.Fatalf("expected xerrors.ServerErrorHTML, got %#v", gotErr)
	}
	if htmlErr.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want %d", htmlErr.Status, http.StatusBadGateway)
	}
}

func TestDownloadHandleSendsRangeHeaderForResumeToken(t *testing.T) {
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.Write([]byte("rest-of-file"))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	adapter := NewDefaultAdapter(srv.Client())

	done := make(chan struct{})
	h, _ := adapter.NewDownload(context.Background(), descriptor.Downloadable{SourceURL: descriptor.StaticURL(u)}, []byte("offset:1024"), Callbacks{
		DidComplete: func(Response) { close(done) },
		DidFail:     func(error) { close(done) },
	})
	h.Resume()
	waitCallbacks(t, 2*time.Second, done)

	if gotRange != "bytes=1024-" {
		t.Errorf("Range header = %q, want %q", gotRange, "bytes=1024-")
	}
}

func TestDownloadHandleFailureCarriesResumeToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		flusher, _ := w.(http.Flusher)
		w.Write([]byte("partial"))
		if flusher != nil {
			flusher.Flush()
		}
		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	adapter := NewDefaultAdapter(srv.Client())

	done := make(chan struct{})
	var gotErr error
	h, _ := adapter.NewDownload(context.Background(), descriptor.Downloadable{SourceURL: descriptor.StaticURL(u)}, nil, Callbacks{
		DidComplete: func(Response) { close(done) },
		DidFail:     func(err error) { gotErr = err; close(done) },
	})
	h.Resume()
	waitCallbacks(t, 2*time.Second, done)

	var carrier xerrors.ResumeTokenCarrier
	if !errors.As(gotErr, &carrier) {
		t.Fatalf("expected a ResumeTokenCarrier, got %#v", gotErr)
	}
}

func TestUploadHandleCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write(append([]byte("echo:"), body...))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	adapter := NewDefaultAdapter(srv.Client())

	payload := []byte("payload-bytes")
	done := make(chan struct{})
	var resp Response
	h, err := adapter.NewUpload(context.Background(), descriptor.Uploadable{SourceURL: descriptor.StaticURL(u)}, bytesReader(payload), int64(len(payload)), Callbacks{
		DidComplete: func(r Response) { resp = r; close(done) },
		DidFail:     func(err error) { t.Errorf("unexpected failure: %v", err); close(done) },
	})
	if err != nil {
		t.Fatalf("NewUpload() error = %v", err)
	}
	h.Resume()
	waitCallbacks(t, 2*time.Second, done)

	if string(resp.Body) != "echo:payload-bytes" {
		t.Errorf("Body = %q, want %q", resp.Body, "echo:payload-bytes")
	}
}

func TestUploadHandleCancelProducesNoResumeToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	adapter := NewDefaultAdapter(srv.Client())
	h, _ := adapter.NewUpload(context.Background(), descriptor.Uploadable{SourceURL: descriptor.StaticURL(u)}, bytesReader([]byte("x")), 1, Callbacks{})

	if tok := h.CancelProducingResumeToken(); tok != nil {
		t.Errorf("expected nil resume token for an upload handle, got %q", tok)
	}
	if h.State() != StateCanceled {
		t.Errorf("State() = %v, want StateCanceled", h.State())
	}
}

func bytesReader(b []byte) io.Reader { return &staticReader{b: b} }

type staticReader struct {
	b   []byte
	pos int
}

func (r *staticReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}
