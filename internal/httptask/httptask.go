// Package httptask implements the HTTP task adapter (spec.md §4.6, C6): the
// abstraction a Downloader/Uploader coordinator programs against instead of
// talking to net/http directly, so that S3/Azure-backed transports
// (httptask/s3backend, httptask/azurebackend) can stand in behind the same
// Handle/Adapter/Response/Callbacks contract. It is grounded on the
// teacher's internal/cloud.CloudTransfer interface (now removed), which
// abstracted S3 and Azure behind one upload/download surface, and on
// internal/transfer.TransferTask (internal/transfer/task.go) for the
// Handle's state/cancel/context shape.
package httptask

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/hyunhwa/concurrencynetwork-go/internal/descriptor"
	"github.com/hyunhwa/concurrencynetwork-go/internal/xerrors"
)

// State mirrors record.State for a task handle in isolation from the
// engine's record bookkeeping -- an Adapter implementation has no
// dependency on internal/record.
type State int

const (
	StateRunning State = iota
	StateSuspended
	StateCanceled
	StateCompleted
	StateFailed
)

// Callbacks are invoked by a Handle as the underlying transfer progresses.
// All three may be called from a goroutine owned by the Adapter
// implementation; callers must not block inside them beyond what the
// "read temp file bytes into memory before the completion callback returns"
// contract requires (see Response.Body below).
type Callbacks struct {
	// DidWrite reports cumulative bytes transferred so far, for the
	// progress throttle (internal/progress) to sample.
	DidWrite func(current, total int64)

	// DidComplete is invoked exactly once, with the final Response, when
	// the transfer finishes successfully. The Adapter guarantees
	// Response.Body has already been fully read into memory before this is
	// called -- the temp file backing a download response may be removed
	// the instant DidComplete returns.
	DidComplete func(Response)

	// DidFail is invoked exactly once, instead of DidComplete, when the
	// transfer ends in error. err may implement xerrors.ResumeTokenCarrier.
	DidFail func(err error)
}

// Response is a completed task's result payload.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Handle controls one in-flight task. It satisfies record.TaskHandle
// structurally.
type Handle interface {
	Resume()
	Suspend()
	Cancel()
	// CancelProducingResumeToken cancels the task and returns an opaque
	// resume token if the adapter can produce one (e.g. bytes transferred
	// so far, or a multipart upload ID); nil means "no token, treat as a
	// plain suspend on resume" per spec.md §4.5.
	CancelProducingResumeToken() []byte
	State() State
}

// Adapter creates task Handles for download and upload descriptors. The
// default implementation (NewDefaultAdapter) uses net/http; s3backend and
// azurebackend provide alternates for s3:// and azblob:// URLs.
type Adapter interface {
	NewDownload(ctx context.Context, d descriptor.Downloadable, resumeToken []byte, cb Callbacks) (Handle, error)
	NewUpload(ctx context.Context, u descriptor.Uploadable, body io.Reader, bodySize int64, cb Callbacks) (Handle, error)
}

// defaultAdapter is the net/http-backed Adapter returned by
// NewDefaultAdapter. It does not check the URL scheme.
type defaultAdapter struct {
	client *http.Client
}

// NewDefaultAdapter wraps an *http.Client (normally one built by
// internal/httpclient) as an Adapter.
func NewDefaultAdapter(client *http.Client) Adapter {
	return &defaultAdapter{client: client}
}

func (a *defaultAdapter) NewDownload(ctx context.Context, d descriptor.Downloadable, resumeToken []byte, cb Callbacks) (Handle, error) {
	h := &downloadHandle{
		adapter: a,
		desc:    d,
		cb:      cb,
		ctx:     ctx,
		resume:  resumeToken,
		state:   StateSuspended,
	}
	return h, nil
}

func (a *defaultAdapter) NewUpload(ctx context.Context, u descriptor.Uploadable, body io.Reader, bodySize int64, cb Callbacks) (Handle, error) {
	h := &uploadHandle{
		adapter:  a,
		desc:     u,
		body:     body,
		bodySize: bodySize,
		cb:       cb,
		ctx:      ctx,
		state:    StateSuspended,
	}
	return h, nil
}

// downloadHandle runs one GET download over net/http. It starts
// suspended; Resume() launches (or relaunches, after a prior Suspend) the
// transfer goroutine.
type downloadHandle struct {
	adapter *defaultAdapter
	desc    descriptor.Downloadable
	cb      Callbacks
	ctx     context.Context

	mu          sync.Mutex
	state       State
	cancel      context.CancelFunc
	resume      []byte // "offset:N" token; N is sent as the Range start
	bytesSoFar  int64
	tmpFilePath string
}

func (h *downloadHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *downloadHandle) Resume() {
	h.mu.Lock()
	if h.state == StateRunning {
		h.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(h.ctx)
	if h.desc.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(h.ctx, h.desc.Timeout)
	}
	h.cancel = cancel
	h.state = StateRunning
	h.mu.Unlock()

	go h.run(runCtx)
}

func (h *downloadHandle) Suspend() {
	h.mu.Lock()
	if h.state != StateRunning {
		h.mu.Unlock()
		return
	}
	h.state = StateSuspended
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (h *downloadHandle) Cancel() {
	h.mu.Lock()
	h.state = StateCanceled
	cancel := h.cancel
	tmp := h.tmpFilePath
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if tmp != "" {
		_ = os.Remove(tmp)
	}
}

func (h *downloadHandle) CancelProducingResumeToken() []byte {
	h.mu.Lock()
	tok := encodeByteOffsetToken(h.bytesSoFar)
	h.state = StateCanceled
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return tok
}

func (h *downloadHandle) run(ctx context.Context) {
	u, err := h.desc.SourceURL()
	if err != nil {
		h.fail(xerrors.InvalidURL{Cause: err})
		return
	}
	req, err := http.NewRequestWithContext(ctx, h.desc.Method(), u.String(), nil)
	if err != nil {
		h.fail(xerrors.InvalidURL{Cause: err})
		return
	}
	for k, vs := range h.desc.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if h.desc.Cache == descriptor.ReloadIgnoringCache {
		req.Header.Set("Cache-Control", "no-cache")
	}

	offset := decodeByteOffsetToken(h.resume)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := h.adapter.client.Do(req)
	if err != nil {
		h.failWithToken(err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		h.fail(classifyServerError(resp))
		return
	}

	tmp, err := os.CreateTemp("", "httptask-download-*")
	if err != nil {
		h.fail(xerrors.NoDataInLocal{Cause: err})
		return
	}
	tmpPath := tmp.Name()
	h.mu.Lock()
	h.tmpFilePath = tmpPath
	h.mu.Unlock()
	defer os.Remove(tmpPath)
	defer tmp.Close()

	total := resp.ContentLength
	if total >= 0 && offset > 0 {
		total += offset
	}

	current := offset
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				h.fail(xerrors.NoDataInLocal{Cause: werr})
				return
			}
			current += int64(n)
			h.mu.Lock()
			h.bytesSoFar = current
			h.mu.Unlock()
			if h.cb.DidWrite != nil {
				h.cb.DidWrite(current, total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			h.failWithToken(rerr)
			return
		}
	}

	body, err := os.ReadFile(tmpPath)
	if err != nil {
		h.fail(xerrors.NoDataInLocal{Cause: err})
		return
	}

	h.mu.Lock()
	h.state = StateCompleted
	h.mu.Unlock()

	if h.cb.DidComplete != nil {
		h.cb.DidComplete(Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body})
	}
}

func (h *downloadHandle) fail(err error) {
	h.mu.Lock()
	h.state = StateFailed
	h.mu.Unlock()
	if h.cb.DidFail != nil {
		h.cb.DidFail(err)
	}
}

// failWithToken attaches a resume token (how far the download got) before
// surfacing a transport error, per spec.md §4.5's "error resume token" rule.
func (h *downloadHandle) failWithToken(cause error) {
	h.mu.Lock()
	if h.state == StateSuspended || h.state == StateCanceled {
		// Suspend/Cancel interrupted the request on purpose: not a failure.
		h.mu.Unlock()
		return
	}
	tok := encodeByteOffsetToken(h.bytesSoFar)
	h.state = StateFailed
	h.mu.Unlock()
	if h.cb.DidFail != nil {
		h.cb.DidFail(xerrors.WithResumeToken{Cause: cause, Token: tok})
	}
}

// uploadHandle runs one POST/PUT upload over net/http. Unlike downloads,
// uploads have no mid-transfer resume: Suspend/Resume on an upload restarts
// the body from its current read position, matching spec.md §4.8's "uploads
// resume by re-POSTing, not by range request" decision.
type uploadHandle struct {
	adapter  *defaultAdapter
	desc     descriptor.Uploadable
	body     io.Reader
	bodySize int64
	cb       Callbacks
	ctx      context.Context

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

func (h *uploadHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *uploadHandle) Resume() {
	h.mu.Lock()
	if h.state == StateRunning {
		h.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(h.ctx)
	if h.desc.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(h.ctx, h.desc.Timeout)
	}
	h.cancel = cancel
	h.state = StateRunning
	h.mu.Unlock()

	go h.run(runCtx)
}

func (h *uploadHandle) Suspend() {
	h.mu.Lock()
	if h.state != StateRunning {
		h.mu.Unlock()
		return
	}
	h.state = StateSuspended
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (h *uploadHandle) Cancel() {
	h.mu.Lock()
	h.state = StateCanceled
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (h *uploadHandle) CancelProducingResumeToken() []byte {
	// Uploads have no partial-progress token in the default adapter: the
	// body reader is consumed, not seekable in general. nil degrades to a
	// plain suspend on resume, per spec.md §4.5.
	h.Cancel()
	return nil
}

func (h *uploadHandle) run(ctx context.Context) {
	progressBody := &countingReader{r: h.body, onRead: func(n int64) {
		if h.cb.DidWrite != nil {
			h.cb.DidWrite(n, h.bodySize)
		}
	}}

	u, err := h.desc.SourceURL()
	if err != nil {
		h.fail(xerrors.InvalidURL{Cause: err})
		return
	}
	req, err := http.NewRequestWithContext(ctx, h.desc.Method(), u.String(), progressBody)
	if err != nil {
		h.fail(xerrors.InvalidURL{Cause: err})
		return
	}
	req.ContentLength = h.bodySize
	for k, vs := range h.desc.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := h.adapter.client.Do(req)
	if err != nil {
		h.fail(err)
		return
	}
	defer resp.Body.Close()

	respBody, err := readAllLimited(resp.Body, 4<<20)
	if err != nil {
		h.fail(xerrors.NoDataInLocal{Cause: err})
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		h.fail(classifyServerError(&http.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: io.NopCloser(bytes.NewReader(respBody))}))
		return
	}

	h.mu.Lock()
	h.state = StateCompleted
	h.mu.Unlock()

	if h.cb.DidComplete != nil {
		h.cb.DidComplete(Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody})
	}
}

func (h *uploadHandle) fail(err error) {
	h.mu.Lock()
	if h.state == StateSuspended || h.state == StateCanceled {
		// Suspend/Cancel interrupted the request on purpose: not a failure.
		h.mu.Unlock()
		return
	}
	h.state = StateFailed
	h.mu.Unlock()
	if h.cb.DidFail != nil {
		h.cb.DidFail(err)
	}
}

// countingReader reports cumulative bytes read via onRead, driving the
// upload-side progress callback without buffering the body in memory.
type countingReader struct {
	r      io.Reader
	total  int64
	onRead func(n int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.total += int64(n)
		if c.onRead != nil {
			c.onRead(c.total)
		}
	}
	return n, err
}

func readAllLimited(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

func classifyServerError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if looksLikeHTML(body) {
		return xerrors.ServerErrorHTML{Status: resp.StatusCode, Body: body}
	}
	return xerrors.ServerError{Status: resp.StatusCode}
}

// looksLikeHTML is the HTML-error-page heuristic from spec.md §4.6: a
// non-2xx body that opens with an HTML doctype/tag, typically a load
// balancer or WAF error page rather than the API's own error JSON.
func looksLikeHTML(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	lower := bytes.ToLower(trimmed)
	return bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html"))
}

func encodeByteOffsetToken(offset int64) []byte {
	if offset <= 0 {
		return nil
	}
	return []byte(fmt.Sprintf("offset:%d", offset))
}

func decodeByteOffsetToken(tok []byte) int64 {
	if len(tok) == 0 {
		return 0
	}
	var offset int64
	_, err := fmt.Sscanf(string(tok), "offset:%d", &offset)
	if err != nil {
		return 0
	}
	return offset
}
