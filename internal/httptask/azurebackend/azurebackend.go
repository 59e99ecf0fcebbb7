// Package azurebackend implements httptask.Adapter against Azure Blob
// Storage, for descriptors whose SourceURL resolves to an azblob:// URL
// (container = host, blob path = path). Grounded on the teacher's
// internal/cloud/providers/azure package (client.go's
// azblob.NewClientWithNoCredential/DownloadStream, and the corresponding
// upload path's UploadBuffer usage), narrowed the same way s3backend is: one
// DownloadStream/UploadBuffer call per unit, no chunked block-list upload.
package azurebackend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/hyunhwa/concurrencynetwork-go/internal/descriptor"
	"github.com/hyunhwa/concurrencynetwork-go/internal/httptask"
	"github.com/hyunhwa/concurrencynetwork-go/internal/xerrors"
)

// Adapter implements httptask.Adapter against Azure Blob Storage.
type Adapter struct {
	client *azblob.Client
}

// New builds an Azure-backed adapter from a SAS-qualified service URL,
// mirroring the teacher's azblob.NewClientWithNoCredential(sasURL, ...)
// construction (client.go) -- the SAS token already authorizes the
// operations this adapter performs, so no separate credential type is
// needed here.
func New(sasServiceURL string) (*Adapter, error) {
	client, err := azblob.NewClientWithNoCredential(sasServiceURL, &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{},
	})
	if err != nil {
		return nil, fmt.Errorf("azurebackend: new client: %w", err)
	}
	return &Adapter{client: client}, nil
}

func containerAndBlob(u *url.URL) (container, blob string) {
	return u.Host, u.Path[1:]
}

func (a *Adapter) NewDownload(ctx context.Context, d descriptor.Downloadable, resumeToken []byte, cb httptask.Callbacks) (httptask.Handle, error) {
	u, err := d.SourceURL()
	if err != nil {
		return nil, xerrors.InvalidURL{Cause: err}
	}
	container, blob := containerAndBlob(u)
	return &downloadHandle{client: a.client, ctx: ctx, container: container, blob: blob, cb: cb}, nil
}

func (a *Adapter) NewUpload(ctx context.Context, u descriptor.Uploadable, body io.Reader, bodySize int64, cb httptask.Callbacks) (httptask.Handle, error) {
	srcURL, err := u.SourceURL()
	if err != nil {
		return nil, xerrors.InvalidURL{Cause: err}
	}
	container, blob := containerAndBlob(srcURL)
	return &uploadHandle{client: a.client, ctx: ctx, container: container, blob: blob, body: body, bodySize: bodySize, cb: cb}, nil
}

type downloadHandle struct {
	client             *azblob.Client
	ctx                context.Context
	container, blob    string
	cb                 httptask.Callbacks

	cancel context.CancelFunc
	state  httptask.State
}

func (h *downloadHandle) State() httptask.State { return h.state }

func (h *downloadHandle) Resume() {
	runCtx, cancel := context.WithCancel(h.ctx)
	h.cancel = cancel
	h.state = httptask.StateRunning
	go h.run(runCtx)
}

func (h *downloadHandle) Suspend() {
	h.state = httptask.StateSuspended
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *downloadHandle) Cancel() {
	h.state = httptask.StateCanceled
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *downloadHandle) CancelProducingResumeToken() []byte {
	h.Cancel()
	return nil
}

func (h *downloadHandle) run(ctx context.Context) {
	resp, err := h.client.DownloadStream(ctx, h.container, h.blob, nil)
	if err != nil {
		h.state = httptask.StateFailed
		if h.cb.DidFail != nil {
			h.cb.DidFail(fmt.Errorf("azurebackend: DownloadStream %s/%s: %w", h.container, h.blob, err))
		}
		return
	}
	body := resp.Body
	defer body.Close()

	total := int64(0)
	if resp.ContentLength != nil {
		total = *resp.ContentLength
	}

	var buf bytes.Buffer
	current := int64(0)
	chunk := make([]byte, 32*1024)
	for {
		n, rerr := body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			current += int64(n)
			if h.cb.DidWrite != nil {
				h.cb.DidWrite(current, total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			h.state = httptask.StateFailed
			if h.cb.DidFail != nil {
				h.cb.DidFail(fmt.Errorf("azurebackend: read body: %w", rerr))
			}
			return
		}
	}

	h.state = httptask.StateCompleted
	if h.cb.DidComplete != nil {
		h.cb.DidComplete(httptask.Response{StatusCode: 200, Body: buf.Bytes()})
	}
}

type uploadHandle struct {
	client          *azblob.Client
	ctx             context.Context
	container, blob string
	body            io.Reader
	bodySize        int64
	cb              httptask.Callbacks

	cancel context.CancelFunc
	state  httptask.State
}

func (h *uploadHandle) State() httptask.State { return h.state }

func (h *uploadHandle) Resume() {
	runCtx, cancel := context.WithCancel(h.ctx)
	h.cancel = cancel
	h.state = httptask.StateRunning
	go h.run(runCtx)
}

func (h *uploadHandle) Suspend() {
	h.state = httptask.StateSuspended
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *uploadHandle) Cancel() {
	h.state = httptask.StateCanceled
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *uploadHandle) CancelProducingResumeToken() []byte {
	h.Cancel()
	return nil
}

func (h *uploadHandle) run(ctx context.Context) {
	data, err := io.ReadAll(h.body)
	if err != nil {
		h.state = httptask.StateFailed
		if h.cb.DidFail != nil {
			h.cb.DidFail(fmt.Errorf("azurebackend: read upload body: %w", err))
		}
		return
	}
	if h.cb.DidWrite != nil {
		h.cb.DidWrite(0, h.bodySize)
	}

	_, err = h.client.UploadBuffer(ctx, h.container, h.blob, data, nil)
	if err != nil {
		h.state = httptask.StateFailed
		if h.cb.DidFail != nil {
			h.cb.DidFail(fmt.Errorf("azurebackend: UploadBuffer %s/%s: %w", h.container, h.blob, err))
		}
		return
	}

	if h.cb.DidWrite != nil {
		h.cb.DidWrite(h.bodySize, h.bodySize)
	}
	h.state = httptask.StateCompleted
	if h.cb.DidComplete != nil {
		h.cb.DidComplete(httptask.Response{StatusCode: 200})
	}
}
