// Package s3backend implements httptask.Adapter against Amazon S3, for
// descriptors whose SourceURL resolves to an s3:// URL (bucket = host, key =
// path). It is grounded on the teacher's internal/cloud/providers/s3 package
// (client.go's credential-cache construction, download.go's GetObject call,
// pre_encrypt.go's PutObject call), narrowed to the single-GetObject/
// single-PutObject path -- this port has no chunked/concurrent multipart
// streaming (spec.md's Non-goals exclude segmented parallel transfer within
// one unit; concurrency comes from the gate running multiple units, not from
// splitting one object across workers).
package s3backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hyunhwa/concurrencynetwork-go/internal/descriptor"
	"github.com/hyunhwa/concurrencynetwork-go/internal/httptask"
	"github.com/hyunhwa/concurrencynetwork-go/internal/xerrors"
)

// Credentials are static access keys; production deployments would instead
// supply an aws.CredentialsProvider, mirroring the teacher's
// credentials.NewRescaleCredentialProvider auto-refresh wrapper. That
// refresh machinery is platform-specific (it calls back into the Rescale
// API) and has no equivalent source in this engine, so a plain
// StaticCredentialsProvider is the honest substitute.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
}

// Adapter implements httptask.Adapter against S3, for s3:// URLs. The
// coordinators (internal/downloader, internal/uploader) take one Adapter at
// construction and do not dispatch by scheme; the caller chooses this one.
type Adapter struct {
	client *s3.Client
}

// New builds an S3-backed adapter using static credentials, mirroring the
// credentials.NewCache(..., ExpiryWindow: 5*time.Minute) pattern from the
// teacher's s3 client factory.
func New(ctx context.Context, creds Credentials) (*Adapter, error) {
	provider := credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)
	cache := aws.NewCredentialsCache(provider, func(o *aws.CredentialsCacheOptions) {
		o.ExpiryWindow = 5 * time.Minute
	})

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(creds.Region),
		awsconfig.WithCredentialsProvider(cache),
	)
	if err != nil {
		return nil, fmt.Errorf("s3backend: load aws config: %w", err)
	}

	return &Adapter{client: s3.NewFromConfig(cfg)}, nil
}

func bucketAndKey(u *url.URL) (bucket, key string) {
	return u.Host, u.Path[1:]
}

func (a *Adapter) NewDownload(ctx context.Context, d descriptor.Downloadable, resumeToken []byte, cb httptask.Callbacks) (httptask.Handle, error) {
	u, err := d.SourceURL()
	if err != nil {
		return nil, xerrors.InvalidURL{Cause: err}
	}
	bucket, key := bucketAndKey(u)
	return &downloadHandle{client: a.client, ctx: ctx, bucket: bucket, key: key, cb: cb}, nil
}

func (a *Adapter) NewUpload(ctx context.Context, u descriptor.Uploadable, body io.Reader, bodySize int64, cb httptask.Callbacks) (httptask.Handle, error) {
	srcURL, err := u.SourceURL()
	if err != nil {
		return nil, xerrors.InvalidURL{Cause: err}
	}
	bucket, key := bucketAndKey(srcURL)
	return &uploadHandle{client: a.client, ctx: ctx, bucket: bucket, key: key, body: body, bodySize: bodySize, cb: cb}, nil
}

// downloadHandle wraps a single GetObject call. S3 objects are downloaded
// in one pass -- Suspend() cancels the in-flight request; Resume() starts a
// fresh GetObject (S3 supports byte ranges, but this adapter doesn't yet
// thread a resume offset through, see DESIGN.md).
type downloadHandle struct {
	client *s3.Client
	ctx    context.Context
	bucket, key string
	cb     httptask.Callbacks

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
	out, err := h.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &h.bucket, Key: &h.key})
	if err != nil {
		h.state = httptask.StateFailed
		if h.cb.DidFail != nil {
			h.cb.DidFail(fmt.Errorf("s3backend: GetObject %s/%s: %w", h.bucket, h.key, err))
		}
		return
	}
	defer out.Body.Close()

	total := int64(0)
	if out.ContentLength != nil {
		total = *out.ContentLength
	}

	var buf bytes.Buffer
	current := int64(0)
	chunk := make([]byte, 32*1024)
	for {
		n, rerr := out.Body.Read(chunk)
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
				h.cb.DidFail(fmt.Errorf("s3backend: read body: %w", rerr))
			}
			return
		}
	}

	h.state = httptask.StateCompleted
	if h.cb.DidComplete != nil {
		h.cb.DidComplete(httptask.Response{StatusCode: 200, Body: buf.Bytes()})
	}
}

// uploadHandle wraps a single PutObject call, grounded on the teacher's
// pre_encrypt.go single-part PutObject path (the multipart-upload path is
// out of scope, see package doc).
type uploadHandle struct {
	client      *s3.Client
	ctx         context.Context
	bucket, key string
	body        io.Reader
	bodySize    int64
	cb          httptask.Callbacks

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
	if h.cb.DidWrite != nil {
		h.cb.DidWrite(0, h.bodySize)
	}
	_, err := h.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &h.bucket,
		Key:    &h.key,
		Body:   h.body,
	})
	if err != nil {
		h.state = httptask.StateFailed
		if h.cb.DidFail != nil {
			h.cb.DidFail(fmt.Errorf("s3backend: PutObject %s/%s: %w", h.bucket, h.key, err))
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
