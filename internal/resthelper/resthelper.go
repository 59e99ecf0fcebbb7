// Package resthelper is the REST helper contract from spec.md §6: a small
// external-facing module applications use to describe REST endpoints
// (baseURL + path + params + headers + body) and get back a decoded
// response or a typed error. Only its interface is pinned by spec.md --
// this concrete rendering exists so the module is buildable/testable on its
// own, grounded on the teacher's internal/api.Client request-building shape
// (baseURL + path join, query params via url.Values, JSON decode) but
// generalized from the Rescale API's fixed endpoint set to an arbitrary
// caller-supplied Descriptor.
package resthelper

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hyunhwa/concurrencynetwork-go/internal/xerrors"
)

// Descriptor describes one REST call, mirroring spec.md §6's REST helper
// contract field-for-field.
type Descriptor struct {
	BaseURL         string
	Path            string
	Params          map[string]string
	Body            []byte
	Headers         http.Header
	Method          string
	TimeoutInterval time.Duration
	CookieStorage   http.CookieJar
}

// EndpointURL joins BaseURL and Path and encodes Params as query items,
// per spec.md §6's "endpointURL = baseUrl ⊕ path" derivation.
func (d Descriptor) EndpointURL() (*url.URL, error) {
	base, err := url.Parse(strings.TrimRight(d.BaseURL, "/") + "/")
	if err != nil {
		return nil, xerrors.InvalidURL{Cause: err}
	}
	rel, err := url.Parse(strings.TrimLeft(d.Path, "/"))
	if err != nil {
		return nil, xerrors.InvalidURL{Cause: err}
	}
	u := base.ResolveReference(rel)

	if len(d.Params) > 0 {
		q := u.Query()
		for k, v := range d.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// RawResponse is the un-decoded form of a completed REST call.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// htmlErrorPage is the exact heuristic from spec.md §6 for distinguishing a
// load-balancer/WAF HTML error page from an API's own JSON error body.
var htmlErrorPage = regexp.MustCompile(`<("[^"]*"|'[^']*'|[^'">])*>`)

// RequestRaw performs d against client and returns the raw response bytes,
// failing with xerrors.ServerError / xerrors.ServerErrorHTML when the
// status falls outside [200,300), per spec.md §6.
func RequestRaw(ctx context.Context, client *http.Client, d Descriptor) (*RawResponse, error) {
	u, err := d.EndpointURL()
	if err != nil {
		return nil, err
	}

	method := d.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(d.Body) > 0 {
		body = bytes.NewReader(d.Body)
	}

	reqCtx := ctx
	if d.TimeoutInterval > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, d.TimeoutInterval)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, method, u.String(), body)
	if err != nil {
		return nil, xerrors.InvalidURL{Cause: err}
	}
	for k, vs := range d.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	effectiveClient := client
	if d.CookieStorage != nil {
		cloned := *client
		cloned.Jar = d.CookieStorage
		effectiveClient = &cloned
	}

	resp, err := effectiveClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.NoDataInLocal{Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if htmlErrorPage.Match(respBody) {
			return nil, xerrors.ServerErrorHTML{Status: resp.StatusCode, Body: respBody}
		}
		return nil, xerrors.ServerError{Status: resp.StatusCode}
	}

	return &RawResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

// Request performs d and decodes the JSON response body into T, using
// encoding/json -- this module's only JSON codec dependency; no
// third-party JSON library appears as a direct dependency anywhere in the
// source example pack for this concern (see DESIGN.md).
func Request[T any](ctx context.Context, client *http.Client, d Descriptor) (T, error) {
	var zero T
	raw, err := RequestRaw(ctx, client, d)
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(raw.Body, &out); err != nil {
		return zero, xerrors.DecodingError{Cause: err}
	}
	return out, nil
}
