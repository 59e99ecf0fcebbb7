// Package descriptor defines the immutable, pure-data transfer descriptors:
// Downloadable and Uploadable. Neither type does any I/O; they describe what
// a Downloader or Uploader should do, and are exclusively owned by the
// record that wraps them once a transfer is accepted.
package descriptor

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"time"
)

// CachePolicy mirrors the cache directives a platform HTTP stack exposes.
type CachePolicy int

const (
	UseCache CachePolicy = iota
	ReloadIgnoringCache
)

func (c CachePolicy) String() string {
	if c == ReloadIgnoringCache {
		return "reload-ignoring-cache"
	}
	return "use-cache"
}

// URLProvider lazily/fallibly computes a source URL. Most callers can just
// wrap a fixed *url.URL with StaticURL.
type URLProvider func() (*url.URL, error)

// StaticURL returns a URLProvider that always resolves to u.
func StaticURL(u *url.URL) URLProvider {
	return func() (*url.URL, error) { return u, nil }
}

// Downloadable describes one download: where to fetch bytes from, and where
// to save them. Method is always GET (fixed, not a field) so that
// server-assisted resume stays possible.
type Downloadable struct {
	SourceURL URLProvider
	Headers   http.Header
	Cache     CachePolicy
	Timeout   time.Duration

	// DestDir, if non-nil, must be a file:// URL. FileName defaults to the
	// last path segment of SourceURL when empty.
	DestDir  *url.URL
	FileName string
}

// Method is fixed to GET for every download, enabling server resume.
func (Downloadable) Method() string { return http.MethodGet }

// ResolveFileName returns the configured FileName, or derives one from the
// source URL's last path segment.
func (d Downloadable) ResolveFileName() (string, error) {
	if d.FileName != "" {
		return d.FileName, nil
	}
	if d.SourceURL == nil {
		return "", fmt.Errorf("descriptor: no source URL to derive file name from")
	}
	u, err := d.SourceURL()
	if err != nil {
		return "", fmt.Errorf("descriptor: resolving source URL: %w", err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("descriptor: cannot derive file name from %q", u.String())
	}
	return name, nil
}

// DestinationPath returns DestDir joined with the resolved file name. It
// fails if DestDir is nil or not a local file:// URL.
func (d Downloadable) DestinationPath() (string, error) {
	if d.DestDir == nil {
		return "", fmt.Errorf("descriptor: no destination directory configured")
	}
	if d.DestDir.Scheme != "" && d.DestDir.Scheme != "file" {
		return "", fmt.Errorf("descriptor: destination %q is not a local file URL", d.DestDir.String())
	}
	name, err := d.ResolveFileName()
	if err != nil {
		return "", err
	}
	return path.Join(d.DestDir.Path, name), nil
}

// IdentityKey returns the tuple spec.md uses for download record identity:
// source URL + cache policy + headers + destination + timeout.
func (d Downloadable) IdentityKey() (string, error) {
	u, err := d.SourceURL()
	if err != nil {
		return "", err
	}
	dest, err := d.DestinationPath()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s|%d|%s|%s|%s", u.String(), d.Cache, headerKey(d.Headers), dest, d.Timeout), nil
}

func headerKey(h http.Header) string {
	if h == nil {
		return ""
	}
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)
	out := ""
	for _, k := range names {
		out += k + "=" + fmt.Sprint(h[k]) + ";"
	}
	return out
}

// PayloadKind selects which variant of upload Payload is populated.
type PayloadKind int

const (
	PayloadInlineData PayloadKind = iota
	PayloadSingleFile
	PayloadFileList
)

// Payload is the upload body composition: either inline bytes with a file
// name + MIME type, a single file URL, or a list of file URLs.
type Payload struct {
	Kind PayloadKind

	// PayloadInlineData fields.
	Data     []byte
	FileName string
	MIME     string

	// PayloadSingleFile (len 1) / PayloadFileList fields.
	FileURLs []*url.URL
}

// Uploadable describes one multipart/form-data upload. Method is always
// POST (fixed, not a field).
type Uploadable struct {
	SourceURL URLProvider
	Headers   http.Header
	Cache     CachePolicy
	Timeout   time.Duration

	Payload    Payload
	FieldName  string
	BodyParams map[string]string
	MaxBytes   int64
}

// Method is fixed to POST for every upload.
func (Uploadable) Method() string { return http.MethodPost }
