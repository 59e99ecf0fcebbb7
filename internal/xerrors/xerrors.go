// Package xerrors implements the transfer engine's error taxonomy. It
// mirrors the teacher's ErrorType/ClassifyError idiom (internal/http/retry.go)
// but renders each kind as its own typed error value so callers can branch
// on it with errors.As instead of string matching.
package xerrors

import "fmt"

// CanceledByUser is returned when a transfer was terminated by Stop/Cancel.
type CanceledByUser struct{}

func (CanceledByUser) Error() string { return "transfer canceled by user" }

// InvalidURL is returned when a descriptor's URLProvider failed or produced
// no usable URL.
type InvalidURL struct{ Cause error }

func (e InvalidURL) Error() string { return fmt.Sprintf("invalid url: %v", e.Cause) }
func (e InvalidURL) Unwrap() error { return e.Cause }

// InvalidFileURL is returned when a configured download destination is not
// a local file:// URL.
type InvalidFileURL struct{ URL string }

func (e InvalidFileURL) Error() string { return fmt.Sprintf("not a local file url: %s", e.URL) }

// NoDataInLocal is returned when a downloaded temp file could not be read,
// or a local save failed.
type NoDataInLocal struct{ Cause error }

func (e NoDataInLocal) Error() string { return fmt.Sprintf("no data in local file: %v", e.Cause) }
func (e NoDataInLocal) Unwrap() error { return e.Cause }

// ServerError is returned when an HTTP response status falls outside
// [200,300).
type ServerError struct{ Status int }

func (e ServerError) Error() string { return fmt.Sprintf("server error: status %d", e.Status) }

// ServerErrorHTML is ServerError, except the response body matched the
// HTML-error-page heuristic (see httptask.looksLikeHTML and resthelper's
// htmlErrorPage pattern).
type ServerErrorHTML struct {
	Status int
	Body   []byte
}

func (e ServerErrorHTML) Error() string {
	return fmt.Sprintf("server error: status %d (html body, %d bytes)", e.Status, len(e.Body))
}

// EncodingError wraps a request-body encoding failure (REST helper only).
type EncodingError struct{ Cause error }

func (e EncodingError) Error() string { return fmt.Sprintf("encoding error: %v", e.Cause) }
func (e EncodingError) Unwrap() error { return e.Cause }

// DecodingError wraps a response-body decoding failure (REST helper only).
type DecodingError struct{ Cause error }

func (e DecodingError) Error() string { return fmt.Sprintf("decoding error: %v", e.Cause) }
func (e DecodingError) Unwrap() error { return e.Cause }

// OverLimitedFileSize is returned when an upload's spool file exceeds the
// descriptor's MaxBytes.
type OverLimitedFileSize struct {
	Size, MaxBytes int64
}

func (e OverLimitedFileSize) Error() string {
	return fmt.Sprintf("upload body size %d exceeds limit %d", e.Size, e.MaxBytes)
}

// FailureReason is a free-form, application-level error, propagated
// unchanged from a caller or lower layer.
type FailureReason struct{ Reason string }

func (e FailureReason) Error() string { return e.Reason }

// ResumeTokenCarrier is implemented by transport errors that can surface an
// opaque resume token alongside the failure (spec.md §4.5 "Error resume
// token").
type ResumeTokenCarrier interface {
	error
	ResumeToken() []byte
}

// WithResumeToken wraps a plain error with an attached resume token.
type WithResumeToken struct {
	Cause error
	Token []byte
}

func (e WithResumeToken) Error() string   { return e.Cause.Error() }
func (e WithResumeToken) Unwrap() error   { return e.Cause }
func (e WithResumeToken) ResumeToken() []byte { return e.Token }
