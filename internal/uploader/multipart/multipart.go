// Package multipart builds the multipart/form-data request bodies for
// uploader.Coordinator, using the standard library's mime/multipart: no
// example repo in the pack implements a bespoke HTTP multipart body
// encoder, so this is a documented stdlib exception (see DESIGN.md).
package multipart

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyunhwa/concurrencynetwork-go/internal/descriptor"
	"github.com/hyunhwa/concurrencynetwork-go/internal/xerrors"
)

// Body is a built multipart body plus the Content-Type header value the
// caller must set on the outgoing request.
type Body struct {
	Reader      io.Reader
	Size        int64
	ContentType string
}

// Build assembles u's Payload plus BodyParams into a multipart/form-data
// body under FieldName, using recordID as the part boundary (spec.md §4.6
// "Boundary = the record id"). PayloadInlineData writes a single in-memory
// part, MIME-typed from Payload.MIME; PayloadSingleFile/PayloadFileList
// stream each file's contents from disk, MIME-typed from its extension.
//
// The whole body is currently buffered in memory to compute Size up front
// (needed for OverLimitedFileSize checks and Content-Length); callers with
// very large files should prefer PayloadSingleFile over inlining raw bytes,
// but both paths still build in memory in this implementation.
func Build(recordID string, u descriptor.Uploadable) (Body, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(recordID); err != nil {
		return Body{}, fmt.Errorf("multipart: set boundary to record id %q: %w", recordID, err)
	}

	for k, v := range u.BodyParams {
		if err := w.WriteField(k, v); err != nil {
			return Body{}, fmt.Errorf("multipart: write field %q: %w", k, err)
		}
	}

	fieldName := u.FieldName
	if fieldName == "" {
		fieldName = "file"
	}

	switch u.Payload.Kind {
	case descriptor.PayloadInlineData:
		contentType := u.Payload.MIME
		if contentType == "" {
			contentType = mimeTypeForName(u.Payload.FileName)
		}
		part, err := createFilePart(w, fieldName, u.Payload.FileName, contentType)
		if err != nil {
			return Body{}, fmt.Errorf("multipart: create part for %q: %w", u.Payload.FileName, err)
		}
		if _, err := part.Write(u.Payload.Data); err != nil {
			return Body{}, fmt.Errorf("multipart: write inline data: %w", err)
		}

	case descriptor.PayloadSingleFile:
		if len(u.Payload.FileURLs) != 1 {
			return Body{}, fmt.Errorf("multipart: PayloadSingleFile requires exactly one FileURLs entry, got %d", len(u.Payload.FileURLs))
		}
		if err := appendFilePart(w, fieldName, u.Payload.FileURLs[0].Path); err != nil {
			return Body{}, err
		}

	case descriptor.PayloadFileList:
		for _, fu := range u.Payload.FileURLs {
			if err := appendFilePart(w, fieldName, fu.Path); err != nil {
				return Body{}, err
			}
		}

	default:
		return Body{}, fmt.Errorf("multipart: unknown payload kind %d", u.Payload.Kind)
	}

	if err := w.Close(); err != nil {
		return Body{}, fmt.Errorf("multipart: close writer: %w", err)
	}

	size := int64(buf.Len())
	if u.MaxBytes > 0 && size > u.MaxBytes {
		return Body{}, xerrors.OverLimitedFileSize{Size: size, MaxBytes: u.MaxBytes}
	}

	return Body{Reader: &buf, Size: size, ContentType: w.FormDataContentType()}, nil
}

func appendFilePart(w *multipart.Writer, fieldName, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("multipart: open %q: %w", path, err)
	}
	defer f.Close()

	name := fileBaseName(path)
	part, err := createFilePart(w, fieldName, name, mimeTypeForName(name))
	if err != nil {
		return fmt.Errorf("multipart: create part for %q: %w", path, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("multipart: copy %q: %w", path, err)
	}
	return nil
}

// createFilePart mirrors mime/multipart.Writer.CreateFormFile, except the
// Content-Type is the caller's resolved MIME type instead of the hardcoded
// application/octet-stream CreateFormFile always writes.
func createFilePart(w *multipart.Writer, fieldName, fileName, contentType string) (io.Writer, error) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(fieldName), escapeQuotes(fileName)))
	h.Set("Content-Type", contentType)
	return w.CreatePart(h)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// mimeTypeForName infers a MIME type from name's extension, defaulting to
// application/octet-stream when the extension is unknown or absent.
func mimeTypeForName(name string) string {
	if ext := filepath.Ext(name); ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	return "application/octet-stream"
}

func fileBaseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
