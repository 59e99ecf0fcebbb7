package multipart

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyunhwa/concurrencynetwork-go/internal/descriptor"
	"github.com/hyunhwa/concurrencynetwork-go/internal/xerrors"
)

const testRecordID = "rec-1234567890-1"

func TestBuildInlineData(t *testing.T) {
	u := descriptor.Uploadable{
		FieldName: "file",
		Payload: descriptor.Payload{
			Kind:     descriptor.PayloadInlineData,
			Data:     []byte("hello"),
			FileName: "hello.txt",
			MIME:     "text/plain",
		},
	}
	body, err := Build(testRecordID, u)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if body.Size == 0 {
		t.Error("expected a non-zero body size")
	}
	assertSinglePart(t, body, "file", "hello.txt", "hello", "text/plain")
}

func TestBuildInlineDataInfersMIMEFromExtensionWhenUnset(t *testing.T) {
	u := descriptor.Uploadable{
		FieldName: "file",
		Payload: descriptor.Payload{
			Kind:     descriptor.PayloadInlineData,
			Data:     []byte("{}"),
			FileName: "data.json",
		},
	}
	body, err := Build(testRecordID, u)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	assertSinglePart(t, body, "file", "data.json", "{}", "application/json")
}

func TestBuildUsesRecordIDAsBoundary(t *testing.T) {
	u := descriptor.Uploadable{
		FieldName: "file",
		Payload: descriptor.Payload{
			Kind:     descriptor.PayloadInlineData,
			Data:     []byte("hello"),
			FileName: "hello.txt",
		},
	}
	body, err := Build(testRecordID, u)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	_, params, err := mime.ParseMediaType(body.ContentType)
	if err != nil {
		t.Fatalf("ParseMediaType(%q): %v", body.ContentType, err)
	}
	if params["boundary"] != testRecordID {
		t.Errorf("boundary = %q, want the record id %q", params["boundary"], testRecordID)
	}
}

func TestBuildSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.bin")
	if err := os.WriteFile(path, []byte("file-contents"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	u := descriptor.Uploadable{
		FieldName: "file",
		Payload: descriptor.Payload{
			Kind:     descriptor.PayloadSingleFile,
			FileURLs: []*url.URL{{Path: path}},
		},
	}
	body, err := Build(testRecordID, u)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	assertSinglePart(t, body, "file", "payload.bin", "file-contents", "application/octet-stream")
}

func TestBuildSingleFileInfersMIMEFromExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	if err := os.WriteFile(path, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	u := descriptor.Uploadable{
		FieldName: "file",
		Payload: descriptor.Payload{
			Kind:     descriptor.PayloadSingleFile,
			FileURLs: []*url.URL{{Path: path}},
		},
	}
	body, err := Build(testRecordID, u)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	assertSinglePart(t, body, "file", "report.json", `{"a":1}`, "application/json")
}

func TestBuildFileList(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.txt")
	p2 := filepath.Join(dir, "b.txt")
	os.WriteFile(p1, []byte("aaa"), 0o644)
	os.WriteFile(p2, []byte("bbb"), 0o644)

	u := descriptor.Uploadable{
		FieldName: "files",
		Payload: descriptor.Payload{
			Kind:     descriptor.PayloadFileList,
			FileURLs: []*url.URL{{Path: p1}, {Path: p2}},
		},
	}
	body, err := Build(testRecordID, u)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if body.Size == 0 {
		t.Error("expected a non-zero body size for a multi-file upload")
	}
}

func TestBuildEnforcesMaxBytes(t *testing.T) {
	u := descriptor.Uploadable{
		FieldName: "file",
		MaxBytes:  4,
		Payload: descriptor.Payload{
			Kind:     descriptor.PayloadInlineData,
			Data:     []byte("this is definitely more than four bytes"),
			FileName: "big.bin",
		},
	}
	_, err := Build(testRecordID, u)
	var sizeErr xerrors.OverLimitedFileSize
	if !errors.As(err, &sizeErr) {
		t.Fatalf("expected xerrors.OverLimitedFileSize, got %#v", err)
	}
}

func TestBuildRejectsUnknownPayloadKind(t *testing.T) {
	u := descriptor.Uploadable{Payload: descriptor.Payload{Kind: descriptor.PayloadKind(99)}}
	if _, err := Build(testRecordID, u); err == nil {
		t.Error("expected an error for an unknown payload kind")
	}
}

func assertSinglePart(t *testing.T, body Body, fieldName, fileName, wantContent, wantContentType string) {
	t.Helper()
	_, params, err := mime.ParseMediaType(body.ContentType)
	if err != nil {
		t.Fatalf("ParseMediaType(%q): %v", body.ContentType, err)
	}
	mr := multipart.NewReader(body.Reader, params["boundary"])
	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("NextPart(): %v", err)
	}
	if part.FormName() != fieldName {
		t.Errorf("FormName() = %q, want %q", part.FormName(), fieldName)
	}
	if part.FileName() != fileName {
		t.Errorf("FileName() = %q, want %q", part.FileName(), fileName)
	}
	if got := part.Header.Get("Content-Type"); got != wantContentType {
		t.Errorf("part Content-Type = %q, want %q", got, wantContentType)
	}
	content, err := io.ReadAll(part)
	if err != nil {
		t.Fatalf("reading part: %v", err)
	}
	if string(content) != wantContent {
		t.Errorf("content = %q, want %q", content, wantContent)
	}
}
