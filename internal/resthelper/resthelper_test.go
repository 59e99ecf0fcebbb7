package resthelper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyunhwa/concurrencynetwork-go/internal/xerrors"
)

type echoResponse struct {
	Value string `json:"value"`
}

func TestRequestDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "hello" {
			t.Errorf("query param q = %q, want hello", r.URL.Query().Get("q"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value":"ok"}`))
	}))
	defer srv.Close()

	got, err := Request[echoResponse](context.Background(), srv.Client(), Descriptor{
		BaseURL: srv.URL,
		Path:    "/items",
		Params:  map[string]string{"q": "hello"},
	})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if got.Value != "ok" {
		t.Errorf("got.Value = %q, want %q", got.Value, "ok")
	}
}

func TestRequestClassifiesJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	_, err := Request[echoResponse](context.Background(), srv.Client(), Descriptor{BaseURL: srv.URL, Path: "/"})
	var se xerrors.ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected a plain ServerError, got %#v", err)
	}
	if se.Status != 500 {
		t.Errorf("Status = %d, want 500", se.Status)
	}
}

func TestRequestClassifiesHTMLErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<html><body>502 Bad Gateway</body></html>`))
	}))
	defer srv.Close()

	_, err := Request[echoResponse](context.Background(), srv.Client(), Descriptor{BaseURL: srv.URL, Path: "/"})
	var se xerrors.ServerErrorHTML
	if !errors.As(err, &se) {
		t.Fatalf("expected a ServerErrorHTML, got %#v", err)
	}
	if se.Status != 502 {
		t.Errorf("Status = %d, want 502", se.Status)
	}
}

func TestEndpointURLJoinsBaseAndPath(t *testing.T) {
	d := Descriptor{BaseURL: "https://api.example.com/v1/", Path: "/widgets/7"}
	u, err := d.EndpointURL()
	if err != nil {
		t.Fatalf("EndpointURL() error = %v", err)
	}
	want := "https://api.example.com/v1/widgets/7"
	if u.String() != want {
		t.Errorf("EndpointURL() = %q, want %q", u.String(), want)
	}
}

