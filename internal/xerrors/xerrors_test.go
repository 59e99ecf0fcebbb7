package xerrors

import (
	"errors"
	"testing"
)

func TestUnwrapChains(t *testing.T) {
	cause := errors.New("boom")
	err := InvalidURL{Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to see through InvalidURL.Unwrap")
	}
}

func TestResumeTokenCarrierDetection(t *testing.T) {
	wrapped := WithResumeToken{Cause: errors.New("net error"), Token: []byte("offset:42")}

	var carrier ResumeTokenCarrier
	if !errors.As(wrapped, &carrier) {
		t.Fatal("expected errors.As to find the ResumeTokenCarrier interface")
	}
	if string(carrier.ResumeToken()) != "offset:42" {
		t.Errorf("ResumeToken() = %q, want %q", carrier.ResumeToken(), "offset:42")
	}
}

func TestNonCarrierErrorDoesNotMatch(t *testing.T) {
	var carrier ResumeTokenCarrier
	if errors.As(errors.New("plain"), &carrier) {
		t.Error("expected a plain error not to satisfy ResumeTokenCarrier")
	}
}

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"CanceledByUser", CanceledByUser{}, "transfer canceled by user"},
		{"ServerError", ServerError{Status: 503}, "server error: status 503"},
		{"OverLimitedFileSize", OverLimitedFileSize{Size: 200, MaxBytes: 100}, "upload body size 200 exceeds limit 100"},
		{"FailureReason", FailureReason{Reason: "quota exceeded"}, "quota exceeded"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("%s.Error() = %q, want %q", tc.name, got, tc.want)
		}
	}
}
