package azurebackend

import (
	"net/url"
	"testing"
)

func TestContainerAndBlob(t *testing.T) {
	cases := []struct {
		raw           string
		wantContainer string
		wantBlob      string
	}{
		{"azblob://my-container/path/to/blob.bin", "my-container", "path/to/blob.bin"},
		{"azblob://other-container/file.txt", "other-container", "file.txt"},
	}
	for _, c := range cases {
		u, err := url.Parse(c.raw)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.raw, err)
		}
		container, blob := containerAndBlob(u)
		if container != c.wantContainer || blob != c.wantBlob {
			t.Errorf("containerAndBlob(%q) = (%q, %q), want (%q, %q)", c.raw, container, blob, c.wantContainer, c.wantBlob)
		}
	}
}
