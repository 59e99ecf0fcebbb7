// Package config holds the constructor-arg structs for the transfer engine
// and its ambient HTTP client, in place of the teacher's file-backed
// internal/config.Config (which persisted GUI proxy settings to disk). This
// port has no GUI and no on-disk settings store (spec.md pins "no other
// on-disk state" beyond the resume sidecar, which itself was narrowed to
// in-memory-only, see DESIGN.md) -- so EngineConfig is a plain value type
// supplied by the caller at construction time.
package config

import "time"

// ProxyMode selects how the ambient HTTP client reaches the network,
// mirroring the teacher's cfg.ProxyMode string enum (internal/http/proxy.go)
// but as a typed constant.
type ProxyMode string

const (
	ProxyModeNone   ProxyMode = "no-proxy"
	ProxyModeSystem ProxyMode = "system"
	ProxyModeNTLM   ProxyMode = "ntlm"
	ProxyModeBasic  ProxyMode = "basic"
)

// HTTPClientConfig configures internal/httpclient.New, grounded on the
// teacher's config.Config proxy fields (internal/http/proxy.go).
type HTTPClientConfig struct {
	ProxyMode     ProxyMode
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       []string

	// DisableHTTP2 mirrors the teacher's DISABLE_HTTP2 env var toggle, as an
	// explicit field instead of an ambient environment read.
	DisableHTTP2 bool
}

// EngineConfig configures a downloader.Coordinator or uploader.Coordinator.
type EngineConfig struct {
	// MaxActive is the concurrency gate ceiling (internal/gate), clamped to
	// [1,5] by gate.New.
	MaxActive int

	// ProgressIntervalPct is the C4 throttle's progressInterval, in percent.
	// Zero means "emit on every byte change".
	ProgressIntervalPct float64

	// DefaultTimeout bounds a single task's HTTP round trip when the
	// descriptor does not specify its own Timeout.
	DefaultTimeout time.Duration

	HTTPClient HTTPClientConfig
}

// DefaultEngineConfig matches spec.md's suggested defaults: maxActive=3,
// progressInterval=1 (one percent), a 30-minute per-task ceiling.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxActive:           3,
		ProgressIntervalPct: 1,
		DefaultTimeout:      30 * time.Minute,
	}
}
