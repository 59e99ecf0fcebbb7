// Package httpclient builds the *http.Client the HTTP task adapter
// (internal/httptask) and REST helper (internal/resthelper) share, adapted
// from the teacher's internal/http package (client.go/proxy.go): proxy-mode
// configuration (none/system/NTLM/basic) plus a large connection pool and
// HTTP/2 tuned for concurrent file transfers, wrapped in a
// hashicorp/go-retryablehttp client with retries turned off.
package httpclient

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	ntlmssp "github.com/Azure/go-ntlmssp"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/http/httpproxy"
	"golang.org/x/net/http2"

	"github.com/hyunhwa/concurrencynetwork-go/internal/config"
)

const (
	dialTimeout           = 30 * time.Second
	dialKeepAlive         = 30 * time.Second
	idleConnTimeout       = 90 * time.Second
	tlsHandshakeTimeout   = 60 * time.Second
	expectContinueTimeout = 1 * time.Second
)

// New builds the transport per cfg, then wraps it in a retryablehttp.Client
// with RetryMax 0: each request is attempted once, and a failure goes
// straight back to the caller.
func New(cfg config.HTTPClientConfig) (*http.Client, error) {
	base, err := configureProxy(cfg)
	if err != nil {
		return nil, err
	}

	if tr, ok := base.Transport.(*http.Transport); ok {
		tr.MaxIdleConns = 512
		tr.MaxIdleConnsPerHost = 100
		tr.MaxConnsPerHost = 100
		tr.IdleConnTimeout = idleConnTimeout
		tr.TLSHandshakeTimeout = tlsHandshakeTimeout
		tr.ExpectContinueTimeout = expectContinueTimeout
		tr.DisableCompression = true
		tr.ForceAttemptHTTP2 = true
		_ = http2.ConfigureTransport(tr)

		if cfg.DisableHTTP2 {
			tr.ForceAttemptHTTP2 = false
			tr.TLSNextProto = make(map[string]func(string, *tls.Conn) http.RoundTripper)
		}
	}
	base.Timeout = 0

	retrier := retryablehttp.NewClient()
	retrier.HTTPClient = base
	retrier.RetryMax = 0
	retrier.RetryWaitMin = 500 * time.Millisecond
	retrier.RetryWaitMax = 10 * time.Second
	retrier.Logger = nil

	return retrier.StandardClient(), nil
}

func configureProxy(cfg config.HTTPClientConfig) (*http.Client, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: dialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}

	switch cfg.ProxyMode {
	case config.ProxyModeNone, "":
		transport.Proxy = nil
		return &http.Client{Transport: transport}, nil

	case config.ProxyModeSystem:
		transport.Proxy = http.ProxyFromEnvironment
		return &http.Client{Transport: transport}, nil

	case config.ProxyModeNTLM:
		if cfg.ProxyHost == "" {
			transport.Proxy = nil
			return &http.Client{Transport: transport}, nil
		}
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(cfg), cfg.NoProxy)
		return &http.Client{
			Transport: ntlmssp.Negotiator{RoundTripper: transport},
		}, nil

	case config.ProxyModeBasic:
		if cfg.ProxyHost == "" {
			transport.Proxy = nil
			return &http.Client{Transport: transport}, nil
		}
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(cfg), cfg.NoProxy)
		return &http.Client{Transport: transport}, nil

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", cfg.ProxyMode)
	}
}

func buildProxyURL(cfg config.HTTPClientConfig) *url.URL {
	port := cfg.ProxyPort
	if port == 0 {
		port = 8080
	}
	u := &url.URL{Scheme: "http", Host: fmt.Sprintf("%s:%d", cfg.ProxyHost, port)}
	if cfg.ProxyUser != "" {
		if cfg.ProxyPassword != "" {
			u.User = url.UserPassword(cfg.ProxyUser, cfg.ProxyPassword)
		} else {
			u.User = url.User(cfg.ProxyUser)
		}
	}
	return u
}

// proxyFuncWithBypass mirrors the teacher's proxyFuncWithBypass: a static
// proxy URL plus an httpproxy.Config-driven NO_PROXY bypass list, so
// per-host exclusions still work even though the proxy target itself is
// fixed rather than read from the environment.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy []string) func(*http.Request) (*url.URL, error) {
	cfg := &httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    strings.Join(noProxy, ","),
	}
	fn := cfg.ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return fn(req.URL)
	}
}
