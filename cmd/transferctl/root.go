// Package main implements transferctl, a thin command-line front end over
// the transfer engine (internal/downloader, internal/uploader), mirroring
// the teacher's internal/cli/root.go persistent-flags-plus-subcommand
// layout: a spf13/cobra root command carrying global flags (proxy mode,
// concurrency, progress interval), with "get"/"put" subcommands each driving
// a batch of one or more transfers and rendering its two-level event stream
// as progress bars.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hyunhwa/concurrencynetwork-go/internal/config"
	"github.com/hyunhwa/concurrencynetwork-go/internal/logging"
)

var (
	maxActive    int
	progressPct  float64
	proxyMode    string
	proxyHost    string
	proxyPort    int
	disableHTTP2 bool
	verbose      bool

	logger       *logging.Logger
	rootContext  context.Context
	cancelSignal context.CancelFunc
)

// Version is overridden at build time via -ldflags.
var Version = "v0.1.0-dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "transferctl",
		Short:   "Concurrent HTTP transfer engine CLI",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultCLILogger()
			if verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
			rootContext, cancelSignal = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		},
	}

	root.PersistentFlags().IntVar(&maxActive, "max-active", 3, "maximum concurrent transfers (clamped to [1,5])")
	root.PersistentFlags().Float64Var(&progressPct, "progress-interval", 1, "minimum percent delta between progress events (0 = every byte change)")
	root.PersistentFlags().StringVar(&proxyMode, "proxy-mode", "no-proxy", "proxy mode: no-proxy|system|ntlm|basic")
	root.PersistentFlags().StringVar(&proxyHost, "proxy-host", "", "proxy host (ntlm/basic modes)")
	root.PersistentFlags().IntVar(&proxyPort, "proxy-port", 8080, "proxy port (ntlm/basic modes)")
	root.PersistentFlags().BoolVar(&disableHTTP2, "disable-http2", false, "force HTTP/1.1")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")

	root.AddCommand(newGetCmd(), newPutCmd())
	return root
}

func engineConfig() config.EngineConfig {
	cfg := config.DefaultEngineConfig()
	cfg.MaxActive = maxActive
	cfg.ProgressIntervalPct = progressPct
	cfg.HTTPClient = config.HTTPClientConfig{
		ProxyMode:    config.ProxyMode(proxyMode),
		ProxyHost:    proxyHost,
		ProxyPort:    proxyPort,
		DisableHTTP2: disableHTTP2,
	}
	return cfg
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
