package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/hyunhwa/concurrencynetwork-go/internal/descriptor"
	"github.com/hyunhwa/concurrencynetwork-go/internal/downloader"
	"github.com/hyunhwa/concurrencynetwork-go/internal/events"
	"github.com/hyunhwa/concurrencynetwork-go/internal/httpclient"
	"github.com/hyunhwa/concurrencynetwork-go/internal/httptask"
	"github.com/hyunhwa/concurrencynetwork-go/internal/progress"
)

// newGetCmd builds the "get" subcommand: one or more concurrent downloads,
// mirroring the teacher's download_helper.go executeFileDownload shape but
// driving internal/downloader's two-level event stream instead of a plain
// semaphore-guarded goroutine pool.
func newGetCmd() *cobra.Command {
	var destDir string
	var noCache bool

	cmd := &cobra.Command{
		Use:   "get <url> [url...]",
		Short: "Download one or more files concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(args, destDir, noCache)
		},
	}

	cmd.Flags().StringVarP(&destDir, "output-dir", "o", ".", "destination directory")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass HTTP cache (reload-ignoring-cache)")
	return cmd
}

func runGet(rawURLs []string, destDir string, noCache bool) error {
	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("resolving output dir: %w", err)
	}
	destURL := &url.URL{Scheme: "file", Path: filepath.ToSlash(absDest)}

	client, err := httpclient.New(engineConfig().HTTPClient)
	if err != nil {
		return fmt.Errorf("building http client: %w", err)
	}
	adapter := httptask.NewDefaultAdapter(client)
	coord := downloader.New(adapter, engineConfig(), logger)

	descs := make([]descriptor.Downloadable, len(rawURLs))
	for i, raw := range rawURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid url %q: %w", raw, err)
		}
		cache := descriptor.UseCache
		if noCache {
			cache = descriptor.ReloadIgnoringCache
		}
		descs[i] = descriptor.Downloadable{
			SourceURL: descriptor.StaticURL(u),
			Cache:     cache,
			DestDir:   destURL,
		}
	}

	ui := progress.NewBatchUI(len(descs))
	agg := coord.EventsMany(descs)
	failed := driveAggregate(agg, ui, "←")
	ui.Wait()
	coord.Stop(nil)

	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(descs))
	}
	return nil
}

// driveAggregate consumes an AggregateEventStream, fanning each unit stream
// out to its own progress bar concurrently, and returns the count of failed
// units once every unit stream (and the aggregate stream itself) has closed.
func driveAggregate(agg events.AggregateEventStream, ui progress.BatchUI, arrow string) int {
	var failed int64
	var wg sync.WaitGroup
	unitIndex := 0

	for ev := range agg {
		switch e := ev.(type) {
		case events.AggregateUnit:
			idx := unitIndex
			unitIndex++
			wg.Add(1)
			go func(stream events.UnitEventStream, index int) {
				defer wg.Done()
				atomic.AddInt64(&failed, int64(driveUnit(stream, ui, index, arrow)))
			}(e.Stream, idx)
		case events.AggregateErrored:
			fmt.Fprintf(os.Stderr, "batch error: %v\n", e.Err)
		}
	}
	wg.Wait()
	return int(failed)
}

func driveUnit(stream events.UnitEventStream, ui progress.BatchUI, index int, arrow string) int {
	var bar progress.BarHandle
	label := fmt.Sprintf("unit-%d", index)

	for ev := range stream {
		switch e := ev.(type) {
		case events.UnitStart:
			label = e.Info.ID
			bar = ui.AddBar(index+1, label, "transferring", int64(e.Info.TotalBytes), arrow)
		case events.UnitUpdate:
			if bar != nil {
				bar.Update(int64(e.Current))
			}
		case events.UnitCompleted:
			if bar != nil {
				bar.Complete(nil)
			}
			return 0
		case events.UnitErrored:
			if bar != nil {
				bar.Complete(e.Err)
			} else {
				fmt.Fprintf(ui.Writer(), "%s failed: %v\n", label, e.Err)
			}
			return 1
		}
	}
	return 0
}
