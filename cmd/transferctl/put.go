package main

import (
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hyunhwa/concurrencynetwork-go/internal/descriptor"
	"github.com/hyunhwa/concurrencynetwork-go/internal/httpclient"
	"github.com/hyunhwa/concurrencynetwork-go/internal/httptask"
	"github.com/hyunhwa/concurrencynetwork-go/internal/progress"
	"github.com/hyunhwa/concurrencynetwork-go/internal/uploader"
)

// newPutCmd builds the "put" subcommand: upload one or more local files
// concurrently to the same endpoint, each as its own multipart/form-data
// body (spec.md §4.6), mirroring newGetCmd's batch/event-draining shape.
func newPutCmd() *cobra.Command {
	var endpoint string
	var fieldName string
	var maxBytes int64

	cmd := &cobra.Command{
		Use:   "put <file> [file...]",
		Short: "Upload one or more files concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(args, endpoint, fieldName, maxBytes)
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "destination endpoint URL (required)")
	cmd.Flags().StringVar(&fieldName, "field-name", "file", "multipart field name for the file part")
	cmd.Flags().Int64Var(&maxBytes, "max-bytes", 0, "reject files larger than this many bytes (0 = unlimited)")
	cmd.MarkFlagRequired("endpoint")
	return cmd
}

func runPut(paths []string, endpoint, fieldName string, maxBytes int64) error {
	dest, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	client, err := httpclient.New(engineConfig().HTTPClient)
	if err != nil {
		return fmt.Errorf("building http client: %w", err)
	}
	adapter := httptask.NewDefaultAdapter(client)
	coord, err := uploader.New(adapter, engineConfig(), logger, uploader.Options{})
	if err != nil {
		return fmt.Errorf("building uploader: %w", err)
	}

	descs := make([]descriptor.Uploadable, len(paths))
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolving %q: %w", p, err)
		}
		fileURL := &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
		descs[i] = descriptor.Uploadable{
			SourceURL: descriptor.StaticURL(dest),
			FieldName: fieldName,
			MaxBytes:  maxBytes,
			Payload: descriptor.Payload{
				Kind:     descriptor.PayloadSingleFile,
				FileURLs: []*url.URL{fileURL},
			},
		}
	}

	ui := progress.NewBatchUI(len(descs))
	agg := coord.EventsMany(descs)
	failed := driveAggregate(agg, ui, "→")
	ui.Wait()
	coord.Stop(nil)

	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(descs))
	}
	return nil
}
