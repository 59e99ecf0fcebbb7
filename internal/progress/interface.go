package progress

import "io"

// BatchUI defines the interface for rendering a whole batch's worth of
// concurrent transfer progress bars, implemented by batchui.go via
// vbauerster/mpb/v8. Downloader and Uploader CLI paths share one
// implementation since spec.md's AggregateStart/AggregateUnit events carry
// the same (index, label, size) shape for either direction.
type BatchUI interface {
	// AddBar creates a new progress bar for one record in the batch. arrow
	// is the direction glyph shown between label and detail ("←" for
	// downloads, "→" for uploads), matching the teacher's
	// downloadui.go/uploadui.go convention.
	AddBar(index int, label, detail string, size int64, arrow string) BarHandle

	// Wait blocks until all progress bars complete.
	Wait()

	// Writer returns an io.Writer that safely outputs above the progress
	// bars: mpb's writer in terminal mode, os.Stderr otherwise.
	Writer() io.Writer

	// IsTerminal reports whether output is to a terminal (bars active).
	IsTerminal() bool
}

// BarHandle is a handle to a single record's progress bar.
type BarHandle interface {
	// Update moves the bar to an absolute byte position.
	Update(current int64)

	// Complete marks the bar finished and prints a one-line summary.
	Complete(err error)
}
