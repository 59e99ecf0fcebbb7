package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// cliBatchUI renders one bar per record of a batch via vbauerster/mpb/v8,
// consolidating the teacher's separate DownloadUI/UploadUI types
// (internal/progress/downloadui.go, uploadui.go) into one implementation:
// spec.md's AggregateStart/AggregateUnit carry the same (index, record)
// shape regardless of direction, so the UI doesn't need two copies of the
// same bar-management code, only a direction arrow glyph.
type cliBatchUI struct {
	progress   *mpb.Progress
	bars       sync.Map // bar index -> *cliBar
	isTerminal bool
	totalUnits int
	completed  int32
}

// NewBatchUI creates a BatchUI for a batch of totalUnits records.
func NewBatchUI(totalUnits int) BatchUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	var p *mpb.Progress
	if isTerminal {
		enableANSIOnWindows(os.Stderr)
		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(100),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &cliBatchUI{progress: p, isTerminal: isTerminal, totalUnits: totalUnits}
}

type cliBar struct {
	bar        *mpb.Bar
	ui         *cliBatchUI
	index      int
	label      string
	detail     string
	arrow      string
	size       int64
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
}

func (u *cliBatchUI) AddBar(index int, label, detail string, size int64, arrow string) BarHandle {
	shortLabel := truncatePath(label, 2)

	fb := &cliBar{
		ui:         u,
		index:      index,
		label:      label,
		detail:     detail,
		arrow:      arrow,
		size:       size,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}

	if u.isTerminal {
		fb.bar = u.progress.New(size,
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Any(func(s decor.Statistics) string {
					return fmt.Sprintf("[%d/%d] %s (%.1f MiB) %s %s",
						fb.index, u.totalUnits, shortLabel, float64(size)/(1024*1024), arrow, detail)
				}, decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 60, decor.WCSyncSpace),
				decor.Name("  "),
				decor.Name("ETA ", decor.WCSyncWidth),
				decor.EwmaETA(decor.ET_STYLE_GO, 60),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Printf("[%d/%d] %s (%.1f MiB) %s %s\n", index, u.totalUnits, shortLabel, float64(size)/(1024*1024), arrow, detail)
	}

	u.bars.Store(index, fb)
	return fb
}

// Update moves the bar to an absolute byte position, using EWMA timing for
// speed/ETA and throttling redraws to ~3/s, matching the teacher's
// UpdateProgress(fraction) but taking an absolute position since spec.md
// §4.2's UnitUpdate already carries (current, total) rather than a
// fraction.
func (f *cliBar) Update(current int64) {
	if f.bar == nil {
		return
	}
	now := time.Now()
	elapsed := now.Sub(f.lastUpdate)
	delta := current - f.lastBytes

	const updateInterval = 300 * time.Millisecond
	if elapsed >= updateInterval {
		f.bar.EwmaIncrBy(int(delta), elapsed)
		f.lastBytes = current
		f.lastUpdate = now
	}
}

func (f *cliBar) Complete(err error) {
	elapsed := time.Since(f.startTime)
	speed := float64(f.size) / elapsed.Seconds() / (1024 * 1024)

	if err == nil {
		if f.bar != nil {
			f.bar.SetCurrent(f.size)
			f.bar.SetTotal(f.size, true)
		}
		msg := fmt.Sprintf("done %s %s %s (%.1f MiB, %s, %.1f MiB/s)\n",
			truncatePath(f.label, 2), f.arrow, f.detail, float64(f.size)/(1024*1024), elapsed.Round(time.Second), speed)
		f.writeLine(msg)
	} else {
		if f.bar != nil {
			f.bar.Abort(false)
		}
		msg := fmt.Sprintf("fail %s %s %s: %v\n", truncatePath(f.label, 2), f.arrow, f.detail, err)
		f.writeLine(msg)
	}
	atomic.AddInt32(&f.ui.completed, 1)
}

func (f *cliBar) writeLine(msg string) {
	if f.ui.isTerminal && f.ui.progress != nil {
		f.ui.progress.Write([]byte(msg))
	} else {
		fmt.Print(msg)
	}
}

func (u *cliBatchUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

func (u *cliBatchUI) Writer() io.Writer {
	if u.progress != nil && u.isTerminal {
		return u.progress
	}
	return os.Stderr
}

func (u *cliBatchUI) IsTerminal() bool {
	return u.isTerminal
}

// truncatePath truncates a file path to show only the last maxComponents
// path components, e.g. truncatePath("/a/b/c/d/file.txt", 2) → "…/c/d/file.txt".
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.Base(path)
	}
	relevant := parts[len(parts)-maxComponents:]
	return "…/" + strings.Join(relevant, "/")
}

// enableANSIOnWindows enables Virtual Terminal processing on Windows so
// ANSI escape sequences (used by mpb's bar rendering) work; a no-op on
// platforms where terminals already support ANSI natively.
func enableANSIOnWindows(f *os.File) {
	if runtime.GOOS == "windows" {
		enableWindowsANSI(f)
	}
}
