package progress

import (
	"strings"
	"testing"
)

type countingReporter struct {
	updates []int64
	started bool
	total   int64
	desc    string
	err     error
	done    bool
}

func (r *countingReporter) Start(total int64, description string) {
	r.started = true
	r.total = total
	r.desc = description
}
func (r *countingReporter) Update(current int64)    { r.updates = append(r.updates, current) }
func (r *countingReporter) Finish()                 { r.done = true }
func (r *countingReporter) Error(err error)          { r.err = err }
func (r *countingReporter) SetDescription(d string) { r.desc = d }

func TestProgressReaderReportsCumulativeBytes(t *testing.T) {
	src := strings.NewReader("hello world")
	rep := &countingReporter{}
	pr := NewProgressReader(src, int64(src.Len()), rep)

	buf := make([]byte, 4)
	for {
		n, err := pr.Read(buf)
		if n == 0 && err != nil {
			break
		}
	}

	if len(rep.updates) == 0 {
		t.Fatal("expected at least one Update call")
	}
	last := rep.updates[len(rep.updates)-1]
	if last != int64(len("hello world")) {
		t.Errorf("final reported progress = %d, want %d", last, len("hello world"))
	}
}

func TestNoOpProgressDoesNothing(t *testing.T) {
	p := NewNoOpProgress()
	// Exercised purely for side-effect freedom -- must not panic.
	p.Start(100, "desc")
	p.Update(50)
	p.SetDescription("other")
	p.Error(nil)
	p.Finish()
}
