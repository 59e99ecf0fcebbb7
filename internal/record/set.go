package record

import "fmt"

// Set is the ordered sequence of records owned by a coordinator for the
// lifetime of one batch (spec.md §3 "Transfer set"). The order is
// submission order and defines the unit index reported to observers.
// Set is not safe for concurrent use -- it is only ever touched from the
// owning coordinator's single-writer actor.
type Set struct {
	records     []*Record
	bySourceURL map[string]*Record
	byIdentity  map[string]*Record
	byTaskID    map[string]*Record
}

// NewSet creates an empty transfer set.
func NewSet() *Set {
	return &Set{
		bySourceURL: make(map[string]*Record),
		byIdentity:  make(map[string]*Record),
		byTaskID:    make(map[string]*Record),
	}
}

// Add appends a record in submission order and indexes it by identity.
// sourceURL may be empty if the descriptor's URL could not be resolved yet.
func (s *Set) Add(r *Record, identity, sourceURL string) {
	s.records = append(s.records, r)
	if identity != "" {
		s.byIdentity[identity] = r
	}
	if sourceURL != "" {
		s.bySourceURL[sourceURL] = r
	}
}

// IndexTaskID associates a record with the underlying task identifier
// assigned once its httptask.Handle is created (records have no task ID
// before Starting).
func (s *Set) IndexTaskID(taskID string, r *Record) {
	if taskID != "" {
		s.byTaskID[taskID] = r
	}
}

func (s *Set) ByIdentity(identity string) (*Record, bool) {
	r, ok := s.byIdentity[identity]
	return r, ok
}

func (s *Set) BySourceURL(url string) (*Record, bool) {
	r, ok := s.bySourceURL[url]
	return r, ok
}

func (s *Set) ByTaskID(taskID string) (*Record, bool) {
	r, ok := s.byTaskID[taskID]
	return r, ok
}

// Index returns the submission-order index of r, or -1 if not present.
func (s *Set) Index(r *Record) int {
	for i, rec := range s.records {
		if rec == r {
			return i
		}
	}
	return -1
}

// All returns the records in submission order. The returned slice must not
// be mutated by the caller.
func (s *Set) All() []*Record {
	return s.records
}

// Len returns the number of records in the set.
func (s *Set) Len() int {
	return len(s.records)
}

// CountState returns how many records are currently in state st.
func (s *Set) CountState(st State) int {
	n := 0
	for _, r := range s.records {
		if r.State() == st {
			n++
		}
	}
	return n
}

// AllCompleted reports whether every record in the set has reached
// StateCompleted.
func (s *Set) AllCompleted() bool {
	for _, r := range s.records {
		if r.State() != StateCompleted {
			return false
		}
	}
	return true
}

// Snapshots returns a Snapshot per record, in submission order.
func (s *Set) Snapshots() []Snapshot {
	out := make([]Snapshot, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

// String renders a short diagnostic summary, mirroring the teacher's
// Transfer.String()/Manager.String() idiom.
func (s *Set) String() string {
	return fmt.Sprintf("Set[records=%d]", len(s.records))
}
