package motor

import (
	"sync"
	"time"
)

// Action is a human-readable record of something the device did.
type Action struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// ActionRecorder records the last N actions.
type ActionRecorder struct {
	MaxRecordCount int
	records        []Action
	mu             *sync.Mutex
}

// NewActionRecorder returns a new ActionRecorder.
func NewActionRecorder(maxRecordCount int) *ActionRecorder {
	if maxRecordCount <= 0 {
		maxRecordCount = 1
	}
	return &ActionRecorder{
		MaxRecordCount: maxRecordCount,
		records:        make([]Action, 0, maxRecordCount),
		mu:             &sync.Mutex{},
	}
}

// Record adds a new action with the current time.
func (r *ActionRecorder) Record(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.records) >= r.MaxRecordCount {
		r.records = r.records[1:]
	}
	// Round to strip monotonic clock reading.
	r.records = append(r.records, Action{Time: time.Now().Round(0), Message: msg})
}

// Last returns the most recent action, or a zero Action if none.
func (r *ActionRecorder) Last() Action {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.records) == 0 {
		return Action{}
	}
	return r.records[len(r.records)-1]
}

// Records returns a copy of all records, oldest first.
func (r *ActionRecorder) Records() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Action, len(r.records))
	copy(out, r.records)
	return out
}
