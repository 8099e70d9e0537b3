package builder

import (
	"sync"
	"time"

	"github.com/vk/hiermerge/internal/modcache"
)

// Action is what the orchestrator did with a BUILD directive.
type Action int

const (
	// Reused means the cached artifact was merged as is.
	Reused Action = iota
	// Built means the subtree was rebuilt.
	Built
)

func (a Action) String() string {
	if a == Built {
		return "built"
	}
	return "reused"
}

// Entry is the outcome of one module in a run.
type Entry struct {
	Key      modcache.Key
	Instance string
	Action   Action
	// Reason is the cache miss reason for built modules.
	Reason   string
	Artifact string
	Elapsed  time.Duration
}

// Report collects the entries of a run in completion order.
type Report struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Report) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Entries returns a copy of the recorded entries.
func (r *Report) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Count returns how many entries took action a.
func (r *Report) Count(a Action) int {
	n := 0
	for _, e := range r.Entries() {
		if e.Action == a {
			n++
		}
	}
	return n
}
