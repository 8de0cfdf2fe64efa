package scan

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/QQcutePig/RIOimgDownload/pkg/scan/meta"
	"github.com/google/uuid"
)

// ErrJobNotFound is returned for operations on unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// cancelFlag is a per-job cancellation signal.  Setting it is
// idempotent and safe from any goroutine; pipeline stages poll it at
// each unit of work.
type cancelFlag struct {
	set atomic.Bool
}

func (c *cancelFlag) Cancel()         { c.set.Store(true) }
func (c *cancelFlag) Cancelled() bool { return c.set.Load() }

// jobEntry bundles the three things that exist for exactly the
// lifetime of a job: its state, its accumulated items, and its
// cancellation flag.  They are created together in NewJob.
type jobEntry struct {
	state  meta.JobState
	items  []meta.MediaItem
	cancel *cancelFlag
}

// Registry is the thread-safe store all pipeline stages report into
// and clients poll from.  A single mutex guards every job.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*jobEntry
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{jobs: map[string]*jobEntry{}}
}

// NewJob registers a fresh idle job and returns its id.
func (r *Registry) NewJob(jobType meta.JobType) string {
	id := hash8(uuid.NewString())

	r.mu.Lock()
	defer r.mu.Unlock()

	// uuid collisions truncated to 8 hex chars are still possible in
	// principle; re-roll rather than clobber a live job.
	for r.jobs[id] != nil {
		id = hash8(uuid.NewString())
	}

	r.jobs[id] = &jobEntry{
		state: meta.JobState{
			ID:            id,
			Status:        meta.StatusIdle,
			ProgressTotal: 1,
			CreatedAt:     time.Now(),
			JobType:       jobType,
		},
		cancel: &cancelFlag{},
	}
	return id
}

// SetStatus moves a job to a new status.  Terminal statuses are
// final: attempts to leave done/error/cancelled are ignored, and
// FinishedAt is recorded exactly once on the terminal transition.
func (r *Registry) SetStatus(id string, status meta.Status, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.jobs[id]
	if entry == nil || entry.state.Status.Terminal() {
		return
	}
	entry.state.Status = status
	entry.state.Message = message
	if status.Terminal() {
		entry.state.FinishedAt = time.Now()
	}
}

// SetProgress updates the active stage's counters.  The total is
// floored at 1 so consumers can divide by it.  An empty message keeps
// the previous one.
func (r *Registry) SetProgress(id string, index, total int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.jobs[id]
	if entry == nil || entry.state.Status.Terminal() {
		return
	}
	entry.state.ProgressIndex = index
	entry.state.ProgressTotal = max(total, 1)
	if message != "" {
		entry.state.Message = message
	}
}

// AddItems appends results to the job's accumulated item list.
func (r *Registry) AddItems(id string, items []meta.MediaItem) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry := r.jobs[id]; entry != nil {
		entry.items = append(entry.items, items...)
	}
}

// State returns a snapshot of the job's state.
func (r *Registry) State(id string) (meta.JobState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.jobs[id]
	if entry == nil {
		return meta.JobState{}, ErrJobNotFound
	}
	return entry.state, nil
}

// Items returns a snapshot of the items accumulated so far.  The
// result may be empty before the thumbnail stage completes.
func (r *Registry) Items(id string) ([]meta.MediaItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.jobs[id]
	if entry == nil {
		return nil, ErrJobNotFound
	}
	items := make([]meta.MediaItem, len(entry.items))
	copy(items, entry.items)
	return items, nil
}

// Cancel raises the job's cancellation flag.  It is a no-op for jobs
// already in a terminal state.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	entry := r.jobs[id]
	r.mu.Unlock()

	if entry == nil {
		return ErrJobNotFound
	}
	entry.cancel.Cancel()
	return nil
}

// Cancelled reports whether the job's cancellation flag is raised.
// Unknown jobs read as not cancelled.
func (r *Registry) Cancelled(id string) bool {
	return r.flag(id).Cancelled()
}

// flag exposes the cancellation flag to the job's own worker.
func (r *Registry) flag(id string) *cancelFlag {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry := r.jobs[id]; entry != nil {
		return entry.cancel
	}
	return &cancelFlag{}
}
