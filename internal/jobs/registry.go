package jobs

import (
	"fmt"
	"sort"
	"sync"
)

// Registry stores job state. Get and List return snapshots; mutation goes
// through Claim and Update so the state machine stays consistent under
// concurrent workers and pollers.
type Registry interface {
	// Put inserts a new job. The id must be unused.
	Put(job *Job) error

	// Get returns a snapshot of the job, or ErrJobNotFound.
	Get(id string) (*Job, error)

	// List returns snapshots of all jobs, newest first.
	List() []*Job

	// Claim transitions the job from pending to running, exactly once.
	// Losers get ErrJobNotPending.
	Claim(id string) (*Job, error)

	// Update applies fn to the job under its lock and returns the updated
	// snapshot. Terminal jobs are immutable: Update returns ErrJobFinished
	// without calling fn.
	Update(id string, fn func(*Job)) (*Job, error)
}

// registryEntry pairs a job with its own lock so different jobs never
// contend.
type registryEntry struct {
	mu  sync.Mutex
	job Job
}

// MemoryRegistry is an in-memory Registry with per-job locking.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]*registryEntry),
	}
}

func (r *MemoryRegistry) Put(job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[job.ID]; exists {
		return fmt.Errorf("job %s already registered", job.ID)
	}
	r.entries[job.ID] = &registryEntry{job: *job.clone()}
	return nil
}

func (r *MemoryRegistry) Get(id string) (*Job, error) {
	entry, err := r.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.job.clone(), nil
}

func (r *MemoryRegistry) List() []*Job {
	r.mu.RLock()
	entries := make([]*registryEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	jobs := make([]*Job, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		jobs = append(jobs, entry.job.clone())
		entry.mu.Unlock()
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

func (r *MemoryRegistry) Claim(id string) (*Job, error) {
	entry, err := r.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.job.Status != StatusPending {
		return nil, ErrJobNotPending
	}
	now := clock.Now().UTC()
	entry.job.Status = StatusRunning
	entry.job.StartedAt = &now
	return entry.job.clone(), nil
}

func (r *MemoryRegistry) Update(id string, fn func(*Job)) (*Job, error) {
	entry, err := r.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.job.Status.Terminal() {
		return entry.job.clone(), ErrJobFinished
	}
	fn(&entry.job)
	return entry.job.clone(), nil
}

func (r *MemoryRegistry) entry(id string) (*registryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return entry, nil
}
