// Package railsjob is the thread-safe, in-process registry of jobs the
// coordinator ticks against. It carries no persistence across process
// restarts, matching spec.md §3's Registry data model.
package railsjob

import (
	"context"
	"sync"
	"time"

	"github.com/railscron/railscron/railserr"
)

// Callback is the user-supplied enqueue function a Job invokes on each
// dispatched firing. It is expected to hand work off to whatever
// downstream queue the host application uses and return quickly.
type Callback func(ctx context.Context, firingAt time.Time, idempotencyKey string) error

// Job is immutable once registered.
type Job struct {
	Key        string
	Expression string
	Callback   Callback
}

// Registry is a mutex-protected map[key]Job.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// New builds an empty registry.
func New() *Registry {
	return &Registry{jobs: make(map[string]Job)}
}

// Add validates and inserts job, rejecting a duplicate key.
func (r *Registry) Add(job Job) error {
	if job.Key == "" {
		return &railserr.RegistrationError{JobKey: job.Key, Reason: "key must not be empty"}
	}
	if job.Expression == "" {
		return &railserr.RegistrationError{JobKey: job.Key, Reason: "expression must not be empty"}
	}
	if job.Callback == nil {
		return &railserr.RegistrationError{JobKey: job.Key, Reason: "callback must not be nil"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.Key]; exists {
		return &railserr.RegistrationError{JobKey: job.Key, Reason: "job already registered"}
	}
	r.jobs[job.Key] = job
	return nil
}

// Remove deletes key if present; removing an absent key is a no-op.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, key)
}

// Find returns the job for key, if registered.
func (r *Registry) Find(key string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[key]
	return job, ok
}

// Registered reports whether key is currently registered.
func (r *Registry) Registered(key string) bool {
	_, ok := r.Find(key)
	return ok
}

// All returns a snapshot slice of every registered job. Callers must not
// assume any particular order.
func (r *Registry) All() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	jobs := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// Clear removes every registered job.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = make(map[string]Job)
}

// Each takes a snapshot under the lock, then invokes fn for every job
// without holding the lock, so fn may safely call back into Add/Remove
// on this same registry without deadlocking.
func (r *Registry) Each(fn func(Job)) {
	for _, job := range r.All() {
		fn(job)
	}
}

// Len reports the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
