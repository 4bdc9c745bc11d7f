package cron

import "context"

// Job is a unit of scheduled work. Name is used for logging, metrics labels,
// and duplicate detection.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the jobs a worker executes each cycle, in registration order.
// Nil jobs and repeated names are ignored.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

// NewRegistry builds a registry preloaded with the provided jobs.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{names: make(map[string]struct{})}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register appends a job unless one with the same name is already present.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	if r.names == nil {
		r.names = make(map[string]struct{})
	}
	if _, exists := r.names[job.Name()]; exists {
		return
	}
	r.names[job.Name()] = struct{}{}
	r.jobs = append(r.jobs, job)
}

// Jobs returns a snapshot of the registered jobs.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}
