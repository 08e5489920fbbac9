package batch

import (
	"errors"
	"sync"

	"github.com/seanmmorais/mse-sora/internal/model"
)

var (
	ErrBatchNotFound = errors.New("batch not found")
	ErrJobNotFound   = errors.New("job not found")
)

// Repository is the in-memory batch registry. State is volatile by design:
// batches exist only for the lifetime of the process and are mutated in
// place as jobs resolve.
type Repository struct {
	mu      sync.RWMutex
	batches map[string]*model.Batch
}

// NewRepository creates an empty registry.
func NewRepository() *Repository {
	return &Repository{batches: make(map[string]*model.Batch)}
}

// Create registers a new batch.
func (r *Repository) Create(b *model.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batches[b.ID] = b
}

// Get returns a deep copy of the batch so callers can marshal it without
// racing against in-flight job updates.
func (r *Repository) Get(id string) (*model.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}

	return copyBatch(b), nil
}

// GetJob returns a copy of a single job from a batch.
func (r *Repository) GetJob(batchID, jobID string) (*model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.batches[batchID]
	if !ok {
		return nil, ErrBatchNotFound
	}

	for _, j := range b.Jobs {
		if j.ID == jobID {
			jc := *j
			return &jc, nil
		}
	}

	return nil, ErrJobNotFound
}

// UpdateJob applies the mutation to the job under the registry lock and
// recalculates the batch aggregate status.
func (r *Repository) UpdateJob(batchID, jobID string, mutate func(*model.Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}

	for _, j := range b.Jobs {
		if j.ID == jobID {
			mutate(j)
			b.RecalculateStatus()
			return nil
		}
	}

	return ErrJobNotFound
}

// SetStatus overrides the batch aggregate status.
func (r *Repository) SetStatus(id string, status model.BatchStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.batches[id]
	if !ok {
		return ErrBatchNotFound
	}

	b.Status = status
	return nil
}

// Finalize recalculates the aggregate status once all jobs have returned.
func (r *Repository) Finalize(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.batches[id]
	if !ok {
		return ErrBatchNotFound
	}

	b.RecalculateStatus()
	return nil
}

func copyBatch(b *model.Batch) *model.Batch {
	bc := *b
	bc.Prompts = append([]string(nil), b.Prompts...)
	bc.ImageFilenames = append([]string(nil), b.ImageFilenames...)
	bc.Jobs = make([]*model.Job, 0, len(b.Jobs))
	for _, j := range b.Jobs {
		jc := *j
		bc.Jobs = append(bc.Jobs, &jc)
	}
	return &bc
}
