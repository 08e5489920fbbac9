package model

import "time"

// BatchStatus is the aggregate state derived from the batch's job statuses.
type BatchStatus string

const (
	BatchStatusQueued              BatchStatus = "queued"
	BatchStatusRunning             BatchStatus = "running"
	BatchStatusCompleted           BatchStatus = "completed"
	BatchStatusCompletedWithErrors BatchStatus = "completed_with_errors"
)

func (s BatchStatus) String() string { return string(s) }

// Options are the per-batch parameters forwarded to the image API.
type Options struct {
	Model        string `json:"model"`
	Size         string `json:"size"`
	Quality      string `json:"quality"`
	OutputFormat string `json:"output_format"`
	Concurrency  int    `json:"concurrency"`
}

// OutputExt returns the file extension for the batch output format.
func (o Options) OutputExt() string {
	if o.OutputFormat == "jpeg" {
		return "jpg"
	}
	return o.OutputFormat
}

// Counts tallies jobs per status.
type Counts struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Submitting int `json:"submitting"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Batch is a set of jobs from one submission: the cartesian product of the
// uploaded images and the supplied prompts. Batches are volatile, in-memory
// only, and never persisted past the process lifetime.
type Batch struct {
	ID             string      `json:"id"`
	Prompts        []string    `json:"prompts"`
	ImageFilenames []string    `json:"image_filenames"`
	Jobs           []*Job      `json:"jobs"`
	Status         BatchStatus `json:"status"`
	Options        Options     `json:"options"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Counts returns the per-status job tally.
func (b *Batch) Counts() Counts {
	c := Counts{Total: len(b.Jobs)}
	for _, j := range b.Jobs {
		switch j.Status {
		case JobStatusQueued:
			c.Queued++
		case JobStatusSubmitting:
			c.Submitting++
		case JobStatusProcessing:
			c.Processing++
		case JobStatusCompleted:
			c.Completed++
		case JobStatusFailed:
			c.Failed++
		}
	}
	return c
}

// RecalculateStatus derives the aggregate status from the job statuses.
// The reduction is deterministic: a batch where every job finished and at
// least one failed is completed_with_errors, never plain completed.
func (b *Batch) RecalculateStatus() {
	c := b.Counts()

	switch {
	case c.Total == 0:
		b.Status = BatchStatusQueued
	case c.Failed > 0 && c.Completed+c.Failed == c.Total:
		b.Status = BatchStatusCompletedWithErrors
	case c.Completed == c.Total:
		b.Status = BatchStatusCompleted
	case c.Submitting > 0 || c.Processing > 0:
		b.Status = BatchStatusRunning
	case c.Queued == c.Total:
		b.Status = BatchStatusQueued
	default:
		b.Status = BatchStatusRunning
	}
}

// BatchView is the JSON projection of a batch returned by the API.
type BatchView struct {
	ID               string      `json:"id"`
	Status           BatchStatus `json:"status"`
	Model            string      `json:"model"`
	Size             string      `json:"size"`
	Quality          string      `json:"quality"`
	OutputFormat     string      `json:"output_format"`
	Concurrency      int         `json:"concurrency"`
	ImageCount       int         `json:"image_count"`
	PromptCount      int         `json:"prompt_count"`
	CombinationCount int         `json:"combination_count"`
	Counts           Counts      `json:"counts"`
	Error            string      `json:"error,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	Jobs             []JobView   `json:"jobs"`
}

// View recalculates the aggregate status and builds the API projection.
func (b *Batch) View() BatchView {
	b.RecalculateStatus()

	jobs := make([]JobView, 0, len(b.Jobs))
	for _, j := range b.Jobs {
		jobs = append(jobs, j.View())
	}

	return BatchView{
		ID:               b.ID,
		Status:           b.Status,
		Model:            b.Options.Model,
		Size:             b.Options.Size,
		Quality:          b.Options.Quality,
		OutputFormat:     b.Options.OutputFormat,
		Concurrency:      b.Options.Concurrency,
		ImageCount:       len(b.ImageFilenames),
		PromptCount:      len(b.Prompts),
		CombinationCount: len(b.Jobs),
		Counts:           b.Counts(),
		Error:            b.Error,
		CreatedAt:        b.CreatedAt,
		Jobs:             jobs,
	}
}
