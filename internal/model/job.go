package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a single image-edit job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusSubmitting JobStatus = "submitting"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) String() string { return string(s) }

// Terminal reports whether the job has finished, successfully or not.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one (image, prompt) pair submitted to the external image API.
// Jobs live only in the in-memory registry and are mutated in place as
// the outbound call resolves.
type Job struct {
	ID            string    `json:"id"`
	BatchID       string    `json:"batch_id"`
	Sequence      int       `json:"sequence"`
	ImageFilename string    `json:"image_filename"`
	ImagePath     string    `json:"-"`
	Prompt        string    `json:"prompt"`
	Status        JobStatus `json:"status"`
	APIStatus     string    `json:"api_status,omitempty"`
	RevisedPrompt string    `json:"revised_prompt,omitempty"`
	OutputPath    string    `json:"-"`
	ThumbPath     string    `json:"-"`
	Error         string    `json:"error,omitempty"`
}

// JobView is the JSON projection of a job returned by the API.
type JobView struct {
	ID            string    `json:"id"`
	BatchID       string    `json:"batch_id"`
	Sequence      int       `json:"sequence"`
	ImageFilename string    `json:"image_filename"`
	Prompt        string    `json:"prompt"`
	Status        JobStatus `json:"status"`
	APIStatus     string    `json:"api_status,omitempty"`
	RevisedPrompt string    `json:"revised_prompt,omitempty"`
	Error         string    `json:"error,omitempty"`
	DownloadURL   string    `json:"download_url,omitempty"`
	PreviewURL    string    `json:"preview_url,omitempty"`
}

// View builds the API projection. Download and preview URLs appear only
// once the output has been written.
func (j *Job) View() JobView {
	v := JobView{
		ID:            j.ID,
		BatchID:       j.BatchID,
		Sequence:      j.Sequence,
		ImageFilename: j.ImageFilename,
		Prompt:        j.Prompt,
		Status:        j.Status,
		APIStatus:     j.APIStatus,
		RevisedPrompt: j.RevisedPrompt,
		Error:         j.Error,
	}

	if j.OutputPath != "" {
		v.DownloadURL = fmt.Sprintf("/api/batches/%s/jobs/%s/download", j.BatchID, j.ID)
		v.PreviewURL = fmt.Sprintf("/api/batches/%s/jobs/%s/preview", j.BatchID, j.ID)
	}

	return v
}

// NewBatchID returns a short random batch identifier.
func NewBatchID() string { return shortID(12) }

// NewJobID returns a short random job identifier.
func NewJobID() string { return shortID(10) }

func shortID(n int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(id) {
		n = len(id)
	}
	return id[:n]
}
