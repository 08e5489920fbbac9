package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/seanmmorais/mse-sora/internal/model"
	"github.com/seanmmorais/mse-sora/internal/provider"
	batchrepo "github.com/seanmmorais/mse-sora/internal/repository/batch"
)

var (
	// ErrInvalidInput marks validation failures (HTTP 400).
	ErrInvalidInput = errors.New("invalid batch input")
	// ErrNotConfigured is returned when no API key is set on the server.
	ErrNotConfigured = errors.New("image api key is not configured on the server")
	// ErrOutputNotReady is returned for download requests before the job completed.
	ErrOutputNotReady = errors.New("job output not ready")
	// ErrOutputMissing is returned when the recorded output file cannot be opened.
	ErrOutputMissing = errors.New("output file is missing")
)

// registry is the slice of the in-memory batch registry the service needs.
type registry interface {
	Create(b *model.Batch)
	Get(id string) (*model.Batch, error)
}

// fileStorage defines the interface for storing files (local filesystem or MinIO).
type fileStorage interface {
	Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error)
	Load(ctx context.Context, path string) (io.ReadCloser, error)
}

// runner executes a batch in the background after submission.
type runner interface {
	Run(ctx context.Context, batchID string)
}

// Defaults are the batch options applied when the form leaves them blank.
type Defaults struct {
	Model          string
	Size           string
	Quality        string
	OutputFormat   string
	Concurrency    int
	MaxConcurrency int
}

// Service assembles batches from uploads and prompts and resolves
// job outputs for download and preview.
type Service struct {
	registry    registry
	fileStorage fileStorage
	runner      runner
	editor      provider.Editor
	defaults    Defaults
}

// NewService creates a new Service.
func NewService(r registry, fs fileStorage, run runner, editor provider.Editor, defaults Defaults) *Service {
	if defaults.MaxConcurrency < 1 {
		defaults.MaxConcurrency = 10
	}
	return &Service{
		registry:    r,
		fileStorage: fs,
		runner:      run,
		editor:      editor,
		defaults:    defaults,
	}
}

// Defaults returns the configured option defaults for the frontend.
func (s *Service) Defaults() Defaults { return s.defaults }

// ImageUpload is one uploaded source image.
type ImageUpload struct {
	Filename string
	Data     []byte
}

// CreateBatchInput carries the submit form.
type CreateBatchInput struct {
	PromptsText  string
	Images       []ImageUpload
	Model        string
	Size         string
	Quality      string
	OutputFormat string
	Concurrency  int
}

// CreateBatch validates the submission, stores the uploads, builds the
// cartesian product of images and prompts as jobs, registers the batch and
// starts processing detached from the request context.
func (s *Service) CreateBatch(ctx context.Context, in CreateBatchInput) (*model.Batch, error) {
	prompts := parsePrompts(in.PromptsText)
	if len(prompts) == 0 {
		return nil, fmt.Errorf("%w: provide at least one prompt (one per line)", ErrInvalidInput)
	}
	if len(in.Images) == 0 {
		return nil, fmt.Errorf("%w: upload at least one image", ErrInvalidInput)
	}

	opts, err := s.resolveOptions(in)
	if err != nil {
		return nil, err
	}

	if !s.editor.Configured() {
		return nil, ErrNotConfigured
	}

	batchID := model.NewBatchID()
	uploadDir := path.Join("uploads", batchID)

	saved := make([]savedImage, 0, len(in.Images))
	for i, img := range in.Images {
		safeName := filepath.Base(strings.TrimSpace(img.Filename))
		if safeName == "" || safeName == "." || safeName == string(filepath.Separator) {
			return nil, fmt.Errorf("%w: image %d is missing a filename", ErrInvalidInput, i+1)
		}
		if len(img.Data) == 0 {
			return nil, fmt.Errorf("%w: image %d is empty", ErrInvalidInput, i+1)
		}
		if _, err := imaging.Decode(bytes.NewReader(img.Data)); err != nil {
			return nil, fmt.Errorf("%w: image %d (%s) is not a readable image", ErrInvalidInput, i+1, safeName)
		}

		storedName := fmt.Sprintf("%03d_%s", i+1, safeName)
		storedPath, err := s.fileStorage.Save(ctx, uploadDir, storedName, bytes.NewReader(img.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to save image %d: %w", i+1, err)
		}

		saved = append(saved, savedImage{filename: safeName, path: storedPath})
	}

	b := &model.Batch{
		ID:        batchID,
		Prompts:   prompts,
		Status:    model.BatchStatusQueued,
		Options:   opts,
		CreatedAt: time.Now().UTC(),
	}

	seq := 1
	for _, img := range saved {
		b.ImageFilenames = append(b.ImageFilenames, img.filename)
		for _, prompt := range prompts {
			b.Jobs = append(b.Jobs, &model.Job{
				ID:            model.NewJobID(),
				BatchID:       batchID,
				Sequence:      seq,
				ImageFilename: img.filename,
				ImagePath:     img.path,
				Prompt:        prompt,
				Status:        model.JobStatusQueued,
			})
			seq++
		}
	}

	s.registry.Create(b)

	// The batch outlives the submit request.
	go s.runner.Run(context.WithoutCancel(ctx), batchID)

	// Return a snapshot: the processor mutates the registered batch from here on.
	return s.registry.Get(batchID)
}

// GetBatch returns a snapshot of the batch for polling.
func (s *Service) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	return s.registry.Get(id)
}

// Download describes a streamable job output.
type Download struct {
	Filename    string
	ContentType string
}

// OpenJobOutput opens the job's output for download with the canonical
// attachment name <batch>_<seq>_<image stem>.<ext>.
func (s *Service) OpenJobOutput(ctx context.Context, batchID, jobID string) (io.ReadCloser, *Download, error) {
	b, job, err := s.findJob(batchID, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.OutputPath == "" {
		return nil, nil, ErrOutputNotReady
	}

	reader, err := s.fileStorage.Load(ctx, job.OutputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrOutputMissing, job.OutputPath)
	}

	stem := strings.TrimSuffix(job.ImageFilename, filepath.Ext(job.ImageFilename))
	info := &Download{
		Filename:    fmt.Sprintf("%s_%03d_%s.%s", batchID, job.Sequence, stem, b.Options.OutputExt()),
		ContentType: "image/" + b.Options.OutputFormat,
	}

	return reader, info, nil
}

// OpenJobPreview opens the job's thumbnail, falling back to the full output
// when no thumbnail was generated.
func (s *Service) OpenJobPreview(ctx context.Context, batchID, jobID string) (io.ReadCloser, *Download, error) {
	b, job, err := s.findJob(batchID, jobID)
	if err != nil {
		return nil, nil, err
	}

	if job.ThumbPath != "" {
		if reader, err := s.fileStorage.Load(ctx, job.ThumbPath); err == nil {
			return reader, &Download{ContentType: "image/jpeg"}, nil
		}
	}

	if job.OutputPath == "" {
		return nil, nil, ErrOutputNotReady
	}

	reader, err := s.fileStorage.Load(ctx, job.OutputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrOutputMissing, job.OutputPath)
	}

	return reader, &Download{ContentType: "image/" + b.Options.OutputFormat}, nil
}

type savedImage struct {
	filename string
	path     string
}

func (s *Service) findJob(batchID, jobID string) (*model.Batch, *model.Job, error) {
	b, err := s.registry.Get(batchID)
	if err != nil {
		return nil, nil, err
	}

	for _, j := range b.Jobs {
		if j.ID == jobID {
			return b, j, nil
		}
	}

	return nil, nil, batchrepo.ErrJobNotFound
}

func (s *Service) resolveOptions(in CreateBatchInput) (model.Options, error) {
	opts := model.Options{
		Model:        strings.TrimSpace(in.Model),
		Size:         strings.TrimSpace(in.Size),
		Quality:      strings.TrimSpace(in.Quality),
		OutputFormat: strings.TrimSpace(in.OutputFormat),
		Concurrency:  in.Concurrency,
	}

	if opts.Model == "" {
		opts.Model = s.defaults.Model
	}
	if opts.Size == "" {
		opts.Size = s.defaults.Size
	}
	if opts.Quality == "" {
		opts.Quality = s.defaults.Quality
	}
	if opts.OutputFormat == "" {
		opts.OutputFormat = s.defaults.OutputFormat
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = s.defaults.Concurrency
	}

	if opts.Concurrency < 1 || opts.Concurrency > s.defaults.MaxConcurrency {
		return model.Options{}, fmt.Errorf("%w: concurrency must be between 1 and %d", ErrInvalidInput, s.defaults.MaxConcurrency)
	}

	switch opts.Quality {
	case "auto", "low", "medium", "high":
	default:
		return model.Options{}, fmt.Errorf("%w: quality must be auto, low, medium, or high", ErrInvalidInput)
	}

	switch opts.OutputFormat {
	case "png", "webp", "jpeg":
	default:
		return model.Options{}, fmt.Errorf("%w: output_format must be png, webp, or jpeg", ErrInvalidInput)
	}

	return opts, nil
}

func parsePrompts(text string) []string {
	var prompts []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			prompts = append(prompts, trimmed)
		}
	}
	return prompts
}
