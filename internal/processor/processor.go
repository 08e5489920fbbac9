package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/disintegration/imaging"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/errgroup"

	"github.com/seanmmorais/mse-sora/internal/model"
	"github.com/seanmmorais/mse-sora/internal/provider"
)

const thumbSize = 256

// batchRegistry is the slice of the in-memory registry the processor needs.
type batchRegistry interface {
	Get(id string) (*model.Batch, error)
	UpdateJob(batchID, jobID string, mutate func(*model.Job)) error
	SetStatus(id string, status model.BatchStatus) error
	Finalize(id string) error
}

// fileStorage defines the interface for file storage.
// It allows saving and loading files from a backend (e.g., local FS, MinIO).
type fileStorage interface {
	Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error)
	Load(ctx context.Context, path string) (io.ReadCloser, error)
}

// Processor fans a batch out to the external image API. Each (image, prompt)
// job acquires a concurrency slot, calls the edit endpoint, and writes the
// result or error back to its job record. Jobs do not depend on each other
// and a failed job never aborts the batch.
type Processor struct {
	registry    batchRegistry
	fileStorage fileStorage
	editor      provider.Editor
}

// New creates a Processor.
func New(registry batchRegistry, fs fileStorage, editor provider.Editor) *Processor {
	return &Processor{registry: registry, fileStorage: fs, editor: editor}
}

// Run executes every job of the batch with at most the batch's configured
// concurrency in flight, then finalizes the aggregate status.
func (p *Processor) Run(ctx context.Context, batchID string) {
	b, err := p.registry.Get(batchID)
	if err != nil {
		zlog.Logger.Err(err).Str("batch_id", batchID).Msg("batch disappeared before processing")
		return
	}

	if err := p.registry.SetStatus(batchID, model.BatchStatusRunning); err != nil {
		zlog.Logger.Err(err).Str("batch_id", batchID).Msg("failed to mark batch running")
		return
	}

	concurrency := b.Options.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, job := range b.Jobs {
		g.Go(func() error {
			p.runJob(gctx, b.Options, job)
			return nil
		})
	}

	_ = g.Wait()

	if err := p.registry.Finalize(batchID); err != nil {
		zlog.Logger.Err(err).Str("batch_id", batchID).Msg("failed to finalize batch")
		return
	}

	zlog.Logger.Info().
		Str("batch_id", batchID).
		Int("jobs", len(b.Jobs)).
		Msg("batch finished")
}

// runJob drives one job through submitting -> processing -> completed/failed.
func (p *Processor) runJob(ctx context.Context, opts model.Options, job *model.Job) {
	if err := p.executeJob(ctx, opts, job); err != nil {
		zlog.Logger.Err(err).
			Str("batch_id", job.BatchID).
			Str("job_id", job.ID).
			Msg("job failed")

		p.updateJob(job, func(j *model.Job) {
			j.Status = model.JobStatusFailed
			j.APIStatus = "failed"
			j.Error = err.Error()
		})
	}
}

func (p *Processor) executeJob(ctx context.Context, opts model.Options, job *model.Job) error {
	p.updateJob(job, func(j *model.Job) {
		j.Status = model.JobStatusSubmitting
		j.APIStatus = "submitting"
		j.Error = ""
	})

	src, err := p.fileStorage.Load(ctx, job.ImagePath)
	if err != nil {
		return fmt.Errorf("failed to load source image: %w", err)
	}
	imageBytes, err := io.ReadAll(src)
	src.Close()
	if err != nil {
		return fmt.Errorf("failed to read source image: %w", err)
	}

	p.updateJob(job, func(j *model.Job) {
		j.Status = model.JobStatusProcessing
		j.APIStatus = "processing"
	})

	res, err := p.editor.Edit(ctx, provider.EditRequest{
		Image:        imageBytes,
		Filename:     job.ImageFilename,
		Prompt:       job.Prompt,
		Model:        opts.Model,
		Size:         opts.Size,
		Quality:      opts.Quality,
		OutputFormat: opts.OutputFormat,
	})
	if err != nil {
		return err
	}

	outDir := path.Join("outputs", job.BatchID)
	outName := fmt.Sprintf("%s.%s", job.ID, opts.OutputExt())
	outputPath, err := p.fileStorage.Save(ctx, outDir, outName, bytes.NewReader(res.Image))
	if err != nil {
		return fmt.Errorf("failed to save output image: %w", err)
	}

	// Thumbnail generation is best effort; the preview endpoint falls back
	// to the full output when it is missing.
	thumbPath := p.saveThumbnail(ctx, outDir, job.ID, res.Image)

	p.updateJob(job, func(j *model.Job) {
		j.Status = model.JobStatusCompleted
		j.APIStatus = "completed"
		j.RevisedPrompt = res.RevisedPrompt
		j.OutputPath = outputPath
		j.ThumbPath = thumbPath
	})

	return nil
}

func (p *Processor) saveThumbnail(ctx context.Context, outDir, jobID string, image []byte) string {
	img, err := imaging.Decode(bytes.NewReader(image))
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to decode output for thumbnail")
		return ""
	}

	thumb := imaging.Thumbnail(img, thumbSize, thumbSize, imaging.Lanczos)

	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, thumb, imaging.JPEG); err != nil {
		zlog.Logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to encode thumbnail")
		return ""
	}

	thumbPath, err := p.fileStorage.Save(ctx, outDir, jobID+"_thumb.jpg", buf)
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to save thumbnail")
		return ""
	}

	return thumbPath
}

func (p *Processor) updateJob(job *model.Job, mutate func(*model.Job)) {
	if err := p.registry.UpdateJob(job.BatchID, job.ID, mutate); err != nil {
		zlog.Logger.Err(err).
			Str("batch_id", job.BatchID).
			Str("job_id", job.ID).
			Msg("failed to update job")
	}
}
