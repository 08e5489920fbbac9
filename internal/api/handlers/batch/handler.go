package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/seanmmorais/mse-sora/internal/api/respond"
	"github.com/seanmmorais/mse-sora/internal/model"
	batchrepo "github.com/seanmmorais/mse-sora/internal/repository/batch"
	batchsvc "github.com/seanmmorais/mse-sora/internal/service/batch"
)

// maxUploadMemory caps the in-memory part of multipart parsing.
const maxUploadMemory = 64 << 20

// service defines the interface for batch operations.
type service interface {
	CreateBatch(ctx context.Context, in batchsvc.CreateBatchInput) (*model.Batch, error)
	GetBatch(ctx context.Context, id string) (*model.Batch, error)
	OpenJobOutput(ctx context.Context, batchID, jobID string) (io.ReadCloser, *batchsvc.Download, error)
	OpenJobPreview(ctx context.Context, batchID, jobID string) (io.ReadCloser, *batchsvc.Download, error)
	Defaults() batchsvc.Defaults
}

// Handler provides HTTP handlers for batch submission, polling and results.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// CreateResponse is the submit payload: the batch id plus a full snapshot.
type CreateResponse struct {
	BatchID string          `json:"batch_id"`
	Batch   model.BatchView `json:"batch"`
}

// Create handles POST /api/batches: multipart images plus prompts and options.
func (h *Handler) Create(c *ginext.Context) {
	if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("parse multipart form failed: %v", err))
		return
	}

	form := c.Request.MultipartForm
	if form == nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("multipart form is required"))
		return
	}

	in := batchsvc.CreateBatchInput{
		PromptsText:  c.PostForm("prompts_text"),
		Model:        c.PostForm("model"),
		Size:         c.PostForm("size"),
		Quality:      c.PostForm("quality"),
		OutputFormat: c.PostForm("output_format"),
	}

	if raw := c.PostForm("concurrency"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respond.Fail(c, http.StatusBadRequest, fmt.Errorf("concurrency must be a number"))
			return
		}
		in.Concurrency = n
	}

	for _, header := range form.File["images"] {
		f, err := header.Open()
		if err != nil {
			respond.Fail(c, http.StatusBadRequest, fmt.Errorf("failed to read uploaded image: %v", err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			respond.Fail(c, http.StatusBadRequest, fmt.Errorf("failed to read uploaded image: %v", err))
			return
		}
		in.Images = append(in.Images, batchsvc.ImageUpload{Filename: header.Filename, Data: data})
	}

	b, err := h.service.CreateBatch(c.Request.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, batchsvc.ErrInvalidInput):
			respond.Fail(c, http.StatusBadRequest, err)
		case errors.Is(err, batchsvc.ErrNotConfigured):
			zlog.Logger.Error().Msg("batch submitted without configured api key")
			respond.Fail(c, http.StatusInternalServerError, err)
		default:
			zlog.Logger.Err(err).Msg("failed to create batch")
			respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to create batch"))
		}
		return
	}

	zlog.Logger.Info().
		Str("batch_id", b.ID).
		Int("images", len(b.ImageFilenames)).
		Int("prompts", len(b.Prompts)).
		Int("jobs", len(b.Jobs)).
		Msg("batch created")

	respond.Created(c, CreateResponse{BatchID: b.ID, Batch: b.View()})
}

// Get handles GET /api/batches/:id for status polling.
func (h *Handler) Get(c *ginext.Context) {
	b, err := h.service.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, batchrepo.ErrBatchNotFound) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("batch not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to get batch")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to get batch"))
		return
	}

	respond.OK(c, b.View())
}

// Download handles GET /api/batches/:id/jobs/:job_id/download.
func (h *Handler) Download(c *ginext.Context) {
	reader, info, err := h.service.OpenJobOutput(c.Request.Context(), c.Param("id"), c.Param("job_id"))
	if err != nil {
		h.failJobLookup(c, err)
		return
	}
	defer reader.Close()

	respond.Attachment(c, info.ContentType, info.Filename, reader)
}

// Preview handles GET /api/batches/:id/jobs/:job_id/preview.
func (h *Handler) Preview(c *ginext.Context) {
	reader, info, err := h.service.OpenJobPreview(c.Request.Context(), c.Param("id"), c.Param("job_id"))
	if err != nil {
		h.failJobLookup(c, err)
		return
	}
	defer reader.Close()

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	respond.Image(c, http.StatusOK, info.ContentType, reader)
}

// Defaults handles GET /api/defaults for the frontend form.
func (h *Handler) Defaults(c *ginext.Context) {
	d := h.service.Defaults()
	respond.OK(c, map[string]interface{}{
		"model":           d.Model,
		"size":            d.Size,
		"quality":         d.Quality,
		"output_format":   d.OutputFormat,
		"concurrency":     d.Concurrency,
		"max_concurrency": d.MaxConcurrency,
	})
}

func (h *Handler) failJobLookup(c *ginext.Context, err error) {
	switch {
	case errors.Is(err, batchrepo.ErrBatchNotFound):
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("batch not found"))
	case errors.Is(err, batchrepo.ErrJobNotFound):
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("job not found"))
	case errors.Is(err, batchsvc.ErrOutputNotReady):
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("job output not ready"))
	case errors.Is(err, batchsvc.ErrOutputMissing):
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("output file is missing"))
	default:
		zlog.Logger.Err(err).Msg("failed to open job output")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to open job output"))
	}
}
