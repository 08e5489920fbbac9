package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/seanmmorais/mse-sora/internal/model"
	"github.com/seanmmorais/mse-sora/internal/provider"
	batchrepo "github.com/seanmmorais/mse-sora/internal/repository/batch"
	"github.com/seanmmorais/mse-sora/internal/storage/local"
)

type stubEditor struct{ configured bool }

func (e *stubEditor) Configured() bool { return e.configured }
func (e *stubEditor) Edit(context.Context, provider.EditRequest) (*provider.Result, error) {
	return nil, errors.New("not used in service tests")
}

type recordingRunner struct {
	mu  sync.Mutex
	ids []string
	wg  sync.WaitGroup
}

func (r *recordingRunner) Run(ctx context.Context, batchID string) {
	r.mu.Lock()
	r.ids = append(r.ids, batchID)
	r.mu.Unlock()
	r.wg.Done()
}

func pngUpload(name string) ImageUpload {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	buf := bytes.NewBuffer(nil)
	_ = png.Encode(buf, img)
	return ImageUpload{Filename: name, Data: buf.Bytes()}
}

func defaults() Defaults {
	return Defaults{
		Model:          "gpt-image-1",
		Size:           "1024x1024",
		Quality:        "medium",
		OutputFormat:   "png",
		Concurrency:    1,
		MaxConcurrency: 10,
	}
}

func newService(t *testing.T) (*Service, *batchrepo.Repository, *recordingRunner) {
	t.Helper()

	storage, err := local.NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewStorage() error = %v", err)
	}

	repo := batchrepo.NewRepository()
	run := &recordingRunner{}
	svc := NewService(repo, storage, run, &stubEditor{configured: true}, defaults())
	return svc, repo, run
}

func TestCreateBatchCartesianProduct(t *testing.T) {
	t.Parallel()

	svc, repo, run := newService(t)
	run.wg.Add(1)

	b, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		PromptsText: "make it sunny\n\n  add a rainbow  \n",
		Images:      []ImageUpload{pngUpload("cat.png"), pngUpload("dog.png"), pngUpload("fox.png")},
		Concurrency: 2,
	})
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	run.wg.Wait()

	if len(b.Jobs) != 3*2 {
		t.Fatalf("len(Jobs) = %d, want images*prompts = 6", len(b.Jobs))
	}
	if len(b.Prompts) != 2 {
		t.Fatalf("parsed prompts = %d, want 2 (blank lines dropped)", len(b.Prompts))
	}
	if b.Prompts[1] != "add a rainbow" {
		t.Errorf("prompt not trimmed: %q", b.Prompts[1])
	}

	// Image-major order, 1-based contiguous sequence numbers.
	for i, j := range b.Jobs {
		if j.Sequence != i+1 {
			t.Errorf("job %d sequence = %d", i, j.Sequence)
		}
	}
	if b.Jobs[0].ImageFilename != "cat.png" || b.Jobs[1].ImageFilename != "cat.png" {
		t.Errorf("jobs not image-major: %q, %q", b.Jobs[0].ImageFilename, b.Jobs[1].ImageFilename)
	}
	if b.Jobs[2].ImageFilename != "dog.png" {
		t.Errorf("third job image = %q, want dog.png", b.Jobs[2].ImageFilename)
	}

	// Defaults filled in.
	if b.Options.Model != "gpt-image-1" || b.Options.Quality != "medium" {
		t.Errorf("defaults not applied: %+v", b.Options)
	}

	// Registered and started.
	if _, err := repo.Get(b.ID); err != nil {
		t.Errorf("batch not registered: %v", err)
	}
	if len(run.ids) != 1 || run.ids[0] != b.ID {
		t.Errorf("runner started with %v, want [%s]", run.ids, b.ID)
	}
}

func TestCreateBatchValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   CreateBatchInput
	}{
		{name: "no prompts", in: CreateBatchInput{PromptsText: " \n ", Images: []ImageUpload{pngUpload("a.png")}}},
		{name: "no images", in: CreateBatchInput{PromptsText: "p"}},
		{name: "concurrency too high", in: CreateBatchInput{PromptsText: "p", Images: []ImageUpload{pngUpload("a.png")}, Concurrency: 11}},
		{name: "negative concurrency", in: CreateBatchInput{PromptsText: "p", Images: []ImageUpload{pngUpload("a.png")}, Concurrency: -1}},
		{name: "bad quality", in: CreateBatchInput{PromptsText: "p", Images: []ImageUpload{pngUpload("a.png")}, Quality: "ultra"}},
		{name: "bad format", in: CreateBatchInput{PromptsText: "p", Images: []ImageUpload{pngUpload("a.png")}, OutputFormat: "gif"}},
		{name: "missing filename", in: CreateBatchInput{PromptsText: "p", Images: []ImageUpload{{Filename: "  ", Data: []byte("x")}}}},
		{name: "empty image", in: CreateBatchInput{PromptsText: "p", Images: []ImageUpload{{Filename: "a.png"}}}},
		{name: "not an image", in: CreateBatchInput{PromptsText: "p", Images: []ImageUpload{{Filename: "a.png", Data: []byte("plain text")}}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc, _, _ := newService(t)
			if _, err := svc.CreateBatch(context.Background(), tc.in); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestCreateBatchWithoutAPIKey(t *testing.T) {
	t.Parallel()

	storage, err := local.NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewStorage() error = %v", err)
	}
	svc := NewService(batchrepo.NewRepository(), storage, &recordingRunner{}, &stubEditor{configured: false}, defaults())

	_, err = svc.CreateBatch(context.Background(), CreateBatchInput{
		PromptsText: "p",
		Images:      []ImageUpload{pngUpload("a.png")},
	})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("error = %v, want ErrNotConfigured", err)
	}
}

func TestOpenJobOutput(t *testing.T) {
	t.Parallel()

	storage, err := local.NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewStorage() error = %v", err)
	}
	repo := batchrepo.NewRepository()
	svc := NewService(repo, storage, &recordingRunner{}, &stubEditor{configured: true}, defaults())

	outPath, err := storage.Save(context.Background(), "outputs/b1", "j1.png", strings.NewReader("output bytes"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	repo.Create(&model.Batch{
		ID:      "b1",
		Options: model.Options{OutputFormat: "png"},
		Jobs: []*model.Job{
			{ID: "j1", BatchID: "b1", Sequence: 1, ImageFilename: "cat.png", Status: model.JobStatusCompleted, OutputPath: outPath},
			{ID: "j2", BatchID: "b1", Sequence: 2, ImageFilename: "dog.png", Status: model.JobStatusProcessing},
			{ID: "j3", BatchID: "b1", Sequence: 3, ImageFilename: "fox.png", Status: model.JobStatusCompleted, OutputPath: "outputs/b1/gone.png"},
		},
	})

	reader, info, err := svc.OpenJobOutput(context.Background(), "b1", "j1")
	if err != nil {
		t.Fatalf("OpenJobOutput() error = %v", err)
	}
	defer reader.Close()

	got, _ := io.ReadAll(reader)
	if string(got) != "output bytes" {
		t.Errorf("content = %q", got)
	}
	if info.Filename != "b1_001_cat.png" {
		t.Errorf("Filename = %q, want b1_001_cat.png", info.Filename)
	}
	if info.ContentType != "image/png" {
		t.Errorf("ContentType = %q", info.ContentType)
	}

	if _, _, err := svc.OpenJobOutput(context.Background(), "b1", "j2"); !errors.Is(err, ErrOutputNotReady) {
		t.Errorf("not-ready error = %v, want ErrOutputNotReady", err)
	}
	if _, _, err := svc.OpenJobOutput(context.Background(), "b1", "j3"); !errors.Is(err, ErrOutputMissing) {
		t.Errorf("missing-file error = %v, want ErrOutputMissing", err)
	}
	if _, _, err := svc.OpenJobOutput(context.Background(), "b1", "nope"); !errors.Is(err, batchrepo.ErrJobNotFound) {
		t.Errorf("unknown job error = %v, want ErrJobNotFound", err)
	}
	if _, _, err := svc.OpenJobOutput(context.Background(), "nope", "j1"); !errors.Is(err, batchrepo.ErrBatchNotFound) {
		t.Errorf("unknown batch error = %v, want ErrBatchNotFound", err)
	}
}

func TestOpenJobPreviewFallsBackToOutput(t *testing.T) {
	t.Parallel()

	storage, err := local.NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewStorage() error = %v", err)
	}
	repo := batchrepo.NewRepository()
	svc := NewService(repo, storage, &recordingRunner{}, &stubEditor{configured: true}, defaults())

	outPath, err := storage.Save(context.Background(), "outputs/b1", "j1.webp", strings.NewReader("full output"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	thumbPath, err := storage.Save(context.Background(), "outputs/b1", "j2_thumb.jpg", strings.NewReader("thumb"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	repo.Create(&model.Batch{
		ID:      "b1",
		Options: model.Options{OutputFormat: "webp"},
		Jobs: []*model.Job{
			{ID: "j1", BatchID: "b1", Sequence: 1, ImageFilename: "a.png", Status: model.JobStatusCompleted, OutputPath: outPath},
			{ID: "j2", BatchID: "b1", Sequence: 2, ImageFilename: "b.png", Status: model.JobStatusCompleted, OutputPath: outPath, ThumbPath: thumbPath},
		},
	})

	reader, info, err := svc.OpenJobPreview(context.Background(), "b1", "j1")
	if err != nil {
		t.Fatalf("OpenJobPreview() fallback error = %v", err)
	}
	got, _ := io.ReadAll(reader)
	reader.Close()
	if string(got) != "full output" || info.ContentType != "image/webp" {
		t.Errorf("fallback = %q (%s)", got, info.ContentType)
	}

	reader, info, err = svc.OpenJobPreview(context.Background(), "b1", "j2")
	if err != nil {
		t.Fatalf("OpenJobPreview() thumb error = %v", err)
	}
	got, _ = io.ReadAll(reader)
	reader.Close()
	if string(got) != "thumb" || info.ContentType != "image/jpeg" {
		t.Errorf("thumb = %q (%s)", got, info.ContentType)
	}
}

func TestUploadsStoredWithSequencePrefix(t *testing.T) {
	t.Parallel()

	svc, repo, run := newService(t)
	run.wg.Add(1)

	b, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		PromptsText: "p",
		Images:      []ImageUpload{pngUpload("first.png"), pngUpload("second.png")},
	})
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	run.wg.Wait()

	stored, err := repo.Get(b.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	for i, j := range stored.Jobs {
		want := fmt.Sprintf("%03d_%s", i+1, j.ImageFilename)
		if !strings.HasSuffix(j.ImagePath, want) {
			t.Errorf("job %d ImagePath = %q, want suffix %q", i, j.ImagePath, want)
		}
	}
}
