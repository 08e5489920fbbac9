package folder

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/seanmmorais/mse-sora/internal/picker"
	"github.com/seanmmorais/mse-sora/internal/renamer"
)

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

func newRouter(h *Handler) *ginext.Engine {
	r := ginext.New()
	r.POST("/api/rename-pngs", h.RenamePNGs)
	r.POST("/api/select-folder", h.SelectFolder)
	return r
}

func postForm(r *ginext.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRenamePNGs(t *testing.T) {
	t.Parallel()

	var gotDir, gotBase string
	h := &Handler{
		rename: func(dir, baseName string) (*renamer.Report, error) {
			gotDir, gotBase = dir, baseName
			return &renamer.Report{
				FolderPath:   dir,
				BaseName:     baseName,
				RenamedCount: 3,
				Files: []renamer.Renamed{
					{OldName: "a.png", NewName: "album_1.png"},
					{OldName: "b.png", NewName: "album_2.png"},
					{OldName: "c.png", NewName: "album_3.png"},
				},
			}, nil
		},
	}

	rec := postForm(newRouter(h), "/api/rename-pngs", url.Values{
		"folder_path": {"/photos/albums"},
		"base_name":   {"album"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if gotDir != "/photos/albums" || gotBase != "album" {
		t.Errorf("rename called with (%q, %q)", gotDir, gotBase)
	}

	var resp struct {
		Result renamer.Report `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Result.RenamedCount != 3 {
		t.Errorf("renamed_count = %d, want 3", resp.Result.RenamedCount)
	}
	if len(resp.Result.Files) != 3 {
		t.Errorf("files = %d, want 3", len(resp.Result.Files))
	}
}

func TestRenamePNGs_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"bad base name", fmt.Errorf("%w: base name contains forbidden characters", renamer.ErrInvalid), http.StatusBadRequest},
		{"io failure", fmt.Errorf("permission denied"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := &Handler{
				rename: func(string, string) (*renamer.Report, error) { return nil, tt.err },
			}

			rec := postForm(newRouter(h), "/api/rename-pngs", url.Values{
				"folder_path": {"/photos"},
				"base_name":   {"x"},
			})

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestSelectFolder(t *testing.T) {
	t.Parallel()

	h := &Handler{
		pick: func() (string, error) { return "/photos/albums", nil },
	}

	rec := postForm(newRouter(h), "/api/select-folder", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Result map[string]string `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Result["folder_path"] != "/photos/albums" {
		t.Errorf("folder_path = %q", resp.Result["folder_path"])
	}
}

func TestSelectFolder_Cancelled(t *testing.T) {
	t.Parallel()

	h := &Handler{
		pick: func() (string, error) { return "", picker.ErrCancelled },
	}

	rec := postForm(newRouter(h), "/api/select-folder", nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
