package folder

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/seanmmorais/mse-sora/internal/api/respond"
	"github.com/seanmmorais/mse-sora/internal/picker"
	"github.com/seanmmorais/mse-sora/internal/renamer"
)

// renameFunc and selectFunc are injectable for tests.
type (
	renameFunc func(dir, baseName string) (*renamer.Report, error)
	selectFunc func() (string, error)
)

// Handler provides HTTP handlers for the PNG renaming tools.
type Handler struct {
	rename renameFunc
	pick   selectFunc
}

// NewHandler creates a Handler backed by the renamer and the native folder picker.
func NewHandler() *Handler {
	return &Handler{
		rename: renamer.RenamePNGs,
		pick:   picker.SelectFolder,
	}
}

// RenamePNGs handles POST /api/rename-pngs.
func (h *Handler) RenamePNGs(c *ginext.Context) {
	folderPath := c.PostForm("folder_path")
	baseName := c.PostForm("base_name")

	report, err := h.rename(folderPath, baseName)
	if err != nil {
		if errors.Is(err, renamer.ErrInvalid) {
			respond.Fail(c, http.StatusBadRequest, err)
			return
		}

		zlog.Logger.Err(err).Str("folder", folderPath).Msg("rename failed")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("rename failed: %v", err))
		return
	}

	zlog.Logger.Info().
		Str("folder", report.FolderPath).
		Int("renamed", report.RenamedCount).
		Msg("renamed png files")

	respond.OK(c, report)
}

// SelectFolder handles POST /api/select-folder.
func (h *Handler) SelectFolder(c *ginext.Context) {
	folderPath, err := h.pick()
	if err != nil {
		if errors.Is(err, picker.ErrCancelled) {
			respond.Fail(c, http.StatusBadRequest, err)
			return
		}

		zlog.Logger.Err(err).Msg("folder picker failed")
		respond.Fail(c, http.StatusInternalServerError, err)
		return
	}

	respond.OK(c, map[string]string{"folder_path": folderPath})
}
