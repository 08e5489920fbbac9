package router

import (
	"net/http"

	"github.com/wb-go/wbf/ginext"

	"github.com/seanmmorais/mse-sora/internal/api/handlers/batch"
	"github.com/seanmmorais/mse-sora/internal/api/handlers/folder"
	"github.com/seanmmorais/mse-sora/internal/middleware"
	"github.com/seanmmorais/mse-sora/web"
)

func Setup(bh *batch.Handler, fh *folder.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	// Single-page frontend.
	r.GET("/", func(c *ginext.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", web.Index())
	})
	r.StaticFS("/static", web.Static())

	api := r.Group("/api")

	api.GET("/defaults", bh.Defaults)                              // form defaults for the page
	api.POST("/batches", bh.Create)                                // submitting a batch
	api.GET("/batches/:id", bh.Get)                                // polling batch status
	api.GET("/batches/:id/jobs/:job_id/download", bh.Download)     // downloading a job output
	api.GET("/batches/:id/jobs/:job_id/preview", bh.Preview)       // inline thumbnail preview
	api.POST("/rename-pngs", fh.RenamePNGs)                        // bulk-renaming pngs in a folder
	api.POST("/select-folder", fh.SelectFolder)                    // native folder picker

	return r
}
