package api

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/canvasarchive/internal/archiveservice"
	"github.com/starford/canvasarchive/internal/index"
)

// ArchiveRequest is the request body for archiving a canvas.
type ArchiveRequest struct {
	Path   string `json:"path" example:"boards/plan.canvas" validate:"required"`
	DryRun bool   `json:"dry_run" example:"false"`
}

// Validate validates the archive request.
func (r *ArchiveRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Path,
			validation.Required,
			validation.By(func(v interface{}) error {
				if !strings.HasSuffix(v.(string), archiveservice.CanvasExt) {
					return validation.NewError("validation_canvas_ext", "must be a .canvas file")
				}
				return nil
			}),
		),
	)
}

// ArchiveResponse is the result of an archive pass (aliased from the service layer).
type ArchiveResponse = archiveservice.Result

// SweepResponse reports how many canvases changed during a sweep.
type SweepResponse struct {
	Changed int `json:"changed" example:"2" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// RunsResponse wraps recorded archive runs.
type RunsResponse struct {
	Runs []index.RunRow `json:"runs" validate:"required"`
}
