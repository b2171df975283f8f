package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	json "github.com/goccy/go-json"

	"github.com/yourorg/mls-sync/internal/syncengine"
	"github.com/yourorg/mls-sync/mls"
)

type SyncDeps struct {
	Engine *syncengine.Engine
}

// RegisterSync wires job scheduling and inspection. All jobs run on the
// engine's single worker, so scheduling always returns immediately.
func RegisterSync(r chi.Router, d SyncDeps) {
	r.Post("/sync/full", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Criteria *mls.SearchCriteria `json:"criteria,omitempty"`
		}
		if req.ContentLength > 0 {
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				render.Status(req, http.StatusBadRequest)
				render.JSON(w, req, map[string]any{"error": "invalid_json", "detail": err.Error()})
				return
			}
		}
		job, err := d.Engine.ScheduleFullSync(body.Criteria)
		if err != nil {
			render.Status(req, http.StatusConflict)
			render.JSON(w, req, map[string]any{"error": "schedule_failed", "detail": err.Error()})
			return
		}
		render.Status(req, http.StatusAccepted)
		render.JSON(w, req, map[string]any{"ok": true, "job": job})
	})

	r.Post("/sync/incremental", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Since *time.Time `json:"since,omitempty"`
		}
		if req.ContentLength > 0 {
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				render.Status(req, http.StatusBadRequest)
				render.JSON(w, req, map[string]any{"error": "invalid_json", "detail": err.Error()})
				return
			}
		}
		job, err := d.Engine.ScheduleIncrementalSync(body.Since)
		if err != nil {
			render.Status(req, http.StatusConflict)
			render.JSON(w, req, map[string]any{"error": "schedule_failed", "detail": err.Error()})
			return
		}
		render.Status(req, http.StatusAccepted)
		render.JSON(w, req, map[string]any{"ok": true, "job": job})
	})

	r.Post("/sync/properties", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			ListingIDs []string `json:"listing_ids"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			render.Status(req, http.StatusBadRequest)
			render.JSON(w, req, map[string]any{"error": "invalid_json", "detail": err.Error()})
			return
		}
		job, err := d.Engine.SchedulePropertySync(body.ListingIDs)
		if err != nil {
			render.Status(req, http.StatusBadRequest)
			render.JSON(w, req, map[string]any{"error": "schedule_failed", "detail": err.Error()})
			return
		}
		render.Status(req, http.StatusAccepted)
		render.JSON(w, req, map[string]any{"ok": true, "job": job})
	})

	r.Get("/sync/status", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]any{"ok": true, "sync": d.Engine.Status()})
	})

	r.Get("/sync/jobs/{jobID}", func(w http.ResponseWriter, req *http.Request) {
		job, ok := d.Engine.Job(chi.URLParam(req, "jobID"))
		if !ok {
			render.Status(req, http.StatusNotFound)
			render.JSON(w, req, map[string]any{"error": "job_not_found"})
			return
		}
		render.JSON(w, req, map[string]any{"ok": true, "job": job})
	})
}
