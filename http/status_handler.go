package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/yourorg/mls-sync/internal/cache"
	"github.com/yourorg/mls-sync/mls"
)

type StatusDeps struct {
	Client *mls.Client
	Cache  cache.Cache
}

// RegisterStatus wires health and observability endpoints. /healthz is for
// load balancers; /status runs a live provider probe and is slower.
func RegisterStatus(r chi.Router, d StatusDeps) {
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]any{"ok": true})
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]any{"ok": true, "integration": d.Client.Status(req.Context())})
	})

	r.Get("/cache/stats", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]any{"ok": true, "cache": d.Cache.Stats(req.Context())})
	})
}
