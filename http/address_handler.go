package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	json "github.com/goccy/go-json"

	"github.com/yourorg/mls-sync/internal/propertysvc"
)

type AddressDeps struct {
	Service *propertysvc.Service
}

// RegisterAddress wires address-driven helpers: listing auto-population,
// address suggestions and comparable sales.
func RegisterAddress(r chi.Router, d AddressDeps) {
	r.Post("/autopopulate", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Address string `json:"address"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			render.Status(req, http.StatusBadRequest)
			render.JSON(w, req, map[string]any{"error": "invalid_json", "detail": err.Error()})
			return
		}
		out, err := d.Service.AutoPopulateFromAddress(req.Context(), body.Address)
		if err != nil {
			// Validation failures still carry the parse detail for the caller.
			if out != nil && len(out.Validation.Errors) > 0 {
				render.Status(req, http.StatusUnprocessableEntity)
				render.JSON(w, req, map[string]any{"ok": false, "validation": out.Validation})
				return
			}
			writeError(w, req, err)
			return
		}
		render.JSON(w, req, map[string]any{"ok": true, "validation": out.Validation, "match": out.Match})
	})

	r.Get("/suggest", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		limit := 10
		if v := intParam(q.Get("limit")); v != nil {
			limit = *v
		}
		suggestions, err := d.Service.Suggestions(req.Context(), q.Get("q"), limit)
		if err != nil {
			writeError(w, req, err)
			return
		}
		render.JSON(w, req, map[string]any{"ok": true, "suggestions": suggestions})
	})

	r.Get("/comparables", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		radius := 1.0
		if v := floatParam(q.Get("radius")); v != nil {
			radius = *v
		}
		limit := 10
		if v := intParam(q.Get("limit")); v != nil {
			limit = *v
		}
		comps, err := d.Service.RecentComparables(req.Context(), q.Get("address"), radius, limit)
		if err != nil {
			writeError(w, req, err)
			return
		}
		render.JSON(w, req, map[string]any{"ok": true, "count": len(comps), "comparables": comps})
	})
}
