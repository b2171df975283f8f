package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	json "github.com/goccy/go-json"

	"github.com/yourorg/mls-sync/internal/propertysvc"
	"github.com/yourorg/mls-sync/mls"
)

type SearchDeps struct {
	Client  *mls.Client
	Service *propertysvc.Service
}

// RegisterSearch wires the search and detail endpoints. POST takes full
// criteria JSON; GET takes a compact query-param form plus free-text q=.
func RegisterSearch(r chi.Router, d SearchDeps) {
	r.Post("/search", func(w http.ResponseWriter, req *http.Request) {
		var criteria mls.SearchCriteria
		if err := json.NewDecoder(req.Body).Decode(&criteria); err != nil {
			render.Status(req, http.StatusBadRequest)
			render.JSON(w, req, map[string]any{"error": "invalid_json", "detail": err.Error()})
			return
		}
		runSearch(w, req, d, &criteria)
	})

	r.Get("/search", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		if text := q.Get("q"); text != "" {
			runSearch(w, req, d, propertysvc.ParseQuery(text))
			return
		}
		criteria := &mls.SearchCriteria{}
		if v := q.Get("city"); v != "" {
			criteria.Cities = strings.Split(v, ",")
		}
		if v := q.Get("postalcode"); v != "" {
			criteria.PostalCodes = strings.Split(v, ",")
		}
		if v := q.Get("property_type"); v != "" {
			criteria.PropertyType = mls.PropertyType(v)
		}
		if v := q.Get("status"); v != "" {
			for _, s := range strings.Split(v, ",") {
				criteria.Statuses = append(criteria.Statuses, mls.StandardStatus(s))
			}
		}
		criteria.MinBedrooms = intParam(q.Get("min_beds"))
		criteria.MaxBedrooms = intParam(q.Get("max_beds"))
		criteria.MinBathrooms = intParam(q.Get("min_baths"))
		criteria.MinSquareFeet = intParam(q.Get("min_sqft"))
		criteria.MaxSquareFeet = intParam(q.Get("max_sqft"))
		criteria.MinListPrice = floatParam(q.Get("min_price"))
		criteria.MaxListPrice = floatParam(q.Get("max_price"))
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				criteria.Limit = n
			}
		}
		if v := q.Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				criteria.Offset = n
			}
		}
		criteria.SortBy = q.Get("sort_by")
		criteria.SortDesc = q.Get("sort") == "desc"
		runSearch(w, req, d, criteria)
	})

	r.Get("/properties/{listingID}", func(w http.ResponseWriter, req *http.Request) {
		p, err := d.Client.GetProperty(req.Context(), chi.URLParam(req, "listingID"))
		if err != nil {
			writeError(w, req, err)
			return
		}
		render.JSON(w, req, map[string]any{"ok": true, "property": p})
	})

	r.Get("/analysis", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		opts := mls.AnalysisOptions{}
		if v := floatParam(q.Get("radius")); v != nil {
			opts.RadiusMiles = *v
		}
		if v := intParam(q.Get("max_comps")); v != nil {
			opts.MaxComps = *v
		}
		analysis, err := d.Client.GetMarketAnalysis(req.Context(), q.Get("address"), opts)
		if err != nil {
			writeError(w, req, err)
			return
		}
		render.JSON(w, req, map[string]any{"ok": true, "analysis": analysis})
	})
}

func runSearch(w http.ResponseWriter, req *http.Request, d SearchDeps, criteria *mls.SearchCriteria) {
	res, err := d.Client.SearchProperties(req.Context(), criteria)
	if err != nil {
		writeError(w, req, err)
		return
	}
	render.JSON(w, req, map[string]any{
		"ok":          true,
		"count":       len(res.Properties),
		"total":       res.TotalCount,
		"has_more":    res.HasMore,
		"next_offset": res.NextOffset,
		"request_id":  res.RequestID,
		"properties":  res.Properties,
	})
}

func intParam(v string) *int {
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func floatParam(v string) *float64 {
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}
