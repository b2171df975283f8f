package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	httpapi "github.com/yourorg/mls-sync/http"
	"github.com/yourorg/mls-sync/internal/cache"
	"github.com/yourorg/mls-sync/internal/logger"
	"github.com/yourorg/mls-sync/internal/propertysvc"
	"github.com/yourorg/mls-sync/internal/syncengine"
	"github.com/yourorg/mls-sync/mls"
)

type routerDeps struct {
	client  *mls.Client
	service *propertysvc.Service
	engine  *syncengine.Engine
	cache   cache.Cache
	log     zerolog.Logger
	ratePM  int
}

func buildRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(d.ratePM, 1*time.Minute)) // protect upstream quota
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(logger.RequestLogger(d.log))

	httpapi.RegisterSearch(r, httpapi.SearchDeps{Client: d.client, Service: d.service})
	httpapi.RegisterAddress(r, httpapi.AddressDeps{Service: d.service})
	httpapi.RegisterSync(r, httpapi.SyncDeps{Engine: d.engine})
	httpapi.RegisterStatus(r, httpapi.StatusDeps{Client: d.client, Cache: d.cache})

	r.Handle("/metrics", promhttp.Handler())
	return r
}
