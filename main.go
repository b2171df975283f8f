package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yourorg/mls-sync/internal/auth"
	"github.com/yourorg/mls-sync/internal/cache"
	"github.com/yourorg/mls-sync/internal/config"
	"github.com/yourorg/mls-sync/internal/executor"
	"github.com/yourorg/mls-sync/internal/geocode"
	"github.com/yourorg/mls-sync/internal/logger"
	"github.com/yourorg/mls-sync/internal/propertysvc"
	"github.com/yourorg/mls-sync/internal/ratelimit"
	"github.com/yourorg/mls-sync/internal/store"
	"github.com/yourorg/mls-sync/internal/syncengine"
	"github.com/yourorg/mls-sync/mls"
	"github.com/yourorg/mls-sync/reso"

	addrpkg "github.com/yourorg/mls-sync/internal/address"
)

func main() {
	configPath := flag.String("config", os.Getenv("MLS_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// No logger yet.
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var c cache.Cache
	if cfg.Cache.RedisAddr != "" {
		rc := cache.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisPass, cfg.Cache.RedisDB)
		if err := rc.Ping(ctx); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("redis unreachable")
		}
		c = rc
		log.Info().Str("addr", cfg.Cache.RedisAddr).Msg("using redis cache")
	} else {
		c = cache.NewMemory()
		log.Info().Msg("using in-memory cache")
	}

	var st store.PropertyStore
	if cfg.PostgresDSN != "" {
		pg, err := store.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres open failed")
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres migrate failed")
		}
		st = pg
		log.Info().Msg("postgres store enabled")
	}

	provider := reso.NewClient(reso.Config{
		BaseURL:      cfg.Provider.BaseURL,
		LoginURL:     cfg.Provider.LoginURL,
		ClientID:     cfg.Provider.ClientID,
		ClientSecret: cfg.Provider.ClientSecret,
		Username:     cfg.Provider.Username,
		Password:     cfg.Provider.Password,
		Timeout:      cfg.Provider.Timeout,
	})

	exec := executor.New(executor.Options{
		MaxRetries: cfg.Executor.MaxRetries,
		BaseDelay:  cfg.Executor.BaseDelay,
		MaxDelay:   cfg.Executor.MaxDelay,
		Breaker:    cfg.Executor.Breaker,
		Log:        log,
	})
	tokens := auth.NewManager(provider, exec, log)

	var geo geocode.Geocoder
	if cfg.Geocoder.BaseURL != "" {
		geo = geocode.NewHTTP(cfg.Geocoder.BaseURL, cfg.Geocoder.APIKey)
	} else {
		geo = geocode.Static{}
		log.Warn().Msg("no geocoder configured, market analysis will not resolve addresses")
	}

	ttl := mls.TTLPolicy{
		Active:   time.Duration(cfg.Cache.ActiveTTL) * time.Second,
		Pending:  time.Duration(cfg.Cache.PendingTTL) * time.Second,
		Terminal: time.Duration(cfg.Cache.TerminalTTL) * time.Second,
		Search:   time.Duration(cfg.Cache.SearchTTL) * time.Second,
		Negative: time.Duration(cfg.Cache.NegativeTTL) * time.Second,
	}
	client := mls.NewClient(mls.ClientDeps{
		API:      provider,
		Auth:     tokens,
		Cache:    c,
		Limiter:  ratelimit.NewSlidingWindow(cfg.RateLimit.PerMinute).WithQuotas(cfg.RateLimit.PerHour, cfg.RateLimit.PerDay),
		Exec:     exec,
		Geocoder: geo,
		TTL:      ttl,
		Log:      log,
	})
	if err := client.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("provider initialization failed")
	}
	log.Info().Str("provider", cfg.Provider.Name).Str("env", cfg.Provider.Environment).Msg("provider initialized")

	service := propertysvc.New(client, addrpkg.NewValidator(cfg.ZipPrefixes), geo, log)
	engine := syncengine.New(syncengine.Options{
		Client:    client,
		Store:     st,
		Cache:     c,
		TTL:       ttl,
		Interval:  cfg.Sync.Interval,
		PageDelay: cfg.Sync.PageDelay,
		BatchSize: cfg.Sync.BatchSize,
		Log:       log,
	})

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: buildRouter(routerDeps{
			client:  client,
			service: service,
			engine:  engine,
			cache:   c,
			log:     log,
			ratePM:  cfg.HTTP.RatePerMinute,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	if cfg.Sync.Enabled {
		g.Go(func() error {
			if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		sw := &cache.Sweeper{Cache: c, Interval: cfg.Cache.SweepEvery, Log: log}
		if err := sw.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("shutting down with error")
	}
	log.Info().Msg("shutdown complete")
}
