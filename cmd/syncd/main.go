// syncd is the headless sync worker. It runs the same engine the API server
// embeds, without the HTTP surface, for deployments that split serving from
// ingestion.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/yourorg/mls-sync/internal/auth"
	"github.com/yourorg/mls-sync/internal/cache"
	"github.com/yourorg/mls-sync/internal/config"
	"github.com/yourorg/mls-sync/internal/executor"
	"github.com/yourorg/mls-sync/internal/geocode"
	"github.com/yourorg/mls-sync/internal/logger"
	"github.com/yourorg/mls-sync/internal/ratelimit"
	"github.com/yourorg/mls-sync/internal/store"
	"github.com/yourorg/mls-sync/internal/syncengine"
	"github.com/yourorg/mls-sync/mls"
	"github.com/yourorg/mls-sync/reso"
)

func main() {
	configPath := flag.String("config", os.Getenv("MLS_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	zips := splitList(os.Getenv("SYNCD_ZIPS"))
	runOnce := parseBool(os.Getenv("SYNCD_RUN_ONCE"), false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var c cache.Cache
	if cfg.Cache.RedisAddr != "" {
		rc := cache.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisPass, cfg.Cache.RedisDB)
		if err := rc.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("redis unreachable")
		}
		c = rc
	} else {
		c = cache.NewMemory()
	}

	var st store.PropertyStore
	if cfg.PostgresDSN != "" {
		pg, err := store.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("store open failed")
		}
		defer pg.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := pg.Ping(pingCtx); err != nil {
			cancel()
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		if err := pg.Migrate(pingCtx); err != nil {
			cancel()
			log.Fatal().Err(err).Msg("postgres migrate failed")
		}
		cancel()
		st = pg
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
	client := mls.NewClient(mls.ClientDeps{
		API:      provider,
		Auth:     auth.NewManager(provider, exec, log),
		Cache:    c,
		Limiter:  ratelimit.NewSlidingWindow(cfg.RateLimit.PerMinute).WithQuotas(cfg.RateLimit.PerHour, cfg.RateLimit.PerDay),
		Exec:     exec,
		Geocoder: geocode.Static{},
		Log:      log,
	})
	if err := client.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("provider initialization failed")
	}

	engine := syncengine.New(syncengine.Options{
		Client:    client,
		Store:     st,
		Cache:     c,
		Interval:  cfg.Sync.Interval,
		PageDelay: cfg.Sync.PageDelay,
		BatchSize: cfg.Sync.BatchSize,
		Log:       log,
	})

	criteria := &mls.SearchCriteria{}
	if len(zips) > 0 {
		criteria.PostalCodes = zips
	}
	if _, err := engine.ScheduleFullSync(criteria); err != nil {
		log.Fatal().Err(err).Msg("initial full sync scheduling failed")
	}

	if runOnce {
		runCtx, cancel := context.WithCancel(ctx)
		go func() {
			// Poll until the queued job drains, then stop the worker.
			for {
				time.Sleep(time.Second)
				s := engine.Status()
				if !s.Running && s.QueueDepth == 0 && len(s.Recent) > 0 {
					cancel()
					return
				}
				if runCtx.Err() != nil {
					return
				}
			}
		}()
		if err := engine.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal().Err(err).Msg("sync run failed")
		}
		return
	}

	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("sync worker stopped with error")
	}
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	fields := strings.FieldsFunc(v, func(r rune) bool {
		switch r {
		case ',', ';', '\n', '\r', '\t':
			return true
		default:
			return false
		}
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func parseBool(v string, def bool) bool {
	if v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
