package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically evicts expired entries so the cache does not grow
// unbounded between reads. Owned by whoever wires the process; Run blocks
// until the context is canceled.
type Sweeper struct {
	Cache    Cache
	Interval time.Duration
	Log      zerolog.Logger
}

func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if n := s.Cache.Cleanup(ctx); n > 0 {
				s.Log.Debug().Int("removed", n).Msg("cache sweep")
			}
		}
	}
}
