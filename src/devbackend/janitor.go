package devbackend

import (
	"context"
	"sync"
	"time"

	"github.com/khabaroff/shop-admin-console/src/logging"
	"github.com/rs/zerolog"
)

// Janitor periodically drops expired reset tokens and revocations
type Janitor struct {
	store    *Store
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
	logger   zerolog.Logger
}

// NewJanitor creates a janitor for store
func NewJanitor(store *Store, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Janitor{
		store:    store,
		interval: interval,
		done:     make(chan struct{}),
		logger:   logging.NewLogger("janitor"),
	}
}

// Start runs the cleanup loop in the background
func (j *Janitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				j.logger.Debug().Msg("janitor stopped")
				return
			case <-j.done:
				j.logger.Debug().Msg("janitor stopped")
				return
			case <-ticker.C:
				if n := j.store.Prune(); n > 0 {
					j.logger.Info().Int("removed", n).Msg("pruned expired tokens")
				}
			}
		}
	}()

	j.logger.Debug().Dur("interval", j.interval).Msg("janitor started")
}

// Stop stops the cleanup loop
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.done) })
}
