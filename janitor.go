package goGate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goGate/session"
)

// janitor periodically retires expired sessions still present in the LRU
// indexes. It is pure hygiene: Create and ValidateSession already retire
// expired rows on their own paths, so a janitor failure only delays
// cleanup. Sweeps are batched through a SCAN cursor and hold no locks that
// could block foreground traffic.
type janitor struct {
	sessions *session.Store
	cfg      JanitorConfig
	logger   *zap.Logger
	metrics  *Metrics

	cursor   uint64
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newJanitor(sessions *session.Store, cfg JanitorConfig, logger *zap.Logger, metrics *Metrics) *janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	j := &janitor{
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		done:     make(chan struct{}),
	}

	j.wg.Add(1)
	go j.run()

	return j
}

func (j *janitor) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.done:
			return
		}
	}
}

func (j *janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), j.cfg.Interval)
	defer cancel()

	next, removed, err := j.sessions.SweepExpired(ctx, j.cursor, j.cfg.BatchSize)
	if err != nil {
		// Retry from the same cursor on the next tick.
		j.logger.Warn("expired session sweep failed", zap.Error(err))
		return
	}

	j.cursor = next
	if removed > 0 {
		j.metrics.Add(MetricJanitorSweptSessions, uint64(removed))
		j.logger.Debug("expired session sweep",
			zap.Int("removed", removed), zap.Uint64("cursor", next))
	}
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (j *janitor) Stop() {
	if j == nil {
		return
	}
	j.stopOnce.Do(func() {
		close(j.done)
		j.wg.Wait()
	})
}
