package simulation

import (
	"context"
	"sync"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

// Ticker advances the simulated telemetry by one sweep.
type Ticker interface {
	Tick(ctx context.Context, now time.Time)
}

type Simulation interface {
	Start()
	Stop()
}

type simulationImpl struct {
	done     chan struct{}
	start    sync.Once
	stop     sync.Once
	ctx      context.Context
	ticker   Ticker
	interval time.Duration
}

func New(ctx context.Context, t Ticker, interval time.Duration) Simulation {
	s := &simulationImpl{
		ctx:      ctx,
		ticker:   t,
		interval: interval,
		done:     make(chan struct{}),
	}

	return s
}

// Start runs the sweeps in the background. Calling it again has no effect.
func (s *simulationImpl) Start() {
	s.start.Do(func() {
		go backgroundWorker(s, s.done)
	})
}

// Stop ends the sweeps. It never blocks and may be called more than once.
func (s *simulationImpl) Stop() {
	s.stop.Do(func() {
		close(s.done)
	})
}

func backgroundWorker(s *simulationImpl, done <-chan struct{}) {
	log := logging.GetFromContext(s.ctx)

	t := time.NewTicker(s.interval)
	defer t.Stop()

	log.Info().Str("interval", s.interval.String()).Msg("simulation started")

	for {
		select {
		case <-done:
			log.Info().Msg("simulation stopped")
			return
		case <-s.ctx.Done():
			return
		case now := <-t.C:
			s.ticker.Tick(s.ctx, now.UTC())
		}
	}
}
