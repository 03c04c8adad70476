package ws

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/manga-lockstep/backend/internal/viewing"
	"github.com/rs/zerolog/log"
)

// Heartbeat periodically queues a ping for every registered viewer. A dead
// connection is noticed by its own write pump when the ping fails, not here.
// Snapshot fan-out after a navigation is done by viewing.State itself.
type Heartbeat struct {
	state    *viewing.State
	clock    clockwork.Clock
	interval time.Duration
}

func NewHeartbeat(state *viewing.State, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		state:    state,
		clock:    clockwork.NewRealClock(),
		interval: interval,
	}
}

// WithClock replaces the clock, for tests.
func (h *Heartbeat) WithClock(c clockwork.Clock) *Heartbeat {
	h.clock = c
	return h
}

// Run ticks until ctx is cancelled.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	log.Debug().Dur("interval", h.interval).Msg("heartbeat started")
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("heartbeat stopped")
			return
		case <-ticker.Chan():
			h.state.Ping()
		}
	}
}
