// Package heartbeat pings live connections on a fixed interval and evicts
// the ones whose activity has gone stale. This is the only component that
// removes a connection without a client-initiated disconnect.
package heartbeat

import (
	"context"
	"log"
	"sync"
	"time"

	"chatcore/internal/broadcast"
	"chatcore/internal/websocket"
)

// Supervisor runs the heartbeat loop.
type Supervisor struct {
	registry  *websocket.Registry
	cleanup   broadcast.CleanupFunc
	interval  time.Duration
	threshold time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

// NewSupervisor creates a heartbeat supervisor. threshold is the inactivity
// window after which a connection is evicted; the documented default is
// twice the interval.
func NewSupervisor(registry *websocket.Registry, cleanup broadcast.CleanupFunc, interval, threshold time.Duration) *Supervisor {
	return &Supervisor{
		registry:  registry,
		cleanup:   cleanup,
		interval:  interval,
		threshold: threshold,
	}
}

// Start launches the background loop.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.stop = make(chan struct{})

	go s.run(ctx, s.stop)

	log.Printf("Heartbeat supervisor started: interval=%s threshold=%s", s.interval, s.threshold)
	return nil
}

// Stop halts the loop. Safe to call once after Start.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}
	s.running = false
	close(s.stop)
	return nil
}

func (s *Supervisor) run(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweep pings every connection and evicts the inactive ones. Eviction marks
// the connection Inactive before running the same cleanup cascade as a
// normal disconnect.
func (s *Supervisor) sweep() {
	now := time.Now()

	for _, conn := range s.registry.Connections() {
		if now.Sub(conn.LastActivity()) > s.threshold {
			log.Printf("Evicting inactive connection %s (idle %s)", conn.ID(), now.Sub(conn.LastActivity()).Round(time.Second))
			conn.MarkInactive()
			s.cleanup(conn.ID())
			continue
		}

		if err := conn.Ping(); err != nil {
			log.Printf("Heartbeat ping failed for connection %s: %v", conn.ID(), err)
			conn.MarkInactive()
			s.cleanup(conn.ID())
		}
	}
}
