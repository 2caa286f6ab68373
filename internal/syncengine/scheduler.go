package syncengine

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukahub/dukasync/internal/etims"
	"github.com/dukahub/dukasync/internal/mode"
	"github.com/dukahub/dukasync/internal/remote"
)

// Scheduler drives background sync from a single timer.
//
// Each tick probes backend reachability, feeds the observation into the
// mode manager, triggers a guarded sync pass, and retries queued tax
// submissions. A transition to Online triggers an immediate pass so
// recovery is not delayed by up to one interval. The orchestrator's
// in-flight guard makes overlapping triggers no-ops, so the timer can
// fire freely while a long pass is outstanding - the tick simply no-ops
// rather than double-firing.
type Scheduler struct {
	orch    *Orchestrator
	modes   *mode.Manager
	backend remote.Backend
	relay   *etims.Relay
}

// NewScheduler wires a scheduler over an orchestrator and mode manager.
// relay may be nil when the deployment handles tax submissions through
// the file exchange only.
func NewScheduler(orch *Orchestrator, modes *mode.Manager, backend remote.Backend, relay *etims.Relay) *Scheduler {
	return &Scheduler{
		orch:    orch,
		modes:   modes,
		backend: backend,
		relay:   relay,
	}
}

// Run blocks until ctx is cancelled, ticking on the configured sync
// interval. Must be called from one goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.modes.Settings().SyncInterval
	if interval <= 0 {
		interval = time.Minute
	}
	slog.Info("scheduler starting", "interval", interval)

	events := s.modes.Subscribe()
	defer s.modes.Unsubscribe(events)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopping: context cancelled")
			return ctx.Err()

		case ev := <-events:
			if ev.Mode != mode.Online {
				continue
			}
			slog.Info("mode restored to online, triggering sync")
			s.tick(ctx)
			s.drainSubmissions(ctx)

		case <-ticker.C:
			s.probe(ctx)
			s.tick(ctx)
			s.drainSubmissions(ctx)
		}
	}
}

// probe checks reachability and reports it to the mode manager.
func (s *Scheduler) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := s.backend.Ping(probeCtx)
	s.modes.SetNetworkStatus(err == nil)
	if err != nil {
		slog.Debug("reachability probe failed", "error", err)
	}
}

// tick runs one guarded sync pass. Conflict errors stay in the status
// object here; only interactive triggers surface them directly.
func (s *Scheduler) tick(ctx context.Context) {
	if err := s.orch.Sync(ctx); err != nil {
		slog.Error("scheduled sync failed", "error", err)
	}
}

// drainSubmissions retries queued tax submissions over the direct path.
// A submission whose immediate delivery failed must not wait for an
// operator: every tick with a live link drains the pending set. Failures
// leave the records pending for the next tick or the file exchange.
func (s *Scheduler) drainSubmissions(ctx context.Context) {
	if s.relay == nil {
		return
	}
	if s.modes != nil && !s.modes.NetworkStatus() {
		return
	}
	delivered, remaining, err := s.relay.SubmitPending(ctx)
	if err != nil {
		slog.Error("tax submission drain failed", "error", err)
		return
	}
	if delivered > 0 {
		slog.Info("tax submissions drained",
			"delivered", delivered, "remaining", remaining)
	}
}
