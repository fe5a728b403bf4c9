// Package services contains the application services of the session engine:
// session lifecycle, time-ledger aggregation, retention policy and the
// analytics event recorder.
package services

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/analytics"
	"github.com/PlanPulseHQ/planpulse-go/internal/domain/repositories"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/tenant"
	"github.com/PlanPulseHQ/planpulse-go/pkg/config"
)

// recordedEvent pairs an event with the tenant repository it belongs to, so
// one worker can serve every tenant.
type recordedEvent struct {
	tenantID string
	repo     repositories.EventRepository
	event    *analytics.Event
}

// EventRecorder is the fire-and-forget analytics writer. Record never
// blocks and never returns an error to the caller: a full buffer or a
// failed insert is logged and swallowed. Analytics must never cause a
// user-facing error or added latency.
type EventRecorder struct {
	ch      chan recordedEvent
	quit    chan struct{}
	logger  *logging.ChanneledLogger
	wg      sync.WaitGroup
	stopped atomic.Bool
	dropped atomic.Int64
}

// NewEventRecorder creates a recorder with the configured buffer.
func NewEventRecorder(logger *logging.ChanneledLogger) *EventRecorder {
	return &EventRecorder{
		ch:     make(chan recordedEvent, config.EventBufferSize),
		quit:   make(chan struct{}),
		logger: logger,
	}
}

// Start launches the write worker.
func (r *EventRecorder) Start() {
	r.wg.Add(1)
	go r.run()
	r.logger.Analytics().Info("Event recorder started", "buffer", cap(r.ch))
}

func (r *EventRecorder) run() {
	defer r.wg.Done()

	for {
		select {
		case item := <-r.ch:
			r.write(item)
		case <-r.quit:
			// Drain whatever is buffered, then exit. The channel itself is
			// never closed: a Record racing Stop must not panic on send.
			for {
				select {
				case item := <-r.ch:
					r.write(item)
				default:
					return
				}
			}
		}
	}
}

func (r *EventRecorder) write(item recordedEvent) {
	if err := item.repo.Store(item.event); err != nil {
		// Blanket policy: analytics persistence failures are non-fatal.
		r.logger.Analytics().Error("Event write failed, dropping",
			"error", err.Error(),
			"eventType", string(item.event.Type),
			"tenantId", item.tenantID)
	}
}

// Record enqueues an event for asynchronous persistence. Disallowed event
// types and full buffers drop silently apart from a log line.
func (r *EventRecorder) Record(tenantCtx *tenant.Context, ev *analytics.Event) {
	if ev == nil || tenantCtx == nil || tenantCtx.Repos == nil {
		return
	}
	if !ev.Type.IsAllowed() {
		r.logger.Analytics().Warn("Event type not allowed, dropping",
			"eventType", string(ev.Type),
			"tenantId", tenantCtx.TenantID)
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if r.stopped.Load() {
		return
	}

	select {
	case r.ch <- recordedEvent{tenantID: tenantCtx.TenantID, repo: tenantCtx.Repos.Events, event: ev}:
	default:
		r.dropped.Add(1)
		r.logger.Analytics().Warn("Event buffer full, dropping",
			"eventType", string(ev.Type),
			"tenantId", tenantCtx.TenantID,
			"dropped", r.dropped.Load())
	}
}

// Stop drains pending events, bounded by the configured drain timeout.
func (r *EventRecorder) Stop() {
	if r.stopped.Swap(true) {
		return
	}
	close(r.quit)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Analytics().Info("Event recorder drained")
	case <-time.After(config.EventDrainTimeout):
		r.logger.Analytics().Warn("Event recorder drain timed out")
	}
}

// Dropped reports how many events were lost to a full buffer.
func (r *EventRecorder) Dropped() int64 {
	return r.dropped.Load()
}
