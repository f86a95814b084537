package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/toolsforexperiments/instrumentserver/instrument"
	"github.com/toolsforexperiments/instrumentserver/metric"
	"github.com/toolsforexperiments/instrumentserver/pkg/worker"
	"github.com/toolsforexperiments/instrumentserver/serverr"
	"github.com/toolsforexperiments/instrumentserver/wire"
)

// Job carries one decoded instruction through the worker pool, plus the
// channel its handler's Response is delivered back on. This is the one
// change from pkg/worker's original fire-and-forget Pool[T]: the processor
// both executes the handler and answers the caller through Reply.
type Job struct {
	Instruction wire.Instruction
	Reply       chan wire.Response
}

// Publisher is the capability the dispatcher needs from the transport layer
// to emit a broadcast after a successful mutation. Defined here (not
// imported from transport) so dispatch has no dependency on the transport
// package — transport depends on dispatch, not the other way around.
type Publisher interface {
	Publish(topic string, event wire.BroadcastEvent)
}

// Config controls the dispatcher's worker pool sizing. Zero values fall
// back to spec.md §4.2's defaults (5 workers).
type Config struct {
	Workers   int
	QueueSize int
}

// Dispatcher is the worker-pool-backed operation router. Construct one per
// server process; it owns no global state beyond what is passed in, per
// spec.md §9's "avoid process-wide singletons" design note.
type Dispatcher struct {
	registry  *instrument.Registry
	publisher Publisher
	metrics   *metric.Metrics
	logger    *slog.Logger
	pool      *worker.Pool[Job]
}

// NewDispatcher wires a registry, a broadcast publisher, an optional metric
// registry, and an optional logger into a ready-to-Start Dispatcher.
func NewDispatcher(registry *instrument.Registry, publisher Publisher, metrics *metric.Registry, logger *slog.Logger, cfg Config) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}

	d := &Dispatcher{
		registry:  registry,
		publisher: publisher,
		logger:    logger,
	}
	if metrics != nil {
		d.metrics = metrics.Core
	}

	opts := []worker.Option[Job]{
		worker.WithLabeler[Job](func(j Job) string { return string(j.Instruction.Operation) }),
	}
	if metrics != nil {
		opts = append(opts, worker.WithMetricsRegistry[Job](metrics, "dispatch_pool"))
	}
	d.pool = worker.NewPool[Job](workers, queueSize, d.process, opts...)
	return d
}

// SetPublisher attaches the broadcast publisher after construction, for
// the common bootstrap order where the transport layer (which implements
// Publisher) is itself constructed from this Dispatcher.
func (d *Dispatcher) SetPublisher(publisher Publisher) {
	d.publisher = publisher
}

// Start starts the worker pool. It must be called before Dispatch.
func (d *Dispatcher) Start(ctx context.Context) error {
	return d.pool.Start(ctx)
}

// Stop drains in-flight work and stops the worker pool within timeout.
func (d *Dispatcher) Stop(timeout time.Duration) error {
	return d.pool.Stop(timeout)
}

// Stats exposes the underlying pool's statistics, for a health/metrics
// endpoint.
func (d *Dispatcher) Stats() worker.PoolStats {
	return d.pool.Stats()
}

// Dispatch submits instr to the worker pool and blocks for its Response or
// for ctx to be cancelled, whichever comes first. Transport layers call
// this once per decoded Instruction; a ctx cancellation here only abandons
// the wait locally — per spec.md §5, the handler still runs to completion
// and may still commit.
func (d *Dispatcher) Dispatch(ctx context.Context, instr wire.Instruction) wire.Response {
	if d.metrics != nil {
		d.metrics.RequestsReceived.WithLabelValues(string(instr.Operation)).Inc()
	}

	reply := make(chan wire.Response, 1)
	if err := d.pool.Submit(Job{Instruction: instr, Reply: reply}); err != nil {
		return errResponse(serverr.WrapInternal(err, "Dispatcher", "Dispatch"))
	}

	select {
	case resp := <-reply:
		return resp
	case <-ctx.Done():
		return errResponse(serverr.NewTimeout("Dispatcher", "Dispatch", 0))
	}
}

// process is the worker pool's processor function: it runs the handler and
// always delivers a Response, even on panic, so a caller blocked in
// Dispatch never hangs.
func (d *Dispatcher) process(ctx context.Context, job Job) (procErr error) {
	start := time.Now()
	operation := string(job.Instruction.Operation)

	defer func() {
		if r := recover(); r != nil {
			resp := errResponse(serverr.WrapInternal(fmt.Errorf("panic: %v", r), "Dispatcher", operation))
			job.Reply <- resp
			procErr = fmt.Errorf("dispatch: recovered panic handling %s: %v", operation, r)
		}
	}()

	resp := d.handle(ctx, job.Instruction)
	job.Reply <- resp

	if d.metrics != nil {
		status := "ok"
		if !resp.OK {
			status = "error"
		}
		d.metrics.RecordRequest(operation, status, time.Since(start).Seconds())
		if resp.Error != nil {
			d.metrics.ErrorsTotal.WithLabelValues(resp.Error.Kind).Inc()
		}
	}
	if !resp.OK {
		return fmt.Errorf("dispatch: %s: %s", operation, resp.Error.Message)
	}
	return nil
}

// errResponse converts a serverr.Error (or any error) into a failed
// Response, classifying it via serverr.KindOf.
func errResponse(err error) wire.Response {
	return wire.Fail(serverr.KindOf(err).String(), err.Error())
}
