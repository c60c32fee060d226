package worker

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Processor is what the poller drives. Satisfied by *QueueWorker.
type Processor interface {
	ProcessOnce(ctx context.Context) (int, error)
}

// Poller invokes the processor on a fixed interval for the lifetime of the
// process. Polling (instead of event-driven triggering) lets the enqueuer and
// worker run in different processes with no shared in-memory signal; several
// poller instances may run side by side because the claim algorithm already
// serializes access to each job.
//
// Ticks never overlap within one poller: a slow ProcessOnce simply delays the
// next tick. Throughput scales by running more poller instances, not by
// draining multiple jobs per tick, which would break oldest-first fairness.
type Poller struct {
	processor Processor
	interval  time.Duration
	logger    *zap.Logger

	started atomic.Bool
	done    chan struct{}
}

func NewPoller(processor Processor, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		processor: processor,
		interval:  interval,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start launches the polling loop. It is idempotent: the hosting process may
// call it from multiple initialization paths, only the first call has any
// effect. Reports whether this call started the loop.
func (p *Poller) Start(ctx context.Context) bool {
	if !p.started.CompareAndSwap(false, true) {
		return false
	}
	go p.run(ctx)
	return true
}

// Wait blocks until the polling loop has exited after ctx cancellation.
func (p *Poller) Wait() {
	<-p.done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("queue poller started", zap.Duration("interval", p.interval))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("queue poller stopping")
			return
		case <-ticker.C:
			processed, err := p.processor.ProcessOnce(ctx)
			if err != nil {
				// Worker errors are contained in the job rows; anything
				// surfacing here is a claim-level store failure.
				p.logger.Error("queue poll error", zap.Error(err))
				continue
			}
			if processed > 0 {
				p.logger.Debug("queue processed", zap.Int("count", processed))
			}
		}
	}
}
