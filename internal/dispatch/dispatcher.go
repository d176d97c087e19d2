// Package dispatch runs the bounded worker pool that drains inbound
// messages through the orchestrator. Workers isolate slow generation calls
// from the transport: the webhook has already acked by the time a worker
// picks the message up.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/courier/internal/bus"
	"github.com/nextlevelbuilder/courier/internal/orchestrator"
)

// Processor is the slice of the orchestrator the pool needs.
type Processor interface {
	Process(ctx context.Context, in orchestrator.Inbound) (orchestrator.Result, error)
}

// Pool consumes inbound messages from the router and publishes generated
// replies outbound. Overload degrades to queue latency, never to loss.
type Pool struct {
	router  bus.MessageRouter
	proc    Processor
	workers int

	wg sync.WaitGroup
}

// NewPool creates a Pool with the given worker count (default 4).
func NewPool(router bus.MessageRouter, proc Processor, workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{router: router, proc: proc, workers: workers}
}

// Start launches the workers. They exit when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	slog.Info("dispatch pool starting", "workers", p.workers)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		msg, ok := p.router.ConsumeInbound(ctx)
		if !ok {
			slog.Debug("dispatch worker stopped", "worker", id)
			return
		}
		p.handle(ctx, id, msg)
	}
}

func (p *Pool) handle(ctx context.Context, workerID int, msg bus.InboundMessage) {
	start := time.Now()
	res, err := p.proc.Process(ctx, orchestrator.Inbound{
		UserID:     msg.UserID,
		Text:       msg.Text,
		ExternalID: msg.ExternalID,
		Channel:    msg.Channel,
	})
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		// Storage trouble: the event is lost for this delivery, but the
		// provider will redeliver and the idempotency gate keeps that safe.
		slog.Error("orchestration failed",
			"worker", workerID,
			"channel", msg.Channel,
			"user", msg.UserID,
			"external_id", msg.ExternalID,
			"ms", elapsed,
			"error", err,
		)
		return
	}

	slog.Info("orchestration done",
		"worker", workerID,
		"channel", msg.Channel,
		"user", msg.UserID,
		"outcome", res.Outcome.String(),
		"ms", elapsed,
	)

	if res.Outcome != orchestrator.OutcomeReplied {
		return
	}
	p.router.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Text:    res.Reply,
	})
}
