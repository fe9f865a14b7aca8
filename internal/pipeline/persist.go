package pipeline

import (
	"context"
	"sync"

	"github.com/solace-labs/solace/internal/log"
)

// persistQueueSize bounds how many persistence tasks may be pending
// before enqueueing drops (persistence is best-effort by design).
const persistQueueSize = 64

// Persister runs post-response persistence work on a single background
// worker goroutine. Task failures are logged and never retried; the
// user-visible response is long gone by the time these run.
type Persister struct {
	tasks  chan func(context.Context)
	bgCtx  context.Context
	wg     sync.WaitGroup
	inWork sync.WaitGroup
	once   sync.Once
	logger log.Logger
}

// NewPersister starts the worker. bgCtx scopes the background work and
// should outlive request contexts; cancel it during shutdown after
// Close.
func NewPersister(bgCtx context.Context, logger log.Logger) *Persister {
	p := &Persister{
		tasks:  make(chan func(context.Context), persistQueueSize),
		bgCtx:  bgCtx,
		logger: logger.With("component", "persist"),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *Persister) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		func() {
			defer p.inWork.Done()
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("persistence task panicked", "panic", r)
				}
			}()
			task(p.bgCtx)
		}()
	}
}

// Enqueue submits a task. When the queue is full the task is dropped
// with a log line rather than blocking the response path.
func (p *Persister) Enqueue(task func(context.Context)) {
	p.inWork.Add(1)
	select {
	case p.tasks <- task:
	default:
		p.inWork.Done()
		p.logger.Warn("persistence queue full, dropping task")
	}
}

// Drain blocks until every enqueued task has finished. For tests and
// graceful shutdown.
func (p *Persister) Drain() {
	p.inWork.Wait()
}

// Close drains outstanding work and stops the worker. Safe to call
// more than once.
func (p *Persister) Close() {
	p.once.Do(func() {
		p.inWork.Wait()
		close(p.tasks)
		p.wg.Wait()
	})
}
