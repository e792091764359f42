package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"StockInsight/internal/notifier"
	"StockInsight/pkg/logger"
)

var ErrPoolClosed = errors.New("worker pool closed")

// Pool runs updates on a fixed set of workers. Submit blocks while every
// worker is busy and the queue is full.
type Pool struct {
	jobs    chan notifier.Update
	quit    chan struct{}
	handle  notifier.UpdateHandler
	ctx     context.Context
	cancel  context.CancelFunc
	log     *logger.Logger
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	stopped sync.Once
}

// NewPool starts workers goroutines. Handlers run under a context derived
// from parent, which is cancelled only if Stop runs out of time.
func NewPool(parent context.Context, workers, queueSize int, handle notifier.UpdateHandler, log *logger.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(parent)
	p := &Pool{
		jobs:   make(chan notifier.Update, queueSize),
		quit:   make(chan struct{}),
		handle: handle,
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	log.Info("dispatcher pool started", logger.Int("workers", workers))
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for u := range p.jobs {
		p.handle(p.ctx, u)
	}
	p.log.Debug("dispatcher worker stopping", logger.Int("worker_id", id))
}

// Submit hands u to a worker, waiting for room if necessary.
func (p *Pool) Submit(ctx context.Context, u notifier.Update) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- u:
		return nil
	case <-p.quit:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes intake and waits for queued and in-flight updates to finish
// or for ctx to expire, in which case running handlers are cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.stopped.Do(func() {
		close(p.quit)
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.log.Info("dispatcher pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.log.Warn("timeout waiting for dispatcher workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	}
}
