package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
)

var (
	errPoolFull    = errors.New("worker pool is full")
	errInFlight    = errors.New("request already being processed")
	errPoolStopped = errors.New("worker pool stopped")
)

// Pool is a fixed set of worker goroutines fed through a bounded channel.
type Pool struct {
	size    int
	jobs    chan *domain.PrintRequest
	process func(ctx context.Context, req *domain.PrintRequest) Outcome
	logger  *slog.Logger

	// onRelease runs when a worker frees up, except after OutcomeDeferred.
	onRelease func()

	mu       sync.Mutex
	inFlight map[string]struct{}
	stopped  bool
	wg       sync.WaitGroup
}

// NewPool creates a pool of size workers with a queue of the same depth.
func NewPool(size int, process func(context.Context, *domain.PrintRequest) Outcome, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		size:     size,
		jobs:     make(chan *domain.PrintRequest, size),
		process:  process,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}
}

// OnRelease registers fn to be called each time a worker finishes a request
// and can take another. Requests deferred by an unreachable store do not
// call it. Must be set before Start.
func (p *Pool) OnRelease(fn func()) {
	p.onRelease = fn
}

// Start spawns the workers.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("Spawning worker pool", slog.Int("concurrency", p.size))

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}
}

func (p *Pool) workerLoop(ctx context.Context, workerNum int) {
	defer p.wg.Done()

	workerName := fmt.Sprintf("worker-%d", workerNum)
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-p.jobs:
			if !ok {
				return
			}

			outcome := p.process(ctx, req)
			p.release(req.ID)
			if p.onRelease != nil && outcome != OutcomeDeferred {
				p.onRelease()
			}

			p.logger.Debug("Worker finished request",
				slog.String("worker_name", workerName),
				slog.String("request_id", req.ID),
				slog.String("outcome", outcome.String()),
			)
		}
	}
}

// Submit hands req to a worker without blocking.
func (p *Pool) Submit(req *domain.PrintRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return errPoolStopped
	}
	if _, busy := p.inFlight[req.ID]; busy {
		return errInFlight
	}

	select {
	case p.jobs <- req:
		p.inFlight[req.ID] = struct{}{}
		return nil
	default:
		return errPoolFull
	}
}

func (p *Pool) release(id string) {
	p.mu.Lock()
	delete(p.inFlight, id)
	p.mu.Unlock()
}

// Stop closes the queue and waits for running jobs.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}
