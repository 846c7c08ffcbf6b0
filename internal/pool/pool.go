package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pokeescape/pokeescape-server/internal/metrics"
	"github.com/pokeescape/pokeescape-server/internal/queue"
)

var (
	// ErrZeroWorkers is returned by New when asked for an empty pool.
	ErrZeroWorkers = errors.New("pool needs at least one worker")
	// ErrShutdown is returned by Execute once Shutdown has been called.
	ErrShutdown = errors.New("pool is shut down")
)

// Task is a unit of work run by exactly one worker.
type Task func()

// Pool runs tasks on a fixed set of long-lived workers fed by an unbounded
// queue. Each worker runs one task at a time to completion, so the number of
// workers caps how many tasks run concurrently; the rest wait in the queue.
type Pool struct {
	tasks   *queue.Mailbox[Task]
	size    int
	wg      sync.WaitGroup
	log     *zerolog.Logger
	metrics *metrics.Metrics
}

// New starts n workers.
func New(n int, logger *zerolog.Logger, m *metrics.Metrics) (*Pool, error) {
	if n <= 0 {
		return nil, ErrZeroWorkers
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	p := &Pool{
		tasks:   queue.New[Task](),
		size:    n,
		log:     logger,
		metrics: m,
	}

	p.wg.Add(n)
	for id := range n {
		go p.worker(id)
	}
	logger.Debug().Int("workers", n).Msg("worker pool started")
	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int {
	return p.tasks.Len()
}

// Execute enqueues a task. It never blocks.
func (p *Pool) Execute(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	// Count before sending so a worker's decrement never runs first.
	p.metrics.TaskQueued()
	if err := p.tasks.Send(task); err != nil {
		p.metrics.TaskUnqueued()
		return ErrShutdown
	}
	return nil
}

// Shutdown stops accepting tasks and waits for the workers to finish what is
// already queued. It returns ctx.Err() if the workers are still busy when ctx
// is done; they keep running in that case.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.tasks.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Debug().Msg("worker pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for workers: %w", ctx.Err())
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		task, err := p.tasks.Receive(context.Background())
		if err != nil {
			return
		}
		p.metrics.TaskStarted()
		p.metrics.TaskFinished(p.run(id, task))
	}
}

// run executes one task and reports whether it panicked.
func (p *Pool) run(id int, task Task) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			p.log.Error().
				Int("worker", id).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("task panicked")
		}
	}()

	task()
	return false
}
