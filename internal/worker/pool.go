package worker

import (
	"sync"

	"github.com/baharkarakas/travel-credits/internal/metrics"
)

type Task func()

type Pool struct {
	wg   sync.WaitGroup
	jobs chan Task
}

func NewPool(n, queue int) *Pool {
	if queue <= 0 {
		queue = 1024
	}
	p := &Pool{jobs: make(chan Task, queue)}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
				job()
			}
		}()
	}
	return p
}

// Submit blocks until the task is queued.
func (p *Pool) Submit(f Task) {
	p.jobs <- f
	metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
}

// TrySubmit queues f unless the queue is full.
func (p *Pool) TrySubmit(f Task) bool {
	select {
	case p.jobs <- f:
		metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
		return true
	default:
		return false
	}
}

// Stop drains queued tasks and waits for the workers to exit.
func (p *Pool) Stop() { close(p.jobs); p.wg.Wait() }
