// Package pools holds the shared resource pools of the serving core:
// the handler worker pool and the tiered read-buffer pool.
package pools

import (
	"runtime"
	"sync/atomic"
)

// Task is one unit of handler work.
type Task func()

// WorkerPool is a fixed-size work-stealing goroutine pool. Request
// handlers run here so the I/O loop never blocks on user code.
type WorkerPool struct {
	numWorkers int
	queues     []chan Task
	closed     atomic.Bool

	submitted atomic.Uint64
	completed atomic.Uint64
	steals    atomic.Uint64
}

// NewWorkerPool starts numWorkers workers. Zero or negative means
// runtime.NumCPU().
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	p := &WorkerPool{
		numWorkers: numWorkers,
		queues:     make([]chan Task, numWorkers),
	}

	for i := 0; i < numWorkers; i++ {
		p.queues[i] = make(chan Task, 256)
	}
	for i := 0; i < numWorkers; i++ {
		go p.run(i)
	}

	return p
}

// Submit enqueues a task, distributing round-robin. When the chosen
// queue and its neighbor are both full the task runs inline on the
// caller; enqueueing is fast, so briefly occupying the I/O thread is
// acceptable. Returns false only after Close.
func (p *WorkerPool) Submit(task Task) bool {
	if p.closed.Load() {
		return false
	}

	idx := int(p.submitted.Add(1)) % p.numWorkers

	select {
	case p.queues[idx] <- task:
		return true
	default:
	}

	idx = (idx + 1) % p.numWorkers
	select {
	case p.queues[idx] <- task:
		return true
	default:
		task()
		p.completed.Add(1)
		return true
	}
}

func (p *WorkerPool) run(id int) {
	own := p.queues[id]

	for {
		select {
		case task, ok := <-own:
			if !ok {
				return
			}
			task()
			p.completed.Add(1)
			continue
		default:
		}

		// Own queue drained; steal from the others before blocking.
		if p.trySteal(id) {
			continue
		}

		task, ok := <-own
		if !ok {
			return
		}
		task()
		p.completed.Add(1)
	}
}

func (p *WorkerPool) trySteal(id int) bool {
	for i := 1; i < p.numWorkers; i++ {
		victim := p.queues[(id+i)%p.numWorkers]
		select {
		case task, ok := <-victim:
			if !ok {
				continue
			}
			p.steals.Add(1)
			task()
			p.completed.Add(1)
			return true
		default:
		}
	}
	return false
}

// Close stops the workers. Queued tasks still drain; Submit refuses new
// work afterwards.
func (p *WorkerPool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	for _, q := range p.queues {
		close(q)
	}
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	NumWorkers int
	Submitted  uint64
	Completed  uint64
	Steals     uint64
}

// Stats returns current pool counters.
func (p *WorkerPool) Stats() Stats {
	return Stats{
		NumWorkers: p.numWorkers,
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Steals:     p.steals.Load(),
	}
}
