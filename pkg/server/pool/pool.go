/*
 * Copyright 2023 The any2feed Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package pool runs jobs on a fixed set of long-lived workers fed from an
// unbounded FIFO queue
package pool

import (
	"runtime/debug"
	"sync"

	"github.com/any2feed/any2feed/pkg/errors"
	"github.com/any2feed/any2feed/pkg/observability/logging"
	"github.com/any2feed/any2feed/pkg/observability/logging/logger"
	"github.com/any2feed/any2feed/pkg/observability/metrics"
)

// Job is one unit of work. It runs exactly once, on exactly one worker.
type Job func()

// Pool is a fixed-size worker pool
type Pool struct {
	workers []*worker
	queue   []Job
	mtx     sync.Mutex
	cond    *sync.Cond
	closed  bool
	wg      sync.WaitGroup
	once    sync.Once
}

type worker struct {
	id   int
	pool *Pool
}

// New starts a pool of size workers
func New(size int) (*Pool, error) {
	if size <= 0 {
		return nil, errors.ErrInvalidPoolSize
	}
	p := &Pool{workers: make([]*worker, size)}
	p.cond = sync.NewCond(&p.mtx)
	p.wg.Add(size)
	for i := range p.workers {
		w := &worker{id: i, pool: p}
		p.workers[i] = w
		go w.run()
	}
	return p, nil
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return len(p.workers)
}

// Len returns the number of jobs waiting for a worker
func (p *Pool) Len() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return len(p.queue)
}

// Execute enqueues job without waiting for a worker to become free
func (p *Pool) Execute(job Job) error {
	if job == nil {
		return nil
	}
	p.mtx.Lock()
	if p.closed {
		p.mtx.Unlock()
		return errors.ErrPoolClosed
	}
	p.queue = append(p.queue, job)
	metrics.PoolQueueDepth.Inc()
	p.mtx.Unlock()
	p.cond.Signal()
	return nil
}

// Close stops intake, waits for every queued job to finish, and then
// returns once all workers have exited. Calling Close again is a no-op.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mtx.Lock()
		p.closed = true
		p.mtx.Unlock()
		p.cond.Broadcast()
		p.wg.Wait()
	})
}

// next blocks until a job is available. ok is false once the pool is
// closed and the queue has drained.
func (p *Pool) next() (Job, bool) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil, false
	}
	job := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	metrics.PoolQueueDepth.Dec()
	return job, true
}

func (w *worker) run() {
	defer w.pool.wg.Done()
	logger.Debug("worker started", logging.Pairs{"workerID": w.id})
	for {
		job, ok := w.pool.next()
		if !ok {
			logger.Debug("worker stopped", logging.Pairs{"workerID": w.id})
			return
		}
		w.execute(job)
	}
}

func (w *worker) execute(job Job) {
	metrics.PoolBusyWorkers.Inc()
	defer func() {
		metrics.PoolBusyWorkers.Dec()
		if r := recover(); r != nil {
			metrics.PoolJobPanics.Inc()
			logger.Error("job panicked", logging.Pairs{
				"workerID": w.id,
				"panic":    r,
				"stack":    string(debug.Stack()),
			})
		}
	}()
	job()
}
