// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import (
	"context"
	"sync"
	"time"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// noEligibleTaskBackoff is how long a worker sleeps before retrying the
// selector when the queue is non-empty but nothing is eligible for it yet.
const noEligibleTaskBackoff = 20 * time.Millisecond

// Callback executes one admitted task against the storage engine and
// reports its outcome. It owns the full lifecycle after dequeue: engine
// call, finish-envelope assembly, finish RPC, and registry release.
// Implementations live in callbacks.go, one function per task kind.
type Callback func(ctx context.Context, d *Dispatcher, worker *Pool, priority Priority, t *TaskRequest)

// Pool is a bounded worker group for a single task kind, built on a mutex
// and condition variable rather than a channel: the PUSH pool's selector
// needs random-access removal from the queue interior, which a channel
// cannot express.
type Pool struct {
	kind     TaskKind
	reg      *Registry
	callback Callback
	metrics  *Metrics

	mu    sync.Mutex
	cond  *sync.Cond
	queue []*TaskRequest

	// fairShare is true only for the PUSH pool; every other pool dequeues
	// strict FIFO.
	fairShare bool
	// workerCount is the total number of worker goroutines, used as the
	// fair-share denominator.
	workerCount int
	// highPriorityCount is how many of workerCount elect themselves HIGH,
	// assigned at construction time rather than via the original's racy
	// runtime static counter.
	highPriorityCount int
}

// NewPool constructs a pool of workerCount workers for kind. highPriority
// is only meaningful for the PUSH pool: the first highPriority workers
// started run as HIGH, the rest as NORMAL. metrics may be nil in tests
// that don't care about queue-depth observability.
func NewPool(kind TaskKind, workerCount, highPriority int, reg *Registry, cb Callback, metrics *Metrics) *Pool {
	p := &Pool{
		kind:              kind,
		reg:               reg,
		callback:          cb,
		metrics:           metrics,
		fairShare:         kind == KindPush,
		workerCount:       workerCount,
		highPriorityCount: highPriority,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Submit appends t to the tail of the queue and wakes one waiting worker.
// Caller must have already admitted (kind, sig) into the registry.
func (p *Pool) Submit(t *TaskRequest) {
	p.mu.Lock()
	p.queue = append(p.queue, t)
	depth := len(p.queue)
	p.mu.Unlock()
	p.cond.Signal()
	p.setQueueDepth(depth)
}

// Len reports the current queue depth, used only for diagnostics/tests.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// setQueueDepth updates the queue_depth gauge for this pool's kind, if a
// Metrics instance was wired in.
func (p *Pool) setQueueDepth(depth int) {
	if p.metrics == nil {
		return
	}
	p.metrics.queueDepth.WithLabelValues(p.kind.String()).Set(float64(depth))
}

// Run starts workerCount worker goroutines and blocks until ctx is
// cancelled. Each worker loops: wait for a non-empty queue, select a task,
// release the lock, execute, repeat. Blocking I/O (the callback) always
// happens outside the pool mutex.
func (p *Pool) Run(ctx context.Context, d *Dispatcher) {
	var wg sync.WaitGroup
	wg.Add(p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		priority := Normal
		if p.fairShare && i < p.highPriorityCount {
			priority = High
		}
		go func(priority Priority) {
			defer wg.Done()
			p.runWorker(ctx, d, priority)
		}(priority)
	}

	// Wake every worker once ctx is cancelled so they can observe ctx.Err()
	// instead of blocking forever on an empty queue.
	go func() {
		<-ctx.Done()
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	}()

	wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, d *Dispatcher, priority Priority) {
	for {
		t, ok := p.waitAndSelect(ctx, priority)
		if !ok {
			return
		}
		if t == nil {
			// Queue was non-empty but nothing eligible for this worker;
			// back off briefly rather than spinning on the CV.
			select {
			case <-ctx.Done():
				return
			case <-time.After(noEligibleTaskBackoff):
			}
			continue
		}
		p.runCallback(ctx, d, priority, t)
	}
}

// runCallback invokes the callback with a recover guard: a panicking
// callback must not take down the whole worker goroutine, since that
// would silently stop draining this kind's queue.
func (p *Pool) runCallback(ctx context.Context, d *Dispatcher, priority Priority, t *TaskRequest) {
	defer func() {
		if r := recover(); r != nil {
			logCallbackPanic(t.Kind, t.Signature, r)
		}
	}()
	p.callback(ctx, d, p, priority, t)
}

// waitAndSelect blocks until ctx is done or a task can be considered, then
// removes and returns the selected task. A nil, true result means "queue
// was non-empty but the selector found nothing eligible"; the caller
// should back off and retry. A false ok means the pool is shutting down.
func (p *Pool) waitAndSelect(ctx context.Context, priority Priority) (*TaskRequest, bool) {
	p.mu.Lock()

	for len(p.queue) == 0 {
		if ctx.Err() != nil {
			p.mu.Unlock()
			return nil, false
		}
		p.cond.Wait()
		if ctx.Err() != nil {
			p.mu.Unlock()
			return nil, false
		}
	}

	var idx int
	if p.fairShare {
		idx = selectIndex(p.reg, p.queue, priority, p.workerCount)
		if idx < 0 {
			p.mu.Unlock()
			return nil, true
		}
	} else {
		idx = 0
	}

	t := p.queue[idx]
	p.queue = append(p.queue[:idx], p.queue[idx+1:]...)
	depth := len(p.queue)
	p.mu.Unlock()
	p.setQueueDepth(depth)
	return t, true
}

func logCallbackPanic(kind TaskKind, sig int64, r interface{}) {
	log.Error("task callback panicked", zap.Stringer("kind", kind), zap.Int64("signature", sig), zap.Any("panic", r))
}
