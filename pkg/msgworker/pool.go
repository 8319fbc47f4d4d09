package msgworker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Job is one inbound message to process. Jobs sharing a Channel and ConversationID
// always land on the same worker and run in dispatch order.
type Job struct {
	Channel        string
	ConversationID string
	Handler        func(ctx context.Context) error
}

func (j Job) key() string {
	return j.Channel + "|" + j.ConversationID
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers         int           `json:"workers"`
	QueueSize       int           `json:"queue_size"`
	Busy            int           `json:"busy"`
	TotalDispatched int64         `json:"total_dispatched"`
	TotalProcessed  int64         `json:"total_processed"`
	TotalDropped    int64         `json:"total_dropped"`
	TotalErrors     int64         `json:"total_errors"`
	PerWorker       []WorkerStats `json:"per_worker"`
}

type WorkerStats struct {
	ID         int   `json:"id"`
	QueueDepth int   `json:"queue_depth"`
	Busy       bool  `json:"busy"`
	Processed  int64 `json:"processed"`
}

// Pool is a sharded worker pool: one goroutine and one bounded queue per shard.
type Pool struct {
	size      int
	queueSize int
	workers   []*worker
	wg        sync.WaitGroup
	stopOnce  sync.Once
	started   atomic.Bool
	stopped   atomic.Bool

	dispatched atomic.Int64
	processed  atomic.Int64
	dropped    atomic.Int64
	errored    atomic.Int64
}

type worker struct {
	id        int
	queue     chan Job
	busy      atomic.Bool
	processed atomic.Int64
	pool      *Pool
}

func NewPool(size, queueSize int) *Pool {
	if size <= 0 {
		size = 8
	}
	if queueSize <= 0 {
		queueSize = 200
	}
	p := &Pool{
		size:      size,
		queueSize: queueSize,
		workers:   make([]*worker, size),
	}
	for i := range p.workers {
		p.workers[i] = &worker{id: i, queue: make(chan Job, queueSize), pool: p}
	}
	return p
}

// Start launches the workers. Handlers receive ctx; cancelling it does not drop queued jobs,
// Stop drains them.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for _, w := range p.workers {
		p.wg.Add(1)
		go w.run(ctx, &p.wg)
	}
	logrus.Infof("[MSG_WORKER_POOL] started %d workers, queue size %d", p.size, p.queueSize)
}

// TryDispatch enqueues a job without blocking. It reports false when the shard's queue
// is full or the pool is stopped.
func (p *Pool) TryDispatch(job Job) bool {
	if p.stopped.Load() {
		p.dropped.Add(1)
		return false
	}
	shard := p.shardFor(job.key())
	p.dispatched.Add(1)

	sent := func() (ok bool) {
		// Stop may close the queue between the stopped check and the send.
		defer func() {
			if r := recover(); r != nil {
				ok = false
			}
		}()
		select {
		case p.workers[shard].queue <- job:
			return true
		default:
			return false
		}
	}()
	if !sent {
		p.dropped.Add(1)
		logrus.Warnf("[MSG_WORKER_POOL] worker %d queue full, dropping message for %s", shard, job.key())
	}
	return sent
}

func (p *Pool) Dispatch(job Job) {
	_ = p.TryDispatch(job)
}

// Stop closes the queues and waits for the workers to finish what is already queued.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		logrus.Info("[MSG_WORKER_POOL] stopping workers...")
		for _, w := range p.workers {
			close(w.queue)
		}
		p.wg.Wait()
		logrus.Info("[MSG_WORKER_POOL] all workers stopped")
	})
}

func (p *Pool) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.size))
}

func (p *Pool) Stats() Stats {
	s := Stats{
		Workers:         p.size,
		QueueSize:       p.queueSize,
		TotalDispatched: p.dispatched.Load(),
		TotalProcessed:  p.processed.Load(),
		TotalDropped:    p.dropped.Load(),
		TotalErrors:     p.errored.Load(),
		PerWorker:       make([]WorkerStats, len(p.workers)),
	}
	for i, w := range p.workers {
		busy := w.busy.Load()
		if busy {
			s.Busy++
		}
		s.PerWorker[i] = WorkerStats{
			ID:         w.id,
			QueueDepth: len(w.queue),
			Busy:       busy,
			Processed:  w.processed.Load(),
		}
	}
	return s
}

func (w *worker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	logrus.Debugf("[MSG_WORKER_POOL] worker %d started", w.id)
	for job := range w.queue {
		w.handle(ctx, job)
	}
	logrus.Debugf("[MSG_WORKER_POOL] worker %d shutting down", w.id)
}

func (w *worker) handle(ctx context.Context, job Job) {
	w.busy.Store(true)
	defer func() {
		if r := recover(); r != nil {
			w.pool.errored.Add(1)
			logrus.Errorf("[MSG_WORKER_POOL] worker %d panic for %s: %v", w.id, job.key(), r)
		}
		w.busy.Store(false)
		w.processed.Add(1)
		w.pool.processed.Add(1)
	}()

	if err := job.Handler(ctx); err != nil {
		w.pool.errored.Add(1)
		logrus.WithError(err).Errorf("[MSG_WORKER_POOL] worker %d job failed for %s", w.id, job.key())
	}
}
