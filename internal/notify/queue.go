package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-verifier/internal/telemetry"
)

var (
	ErrQueueFull   = errors.New("notification queue is full")
	ErrQueueClosed = errors.New("notification queue is closed")
)

type deliverer interface {
	Deliver(ctx context.Context, job Job)
}

// ChannelQueue delivers webhook jobs from a bounded in-process buffer using a
// fixed pool of workers. Enqueue never blocks: when the buffer is full the job
// is dropped.
type ChannelQueue struct {
	jobs      chan Job
	deliverer deliverer
	workers   int
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewChannelQueue(d deliverer, workers, buffer int) *ChannelQueue {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelQueue{
		jobs:      make(chan Job, buffer),
		deliverer: d,
		workers:   workers,
		timeout:   DefaultTimeout,
	}
}

func (q *ChannelQueue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	telemetry.Logger.Info("Webhook workers started", zap.Int("workers", q.workers))
}

func (q *ChannelQueue) work() {
	defer q.wg.Done()
	for job := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		q.deliverer.Deliver(ctx, job)
		cancel()
	}
}

func (q *ChannelQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		telemetry.WebhookDeliveriesTotal.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for queued ones to be delivered.
func (q *ChannelQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
}
