package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-verifier/internal/telemetry"
)

const (
	DefaultSubject    = "payments.webhooks"
	DefaultQueueGroup = "webhook-dispatchers"
)

// NATSQueue moves webhook jobs through a NATS subject so delivery can run in
// any instance subscribed to the queue group. Core NATS is at-most-once, which
// matches the best-effort delivery contract.
type NATSQueue struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
}

func NewNATSQueue(nc *nats.Conn, subject string) *NATSQueue {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSQueue{nc: nc, subject: subject, timeout: DefaultTimeout}
}

func (q *NATSQueue) Enqueue(_ context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode webhook job: %w", err)
	}
	return q.nc.Publish(q.subject, data)
}

// Subscribe starts delivering jobs published on the queue's subject. Only one
// member of queueGroup receives each job.
func (q *NATSQueue) Subscribe(d deliverer, queueGroup string) (*nats.Subscription, error) {
	if queueGroup == "" {
		queueGroup = DefaultQueueGroup
	}
	return q.nc.QueueSubscribe(q.subject, queueGroup, q.handler(d))
}

func (q *NATSQueue) handler(d deliverer) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			telemetry.Logger.Error("Error unmarshaling webhook job", zap.Error(err))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		defer cancel()
		d.Deliver(ctx, job)
	}
}
