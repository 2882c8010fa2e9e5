package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/payment-verifier/internal/models"
	"github.com/akylbek/payment-system/payment-verifier/internal/notify"
)

// NotificationQueue hands webhook jobs to out-of-band delivery workers.
type NotificationQueue interface {
	Enqueue(ctx context.Context, job notify.Job) error
}

// StatePublisher announces payment state transitions to downstream listeners.
type StatePublisher interface {
	PublishStateChange(ctx context.Context, event models.StateChangeEvent) error
}
