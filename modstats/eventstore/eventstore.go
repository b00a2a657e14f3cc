package eventstore

import (
	"context"
	"time"

	"github.com/sievebot/sieve/models"
)

// EventStore is the append-only detection event log plus the message lookups
// analytics need. Listing methods return events ordered by (DetectedAt, ID)
// ascending so repeated reads over a closed window are deterministic.
type EventStore interface {
	AddEvent(ctx context.Context, evt *models.DetectionEvent) error
	// ListWindow returns all events with DetectedAt in [start, end).
	ListWindow(ctx context.Context, start, end time.Time) ([]models.DetectionEvent, error)
	// ListManualForMessages returns manual events for the given messages,
	// regardless of window: a correcting verdict may land after the query
	// window closes.
	ListManualForMessages(ctx context.Context, messageIDs []uint64) ([]models.DetectionEvent, error)
	// ListForMessage returns the message's full event history, oldest first.
	ListForMessage(ctx context.Context, messageID uint64) ([]models.DetectionEvent, error)
	// GetMessage returns (nil, nil) when the message no longer exists.
	GetMessage(ctx context.Context, messageID uint64) (*models.Message, error)
	PutMessage(ctx context.Context, msg *models.Message) error
	// DisableTraining flips UsedForTraining off for every event on the
	// message, so conflicting labels for one message never feed a trainer.
	DisableTraining(ctx context.Context, messageID uint64) (int64, error)
	// DeleteBefore is the retention sweep; the only sanctioned deletion path.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
