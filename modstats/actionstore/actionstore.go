package actionstore

import (
	"context"
	"time"

	"github.com/sievebot/sieve/models"
)

// ActionStore is the read side of the append-only moderation action log.
// Writes paired with state updates go through the projector instead, which
// needs both in one transaction; these methods serve analytics and audits.
type ActionStore interface {
	AddAction(ctx context.Context, act *models.ModerationAction) error
	// ListWindow returns actions with IssuedAt in [start, end), optionally
	// filtered by type, ordered by (IssuedAt, ID).
	ListWindow(ctx context.Context, start, end time.Time, types ...models.ActionType) ([]models.ModerationAction, error)
	// ListForMessages returns actions referencing the given messages,
	// regardless of when they were issued: a triage response may land long
	// after the detection window closes. Optionally filtered by type, ordered
	// by (IssuedAt, ID).
	ListForMessages(ctx context.Context, messageIDs []uint64, types ...models.ActionType) ([]models.ModerationAction, error)
	// ListForUser returns the user's full action history, oldest first.
	ListForUser(ctx context.Context, userID uint64) ([]models.ModerationAction, error)
}
