// Package projector maintains the denormalized per-user moderation state as
// a materialized view over the append-only ModerationAction log. It is the
// only legitimate writer of that state: every mutation pairs an action-log
// insert (or close-out) with the state update inside one transaction, so the
// cached state can never drift from the history it summarizes.
package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sievebot/sieve/models"
)

type Projector struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewProjector(db *gorm.DB, logger *slog.Logger) (*Projector, error) {
	if err := db.AutoMigrate(&models.User{}, &models.ModerationAction{}); err != nil {
		return nil, err
	}
	return &Projector{db: db, logger: logger}, nil
}

// ErrUserNotFound surfaces a moderation action targeting a user that does not
// exist. A dangling action is a correctness bug, not routine noise, so this
// fails the operation instead of creating state without an owner.
var ErrUserNotFound = errors.New("user not found")

const (
	maxWriteAttempts = 5
	retryBaseDelay   = 25 * time.Millisecond
)

// withUser runs fn against the row-locked user inside a transaction,
// retrying with exponential backoff on conflicts. Concurrency control is
// scoped per user id; there is no cross-user coordination.
func (p *Projector) withUser(ctx context.Context, userID uint64, fn func(tx *gorm.DB, user *models.User) error) error {
	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		lastErr = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var user models.User
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error; err != nil {
				return err
			}
			return fn(tx, &user)
		})
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}
		p.logger.Warn("moderation state write conflict, retrying", "user", userID, "attempt", attempt+1, "err", lastErr)
	}
	return fmt.Errorf("moderation state write for user %d failed after %d attempts: %w", userID, maxWriteAttempts, lastErr)
}

// SetBanStatus bans or unbans a user. Banning inserts a Ban action and
// mirrors it onto the user row; unbanning closes out the active Ban rows
// (history is never deleted) and always clears the cached expiry, since "not
// banned" has no meaningful expiry. Setting the same state twice is a
// semantic no-op.
func (p *Projector) SetBanStatus(ctx context.Context, userID uint64, banned bool, expiresAt *time.Time, messageID *uint64, by models.Actor, reason string) error {
	return p.withUser(ctx, userID, func(tx *gorm.DB, user *models.User) error {
		now := time.Now().UTC()
		if banned {
			act := models.ModerationAction{
				UserID:    userID,
				Action:    models.ActionBan,
				MessageID: messageID,
				IssuedBy:  by,
				IssuedAt:  now,
				ExpiresAt: expiresAt,
				Reason:    reason,
			}
			if err := tx.Create(&act).Error; err != nil {
				return err
			}
			user.IsBanned = true
			user.BanExpiresAt = expiresAt
		} else {
			if err := expireActive(tx, userID, models.ActionBan, now); err != nil {
				return err
			}
			user.IsBanned = false
			user.BanExpiresAt = nil
		}
		return tx.Save(user).Error
	})
}

// AddWarning appends a warning (never replaces) and returns the active
// warning count after the insert, not the total historical count.
func (p *Projector) AddWarning(ctx context.Context, userID uint64, reason string, expiresAt *time.Time, messageID *uint64, by models.Actor) (int, error) {
	var active int
	err := p.withUser(ctx, userID, func(tx *gorm.DB, user *models.User) error {
		now := time.Now().UTC()
		act := models.ModerationAction{
			UserID:    userID,
			Action:    models.ActionWarn,
			MessageID: messageID,
			IssuedBy:  by,
			IssuedAt:  now,
			ExpiresAt: expiresAt,
			Reason:    reason,
		}
		if err := tx.Create(&act).Error; err != nil {
			return err
		}
		user.Warnings = append(user.Warnings, models.WarningEntry{
			IssuedAt:  now,
			ExpiresAt: expiresAt,
			Reason:    reason,
			IssuedBy:  by,
		})
		active = len(user.Warnings.Active(now))
		return tx.Save(user).Error
	})
	if err != nil {
		return 0, err
	}
	return active, nil
}

// UpdateTrustStatus grants or removes trust. Removing trust from a protected
// system account is a policy clamp: rejected with a logged warning, not an
// error, since it is an expected recoverable caller mistake.
func (p *Projector) UpdateTrustStatus(ctx context.Context, userID uint64, trusted bool, by models.Actor, reason string) error {
	return p.withUser(ctx, userID, func(tx *gorm.DB, user *models.User) error {
		now := time.Now().UTC()
		if !trusted && user.IsSystem {
			p.logger.Warn("refusing to remove trust from protected system account", "user", userID, "by", by.String())
			return nil
		}
		if trusted {
			act := models.ModerationAction{
				UserID:   userID,
				Action:   models.ActionTrust,
				IssuedBy: by,
				IssuedAt: now,
				Reason:   reason,
			}
			if err := tx.Create(&act).Error; err != nil {
				return err
			}
			user.IsTrusted = true
		} else {
			if err := expireActive(tx, userID, models.ActionTrust, now); err != nil {
				return err
			}
			user.IsTrusted = false
		}
		return tx.Save(user).Error
	})
}

// expireActive closes out the user's active rows of one action type by
// moving ExpiresAt to now. This is the undo representation: rows are never
// deleted, and ExpiresAt only ever moves toward "sooner".
func expireActive(tx *gorm.DB, userID uint64, action models.ActionType, now time.Time) error {
	return tx.Model(&models.ModerationAction{}).
		Where("user_id = ? AND action = ? AND (expires_at IS NULL OR expires_at > ?)", userID, action, now).
		Update("expires_at", now).Error
}

func (p *Projector) getUser(ctx context.Context, userID uint64) (*models.User, error) {
	var user models.User
	err := p.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (p *Projector) IsBanned(ctx context.Context, userID uint64) (bool, error) {
	user, err := p.getUser(ctx, userID)
	if err != nil {
		return false, err
	}
	st := user.ModerationState()
	return st.BanActive(time.Now().UTC()), nil
}

func (p *Projector) IsTrusted(ctx context.Context, userID uint64) (bool, error) {
	user, err := p.getUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.IsTrusted, nil
}

func (p *Projector) GetActiveWarningCount(ctx context.Context, userID uint64) (int, error) {
	user, err := p.getUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(user.Warnings.Active(time.Now().UTC())), nil
}

func (p *Projector) GetState(ctx context.Context, userID uint64) (*models.UserModerationState, error) {
	user, err := p.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	st := user.ModerationState()
	return &st, nil
}

// Rebuild derives the user's state purely from the action log, bypassing the
// cached row. Diffing it against GetState is the audit for projection drift.
func (p *Projector) Rebuild(ctx context.Context, userID uint64) (*models.UserModerationState, error) {
	if _, err := p.getUser(ctx, userID); err != nil {
		return nil, err
	}
	var actions []models.ModerationAction
	if err := p.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("issued_at, id").
		Find(&actions).Error; err != nil {
		return nil, err
	}
	st := Replay(actions, time.Now().UTC())
	return &st, nil
}
