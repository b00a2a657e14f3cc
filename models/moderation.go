package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type ActionType string

const (
	ActionBan   ActionType = "ban"
	ActionWarn  ActionType = "warn"
	ActionTrust ActionType = "trust"
	ActionMute  ActionType = "mute"
)

// ModerationAction is one row of the append-only action log. Rows are never
// deleted to undo an action; undo closes out the active row(s) by setting
// ExpiresAt to the current time, preserving history. ExpiresAt only ever
// moves toward "sooner".
type ModerationAction struct {
	ID        uint64     `gorm:"primaryKey" json:"id"`
	UserID    uint64     `gorm:"index;not null" json:"userId"`
	Action    ActionType `gorm:"not null" json:"action"`
	MessageID *uint64    `gorm:"index" json:"messageId,omitempty"`
	IssuedBy  Actor      `gorm:"type:text;not null" json:"issuedBy"`
	IssuedAt  time.Time  `gorm:"index;not null" json:"issuedAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// Active reports whether the action is in effect at the given instant. A nil
// expiry means permanent.
func (a *ModerationAction) Active(now time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// WarningEntry is one warning in a user's denormalized warning list. Entries
// are never removed; they age out by expiry comparison at read time.
type WarningEntry struct {
	IssuedAt  time.Time  `json:"issuedAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	IssuedBy  Actor      `json:"issuedBy"`
}

func (w *WarningEntry) Active(now time.Time) bool {
	return w.ExpiresAt == nil || w.ExpiresAt.After(now)
}

// WarningList is the JSON column type holding a user's full warning history.
type WarningList []WarningEntry

func (wl WarningList) Active(now time.Time) []WarningEntry {
	out := []WarningEntry{}
	for _, w := range wl {
		if w.Active(now) {
			out = append(out, w)
		}
	}
	return out
}

func (wl WarningList) Value() (driver.Value, error) {
	if wl == nil {
		wl = WarningList{}
	}
	b, err := json.Marshal(wl)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (wl *WarningList) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case string:
		b = []byte(v)
	case []byte:
		b = v
	case nil:
		*wl = WarningList{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into WarningList", value)
	}
	if len(b) == 0 {
		*wl = WarningList{}
		return nil
	}
	return json.Unmarshal(b, wl)
}

// UserModerationState is the read-optimized view of a user's current
// moderation standing. Its sole source of truth is the action log; it must
// always be re-derivable by replaying that log.
type UserModerationState struct {
	IsBanned     bool        `json:"isBanned"`
	BanExpiresAt *time.Time  `json:"banExpiresAt,omitempty"`
	IsTrusted    bool        `json:"isTrusted"`
	Warnings     WarningList `json:"warnings"`
}

// BanActive accounts for temporary bans that have lapsed since the state was
// last written.
func (s *UserModerationState) BanActive(now time.Time) bool {
	return s.IsBanned && (s.BanExpiresAt == nil || s.BanExpiresAt.After(now))
}

func (s *UserModerationState) ActiveWarnings(now time.Time) []WarningEntry {
	return s.Warnings.Active(now)
}
