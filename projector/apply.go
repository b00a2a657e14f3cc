package projector

import (
	"sort"
	"time"

	"github.com/sievebot/sieve/models"
)

// Apply folds one moderation action into a user's state. It is a pure
// function: the materialized state on the user row must always equal a replay
// of the action log through it, so audits and migrations can rebuild state
// from scratch.
//
// Ban, trust, and warnings are independent axes. A ban or trust grant counts
// only while its row is active at the evaluation instant; close-outs
// (ExpiresAt moved to the undo time) therefore drop out of the fold on their
// own. Warnings accumulate regardless of expiry and age out at read time.
// Mutes live only in the action log and carry no state here.
func Apply(st models.UserModerationState, act models.ModerationAction, now time.Time) models.UserModerationState {
	switch act.Action {
	case models.ActionBan:
		if act.Active(now) {
			st.IsBanned = true
			st.BanExpiresAt = act.ExpiresAt
		}
	case models.ActionWarn:
		st.Warnings = append(st.Warnings, models.WarningEntry{
			IssuedAt:  act.IssuedAt,
			ExpiresAt: act.ExpiresAt,
			Reason:    act.Reason,
			IssuedBy:  act.IssuedBy,
		})
	case models.ActionTrust:
		if act.Active(now) {
			st.IsTrusted = true
		}
	case models.ActionMute:
	}
	return st
}

// Replay derives a user's moderation state from their full action history,
// oldest first. The later of two overlapping active bans wins the displayed
// expiry, matching the write path's last-set-wins overwrite.
func Replay(actions []models.ModerationAction, now time.Time) models.UserModerationState {
	sorted := make([]models.ModerationAction, len(actions))
	copy(sorted, actions)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].IssuedAt.Equal(sorted[j].IssuedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].IssuedAt.Before(sorted[j].IssuedAt)
	})

	st := models.UserModerationState{Warnings: models.WarningList{}}
	for _, act := range sorted {
		st = Apply(st, act, now)
	}
	return st
}
