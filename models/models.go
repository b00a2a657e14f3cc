package models

import (
	"time"
)

// User is a Telegram user known to the moderation console. The moderation
// state columns (IsBanned, BanExpiresAt, IsTrusted, Warnings) are a
// materialized view over the ModerationAction log, written only by the state
// projector in lock-step with action inserts.
type User struct {
	ID          uint64 `gorm:"primaryKey" json:"id"`
	TelegramID  int64  `gorm:"uniqueIndex" json:"telegramId"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	// system/service accounts are permanently protected from trust removal
	IsSystem bool `json:"isSystem"`

	IsBanned     bool        `json:"isBanned"`
	BanExpiresAt *time.Time  `json:"banExpiresAt,omitempty"`
	IsTrusted    bool        `json:"isTrusted"`
	Warnings     WarningList `gorm:"type:text" json:"warnings"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ModerationState extracts the denormalized state view from the user row.
func (u *User) ModerationState() UserModerationState {
	return UserModerationState{
		IsBanned:     u.IsBanned,
		BanExpiresAt: u.BanExpiresAt,
		IsTrusted:    u.IsTrusted,
		Warnings:     u.Warnings,
	}
}

// Message is the immutable message entity detection events reference. Events
// outlive messages: analytics must tolerate a missing row and treat
// message-dependent fields as absent.
type Message struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	ChatID      int64     `gorm:"index" json:"chatId"`
	UserID      uint64    `gorm:"index" json:"userId"`
	Text        string    `json:"text"`
	PostedAt    time.Time `json:"postedAt"`
	EditVersion int       `json:"editVersion"`
}
