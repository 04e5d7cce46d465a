// Package models holds the gorm schema types. Columns follow gorm's
// default naming (snake_case of the field name).
package models

import "time"

// AccessCode is a bearer credential granting chat access, bounded by time
// and by a redemption cap. Rows are never deleted; exhausted and expired
// codes stay behind as an audit trail with Active=false.
type AccessCode struct {
	ID        uint   `gorm:"primaryKey"`
	Code      string `gorm:"size:16;not null;uniqueIndex"`
	CreatedBy string `gorm:"size:64;index"`
	CreatedAt time.Time
	ExpiresAt time.Time
	MaxUses   int
	UsedCount int
	Active    bool `gorm:"index"`

	Redemptions []AccessCodeRedemption
}

// AccessCodeRedemption records one successful redemption. The composite
// unique index is what makes "a caller redeems a given code at most once"
// hold even if two requests race.
type AccessCodeRedemption struct {
	ID           string `gorm:"primaryKey;size:36"`
	AccessCodeID uint   `gorm:"not null;uniqueIndex:idx_redemption_code_caller"`
	Caller       string `gorm:"size:64;not null;uniqueIndex:idx_redemption_code_caller"`
	CreatedAt    time.Time
}

// User is the caller registry row. Authorized is the persistent
// authorization flag; the gate's cache is only a derived view of it.
type User struct {
	ID           uint   `gorm:"primaryKey"`
	TelegramID   string `gorm:"size:64;not null;uniqueIndex"`
	Username     string `gorm:"size:128"`
	FirstName    string `gorm:"size:128"`
	LastName     string `gorm:"size:128"`
	LanguageCode string `gorm:"size:8"`

	Role       string `gorm:"size:16;default:user"`
	IsActive   bool   `gorm:"default:true"`
	Authorized bool

	CreatedAt  time.Time
	LastActive time.Time

	MessageCount    int
	TotalTokensUsed int
}

// Conversation is one message/reply exchange. Written best-effort after
// the reply has already been delivered.
type Conversation struct {
	ID         uint   `gorm:"primaryKey"`
	TelegramID string `gorm:"size:64;index"`
	Message    string `gorm:"type:text"`
	Reply      string `gorm:"type:text"`

	ResponseTimeMs int64
	TokensUsed     int

	CreatedAt time.Time `gorm:"index"`
}

// UnauthorizedAttempt is append-only; nothing in the bot reads it back.
type UnauthorizedAttempt struct {
	ID          uint   `gorm:"primaryKey"`
	TelegramID  string `gorm:"size:64;index"`
	DisplayName string `gorm:"size:256"`
	Message     string `gorm:"size:512"`
	CreatedAt   time.Time
}
