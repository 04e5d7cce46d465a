// Package users is the caller registry: one row per Telegram identity
// carrying the persistent authorization flag, profile fields, and
// activity counters. The gate's cache is derived from this store and is
// never the system of record.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/touchlinehq/touchline/db"
	"github.com/touchlinehq/touchline/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	RoleUser    = "user"
	RolePremium = "premium"
	RoleAdmin   = "admin"
)

// Profile is the subset of Telegram user fields the registry keeps.
type Profile struct {
	TelegramID   string
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
}

type Store struct {
	gdb *gorm.DB
	now func() time.Time
}

func NewStore(gdb *gorm.DB) *Store {
	return &Store{gdb: gdb, now: time.Now}
}

// Ensure upserts the registry row for p, refreshing profile fields on
// conflict so renames propagate. Called on every inbound message.
func (s *Store) Ensure(ctx context.Context, p Profile) error {
	if s == nil || s.gdb == nil {
		return fmt.Errorf("user store not configured")
	}
	id := strings.TrimSpace(p.TelegramID)
	if id == "" {
		return fmt.Errorf("missing telegram id")
	}
	now := s.now().UTC()
	row := models.User{
		TelegramID:   id,
		Username:     strings.TrimSpace(p.Username),
		FirstName:    strings.TrimSpace(p.FirstName),
		LastName:     strings.TrimSpace(p.LastName),
		LanguageCode: strings.TrimSpace(p.LanguageCode),
		Role:         RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		LastActive:   now,
	}
	gdb := db.FromContext(ctx, s.gdb)
	err := gdb.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "first_name", "last_name", "language_code",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// IsAuthorized reports the persistent authorization flag. Unknown callers
// are unauthorized, not an error.
func (s *Store) IsAuthorized(ctx context.Context, telegramID string) (bool, error) {
	if s == nil || s.gdb == nil {
		return false, fmt.Errorf("user store not configured")
	}
	gdb := db.FromContext(ctx, s.gdb)
	var row models.User
	err := gdb.WithContext(ctx).
		Select("authorized", "is_active").
		Where("telegram_id = ?", strings.TrimSpace(telegramID)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetch user: %w", err)
	}
	return row.Authorized && row.IsActive, nil
}

// SetAuthorized flips the persistent flag. Run inside the redemption
// transaction via db.WithTx so the code use and the grant commit together.
func (s *Store) SetAuthorized(ctx context.Context, telegramID string, authorized bool) error {
	if s == nil || s.gdb == nil {
		return fmt.Errorf("user store not configured")
	}
	gdb := db.FromContext(ctx, s.gdb)
	err := gdb.WithContext(ctx).Model(&models.User{}).
		Where("telegram_id = ?", strings.TrimSpace(telegramID)).
		Update("authorized", authorized).Error
	if err != nil {
		return fmt.Errorf("set authorized: %w", err)
	}
	return nil
}

// Touch bumps the activity counters after a processed message.
func (s *Store) Touch(ctx context.Context, telegramID string, tokensUsed int) error {
	if s == nil || s.gdb == nil {
		return fmt.Errorf("user store not configured")
	}
	gdb := db.FromContext(ctx, s.gdb)
	err := gdb.WithContext(ctx).Model(&models.User{}).
		Where("telegram_id = ?", strings.TrimSpace(telegramID)).
		Updates(map[string]any{
			"last_active":       s.now().UTC(),
			"message_count":     gorm.Expr("message_count + 1"),
			"total_tokens_used": gorm.Expr("total_tokens_used + ?", tokensUsed),
		}).Error
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	return nil
}

// DailyStats is the /stats summary for administrators.
type DailyStats struct {
	ActiveToday   int64
	TotalUsers    int64
	MessagesToday int64
	NewToday      int64
}

// Stats counts activity since local midnight UTC.
func (s *Store) Stats(ctx context.Context) (DailyStats, error) {
	if s == nil || s.gdb == nil {
		return DailyStats{}, fmt.Errorf("user store not configured")
	}
	gdb := db.FromContext(ctx, s.gdb)
	now := s.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var out DailyStats
	counts := []struct {
		query *gorm.DB
		dst   *int64
	}{
		{gdb.WithContext(ctx).Model(&models.User{}).Where("last_active >= ?", midnight), &out.ActiveToday},
		{gdb.WithContext(ctx).Model(&models.User{}), &out.TotalUsers},
		{gdb.WithContext(ctx).Model(&models.Conversation{}).Where("created_at >= ?", midnight), &out.MessagesToday},
		{gdb.WithContext(ctx).Model(&models.User{}).Where("created_at >= ?", midnight), &out.NewToday},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return DailyStats{}, fmt.Errorf("daily stats: %w", err)
		}
	}
	return out, nil
}
