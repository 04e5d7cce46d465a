// Package convlog persists message/reply exchanges. Saves happen after
// the reply has already been delivered, so they are best-effort by
// design: a failed save is logged, never surfaced to the caller.
package convlog

import (
	"context"
	"fmt"
	"time"

	"github.com/touchlinehq/touchline/db"
	"github.com/touchlinehq/touchline/db/models"
	"gorm.io/gorm"
)

// Exchange is one message/reply pair, also used as the cached
// recent-context payload for LLM prompts.
type Exchange struct {
	TelegramID     string
	Message        string
	Reply          string
	ResponseTimeMs int64
	TokensUsed     int
	At             time.Time
}

type Store struct {
	gdb *gorm.DB
	now func() time.Time
}

func NewStore(gdb *gorm.DB) *Store {
	return &Store{gdb: gdb, now: time.Now}
}

func (s *Store) Save(ctx context.Context, ex Exchange) error {
	if s == nil || s.gdb == nil {
		return fmt.Errorf("conversation store not configured")
	}
	at := ex.At
	if at.IsZero() {
		at = s.now().UTC()
	}
	row := models.Conversation{
		TelegramID:     ex.TelegramID,
		Message:        ex.Message,
		Reply:          ex.Reply,
		ResponseTimeMs: ex.ResponseTimeMs,
		TokensUsed:     ex.TokensUsed,
		CreatedAt:      at,
	}
	gdb := db.FromContext(ctx, s.gdb)
	if err := gdb.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// Recent returns the caller's last n exchanges, oldest first, for use as
// prompt context.
func (s *Store) Recent(ctx context.Context, telegramID string, n int) ([]Exchange, error) {
	if s == nil || s.gdb == nil {
		return nil, fmt.Errorf("conversation store not configured")
	}
	if n <= 0 {
		return nil, nil
	}
	gdb := db.FromContext(ctx, s.gdb)
	var rows []models.Conversation
	err := gdb.WithContext(ctx).
		Where("telegram_id = ?", telegramID).
		Order("created_at DESC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("recent conversations: %w", err)
	}
	out := make([]Exchange, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		out = append(out, Exchange{
			TelegramID:     r.TelegramID,
			Message:        r.Message,
			Reply:          r.Reply,
			ResponseTimeMs: r.ResponseTimeMs,
			TokensUsed:     r.TokensUsed,
			At:             r.CreatedAt,
		})
	}
	return out, nil
}
