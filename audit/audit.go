// Package audit records unauthorized access attempts. The log is
// append-only from the bot's perspective: nothing here reads it back,
// reporting happens out of band.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/touchlinehq/touchline/db"
	"github.com/touchlinehq/touchline/db/models"
	"github.com/touchlinehq/touchline/internal/jsonlog"
	"gorm.io/gorm"
)

// Attempt describes one rejected request. Message is expected to be
// truncated by the gate before it gets here.
type Attempt struct {
	Identity    string
	DisplayName string
	Message     string
	At          time.Time
}

type Sink interface {
	Record(ctx context.Context, a Attempt) error
	Close() error
}

// DBSink appends attempts to the unauthorized_attempts table.
type DBSink struct {
	gdb *gorm.DB
}

func NewDBSink(gdb *gorm.DB) *DBSink {
	return &DBSink{gdb: gdb}
}

func (s *DBSink) Record(ctx context.Context, a Attempt) error {
	if s == nil || s.gdb == nil {
		return fmt.Errorf("audit db sink not configured")
	}
	at := a.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	row := models.UnauthorizedAttempt{
		TelegramID:  a.Identity,
		DisplayName: a.DisplayName,
		Message:     a.Message,
		CreatedAt:   at,
	}
	gdb := db.FromContext(ctx, s.gdb)
	if err := gdb.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record unauthorized attempt: %w", err)
	}
	return nil
}

func (s *DBSink) Close() error { return nil }

type jsonlEvent struct {
	EventID     string    `json:"event_id"`
	Identity    string    `json:"identity"`
	DisplayName string    `json:"display_name,omitempty"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// JSONLSink mirrors attempts into a line-delimited JSON file, for
// operators who ship logs somewhere the database is not.
type JSONLSink struct {
	writer *jsonlog.Writer
}

func NewJSONLSink(path string, rotateMaxBytes int64) (*JSONLSink, error) {
	w, err := jsonlog.NewWriter(path, rotateMaxBytes)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{writer: w}, nil
}

func (s *JSONLSink) Record(_ context.Context, a Attempt) error {
	if s == nil || s.writer == nil {
		return nil
	}
	at := a.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return s.writer.Append(jsonlEvent{
		EventID:     uuid.NewString(),
		Identity:    a.Identity,
		DisplayName: a.DisplayName,
		Message:     a.Message,
		Timestamp:   at.UTC(),
	})
}

func (s *JSONLSink) Close() error {
	if s == nil {
		return nil
	}
	return s.writer.Close()
}

// MultiSink fans one attempt out to several sinks, keeping the first
// error but still offering the attempt to every sink.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, a Attempt) error {
	var first error
	for _, s := range m {
		if err := s.Record(ctx, a); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
