package convlog

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/touchlinehq/touchline/db"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(gdb)
}

func TestSaveAndRecentOrdering(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i, msg := range []string{"first", "second", "third", "fourth"} {
		ex := Exchange{
			TelegramID: "42",
			Message:    msg,
			Reply:      "re: " + msg,
			At:         base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Save(ctx, ex); err != nil {
			t.Fatalf("Save(%q) error = %v", msg, err)
		}
	}
	if err := s.Save(ctx, Exchange{TelegramID: "other", Message: "noise", At: base}); err != nil {
		t.Fatalf("Save(noise) error = %v", err)
	}

	got, err := s.Recent(ctx, "42", 3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent() returned %d exchanges, want 3", len(got))
	}
	// Oldest first, and only the newest three.
	want := []string{"second", "third", "fourth"}
	for i, w := range want {
		if got[i].Message != w {
			t.Errorf("Recent()[%d].Message = %q, want %q", i, got[i].Message, w)
		}
	}
}

func TestRecentZeroLimit(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	got, err := s.Recent(context.Background(), "42", 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Recent(n=0) = %v, want nil", got)
	}
}

func TestWriterDrainsOnClose(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	w := NewWriter(s, nil, 16)

	for i := 0; i < 5; i++ {
		w.Enqueue(Exchange{TelegramID: "7", Message: "m", Reply: "r"})
	}
	w.Close()

	got, err := s.Recent(context.Background(), "7", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("writer persisted %d exchanges, want 5", len(got))
	}
}

func TestWriterCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	w := NewWriter(newTestStore(t), nil, 1)
	w.Close()
	w.Close()
}

func TestWriterEnqueueAfterCloseDrops(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	w := NewWriter(s, nil, 16)
	w.Close()

	w.Enqueue(Exchange{TelegramID: "7", Message: "late", Reply: "r"})

	got, err := s.Recent(context.Background(), "7", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("writer persisted %d exchanges after close, want 0", len(got))
	}
}
