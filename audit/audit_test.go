package audit

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/touchlinehq/touchline/db"
	"github.com/touchlinehq/touchline/db/models"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
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
	return gdb
}

func TestDBSinkAppendsRow(t *testing.T) {
	t.Parallel()

	gdb := newTestDB(t)
	sink := NewDBSink(gdb)

	err := sink.Record(context.Background(), Attempt{
		Identity:    "42",
		DisplayName: "Mallory",
		Message:     "let me in",
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	var rows []models.UnauthorizedAttempt
	if err := gdb.Find(&rows).Error; err != nil {
		t.Fatalf("read back attempts: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("attempt rows = %d, want 1", len(rows))
	}
	if rows[0].TelegramID != "42" || rows[0].Message != "let me in" {
		t.Fatalf("row = %+v, want identity 42 with message", rows[0])
	}
}

func TestJSONLSinkWritesEvent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "attempts.jsonl")
	sink, err := NewJSONLSink(path, 0)
	if err != nil {
		t.Fatalf("NewJSONLSink() error = %v", err)
	}

	if err := sink.Record(context.Background(), Attempt{Identity: "42", Message: "hi"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open jsonl: %v", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		t.Fatalf("jsonl file empty, want one event")
	}
	if line := sc.Text(); !strings.Contains(line, `"identity":"42"`) {
		t.Fatalf("event line %q missing identity", line)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	t.Parallel()

	gdb := newTestDB(t)
	path := filepath.Join(t.TempDir(), "attempts.jsonl")
	jsink, err := NewJSONLSink(path, 0)
	if err != nil {
		t.Fatalf("NewJSONLSink() error = %v", err)
	}
	sink := MultiSink{NewDBSink(gdb), jsink}

	if err := sink.Record(context.Background(), Attempt{Identity: "7"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var n int64
	if err := gdb.Model(&models.UnauthorizedAttempt{}).Count(&n).Error; err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	if n != 1 {
		t.Fatalf("db rows = %d, want 1", n)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Fatalf("jsonl file missing or empty (err=%v)", err)
	}
}
