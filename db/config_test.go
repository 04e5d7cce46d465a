package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveSQLiteDSNExplicitWins(t *testing.T) {
	t.Parallel()

	got, err := ResolveSQLiteDSN("  :memory:  ")
	if err != nil {
		t.Fatalf("ResolveSQLiteDSN() error = %v", err)
	}
	if got != ":memory:" {
		t.Fatalf("ResolveSQLiteDSN() = %q, want :memory:", got)
	}
}

func TestResolveSQLiteDSNDefaultsToStateDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ResolveSQLiteDSN("")
	if err != nil {
		t.Fatalf("ResolveSQLiteDSN() error = %v", err)
	}
	want := filepath.Join(home, ".touchline", "touchline.sqlite")
	if got != want {
		t.Fatalf("ResolveSQLiteDSN() = %q, want %q", got, want)
	}
	if _, err := os.Stat(filepath.Dir(got)); err != nil {
		t.Fatalf("state dir not created: %v", err)
	}
}
