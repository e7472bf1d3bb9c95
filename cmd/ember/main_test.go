package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunVersionText(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), &out, &out, []string{"version"}); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{"version:", "go_version:", "os:"} {
		if !strings.Contains(got, want) {
			t.Errorf("version output missing %q:\n%s", want, got)
		}
	}
}

func TestRunVersionJSON(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), &out, &out, []string{"-o", "json", "version"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"go_version"`) {
		t.Errorf("json output = %s", out.String())
	}
}

func TestRunNoCommandPrintsUsage(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), &out, &out, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Usage: ember") {
		t.Errorf("usage output = %s", out.String())
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	var out strings.Builder
	err := run(context.Background(), &out, &out, []string{"dance"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("err = %v", err)
	}
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	var out strings.Builder
	err := run(context.Background(), &out, &out, []string{"-frobnicate"})
	if err == nil || !strings.Contains(err.Error(), "unknown flag") {
		t.Errorf("err = %v", err)
	}
}

func TestRunRejectsBadOutputFormat(t *testing.T) {
	var out strings.Builder
	err := run(context.Background(), &out, &out, []string{"-o", "yaml", "version"})
	if err == nil || !strings.Contains(err.Error(), "output format") {
		t.Errorf("err = %v", err)
	}
}

func TestOpenMemoryDegradesToNil(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	store := openMemory(filepath.Join(dir, "memory.db"), logger)
	if store == nil {
		t.Fatal("healthy path should open a store")
	}
	store.Close()

	// A directory where the database file should be makes Open fail;
	// serving continues without persistent memory.
	broken := filepath.Join(dir, "broken.db")
	if err := os.Mkdir(broken, 0o755); err != nil {
		t.Fatal(err)
	}
	if store := openMemory(broken, logger); store != nil {
		t.Error("unusable database path should degrade to a nil store")
	}
}

func TestAskRequiresQuestion(t *testing.T) {
	var out strings.Builder
	err := run(context.Background(), &out, &out, []string{"ask"})
	if err == nil || !strings.Contains(err.Error(), "usage: ember ask") {
		t.Errorf("err = %v", err)
	}
}
