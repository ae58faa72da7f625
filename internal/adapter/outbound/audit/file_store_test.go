package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tokenwarden/tokenwarden/internal/domain/audit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(requestID, outcome string, ts time.Time) audit.Record {
	return audit.Record{
		Timestamp:   ts,
		RequestID:   requestID,
		Outcome:     outcome,
		PolicyIndex: 0,
		DurationMs:  1,
	}
}

func TestFileStoreAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(FileConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	now := time.Now().UTC()
	ctx := context.Background()
	if err := store.Append(ctx, record("r1", audit.OutcomeAllowed, now), record("r2", audit.OutcomeDenyMatched, now)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	path := filepath.Join(dir, "decisions-"+now.Format("2006-01-02")+".log")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer func() { _ = f.Close() }()

	var got []audit.Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec audit.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		got = append(got, rec)
	}
	if len(got) != 2 {
		t.Fatalf("log has %d records, want 2", len(got))
	}
	if got[0].RequestID != "r1" || got[1].Outcome != audit.OutcomeDenyMatched {
		t.Errorf("unexpected records: %+v", got)
	}
}

func TestFileStoreSizeRotation(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(FileConfig{Dir: dir, MaxFileSizeMB: 1}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	// Force the cap low enough to trip rotation without megabytes of IO.
	store.maxFileSize = 256

	now := time.Now().UTC()
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := store.Append(ctx, record("req", audit.OutcomeAllowed, now)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	files := store.listLogFiles()
	if len(files) < 2 {
		t.Fatalf("got %d log files, want rotation to produce at least 2", len(files))
	}
}

func TestFileStoreCloseIsIdempotent(t *testing.T) {
	store, err := NewFileStore(FileConfig{Dir: t.TempDir()}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
