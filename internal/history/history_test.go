package history_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sorapipe/internal/history"
)

func TestAppendAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	stamp := time.Unix(1764000000, 0)
	log := history.New(path).WithClock(func() time.Time { return stamp })

	if err := log.Append("blur_finish", map[string]any{"ok": true, "count": 3, "preset": "portrait_9x16"}); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if err := log.Append("merge_finish", map[string]any{"ok": false}); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	records, err := history.Read(path)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Event != "blur_finish" || records[0].TS != stamp.Unix() {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if ok, _ := records[0].Payload["ok"].(bool); !ok {
		t.Fatalf("payload lost: %+v", records[0].Payload)
	}
	if records[1].Event != "merge_finish" {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
}

func TestAppendRejectsEmptyEvent(t *testing.T) {
	log := history.New(filepath.Join(t.TempDir(), "history.jsonl"))
	if err := log.Append("  ", nil); err == nil {
		t.Fatal("expected error for empty event")
	}
}

func TestRotationReplacesPriorArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")

	// Pre-seed an oversized journal and an existing .1 archive.
	big := strings.Repeat(`{"ts":1,"event":"x"}`+"\n", 1)
	padding := make([]byte, history.RotateLimit+1)
	for i := range padding {
		padding[i] = '\n'
	}
	if err := os.WriteFile(path, append([]byte(big), padding...), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path+".1", []byte("old archive"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := history.New(path)
	if err := log.Append("scenario_start", map[string]any{"steps": []string{"blur"}}); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() >= history.RotateLimit {
		t.Fatalf("journal not reset after rotation: %d bytes", info.Size())
	}

	archived, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(archived), `"event":"x"`) {
		t.Fatal("rotated file does not hold prior journal content")
	}

	records, err := history.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Event != "scenario_start" {
		t.Fatalf("unexpected post-rotation records: %+v", records)
	}
}

func TestReadAcceptsLegacyArrayForm(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")
	legacy := `[{"ts": 100, "event": "upload_finish", "ok": true}]`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := history.Read(path)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Event != "upload_finish" || records[0].TS != 100 {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestReadMissingFileYieldsNothing(t *testing.T) {
	records, err := history.Read(filepath.Join(t.TempDir(), "absent.jsonl"))
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if records != nil {
		t.Fatalf("expected nil records, got %v", records)
	}
}

func TestReadSkipsTornLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	content := `{"ts":1,"event":"a"}
{"ts":2,"event":
{"ts":3,"event":"b"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	records, err := history.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0].Event != "a" || records[1].Event != "b" {
		t.Fatalf("unexpected records: %+v", records)
	}
}
