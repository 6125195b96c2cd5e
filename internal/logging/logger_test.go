package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"sorapipe/internal/logging"
)

func TestConsoleHandlerFormatsComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "blur")
	logger.Info("file done", logging.String(logging.FieldFile, "a.mp4"), logging.Int("count", 3))

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, " INFO blur: file done") {
		t.Fatalf("unexpected console line: %q", line)
	}
	if !strings.Contains(line, "file=a.mp4") || !strings.Contains(line, "count=3") {
		t.Fatalf("missing attrs in console line: %q", line)
	}
}

func TestJSONHandlerEmitsLowercaseLevelAndTS(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("slow attempt", logging.String(logging.FieldStage, "merge"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if record["level"] != "warn" {
		t.Fatalf("unexpected level: %v", record["level"])
	}
	if record["msg"] != "slow attempt" {
		t.Fatalf("unexpected msg: %v", record["msg"])
	}
	if _, ok := record["ts"].(string); !ok {
		t.Fatalf("expected ts string, got %v", record["ts"])
	}
	if record["stage"] != "merge" {
		t.Fatalf("unexpected stage attr: %v", record["stage"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	logger.Error("shown", logging.Error(nil))
	if !strings.Contains(buf.String(), "ERROR") {
		t.Fatalf("expected error line, got %q", buf.String())
	}
}

func TestUnsupportedFormatRejected(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
