package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RotateLimit is the journal size that triggers one-level rotation before the
// next append.
const RotateLimit = 10 << 20

// Record is one journal entry: a timestamp, an event label, and an arbitrary
// payload flattened into the same JSON object.
type Record struct {
	TS      int64          `json:"ts"`
	Event   string         `json:"event"`
	Payload map[string]any `json:"-"`
}

// MarshalJSON flattens the payload next to ts and event.
func (r Record) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Payload)+2)
	for k, v := range r.Payload {
		if k == "ts" || k == "event" {
			continue
		}
		flat[k] = v
	}
	flat["ts"] = r.TS
	flat["event"] = r.Event
	return json.Marshal(flat)
}

// UnmarshalJSON splits ts and event back out of the flat object.
func (r *Record) UnmarshalJSON(data []byte) error {
	flat := map[string]any{}
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if ts, ok := flat["ts"].(float64); ok {
		r.TS = int64(ts)
	}
	if event, ok := flat["event"].(string); ok {
		r.Event = event
	}
	delete(flat, "ts")
	delete(flat, "event")
	r.Payload = flat
	return nil
}

// Log is an append-only JSONL journal with size-based one-level rotation.
// Appends are serialized; each append is atomic at the line level.
type Log struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// New creates a journal writing to path. The parent directory is created on
// the first append.
func New(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// WithClock overrides the timestamp source (tests).
func (l *Log) WithClock(now func() time.Time) *Log {
	if now != nil {
		l.now = now
	}
	return l
}

// Path returns the journal file location.
func (l *Log) Path() string { return l.path }

// Append writes one record. Rotation happens before the write: when the file
// already exceeds RotateLimit it is renamed to <path>.1, replacing any prior
// .1 file.
func (l *Log) Append(event string, payload map[string]any) error {
	if strings.TrimSpace(event) == "" {
		return errors.New("history: event must not be empty")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("history: create directory: %w", err)
	}
	if err := l.rotateLocked(); err != nil {
		return err
	}

	record := Record{TS: l.now().Unix(), Event: event, Payload: payload}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("history: encode record: %w", err)
	}
	line = append(line, '\n')

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("history: open journal: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(line); err != nil {
		return fmt.Errorf("history: append record: %w", err)
	}
	return file.Close()
}

func (l *Log) rotateLocked() error {
	info, err := os.Stat(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("history: stat journal: %w", err)
	}
	if info.Size() <= RotateLimit {
		return nil
	}
	rotated := l.path + ".1"
	if err := os.Remove(rotated); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("history: discard prior rotation: %w", err)
	}
	if err := os.Rename(l.path, rotated); err != nil {
		return fmt.Errorf("history: rotate journal: %w", err)
	}
	return nil
}

// Read returns all records in the journal. Both JSONL and the legacy
// single-JSON-array form (file starting with '[') are accepted.
func Read(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: open journal: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	first, err := peekNonSpace(reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: read journal: %w", err)
	}

	if first == '[' {
		var records []Record
		if err := json.NewDecoder(reader).Decode(&records); err != nil {
			return nil, fmt.Errorf("history: decode legacy journal: %w", err)
		}
		return records, nil
	}

	var records []Record
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			// Torn or foreign lines are skipped, not fatal.
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("history: scan journal: %w", err)
	}
	return records, nil
}

func peekNonSpace(reader *bufio.Reader) (byte, error) {
	for {
		chunk, err := reader.Peek(1)
		if err != nil {
			return 0, err
		}
		switch chunk[0] {
		case ' ', '\t', '\n', '\r':
			if _, err := reader.ReadByte(); err != nil {
				return 0, err
			}
		default:
			return chunk[0], nil
		}
	}
}
