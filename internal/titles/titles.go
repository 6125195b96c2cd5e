// Package titles manages the shared title list consumed by the download
// worker. Progress through the list is tracked in a sibling cursor file so
// repeated runs hand out fresh titles.
package titles

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"sorapipe/internal/fileutil"
)

// Store reads titles sequentially and persists the consumption cursor.
type Store struct {
	path       string
	cursorPath string
}

// NewStore creates a store over the titles file and its cursor sibling.
func NewStore(path, cursorPath string) *Store {
	return &Store{path: path, cursorPath: cursorPath}
}

// Remaining reports how many unconsumed titles are left.
func (s *Store) Remaining() (int, error) {
	all, err := s.load()
	if err != nil {
		return 0, err
	}
	cursor := s.cursor(len(all))
	return len(all) - cursor, nil
}

// Peek returns up to n upcoming titles without advancing the cursor. A
// non-positive n returns every remaining title.
func (s *Store) Peek(n int) ([]string, error) {
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	cursor := s.cursor(len(all))
	end := cursor + n
	if n <= 0 || end > len(all) {
		end = len(all)
	}
	return all[cursor:end], nil
}

// Take returns up to n titles and advances the cursor past them. A
// non-positive n drains every remaining title.
func (s *Store) Take(n int) ([]string, error) {
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	cursor := s.cursor(len(all))
	end := cursor + n
	if n <= 0 || end > len(all) {
		end = len(all)
	}
	taken := all[cursor:end]
	if err := s.writeCursor(end); err != nil {
		return nil, err
	}
	return taken, nil
}

// Reset rewinds the cursor to the start of the list.
func (s *Store) Reset() error {
	return s.writeCursor(0)
}

// load returns the non-blank, non-comment lines of the titles file. A missing
// file is an empty list.
func (s *Store) load() ([]string, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("titles: open list: %w", err)
	}
	defer file.Close()

	var titles []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		titles = append(titles, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("titles: read list: %w", err)
	}
	return titles, nil
}

// cursor reads the persisted position, clamped to the list length. A missing
// or malformed cursor file means the start.
func (s *Store) cursor(total int) int {
	data, err := os.ReadFile(s.cursorPath)
	if err != nil {
		return 0
	}
	value, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || value < 0 {
		return 0
	}
	if value > total {
		return total
	}
	return value
}

func (s *Store) writeCursor(value int) error {
	content := []byte(strconv.Itoa(value) + "\n")
	if err := fileutil.AtomicWriteFile(s.cursorPath, content, 0o644); err != nil {
		return fmt.Errorf("titles: write cursor: %w", err)
	}
	return nil
}
