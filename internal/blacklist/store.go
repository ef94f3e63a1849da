// Package blacklist persists the symbols that must never be fetched again.
package blacklist

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"quotescraper/models"
)

// Store is a persistent, append-only set of blacklisted symbols.
type Store interface {
	// Symbols returns every stored symbol. A store that was never written
	// returns an empty slice and no error.
	Symbols(ctx context.Context) ([]string, error)
	Contains(ctx context.Context, symbol string) (bool, error)
	// Add appends symbol unless it is already present; added reports
	// whether a new entry was written.
	Add(ctx context.Context, symbol string) (added bool, err error)
}

// FileStore keeps one symbol per line. Existing lines are never rewritten.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Symbols(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, order, _, err := s.read()
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *FileStore) Contains(ctx context.Context, symbol string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, _, _, err := s.read()
	if err != nil {
		return false, err
	}
	_, ok := set[models.CanonicalSymbol(symbol)]
	return ok, nil
}

// Add re-reads the file under the lock so entries written by an earlier
// run or another store instance are honored.
func (s *FileStore) Add(ctx context.Context, symbol string) (bool, error) {
	symbol = models.CanonicalSymbol(symbol)
	if symbol == "" {
		return false, fmt.Errorf("empty symbol")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, _, needsNewline, err := s.read()
	if err != nil {
		return false, err
	}
	if _, ok := set[symbol]; ok {
		return false, nil
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, fmt.Errorf("failed to create blacklist directory: %w", err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false, fmt.Errorf("failed to open blacklist: %w", err)
	}
	defer f.Close()

	line := symbol + "\n"
	if needsNewline {
		line = "\n" + line
	}
	if _, err := f.WriteString(line); err != nil {
		return false, fmt.Errorf("failed to append to blacklist: %w", err)
	}
	return true, nil
}

// read parses the file. A missing file is an empty blacklist.
func (s *FileStore) read() (map[string]struct{}, []string, bool, error) {
	set := make(map[string]struct{})
	var order []string

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return set, order, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to open blacklist: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	needsNewline := false
	first := true
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			needsNewline = !strings.HasSuffix(line, "\n")
			// the header, if any, is the first non-blank line
			if symbol := parseLine(line); symbol != "" {
				if !(first && isHeader(symbol)) {
					if _, dup := set[symbol]; !dup {
						set[symbol] = struct{}{}
						order = append(order, symbol)
					}
				}
				first = false
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, false, fmt.Errorf("failed to read blacklist: %w", err)
		}
	}
	return set, order, needsNewline, nil
}

// parseLine takes the first CSV column of a line.
func parseLine(line string) string {
	line = strings.TrimRight(line, "\r\n")
	if i := strings.IndexByte(line, ','); i >= 0 {
		line = line[:i]
	}
	return models.CanonicalSymbol(strings.Trim(line, `"`))
}

func isHeader(field string) bool {
	switch strings.ToLower(field) {
	case "id", "symbol", "ticker":
		return true
	}
	return false
}
