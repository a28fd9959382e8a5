// Package history remembers recent channel searches across runs.
package history

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/spf13/afero"
)

const DefaultSize = 10

type Options struct {
	Path     string
	Size     int
	Autosave bool
	Fs       afero.Fs
}

// Store keeps the most recent distinct queries, newest first, and persists
// them one per line.
type Store struct {
	path     string
	size     int
	autosave bool
	fs       afero.Afero

	mu      sync.Mutex
	entries []string
}

func New(opts Options) *Store {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	return &Store{
		path:     opts.Path,
		size:     opts.Size,
		autosave: opts.Autosave,
		fs:       afero.Afero{Fs: opts.Fs},
	}
}

// Load replaces the in-memory entries with the file contents. A missing file
// leaves the history empty.
func (s *Store) Load() error {
	data, err := s.fs.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read history %s: %w", s.path, err)
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() && len(lines) < s.size {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read history %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.entries = lo.Uniq(lines)
	s.mu.Unlock()
	return nil
}

// Add moves query to the front, dropping its older occurrence and anything
// beyond the size limit. Blank queries are ignored.
func (s *Store) Add(query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	s.mu.Lock()
	rest := lo.Without(s.entries, query)
	s.entries = append([]string{query}, rest...)
	if len(s.entries) > s.size {
		s.entries = s.entries[:s.size]
	}
	s.mu.Unlock()

	if s.autosave {
		return s.Save()
	}
	return nil
}

func (s *Store) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.entries...)
}

func (s *Store) Save() error {
	entries := s.Entries()

	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(e)
		buf.WriteByte('\n')
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
	}
	if err := s.fs.WriteFile(s.path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write history %s: %w", s.path, err)
	}
	return nil
}
