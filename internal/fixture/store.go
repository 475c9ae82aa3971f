package fixture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"replay-proxy/internal/config"
)

// Store reads fixtures from a flat directory. It keeps no state between
// calls: every List reads the directory again, so fixtures added, edited
// or removed on disk take effect on the next request.
type Store struct {
	dir     string
	pattern string
}

// NewStore creates a Store for the configured fixtures directory.
func NewStore(cfg *config.Config) *Store {
	return &Store{dir: cfg.Fixtures.Dir, pattern: cfg.Fixtures.Pattern}
}

// Dir returns the fixtures directory.
func (s *Store) Dir() string {
	return s.dir
}

// List returns the names of the fixture files in lexicographic order.
// A missing directory holds no fixtures.
func (s *Store) List() ([]string, error) {
	if _, err := os.Stat(s.dir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("fixtures dir %s: %w", s.dir, err)
	}

	var names []string
	err := doublestar.GlobWalk(os.DirFS(s.dir), s.pattern, func(path string, d fs.DirEntry) error {
		if !d.IsDir() {
			names = append(names, path)
		}
		return nil
	}, doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, fmt.Errorf("list fixtures in %s: %w", s.dir, err)
	}

	slices.Sort(names)
	return names, nil
}

// Load reads and parses one fixture file. YAML files (.yaml, .yml) are
// accepted for hand-written fixtures; everything else is parsed as JSON.
func (s *Store) Load(name string) (Fixture, error) {
	t, err := s.LoadTemplate(name)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// LoadTemplate is Load returning the concrete template.
func (s *Store) LoadTemplate(name string) (*Template, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return decodeYAML(name, data)
	default:
		return decodeJSON(name, data)
	}
}
