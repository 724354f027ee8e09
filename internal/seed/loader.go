// Package seed loads rule set definitions from YAML files and applies them
// through the registry at startup.
package seed

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/ruleset-engine/internal/models"
)

// Loader reads and keeps rule set definitions
type Loader struct {
	mu   sync.RWMutex
	sets map[string]*models.RuleSet // domain/id -> rule set
}

// NewLoader creates a new seed loader
func NewLoader() *Loader {
	return &Loader{sets: make(map[string]*models.RuleSet)}
}

func setKey(domain models.Domain, id string) string {
	return string(domain) + "/" + id
}

// LoadFromDir loads every YAML file in dir and its direct subdirectories.
// Files that fail to parse are logged and skipped.
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading rule set seeds from directory", "dir", dir)

	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("seed directory: %w", err)
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)

		subMatches, err := filepath.Glob(filepath.Join(dir, "*", pattern))
		if err != nil {
			continue
		}
		files = append(files, subMatches...)
	}
	sort.Strings(files)

	loaded := 0
	for _, file := range files {
		n, err := l.LoadFromFile(file)
		if err != nil {
			slog.Warn("failed to load seed file", "file", file, "error", err)
			continue
		}
		loaded += n
	}

	slog.Info("rule set seeds loaded", "count", loaded, "files", len(files))
	return nil
}

// LoadFromFile loads one file, which may hold several YAML documents.
// It returns the number of rule sets read.
func (l *Loader) LoadFromFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	var parsed []*models.RuleSet
	dec := yaml.NewDecoder(f)
	for {
		var rs models.RuleSet
		if err := dec.Decode(&rs); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, fmt.Errorf("failed to parse YAML: %w", err)
		}
		if strings.TrimSpace(rs.ID) == "" {
			return 0, fmt.Errorf("rule set %q: id is required in seed files", rs.Name)
		}
		if err := rs.Validate(models.ValidateOptions{}); err != nil {
			return 0, fmt.Errorf("rule set %s: %w", rs.ID, err)
		}
		parsed = append(parsed, &rs)
	}

	l.mu.Lock()
	for _, rs := range parsed {
		l.sets[setKey(rs.Domain, rs.ID)] = rs
		slog.Info("rule set seed loaded", "id", rs.ID, "domain", rs.Domain, "active", rs.IsActive)
	}
	l.mu.Unlock()

	return len(parsed), nil
}

// Get returns a loaded rule set
func (l *Loader) Get(domain models.Domain, id string) *models.RuleSet {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sets[setKey(domain, id)].Clone()
}

// List returns all loaded rule sets ordered by domain, then ID
func (l *Loader) List() []*models.RuleSet {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*models.RuleSet, 0, len(l.sets))
	for _, rs := range l.sets {
		out = append(out, rs.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		return out[i].ID < out[j].ID
	})
	return out
}
