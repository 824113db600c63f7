package rules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned by a Source when no document exists under a name
var ErrNotFound = errors.New("rule document not found")

// Source supplies rule documents by name ("common" or a locale identifier)
type Source interface {
	Load(ctx context.Context, name string) (*Document, error)
}

// DirSource reads <dir>/<name>.yaml (or .yml) files
type DirSource struct {
	dir string
}

// NewDirSource creates a source rooted at dir
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Dir returns the directory the source reads from
func (s *DirSource) Dir() string {
	return s.dir
}

// Load reads and parses the named document
func (s *DirSource) Load(ctx context.Context, name string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validName(name) {
		return nil, fmt.Errorf("invalid document name %q: %w", name, ErrNotFound)
	}

	for _, ext := range []string{".yaml", ".yml"} {
		data, err := os.ReadFile(filepath.Join(s.dir, name+ext))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read rule document %s: %w", name, err)
		}
		return Parse(data)
	}
	return nil, fmt.Errorf("%s in %s: %w", name, s.dir, ErrNotFound)
}

// Names lists the documents available in the directory
func (s *DirSource) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}

// validName rejects names that would escape the rule directory
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// MemorySource serves documents from memory
type MemorySource struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewMemorySource creates a source holding docs
func NewMemorySource(docs map[string]*Document) *MemorySource {
	s := &MemorySource{docs: make(map[string]*Document, len(docs))}
	for name, doc := range docs {
		s.docs[name] = doc
	}
	return s
}

// Load returns a copy of the named document
func (s *MemorySource) Load(ctx context.Context, name string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	doc, ok := s.docs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	out := &Document{}
	out.Merge(doc)
	return out, nil
}

// Put stores or replaces a document
func (s *MemorySource) Put(name string, doc *Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[name] = doc
}
