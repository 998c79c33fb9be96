// Package clientctx supplies ClientContext records by identifier.
//
// The core only reads client contexts; where they live is up to the
// deployment. Two providers ship here: a directory of YAML files (one
// file per client, named <id>.yaml) and an in-memory map for tests and
// embedding.
package clientctx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Tegath/kaleads/internal/domain"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned for an unknown client identifier.
var ErrNotFound = errors.New("client context not found")

// Provider looks up client contexts.
type Provider interface {
	GetClientContext(ctx context.Context, clientID string) (*domain.ClientContext, error)
}

// validID keeps identifiers safe to use as file names.
var validID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// --- Directory provider ---

// Dir reads <dir>/<id>.yaml on every lookup, so edits apply to the next run.
type Dir struct {
	path string
}

// NewDir returns a provider rooted at path. The directory must exist.
func NewDir(path string) (*Dir, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("client directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("client directory: %s is not a directory", path)
	}
	return &Dir{path: path}, nil
}

// GetClientContext implements Provider.
func (d *Dir) GetClientContext(ctx context.Context, clientID string) (*domain.ClientContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID.MatchString(clientID) {
		return nil, fmt.Errorf("client %q: %w", clientID, ErrNotFound)
	}

	data, err := os.ReadFile(filepath.Join(d.path, clientID+".yaml"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("client %q: %w", clientID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading client %q: %w", clientID, err)
	}
	return Decode(clientID, data)
}

// List returns the identifiers of every client file, sorted.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Decode parses one client file. A missing id defaults to clientID; a
// different id is an error.
func Decode(clientID string, data []byte) (*domain.ClientContext, error) {
	var c domain.ClientContext
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding client %q: %w", clientID, err)
	}
	if c.ID == "" {
		c.ID = clientID
	}
	if c.ID != clientID {
		return nil, fmt.Errorf("client file %q declares id %q", clientID, c.ID)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// --- In-memory provider ---

// Memory is a Provider backed by a map. Lookups return copies.
type Memory struct {
	mu      sync.RWMutex
	clients map[string]domain.ClientContext
}

// NewMemory returns a provider holding clients.
func NewMemory(clients ...domain.ClientContext) *Memory {
	m := &Memory{clients: make(map[string]domain.ClientContext, len(clients))}
	for _, c := range clients {
		m.clients[c.ID] = c
	}
	return m
}

// Put adds or replaces a client.
func (m *Memory) Put(c domain.ClientContext) error {
	if err := c.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
	return nil
}

// GetClientContext implements Provider.
func (m *Memory) GetClientContext(_ context.Context, clientID string) (*domain.ClientContext, error) {
	m.mu.RLock()
	c, ok := m.clients[clientID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("client %q: %w", clientID, ErrNotFound)
	}
	return clone(c), nil
}

func clone(c domain.ClientContext) *domain.ClientContext {
	c.Competitors = append([]string(nil), c.Competitors...)
	c.ValueProps = append([]string(nil), c.ValueProps...)
	c.CaseStudies = append([]domain.CaseStudy(nil), c.CaseStudies...)
	c.TargetIndustries = append([]string(nil), c.TargetIndustries...)
	c.PainCategories = append([]string(nil), c.PainCategories...)
	return &c
}
