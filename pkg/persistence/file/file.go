// Package file provides file-based persistence for development and tests.
// Each record is one JSON document under the root directory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const dirPermissions = 0o755

// Persistence implements the persistence.Persistence interface on the file
// system. A single mutex serializes writes; this store targets development
// workloads, not production concurrency.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

// NewPersistence creates a file persistence rooted at the given directory.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{"flows", "rules", "triggers", "execlog"} {
		err := os.MkdirAll(filepath.Join(cleanRoot, dir), dirPermissions)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &Persistence{root: cleanRoot}, nil
}

// Close performs any necessary cleanup. Nothing to clean up for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) path(kind, id string) string {
	return filepath.Join(p.root, kind, id+".json")
}

func (p *Persistence) write(kind, id string, record any) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", kind, id, err)
	}

	err = os.WriteFile(p.path(kind, id), data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	return nil
}

func (p *Persistence) read(kind, id string, target any) error {
	data, err := os.ReadFile(p.path(kind, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return os.ErrNotExist
		}

		return fmt.Errorf("failed to read %s %s: %w", kind, id, err)
	}

	err = json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", kind, id, err)
	}

	return nil
}

// readEach decodes every record of a kind and hands it to collect.
func (p *Persistence) readEach(kind string, collect func(data []byte) error) error {
	entries, err := os.ReadDir(filepath.Join(p.root, kind))
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", kind, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(p.root, kind, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read %s %s: %w", kind, entry.Name(), err)
		}

		err = collect(data)
		if err != nil {
			return err
		}
	}

	return nil
}
