package reportstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	docExt     = ".json"
	tempPrefix = ".tmp-"
)

// LocalFileStore keeps each record as <dir>/<id>.json.
type LocalFileStore struct {
	dir string
}

// NewLocalFileStore opens dir, creating it when needed. An empty dir means
// "reports" in the working directory.
func NewLocalFileStore(dir string) (*LocalFileStore, error) {
	if dir == "" {
		dir = "reports"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("reportstore: create %s: %w", dir, err)
	}
	return &LocalFileStore{dir: dir}, nil
}

func (s *LocalFileStore) file(id string) string {
	return filepath.Join(s.dir, id+docExt)
}

// Put replaces the record atomically: readers see the old or the new
// document, never a torn one.
func (s *LocalFileStore) Put(_ context.Context, id string, data []byte) (err error) {
	if err := validateID(id); err != nil {
		return err
	}

	f, err := os.CreateTemp(s.dir, tempPrefix+id+"-*")
	if err != nil {
		return fmt.Errorf("reportstore: create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	if _, err = f.Write(data); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("reportstore: write %s: %w", id, err)
	}
	if err = os.Rename(f.Name(), s.file(id)); err != nil {
		return fmt.Errorf("reportstore: publish %s: %w", id, err)
	}
	return nil
}

// Get returns ErrNotFound for an unknown id.
func (s *LocalFileStore) Get(_ context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.file(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reportstore: read %s: %w", id, err)
	}
	return data, nil
}

// Delete is idempotent.
func (s *LocalFileStore) Delete(_ context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.Remove(s.file(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reportstore: delete %s: %w", id, err)
	}
	return nil
}

// Prune removes records by modification time. Temp files abandoned by a
// crashed writer are swept too but not counted.
func (s *LocalFileStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("reportstore: list %s: %w", s.dir, err)
	}

	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		name := e.Name()
		isDoc := strings.HasSuffix(name, docExt) && !strings.HasPrefix(name, ".")
		if e.IsDir() || !(isDoc || strings.HasPrefix(name, tempPrefix)) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("reportstore: prune %s: %w", name, err)
		}
		if isDoc {
			removed++
		}
	}
	return removed, nil
}
