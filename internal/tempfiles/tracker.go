package tempfiles

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Tracker owns every intermediate file created for one job. Each path is
// deleted exactly once: by Release, or by CleanupAll on the way out.
//
// A Tracker is safe for concurrent use by the per-scene workers of its job.
// It is never shared between jobs.
type Tracker struct {
	dir string

	mu     sync.Mutex
	paths  map[string]struct{}
	closed bool
}

// NewTracker creates <baseDir>/<jobID> and returns a tracker rooted there.
func NewTracker(baseDir, jobID string) (*Tracker, error) {
	dir := filepath.Join(baseDir, jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create job temp dir: %w", err)
	}
	return &Tracker{
		dir:   dir,
		paths: make(map[string]struct{}),
	}, nil
}

// Dir returns the job's temp directory.
func (t *Tracker) Dir() string {
	return t.dir
}

// Path returns a fresh path inside the job dir and registers it. The file is
// not created.
func (t *Tracker) Path(prefix, ext string) string {
	p := filepath.Join(t.dir, fmt.Sprintf("%s_%s%s", prefix, uuid.New().String()[:8], ext))
	t.Register(p)
	return p
}

// Register adds an externally created path. Registering after CleanupAll
// has run removes the file immediately, so late results from in-flight work
// never outlive the job.
func (t *Tracker) Register(path string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		log.Printf("[Temp] Tracker closed, discarding late file %s", filepath.Base(path))
		removeQuietly(path)
		return
	}
	t.paths[path] = struct{}{}
	t.mu.Unlock()
}

// Release deletes a path now and forgets it. A file that was never written
// is not an error.
func (t *Tracker) Release(path string) error {
	t.mu.Lock()
	delete(t.paths, path)
	t.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to release %s: %w", path, err)
	}
	return nil
}

// Forget stops tracking a path without deleting it. Used when a file is
// handed off as a deliverable.
func (t *Tracker) Forget(path string) {
	t.mu.Lock()
	delete(t.paths, path)
	t.mu.Unlock()
}

// Owns reports whether the path is currently registered.
func (t *Tracker) Owns(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.paths[path]
	return ok
}

// Len returns the number of registered paths.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.paths)
}

// CleanupAll deletes every registered path and the job dir. Per-file errors
// are logged and skipped. Safe to call more than once.
func (t *Tracker) CleanupAll() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	paths := t.paths
	t.paths = make(map[string]struct{})
	t.mu.Unlock()

	removed := 0
	for p := range paths {
		if err := os.Remove(p); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Printf("[Temp] Failed to remove %s: %v", p, err)
			}
			continue
		}
		removed++
	}

	if err := os.RemoveAll(t.dir); err != nil {
		log.Printf("[Temp] Failed to remove job dir %s: %v", t.dir, err)
	}
	log.Printf("[Temp] Cleaned up %d/%d files in %s", removed, len(paths), t.dir)
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[Temp] Failed to remove %s: %v", path, err)
	}
}
