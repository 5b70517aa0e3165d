// Package storage persists one archive blob per package version on the
// local filesystem.
//
// Layout: <root>/<id>/<id>_<version>.nuget
//
// The store guards concurrent access from in-process requests and from
// other processes sharing the storage directory. An in-process mutex
// serializes the open-existing-versus-create window; once a caller holds
// its own descriptor, a per-file exclusive advisory lock (flock) provides
// the exclusion, including across processes.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/willibrandon/gonuget-server/observability"
)

// Store is a filesystem-backed archive store.
type Store struct {
	mu   sync.Mutex // guards root
	root string

	// openMu serializes the window between probing an existing file and
	// holding a lock on its replacement. Without it two writers could
	// both observe "no file" and race the create.
	openMu sync.Mutex

	logger observability.Logger
}

// New creates a Store rooted at the given directory, creating it if
// needed.
func New(root string, logger observability.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	if logger == nil {
		logger = observability.NewNullLogger()
	}
	return &Store{root: root, logger: logger}, nil
}

// Path returns the derived archive path for a package version.
func (s *Store) Path(id, ver string) string {
	s.mu.Lock()
	root := s.root
	s.mu.Unlock()
	return filepath.Join(root, id, id+"_"+ver+".nuget")
}

// Handle is an open, exclusively locked archive file. Until Close is
// called no other caller, in this process or another, is writing the
// same file.
type Handle struct {
	f    *os.File
	lock *flock.Flock
}

// Read implements io.Reader.
func (h *Handle) Read(p []byte) (int, error) { return h.f.Read(p) }

// Write implements io.Writer.
func (h *Handle) Write(p []byte) (int, error) { return h.f.Write(p) }

// Seek implements io.Seeker.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	return h.f.Seek(offset, whence)
}

// Size returns the current file size.
func (h *Handle) Size() (int64, error) {
	info, err := h.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Sync flushes file contents to stable storage.
func (h *Handle) Sync() error { return h.f.Sync() }

// Close releases the file and its advisory lock.
func (h *Handle) Close() error {
	err := h.f.Close()
	if h.lock != nil {
		if uerr := h.lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}
	return err
}

// Store atomically replaces the archive for (id, ver) with the contents
// of r. If a previous file exists, its lock is drained first so no
// in-flight reader observes the truncation.
func (s *Store) Store(id, ver string, r io.Reader) error {
	path := s.Path(id, ver)

	h, err := s.createLocked(path)
	if err != nil {
		return err
	}

	if _, err := io.Copy(h.f, r); err != nil {
		_ = h.Close()
		return fmt.Errorf("write archive %s: %w", path, err)
	}
	if err := h.Sync(); err != nil {
		_ = h.Close()
		return fmt.Errorf("sync archive %s: %w", path, err)
	}
	return h.Close()
}

// createLocked truncate-creates path and returns a locked handle. Caller
// holds no locks on entry.
func (s *Store) createLocked(path string) (*Handle, error) {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create package directory: %w", err)
	}

	// Drain current holders before truncating. Not racy thanks to openMu:
	// no other in-process caller can open between the drain and the
	// create below.
	if _, err := os.Stat(path); err == nil {
		drain := flock.New(path)
		if err := drain.Lock(); err != nil {
			return nil, fmt.Errorf("drain lock %s: %w", path, err)
		}
		if err := drain.Unlock(); err != nil {
			return nil, fmt.Errorf("release drain lock %s: %w", path, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create archive %s: %w", path, err)
	}

	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lock archive %s: %w", path, err)
	}

	return &Handle{f: f, lock: lock}, nil
}

// Get opens the archive for reading under an exclusive lock. Exclusive
// rather than shared: a reader must never observe a concurrent rewrite
// mid-truncation, and the feed trades read parallelism per file for that
// guarantee.
func (s *Store) Get(id, ver string) (*Handle, error) {
	path := s.Path(id, ver)

	s.openMu.Lock()
	defer s.openMu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lock archive %s: %w", path, err)
	}

	return &Handle{f: f, lock: lock}, nil
}

// Rewrite drops the given handle and returns a fresh writable handle on
// a truncated file at the same path. Used to replace an archive whose
// embedded manifest changed.
func (s *Store) Rewrite(id, ver string, old *Handle) (*Handle, error) {
	path := s.Path(id, ver)

	s.openMu.Lock()
	defer s.openMu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create archive %s: %w", path, err)
	}

	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lock archive %s: %w", path, err)
	}

	return &Handle{f: f, lock: lock}, nil
}

// Delete unlinks the archive. Best effort: existing holders are drained
// first, and failures are logged rather than propagated. The database is
// the source of truth; a leftover file is garbage, not corruption.
func (s *Store) Delete(id, ver string) {
	path := s.Path(id, ver)

	s.openMu.Lock()
	defer s.openMu.Unlock()

	if _, err := os.Stat(path); err != nil {
		s.logger.Debug("Archive to remove does not exist, ignoring: {Path}", path)
		return
	}

	drain := flock.New(path)
	if err := drain.Lock(); err == nil {
		_ = drain.Unlock()
	}

	if err := os.Remove(path); err != nil {
		s.logger.Info("Removing archive failed, ignoring: {Error}", err)
	}
}
