// Package patcher rewrites the site settings source text in place when the host
// reports administrative changes. Every edit is confined to the site_settings
// block and is persisted atomically under an exclusive file lock.
package patcher

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/gaborage/go-sitesettings/logger"
)

const (
	lockSuffix       = ".lock"
	defaultFileMode  = fs.FileMode(0o644)
	defaultLockRetry = 50 * time.Millisecond
)

// PatchFunc computes new source text from the current one. Returning ErrNoOp, or
// the input unchanged, leaves the file alone.
type PatchFunc func(src []byte) ([]byte, error)

// Patcher is the single writer of one site settings file.
type Patcher struct {
	path      string
	log       logger.Logger
	fileLock  *flock.Flock
	lockRetry time.Duration
	mu        sync.Mutex
}

// New creates a patcher for the file at path.
func New(path string, log logger.Logger) *Patcher {
	return &Patcher{
		path:      path,
		log:       log,
		fileLock:  flock.New(path + lockSuffix),
		lockRetry: defaultLockRetry,
	}
}

// Path returns the file this patcher writes.
func (p *Patcher) Path() string {
	return p.path
}

// Commit reads the file under an exclusive lock, applies fn and atomically
// replaces the file with the result. Lock, read and write failures are returned
// as *WriteError. ErrNoOp is returned when fn changes nothing.
func (p *Patcher) Commit(ctx context.Context, op string, fn PatchFunc) error {
	patchID := uuid.NewString()
	start := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	locked, err := p.fileLock.TryLockContext(ctx, p.lockRetry)
	if err != nil {
		return &WriteError{Op: "lock", Path: p.fileLock.Path(), Err: err}
	}
	if !locked {
		return &WriteError{Op: "lock", Path: p.fileLock.Path(), Err: context.Cause(ctx)}
	}
	defer func() {
		if err := p.fileLock.Unlock(); err != nil {
			p.log.Warn().Err(err).Str("lock", p.fileLock.Path()).Msg("Failed to release site settings lock")
		}
	}()

	info, err := os.Stat(p.path)
	if err != nil {
		return &WriteError{Op: "stat", Path: p.path, Err: err}
	}
	src, err := os.ReadFile(p.path)
	if err != nil {
		return &WriteError{Op: "read", Path: p.path, Err: err}
	}

	out, err := fn(src)
	if err != nil {
		return err
	}
	if bytes.Equal(out, src) {
		return ErrNoOp
	}

	mode := info.Mode().Perm()
	if mode == 0 {
		mode = defaultFileMode
	}
	if err := renameio.WriteFile(p.path, out, mode); err != nil {
		p.log.Error().Err(err).
			Str("patch_id", patchID).
			Str("op", op).
			Str("path", p.path).
			Msg("Failed to write site settings patch")
		return &WriteError{Op: "write", Path: p.path, Err: err}
	}

	p.log.Info().
		Str("patch_id", patchID).
		Str("op", op).
		Str("path", p.path).
		Int("bytes", len(out)).
		Dur("elapsed", time.Since(start)).
		Msg("Site settings patched")
	return nil
}

// CheckWritable reports why a patch could not be persisted right now, or nil.
// The file must be writable and its directory must accept the temporary file
// and the lock file used during a commit.
func (p *Patcher) CheckWritable() error {
	f, err := os.OpenFile(p.path, os.O_WRONLY, 0)
	if err != nil {
		return &WriteError{Op: "open", Path: p.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &WriteError{Op: "open", Path: p.path, Err: err}
	}

	dir := filepath.Dir(p.path)
	probe, err := os.CreateTemp(dir, "."+filepath.Base(p.path)+"-probe-*")
	if err != nil {
		return &WriteError{Op: "create", Path: dir, Err: err}
	}
	name := probe.Name()
	closeErr := probe.Close()
	removeErr := os.Remove(name)
	if err := errors.Join(closeErr, removeErr); err != nil {
		return &WriteError{Op: "create", Path: dir, Err: err}
	}
	return nil
}

// EnableMultisite commits the multisite flag patch.
func (p *Patcher) EnableMultisite(ctx context.Context) error {
	return p.Commit(ctx, string(EventMultisiteEnabled), EnableMultisite)
}

// AddTenant commits the sites of a newly created tenant, derived relative to the
// server at serverIndex.
func (p *Patcher) AddTenant(ctx context.Context, serverIndex int, ev Event) error {
	return p.Commit(ctx, string(EventTenantCreated), func(src []byte) ([]byte, error) {
		return ApplyNewTenant(src, serverIndex, ev)
	})
}
