// Package lockedfile provides safe concurrent access to shared JSON state
// files that are read and mutated by multiple fspec processes and, within
// each process, by multiple concurrent goroutines.
//
// Two lock layers compose into the public ReadJSON/Transaction contract:
// an advisory lock-file per managed path serializes access across processes,
// and a per-path readers-writer lock coordinates goroutines within one
// process. The process shares a single refcounted hold of each lock file, so
// concurrent readers in one process never contend on the inter-process
// layer. Writes go through an atomic write-to-temp-then-rename replace, so
// a reader never observes a partially written file and a failed transaction
// callback leaves the file exactly as it was.
//
// Multi-file consistency is explicitly not provided: a caller updating two
// files performs two sequential Transaction calls. There is no cross-file
// atomicity or two-phase commit; keeping each file independent is a
// simplicity trade-off the rest of the tool is built around.
package lockedfile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Manager coordinates access to JSON state files. One Manager is created by
// the process entry point and passed by reference to collaborators; its lock
// registry is the process-wide coordination point, so two Managers over the
// same paths would only be coordinated by the inter-process layer.
type Manager struct {
	paths   *pathLocks
	ipc     *sharedIPC
	metrics *metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithAcquireTimeout bounds the inter-process lock retry budget. A
// non-positive value means a single acquisition attempt with no retries.
func WithAcquireTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.ipc.lock.acquireTimeout = d
	}
}

// WithStaleThreshold sets the age past which a lock file is presumed
// abandoned and reclaimed.
func WithStaleThreshold(d time.Duration) Option {
	return func(m *Manager) {
		m.ipc.lock.staleThreshold = d
	}
}

// WithMetricsLogger enables lock metrics on the given logger regardless of
// the FSPEC_DEBUG_LOCKS environment variable.
func WithMetricsLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.metrics = newMetrics(logger)
	}
}

// NewManager creates a Manager with an empty lock registry. Metrics logging
// is enabled when FSPEC_DEBUG_LOCKS is truthy unless overridden by an Option.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		paths: newPathLocks(),
		ipc: newSharedIPC(&interProcessLock{
			staleThreshold: DefaultStaleThreshold,
			acquireTimeout: DefaultAcquireTimeout,
		}),
		metrics: newMetricsFromEnv(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ReadJSON returns the decoded contents of path. If the file does not exist
// it is created atomically with def as its initial content and def is
// returned. Content that exists but does not decode into T surfaces as a
// *ParseError; it is never silently replaced by the default.
func ReadJSON[T any](m *Manager, path string, def T) (T, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("resolve path: %w", err)
	}

	v, found, err := readExisting[T](m, abs)
	if err != nil {
		var zero T
		return zero, err
	}
	if found {
		return v, nil
	}

	// The file was absent under the read lock. Escalate to the write path,
	// where existence is re-checked: another caller may have created the file
	// between our release and re-acquisition.
	return createDefault(m, abs, def)
}

// readExisting reads and decodes path under read locks. found is false when
// the file does not exist; that case is expected, not an error.
func readExisting[T any](m *Manager, abs string) (v T, found bool, err error) {
	waitStart := time.Now()
	release, retries, err := m.ipc.acquire(abs)
	if err != nil {
		return v, false, err
	}
	m.paths.acquireRead(abs)
	wait := time.Since(waitStart)
	holdStart := time.Now()

	defer func() {
		m.paths.releaseRead(abs)
		if rerr := release(); rerr != nil && err == nil {
			err = rerr
		}
		m.metrics.record(lockRead, abs, wait, time.Since(holdStart), retries)
	}()

	data, rerr := os.ReadFile(abs) //nolint:gosec // Managed state path
	if rerr != nil {
		if os.IsNotExist(rerr) {
			return v, false, nil
		}
		return v, false, fmt.Errorf("read %s: %w", abs, rerr)
	}
	if uerr := json.Unmarshal(data, &v); uerr != nil {
		return v, false, &ParseError{Path: abs, Err: uerr}
	}
	return v, true, nil
}

// createDefault writes def as the initial content of abs under write locks,
// unless another caller created the file first, in which case that content is
// decoded and returned instead.
func createDefault[T any](m *Manager, abs string, def T) (v T, err error) {
	waitStart := time.Now()
	release, retries, err := m.ipc.acquire(abs)
	if err != nil {
		return v, err
	}
	m.paths.acquireWrite(abs)
	wait := time.Since(waitStart)
	holdStart := time.Now()

	defer func() {
		m.paths.releaseWrite(abs)
		if rerr := release(); rerr != nil && err == nil {
			err = rerr
		}
		m.metrics.record(lockWrite, abs, wait, time.Since(holdStart), retries)
	}()

	data, rerr := os.ReadFile(abs) //nolint:gosec // Managed state path
	if rerr == nil {
		if uerr := json.Unmarshal(data, &v); uerr != nil {
			var zero T
			return zero, &ParseError{Path: abs, Err: uerr}
		}
		return v, nil
	}
	if !os.IsNotExist(rerr) {
		return v, fmt.Errorf("read %s: %w", abs, rerr)
	}

	payload, merr := json.MarshalIndent(def, "", "  ")
	if merr != nil {
		return v, fmt.Errorf("marshal default for %s: %w", abs, merr)
	}
	if werr := WriteAtomic(abs, payload); werr != nil {
		return v, werr
	}
	return def, nil
}

// Transaction runs fn against the decoded contents of path under exclusive
// locks and writes the mutated value back with an atomic replace. A missing
// file decodes as the zero value of T. If fn returns an error no write
// happens, the file is left byte-for-byte as it was, and fn's error is
// returned to the caller unchanged.
//
// Locks are released on every exit path, so an error inside fn can never
// leave the path locked.
func Transaction[T any](m *Manager, path string, fn func(*T) error) (err error) {
	abs, aerr := filepath.Abs(path)
	if aerr != nil {
		return fmt.Errorf("resolve path: %w", aerr)
	}

	waitStart := time.Now()
	release, retries, err := m.ipc.acquire(abs)
	if err != nil {
		return err
	}
	m.paths.acquireWrite(abs)
	wait := time.Since(waitStart)
	holdStart := time.Now()

	defer func() {
		m.paths.releaseWrite(abs)
		if rerr := release(); rerr != nil && err == nil {
			err = rerr
		}
		m.metrics.record(lockWrite, abs, wait, time.Since(holdStart), retries)
	}()

	var v T
	data, rerr := os.ReadFile(abs) //nolint:gosec // Managed state path
	switch {
	case rerr == nil:
		if uerr := json.Unmarshal(data, &v); uerr != nil {
			return &ParseError{Path: abs, Err: uerr}
		}
	case !os.IsNotExist(rerr):
		return fmt.Errorf("read %s: %w", abs, rerr)
	}

	if cerr := fn(&v); cerr != nil {
		// Rollback: no write occurs, fn's error propagates as-is.
		return cerr
	}

	payload, merr := json.MarshalIndent(v, "", "  ")
	if merr != nil {
		return fmt.Errorf("marshal %s: %w", abs, merr)
	}
	return WriteAtomic(abs, payload)
}
