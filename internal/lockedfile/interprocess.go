package lockedfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Defaults for inter-process lock acquisition.
const (
	// DefaultStaleThreshold is how old a lock file may grow before its holder
	// is presumed dead and the lock is reclaimed.
	DefaultStaleThreshold = 10 * time.Second

	// DefaultAcquireTimeout bounds the retry budget for one acquisition.
	DefaultAcquireTimeout = 5 * time.Second

	lockRetryInitialInterval = 25 * time.Millisecond
	lockRetryMaxInterval     = 500 * time.Millisecond
)

// errLockHeld signals a live lock file owned by someone else; the backoff
// loop retries it.
var errLockHeld = errors.New("lock held by another process")

// lockInfo is the payload written into a lock file. The owner token lets
// release detect a lock that was reclaimed out from under us; PID and
// timestamp are for humans inspecting a wedged lock.
type lockInfo struct {
	Owner     string    `json:"owner"`
	PID       int       `json:"pid"`
	CreatedAt time.Time `json:"created_at"`
}

// interProcessLock is an advisory lock shared by cooperating processes via a
// {path}.lock side-file. It does not distinguish readers from writers; the
// in-process layer handles read concurrency within one process.
type interProcessLock struct {
	staleThreshold time.Duration
	acquireTimeout time.Duration
}

// acquire takes the advisory lock for path, retrying with exponential backoff
// until the timeout budget is spent (ErrLockTimeout). It returns a release
// function that must always be called; calling it more than once is safe.
// retries reports how many attempts beyond the first were needed.
func (l *interProcessLock) acquire(path string) (release func() error, retries int, err error) {
	lockPath := path + ".lock"
	owner := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = lockRetryInitialInterval
	b.MaxInterval = lockRetryMaxInterval
	b.MaxElapsedTime = l.acquireTimeout
	b.RandomizationFactor = 0.1

	attempts := 0
	try := func() error {
		attempts++
		return l.tryLock(lockPath, owner)
	}
	if l.acquireTimeout > 0 {
		err = backoff.Retry(try, b)
	} else {
		// A zero MaxElapsedTime tells the backoff policy to retry forever, so
		// a non-positive timeout gets exactly one attempt instead.
		err = try()
	}
	if err != nil {
		if errors.Is(err, errLockHeld) {
			err = fmt.Errorf("%w: %s", ErrLockTimeout, lockPath)
		}
		return nil, attempts - 1, err
	}

	var once sync.Once
	release = func() error {
		var releaseErr error
		once.Do(func() {
			releaseErr = l.unlock(lockPath, owner)
		})
		return releaseErr
	}
	return release, attempts - 1, nil
}

// tryLock attempts a single O_EXCL creation of the lock file. An existing
// lock file older than the stale threshold is assumed abandoned by a crashed
// holder and removed; the next retry then races to claim it.
func (l *interProcessLock) tryLock(lockPath, owner string) error {
	//nolint:gosec // Lock file beside the managed path
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		payload, merr := json.Marshal(lockInfo{
			Owner:     owner,
			PID:       os.Getpid(),
			CreatedAt: time.Now().UTC(),
		})
		if merr == nil {
			_, merr = f.Write(payload)
		}
		if cerr := f.Close(); merr == nil {
			merr = cerr
		}
		if merr != nil {
			os.Remove(lockPath) //nolint:errcheck // Best effort cleanup
			return backoff.Permanent(fmt.Errorf("write lock file: %w", merr))
		}
		return nil
	}
	if !os.IsExist(err) {
		return backoff.Permanent(fmt.Errorf("create lock file: %w", err))
	}

	if info, statErr := os.Stat(lockPath); statErr == nil {
		if time.Since(info.ModTime()) > l.staleThreshold {
			os.Remove(lockPath) //nolint:errcheck // Stale holder presumed dead
		}
	}

	return errLockHeld
}

// unlock releases the lock after verifying we still own it. A missing file or
// a foreign owner token means another process decided our lock was stale and
// reclaimed it; the lock file is left alone and ErrLockCompromised surfaces
// to the caller.
func (l *interProcessLock) unlock(lockPath, owner string) error {
	data, err := os.ReadFile(lockPath) //nolint:gosec // Lock file beside the managed path
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: lock file removed mid-hold: %s", ErrLockCompromised, lockPath)
		}
		return fmt.Errorf("read lock file: %w", err)
	}

	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil || info.Owner != owner {
		return fmt.Errorf("%w: lock stolen mid-hold: %s", ErrLockCompromised, lockPath)
	}

	return os.Remove(lockPath)
}

// sharedIPC shares one inter-process lock hold among all goroutines of this
// process operating on the same path. The first user creates the lock file,
// later concurrent users join the existing hold, and the last reference out
// removes it. Cross-process exclusion comes from the lock file; read/write
// exclusion within the process is the in-process layer's job, so two readers
// in one process never contend on the lock file.
type sharedIPC struct {
	lock *interProcessLock

	mu      sync.Mutex
	handles map[string]*ipcHandle
}

// ipcHandle is the refcounted hold for one path. Entries are created on
// demand and live for the lifetime of the registry, like the in-process lock
// states.
type ipcHandle struct {
	mu      sync.Mutex
	refs    int
	release func() error
}

func newSharedIPC(lock *interProcessLock) *sharedIPC {
	return &sharedIPC{lock: lock, handles: make(map[string]*ipcHandle)}
}

func (s *sharedIPC) handle(path string) *ipcHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[path]
	if !ok {
		h = &ipcHandle{}
		s.handles[path] = h
	}
	return h
}

// acquire joins the process's existing hold on path or, when there is none,
// takes the lock file. The returned release drops this caller's reference;
// the lock file is removed when the last reference goes. Callers joining
// while the first user is still mid-acquisition wait on the handle mutex,
// which resolves as soon as the lock file is held.
func (s *sharedIPC) acquire(path string) (release func() error, retries int, err error) {
	h := s.handle(path)

	h.mu.Lock()
	if h.refs == 0 {
		rel, r, aerr := s.lock.acquire(path)
		if aerr != nil {
			h.mu.Unlock()
			return nil, r, aerr
		}
		h.release = rel
		retries = r
	}
	h.refs++
	h.mu.Unlock()

	var once sync.Once
	release = func() error {
		var relErr error
		once.Do(func() {
			relErr = s.releaseRef(h)
		})
		return relErr
	}
	return release, retries, nil
}

func (s *sharedIPC) releaseRef(h *ipcHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs--
	if h.refs > 0 {
		return nil
	}
	rel := h.release
	h.release = nil
	return rel()
}
