package lockedfile

import "sync"

// lockState tracks readers-writer state for a single path.
//
// Invariants: writer implies readers == 0, readers > 0 implies !writer, and
// at most one writer holds the lock at a time.
type lockState struct {
	readers int
	writer  bool

	// Wait queues of wake channels, FIFO. Readers park here only while a
	// writer holds the lock; writers park while anyone holds it.
	waitingReaders []chan struct{}
	waitingWriters []chan struct{}
}

// pathLocks coordinates concurrent goroutines within one process: one
// readers-writer lock per absolute path. Entries are created on demand and
// live for the lifetime of the registry; tests isolate themselves by using a
// fresh Manager (and therefore a fresh registry).
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*lockState
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*lockState)}
}

// state returns the lock state for path, creating it on first access.
// Caller must hold p.mu.
func (p *pathLocks) state(path string) *lockState {
	st, ok := p.locks[path]
	if !ok {
		st = &lockState{}
		p.locks[path] = st
	}
	return st
}

// acquireRead takes the shared lock for path. Readers never block each other:
// when no writer holds the lock the reader count is bumped immediately, even
// if writers are queued. A reader only waits while a writer holds the lock.
func (p *pathLocks) acquireRead(path string) {
	p.mu.Lock()
	st := p.state(path)
	if !st.writer {
		st.readers++
		p.mu.Unlock()
		return
	}

	ch := make(chan struct{})
	st.waitingReaders = append(st.waitingReaders, ch)
	p.mu.Unlock()

	// releaseWrite transfers ownership (bumps readers) before the wake, so
	// there is nothing to re-check here.
	<-ch
}

// releaseRead drops the shared lock. The last reader out hands the lock to
// the next queued writer, if any.
func (p *pathLocks) releaseRead(path string) {
	p.mu.Lock()
	st := p.state(path)
	st.readers--
	if st.readers == 0 && len(st.waitingWriters) > 0 {
		ch := st.waitingWriters[0]
		st.waitingWriters = st.waitingWriters[1:]
		close(ch)
	}
	p.mu.Unlock()
}

// acquireWrite takes the exclusive lock for path, waiting until no reader or
// writer holds it. A wake is a hint, not a grant: a new reader may slip in
// between the wake and this goroutine resuming, so the condition is re-checked
// in a loop and the writer re-queues if it lost the race.
func (p *pathLocks) acquireWrite(path string) {
	p.mu.Lock()
	st := p.state(path)
	for st.writer || st.readers > 0 {
		ch := make(chan struct{})
		st.waitingWriters = append(st.waitingWriters, ch)
		p.mu.Unlock()
		<-ch
		p.mu.Lock()
	}
	st.writer = true
	p.mu.Unlock()
}

// releaseWrite drops the exclusive lock. All waiting readers are woken
// together (ownership transferred before the wake, so they resume as a
// concurrent batch); only when no readers are queued is the lock handed to
// the next writer. Readers are preferred over queued writers, so under
// sustained read pressure a writer can wait indefinitely.
func (p *pathLocks) releaseWrite(path string) {
	p.mu.Lock()
	st := p.state(path)
	st.writer = false

	if n := len(st.waitingReaders); n > 0 {
		st.readers += n
		for _, ch := range st.waitingReaders {
			close(ch)
		}
		st.waitingReaders = nil
		p.mu.Unlock()
		return
	}

	if len(st.waitingWriters) > 0 {
		ch := st.waitingWriters[0]
		st.waitingWriters = st.waitingWriters[1:]
		close(ch)
	}
	p.mu.Unlock()
}
