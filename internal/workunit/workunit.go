// Package workunit manages the shared work-unit state document. All reads and
// mutations go through the lockedfile manager's public contract, so multiple
// fspec processes and concurrent goroutines can share the same spec directory.
package workunit

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fspec-dev/fspec/internal/lockedfile"
)

// File names inside the spec directory.
const (
	UnitsFile   = "work-units.json"
	ProjectFile = "project.json"
)

// SchemaVersion is the current state document schema version.
const SchemaVersion = "1"

// idRegex matches work unit IDs: WU-[a-z0-9-]{1,64}.
var idRegex = regexp.MustCompile(`^WU-[a-z0-9-]{1,64}$`)

// Errors.
var (
	ErrInvalidID     = errors.New("invalid work unit ID format")
	ErrIDExists      = errors.New("work unit ID already exists")
	ErrNotFound      = errors.New("work unit not found")
	ErrBadTransition = errors.New("invalid status transition")
)

// Status is a work unit's position in the workflow.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusInProgress Status = "in-progress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
)

// transitions maps each status to the statuses it may move to.
var transitions = map[Status][]Status{
	StatusBacklog:    {StatusInProgress},
	StatusInProgress: {StatusBlocked, StatusDone, StatusBacklog},
	StatusBlocked:    {StatusInProgress, StatusBacklog},
	StatusDone:       {},
}

// WorkUnit is a single tracked unit of spec work.
type WorkUnit struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    Status    `json:"status"`
	Tags      []string  `json:"tags,omitempty"`
	Estimate  int       `json:"estimate,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document is the work-units.json structure.
type Document struct {
	Version string              `json:"version"`
	Units   map[string]WorkUnit `json:"units"`
}

// NewDocument creates an empty document with the current schema version.
func NewDocument() Document {
	return Document{
		Version: SchemaVersion,
		Units:   make(map[string]WorkUnit),
	}
}

// ValidateID checks if an ID matches the work unit ID format.
// Format: WU-[a-z0-9-]{1,64} with no leading/trailing hyphens in the suffix.
func ValidateID(id string) error {
	if !idRegex.MatchString(id) {
		return fmt.Errorf("%w: must match WU-[a-z0-9-]{1,64}", ErrInvalidID)
	}

	suffix := strings.TrimPrefix(id, "WU-")
	if strings.HasPrefix(suffix, "-") || strings.HasSuffix(suffix, "-") {
		return fmt.Errorf("%w: suffix cannot have leading or trailing hyphens", ErrInvalidID)
	}

	return nil
}

// ValidStatus reports whether s is a known status value.
func ValidStatus(s Status) bool {
	switch s {
	case StatusBacklog, StatusInProgress, StatusBlocked, StatusDone:
		return true
	}
	return false
}

// CanTransition reports whether a unit may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Store provides work-unit operations over a spec directory. Each operation
// is a single ReadJSON or Transaction call on one file; updating both the
// units file and the project file is two sequential transactions, never one
// atomic step.
type Store struct {
	m   *lockedfile.Manager
	dir string
}

// NewStore creates a Store over the given spec directory.
func NewStore(m *lockedfile.Manager, dir string) *Store {
	return &Store{m: m, dir: dir}
}

// Dir returns the spec directory path.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) unitsPath() string {
	return filepath.Join(s.dir, UnitsFile)
}

func (s *Store) projectPath() string {
	return filepath.Join(s.dir, ProjectFile)
}

// ensureVersion backfills structure for documents decoded from an absent or
// hand-edited file.
func ensureVersion(doc *Document) {
	if doc.Version == "" {
		doc.Version = SchemaVersion
	}
	if doc.Units == nil {
		doc.Units = make(map[string]WorkUnit)
	}
}

// Add inserts a new work unit in backlog status and bumps the project's
// added counter in a second, sequential transaction.
func (s *Store) Add(id, title string, tags []string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	err := lockedfile.Transaction(s.m, s.unitsPath(), func(doc *Document) error {
		ensureVersion(doc)
		if _, exists := doc.Units[id]; exists {
			return fmt.Errorf("%w: %s", ErrIDExists, id)
		}
		now := time.Now().UTC()
		doc.Units[id] = WorkUnit{
			ID:        id,
			Title:     title,
			Status:    StatusBacklog,
			Tags:      tags,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return err
	}

	return lockedfile.Transaction(s.m, s.projectPath(), func(p *Project) error {
		p.ensure()
		p.UnitsAdded++
		return nil
	})
}

// Get retrieves a work unit by ID.
func (s *Store) Get(id string) (WorkUnit, error) {
	doc, err := lockedfile.ReadJSON(s.m, s.unitsPath(), NewDocument())
	if err != nil {
		return WorkUnit{}, err
	}
	u, ok := doc.Units[id]
	if !ok {
		return WorkUnit{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return u, nil
}

// List returns work units sorted by ID, optionally filtered by status.
// An empty status returns everything.
func (s *Store) List(status Status) ([]WorkUnit, error) {
	doc, err := lockedfile.ReadJSON(s.m, s.unitsPath(), NewDocument())
	if err != nil {
		return nil, err
	}

	out := make([]WorkUnit, 0, len(doc.Units))
	for _, u := range doc.Units {
		if status == "" || u.Status == status {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Move transitions a work unit to a new status. Moving to done also bumps the
// project's done counter in a second, sequential transaction.
func (s *Store) Move(id string, to Status) error {
	if !ValidStatus(to) {
		return fmt.Errorf("%w: unknown status %q", ErrBadTransition, to)
	}

	err := lockedfile.Transaction(s.m, s.unitsPath(), func(doc *Document) error {
		ensureVersion(doc)
		u, ok := doc.Units[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if !CanTransition(u.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrBadTransition, u.Status, to)
		}
		u.Status = to
		u.UpdatedAt = time.Now().UTC()
		doc.Units[id] = u
		return nil
	})
	if err != nil {
		return err
	}

	if to != StatusDone {
		return nil
	}
	return lockedfile.Transaction(s.m, s.projectPath(), func(p *Project) error {
		p.ensure()
		p.UnitsDone++
		return nil
	})
}

// SetEstimate records an effort estimate on a work unit.
func (s *Store) SetEstimate(id string, estimate int) error {
	if estimate < 0 {
		return fmt.Errorf("estimate must be non-negative, got %d", estimate)
	}
	return lockedfile.Transaction(s.m, s.unitsPath(), func(doc *Document) error {
		ensureVersion(doc)
		u, ok := doc.Units[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		u.Estimate = estimate
		u.UpdatedAt = time.Now().UTC()
		doc.Units[id] = u
		return nil
	})
}
