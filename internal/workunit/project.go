package workunit

import (
	"time"

	"github.com/fspec-dev/fspec/internal/lockedfile"
)

// Project is the project.json structure: metadata and counters for the spec
// directory as a whole. It lives in its own file; work-unit updates that also
// touch these counters do so in a separate transaction.
type Project struct {
	Version    string    `json:"version"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	UnitsAdded int       `json:"units_added"`
	UnitsDone  int       `json:"units_done"`
}

// ensure backfills the schema version for documents decoded from an absent
// file.
func (p *Project) ensure() {
	if p.Version == "" {
		p.Version = SchemaVersion
	}
}

// Init creates the project and work-unit documents if they do not exist.
// Two files, two sequential operations; a crash between them leaves one file
// initialized and the other created on next use.
func (s *Store) Init(name string) error {
	_, err := lockedfile.ReadJSON(s.m, s.projectPath(), Project{
		Version:   SchemaVersion,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	_, err = lockedfile.ReadJSON(s.m, s.unitsPath(), NewDocument())
	return err
}

// Project returns the project metadata, initializing it if absent.
func (s *Store) Project() (Project, error) {
	return lockedfile.ReadJSON(s.m, s.projectPath(), Project{
		Version:   SchemaVersion,
		CreatedAt: time.Now().UTC(),
	})
}
