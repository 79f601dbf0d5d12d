package workunit

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/fspec-dev/fspec/internal/lockedfile"
	"github.com/fspec-dev/fspec/internal/stringutil"
)

// seedStatuses gives demo data a plausible mix of workflow positions.
var seedStatuses = []Status{StatusBacklog, StatusBacklog, StatusInProgress, StatusDone}

// Seed inserts count generated work units for demos and local experiments,
// then updates the project counters in a second transaction.
func (s *Store) Seed(count int) error {
	gofakeit.Seed(time.Now().UnixNano())

	added, done := 0, 0
	err := lockedfile.Transaction(s.m, s.unitsPath(), func(doc *Document) error {
		ensureVersion(doc)
		now := time.Now().UTC()
		for i := 1; i <= count; i++ {
			id := fmt.Sprintf("WU-%03d", i)
			if slug := stringutil.Slug(gofakeit.Verb() + " " + gofakeit.Noun()); slug != "" {
				id += "-" + slug
			}
			// Re-seeding an already-populated store can collide with an
			// earlier generated ID; a numeric suffix keeps the count exact.
			base := id
			for n := 2; ; n++ {
				if _, exists := doc.Units[id]; !exists {
					break
				}
				id = fmt.Sprintf("%s-%d", base, n)
			}
			status := seedStatuses[i%len(seedStatuses)]
			doc.Units[id] = WorkUnit{
				ID:        id,
				Title:     strings.TrimSuffix(gofakeit.Sentence(6), "."),
				Status:    status,
				Tags:      []string{gofakeit.Noun(), gofakeit.Adjective()},
				Estimate:  gofakeit.Number(1, 8),
				CreatedAt: now,
				UpdatedAt: now,
			}
			added++
			if status == StatusDone {
				done++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return lockedfile.Transaction(s.m, s.projectPath(), func(p *Project) error {
		p.ensure()
		p.UnitsAdded += added
		p.UnitsDone += done
		return nil
	})
}
