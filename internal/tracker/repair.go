package tracker

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/lakshyads/cv-mailer/internal/domain"
	"github.com/lakshyads/cv-mailer/internal/store"
)

// RepairStats reports what a repair pass scanned and touched.
type RepairStats struct {
	ApplicationsScanned int `json:"applications_scanned"`
	ApplicationsChanged int `json:"applications_changed"`
	RowsUpdated         int `json:"rows_updated"`
}

// RepairFollowUpNumbers rewrites historical wave numbers written under the
// old row-counting scheme into the dense sequence 1..N. For each application
// with sent follow-ups, records are grouped by their current number, groups
// are ordered by earliest send time, and each group gets its chronological
// position as the new number. Applications already dense are left alone.
//
// With dryRun the computed changes are only counted. Otherwise all updates
// across all applications commit in one transaction, so a failed repair
// leaves the data exactly as it was.
func (t *Tracker) RepairFollowUpNumbers(ctx context.Context, dryRun bool) (RepairStats, error) {
	var stats RepairStats

	appIDs, err := t.db.ApplicationIDsWithSentFollowUps(ctx)
	if err != nil {
		return stats, err
	}

	var changes []store.RenumberChange
	for _, appID := range appIDs {
		stats.ApplicationsScanned++

		recs, err := t.db.SentFollowUps(ctx, appID)
		if err != nil {
			return stats, err
		}

		appChanges, rows := planRenumber(recs)
		if len(appChanges) == 0 {
			continue
		}
		stats.ApplicationsChanged++
		stats.RowsUpdated += rows
		changes = append(changes, appChanges...)
	}

	if dryRun {
		log.Printf("level=info msg=\"follow-up repair dry run\" scanned=%d would_change=%d would_update_rows=%d",
			stats.ApplicationsScanned, stats.ApplicationsChanged, stats.RowsUpdated)
		return stats, nil
	}

	if _, err := t.db.ApplyFollowUpRenumber(ctx, changes); err != nil {
		return stats, err
	}
	log.Printf("level=info msg=\"follow-up repair applied\" scanned=%d changed=%d rows_updated=%d",
		stats.ApplicationsScanned, stats.ApplicationsChanged, stats.RowsUpdated)
	return stats, nil
}

type wave struct {
	number   int
	earliest time.Time
	ids      []int64
}

// planRenumber maps one application's sent follow-up records to their dense
// chronological numbering and returns the per-row updates needed (only rows
// whose number actually changes), plus how many rows that is.
func planRenumber(recs []domain.EmailRecord) ([]store.RenumberChange, int) {
	byNumber := make(map[int]*wave)
	for _, r := range recs {
		at := r.CreatedAt
		if r.SentAt != nil {
			at = *r.SentAt
		}
		w, ok := byNumber[r.FollowUpNumber]
		if !ok {
			w = &wave{number: r.FollowUpNumber, earliest: at}
			byNumber[r.FollowUpNumber] = w
		} else if at.Before(w.earliest) {
			w.earliest = at
		}
		w.ids = append(w.ids, r.ID)
	}

	waves := make([]*wave, 0, len(byNumber))
	for _, w := range byNumber {
		waves = append(waves, w)
	}
	sort.Slice(waves, func(i, j int) bool {
		if !waves[i].earliest.Equal(waves[j].earliest) {
			return waves[i].earliest.Before(waves[j].earliest)
		}
		return waves[i].number < waves[j].number
	})

	var (
		changes []store.RenumberChange
		rows    int
	)
	for i, w := range waves {
		newNumber := i + 1
		if w.number == newNumber {
			continue
		}
		changes = append(changes, store.RenumberChange{IDs: w.ids, NewNumber: newNumber})
		rows += len(w.ids)
	}
	return changes, rows
}
