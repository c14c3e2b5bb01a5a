package sync

import "github.com/vac-tools/vacsync/pkg/models"

// Reconcile diffs the remote catalog against the local index and classifies
// every chart. Pure and deterministic: same inputs, same output. Output
// follows catalog order; local entries no longer listed remotely are kept
// (visible and deletable), flagged orphaned, and appended in index order.
func Reconcile(catalog []models.ChartRecord, local []models.LocalEntry) []models.ChartStatus {
	byOACI := make(map[string]models.LocalEntry, len(local))
	for _, e := range local {
		byOACI[e.OACI] = e
	}

	seen := make(map[string]bool, len(catalog))
	statuses := make([]models.ChartStatus, 0, len(catalog))
	for _, rec := range catalog {
		if seen[rec.OACI] {
			continue
		}
		seen[rec.OACI] = true

		st := models.ChartStatus{
			OACI:          rec.OACI,
			City:          rec.City,
			RemoteVersion: rec.RemoteVersion,
			State:         models.StateMissing,
		}
		if entry, ok := byOACI[rec.OACI]; ok {
			st.LocalVersion = entry.LocalVersion
			st.FilePath = entry.FilePath
			if entry.LocalVersion == rec.RemoteVersion {
				st.State = models.StateUpToDate
			} else {
				st.State = models.StateStale
			}
		}
		statuses = append(statuses, st)
	}

	for _, entry := range local {
		if seen[entry.OACI] {
			continue
		}
		seen[entry.OACI] = true
		statuses = append(statuses, models.ChartStatus{
			OACI:         entry.OACI,
			City:         entry.City,
			LocalVersion: entry.LocalVersion,
			FilePath:     entry.FilePath,
			State:        models.StateUpToDate,
			Orphaned:     true,
		})
	}

	return statuses
}
