package database

import (
	"time"
)

// SampleRetention is how long raw samples are kept; it covers the longest
// moving-average window.
const SampleRetention = 24 * time.Hour

// PruneSamples deletes raw samples older than the retention window
func (db *DB) PruneSamples(now time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM ping_samples WHERE ts_unix_ms < ?`, now.Add(-SampleRetention).UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()

	// Vacuum to reclaim space (run occasionally)
	if now.Day() == 1 && now.Hour() == 0 {
		if _, err := db.Exec("VACUUM"); err != nil {
			return n, err
		}
	}

	return n, nil
}
