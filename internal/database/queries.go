package database

import (
	"database/sql"
	"fmt"
	"time"

	"meshping/internal/models"
)

// StatsRow is the persisted counter state of one address
type StatsRow struct {
	Sent uint64
	Recv uint64
	Lost uint64
	Sum  float64
	Max  float64
	Min  float64
}

// SaveTarget registers a target; saving an existing target is a no-op
func (db *DB) SaveTarget(t models.Target) error {
	_, err := db.Exec(`INSERT OR IGNORE INTO targets (name, addr) VALUES (?, ?)`, t.Name, t.Addr)
	return err
}

// DeleteTarget removes a target registration
func (db *DB) DeleteTarget(t models.Target) error {
	_, err := db.Exec(`DELETE FROM targets WHERE name = ? AND addr = ?`, t.Name, t.Addr)
	return err
}

// LoadTargets returns all registered targets in registration order
func (db *DB) LoadTargets() ([]models.Target, error) {
	rows, err := db.Query(`SELECT name, addr FROM targets ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []models.Target
	for rows.Next() {
		var t models.Target
		if err := rows.Scan(&t.Name, &t.Addr); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// RecordSample stores one ping result along with the updated counters of
// its address and, for a reply, the bucket it fell into.
func (db *DB) RecordSample(result models.PingResult, stats StatsRow, bucket int) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var rtt sql.NullFloat64
	if result.Success {
		rtt = sql.NullFloat64{Float64: result.RTT, Valid: true}
	}
	if _, err := tx.Exec(`
        INSERT INTO ping_samples (ts_unix_ms, addr, success, rtt_ms)
        VALUES (?, ?, ?, ?)
    `, result.Timestamp.UnixMilli(), result.Addr, result.Success, rtt); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}

	if _, err := tx.Exec(`
        INSERT OR REPLACE INTO target_stats (addr, sent, recv, lost, sum_ms, max_ms, min_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `, result.Addr, stats.Sent, stats.Recv, stats.Lost, stats.Sum, stats.Max, stats.Min); err != nil {
		return fmt.Errorf("store stats: %w", err)
	}

	if result.Success {
		if _, err := tx.Exec(`
            INSERT INTO histograms (addr, bucket, count) VALUES (?, ?, 1)
            ON CONFLICT (addr, bucket) DO UPDATE SET count = count + 1
        `, result.Addr, bucket); err != nil {
			return fmt.Errorf("store histogram: %w", err)
		}
	}

	return tx.Commit()
}

// LoadStats returns the persisted counters keyed by address
func (db *DB) LoadStats() (map[string]StatsRow, error) {
	rows, err := db.Query(`SELECT addr, sent, recv, lost, sum_ms, max_ms, min_ms FROM target_stats`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]StatsRow)
	for rows.Next() {
		var (
			addr string
			s    StatsRow
		)
		if err := rows.Scan(&addr, &s.Sent, &s.Recv, &s.Lost, &s.Sum, &s.Max, &s.Min); err != nil {
			return nil, err
		}
		stats[addr] = s
	}
	return stats, rows.Err()
}

// LoadHistograms returns the persisted histograms keyed by address
func (db *DB) LoadHistograms() (map[string]models.Histogram, error) {
	rows, err := db.Query(`SELECT addr, bucket, count FROM histograms`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hists := make(map[string]models.Histogram)
	for rows.Next() {
		var (
			addr   string
			bucket int
			count  uint64
		)
		if err := rows.Scan(&addr, &bucket, &count); err != nil {
			return nil, err
		}
		h := hists[addr]
		if h == nil {
			h = make(models.Histogram)
			hists[addr] = h
		}
		h[bucket] = count
	}
	return hists, rows.Err()
}

// MovingAverage returns the average RTT of successful pings to addr since
// the given time, or nil if there were none.
func (db *DB) MovingAverage(addr string, since time.Time) (*float64, error) {
	var avg sql.NullFloat64
	err := db.QueryRow(`
        SELECT AVG(rtt_ms)
        FROM ping_samples
        WHERE addr = ? AND success AND ts_unix_ms >= ?
    `, addr, since.UnixMilli()).Scan(&avg)
	if err != nil {
		return nil, err
	}
	if !avg.Valid {
		return nil, nil
	}
	v := avg.Float64
	return &v, nil
}

// ClearStats drops all samples, counters and histograms but keeps targets
func (db *DB) ClearStats() error {
	for _, q := range []string{
		`DELETE FROM ping_samples`,
		`DELETE FROM target_stats`,
		`DELETE FROM histograms`,
	} {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// ForgetAddr drops everything recorded for an address nobody monitors anymore
func (db *DB) ForgetAddr(addr string) error {
	for _, q := range []string{
		`DELETE FROM ping_samples WHERE addr = ?`,
		`DELETE FROM target_stats WHERE addr = ?`,
		`DELETE FROM histograms WHERE addr = ?`,
	} {
		if _, err := db.Exec(q, addr); err != nil {
			return err
		}
	}
	return nil
}
