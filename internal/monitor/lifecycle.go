package monitor

import (
	"time"
)

// maintenanceWorker runs periodic maintenance tasks
func (m *Monitor) maintenanceWorker() {
	defer m.wg.Done()

	// Run maintenance every hour
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	// Run immediately on start
	m.performMaintenance()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.performMaintenance()
		}
	}
}

// performMaintenance drops samples that no moving average looks at anymore
func (m *Monitor) performMaintenance() {
	n, err := m.db.PruneSamples(m.now())
	if err != nil {
		m.logger.Error("failed to prune samples", "error", err)
		return
	}
	m.logger.Debug("maintenance complete", "pruned", n)
}
