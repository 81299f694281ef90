package monitor

import (
	"context"
	"math"
	"time"

	"meshping/internal/models"
)

// minRTT keeps sub-resolution replies out of log2(0).
const minRTT = 0.01

// BucketFor returns the histogram bucket of a latency in milliseconds:
// floor(10 * log2(rtt)), so that 2^((b+1)/10) bounds it from above.
func BucketFor(rtt float64) int {
	if rtt < minRTT {
		rtt = minRTT
	}
	return int(math.Floor(10 * math.Log2(rtt)))
}

// startWorker spawns the ping loop of an address. Callers hold m.mu.
func (m *Monitor) startWorker(addr string, st *addrState) {
	ctx, cancel := context.WithCancel(m.ctx)
	st.cancel = cancel

	m.wg.Add(1)
	go m.pingWorker(ctx, addr)
}

// pingWorker continuously pings an address at the configured interval
func (m *Monitor) pingWorker(ctx context.Context, addr string) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	// Immediate first ping
	m.performPing(ctx, addr)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.performPing(ctx, addr)
		}
	}
}

// performPing executes a single ping and sends the result to the results channel
func (m *Monitor) performPing(ctx context.Context, addr string) {
	result, err := m.pinger.Ping(ctx, addr, m.config.Timeout)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("ping failed", "addr", addr, "error", err)
		}
		return
	}

	select {
	case m.results <- result:
	case <-ctx.Done():
	default:
		m.logger.Warn("result channel full, dropping result", "addr", addr)
	}
}

// processResults processes ping results from the results channel
func (m *Monitor) processResults() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case result := <-m.results:
			if err := m.record(result); err != nil {
				m.logger.Error("failed to save result", "addr", result.Addr, "error", err)
			}
		}
	}
}

// record folds a ping result into the counters and histogram of its address
func (m *Monitor) record(result models.PingResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.addrs[result.Addr]
	if !ok {
		// Removed while the probe was in flight.
		return nil
	}

	bucket := 0
	st.stats.Sent++
	if result.Success {
		rtt := result.RTT
		st.stats.Recv++
		st.stats.Sum += rtt
		if st.stats.Recv == 1 || rtt > st.stats.Max {
			st.stats.Max = rtt
		}
		if st.stats.Recv == 1 || rtt < st.stats.Min {
			st.stats.Min = rtt
		}
		bucket = BucketFor(rtt)
		st.hist[bucket]++
	} else {
		st.stats.Lost++
	}

	return m.db.RecordSample(result, st.stats, bucket)
}
