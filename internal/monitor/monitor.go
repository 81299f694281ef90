package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"meshping/internal/database"
	"meshping/internal/models"
)

// ErrInvalidKey is returned for target keys that are not name@addr.
var ErrInvalidKey = errors.New("target key must be name@addr")

// Moving-average windows reported with every target.
const (
	window15m = 15 * time.Minute
	window6h  = 6 * time.Hour
	window24h = 24 * time.Hour
)

// Config holds the probing parameters of the engine
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Monitor is the ping engine: it owns the target registry, probes every
// monitored address and accumulates counters and latency histograms.
type Monitor struct {
	config  Config
	db      *database.DB
	pinger  models.Pinger
	logger  *slog.Logger
	results chan models.PingResult
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	now     func() time.Time

	mu      sync.RWMutex
	started bool
	order   []string
	targets map[string]models.Target
	addrs   map[string]*addrState
}

// addrState is shared by all targets pinging the same address
type addrState struct {
	refs   int
	stats  database.StatsRow
	hist   models.Histogram
	cancel context.CancelFunc
}

// New creates a new Monitor
func New(cfg Config, db *database.DB, pinger models.Pinger, logger *slog.Logger) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		config:  cfg,
		db:      db,
		pinger:  pinger,
		logger:  logger,
		results: make(chan models.PingResult, 100),
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
		targets: make(map[string]models.Target),
		addrs:   make(map[string]*addrState),
	}
}

// Load restores targets, counters and histograms from the database
func (m *Monitor) Load() error {
	targets, err := m.db.LoadTargets()
	if err != nil {
		return fmt.Errorf("load targets: %w", err)
	}
	stats, err := m.db.LoadStats()
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	hists, err := m.db.LoadHistograms()
	if err != nil {
		return fmt.Errorf("load histograms: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range targets {
		st := m.register(t)
		if st.refs == 1 {
			st.stats = stats[t.Addr]
			if h, ok := hists[t.Addr]; ok {
				st.hist = h
			}
		}
	}
	m.logger.Info("targets loaded", "count", len(targets))
	return nil
}

// Start begins probing every registered address
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.New("monitor already started")
	}
	m.started = true

	// Start result processor
	m.wg.Add(1)
	go m.processResults()

	for addr, st := range m.addrs {
		m.startWorker(addr, st)
	}

	// Start maintenance routines
	m.wg.Add(1)
	go m.maintenanceWorker()

	m.logger.Info("monitor started", "addrs", len(m.addrs), "interval", m.config.Interval)
	return nil
}

// Stop gracefully stops the monitor
func (m *Monitor) Stop() {
	m.logger.Info("stopping monitor")
	m.cancel()
}

// Wait blocks until all goroutines finish
func (m *Monitor) Wait() {
	m.wg.Wait()
	m.logger.Info("monitor stopped")
}

// AddTarget registers name@addr. Adding a known key changes nothing.
func (m *Monitor) AddTarget(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, addr, ok := models.SplitTargetKey(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	target := models.Target{Name: name, Addr: addr}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.targets[key]; exists {
		return nil
	}
	if err := m.db.SaveTarget(target); err != nil {
		return fmt.Errorf("save target: %w", err)
	}

	st := m.register(target)
	if m.started && st.refs == 1 {
		m.startWorker(addr, st)
	}
	m.logger.Info("target added", "target", key)
	return nil
}

// RemoveTarget unregisters a target. Unknown keys are ignored.
func (m *Monitor) RemoveTarget(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.targets[key]
	if !ok {
		return nil
	}
	if err := m.db.DeleteTarget(target); err != nil {
		return fmt.Errorf("delete target: %w", err)
	}

	delete(m.targets, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}

	st := m.addrs[target.Addr]
	st.refs--
	if st.refs == 0 {
		if st.cancel != nil {
			st.cancel()
		}
		delete(m.addrs, target.Addr)
		if err := m.db.ForgetAddr(target.Addr); err != nil {
			m.logger.Warn("failed to drop address history", "addr", target.Addr, "error", err)
		}
	}
	m.logger.Info("target removed", "target", key)
	return nil
}

// ClearStats resets counters and histograms of every address
func (m *Monitor) ClearStats(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.ClearStats(); err != nil {
		return fmt.Errorf("clear stats: %w", err)
	}
	for _, st := range m.addrs {
		st.stats = database.StatsRow{}
		st.hist = make(models.Histogram)
	}
	m.logger.Info("statistics cleared")
	return nil
}

// Targets returns the registered targets in registration order
func (m *Monitor) Targets(ctx context.Context) ([]models.Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Target, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.targets[key])
	}
	return out, nil
}

// TargetInfo returns a snapshot of the counters of name@addr
func (m *Monitor) TargetInfo(ctx context.Context, addr, name string) (models.TargetInfo, error) {
	if err := ctx.Err(); err != nil {
		return models.TargetInfo{}, err
	}

	m.mu.RLock()
	_, ok := m.targets[models.TargetKey(name, addr)]
	var stats database.StatsRow
	if ok {
		stats = m.addrs[addr].stats
	}
	m.mu.RUnlock()

	if !ok {
		return models.TargetInfo{}, fmt.Errorf("%w: %s", models.ErrNotFound, models.TargetKey(name, addr))
	}

	info := models.TargetInfo{
		Name: name,
		Addr: addr,
		Sent: stats.Sent,
		Recv: stats.Recv,
		Lost: stats.Lost,
		Sum:  stats.Sum,
		Max:  stats.Max,
		Min:  stats.Min,
	}

	now := m.now()
	for _, w := range []struct {
		span time.Duration
		dst  **float64
	}{
		{window15m, &info.Avg15m},
		{window6h, &info.Avg6h},
		{window24h, &info.Avg24h},
	} {
		avg, err := m.db.MovingAverage(addr, now.Add(-w.span))
		if err != nil {
			return models.TargetInfo{}, fmt.Errorf("moving average: %w", err)
		}
		*w.dst = avg
	}

	return info, nil
}

// TargetHistogram returns a copy of the latency histogram of addr
func (m *Monitor) TargetHistogram(ctx context.Context, addr string) (models.Histogram, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.addrs[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, addr)
	}
	return st.hist.Clone(), nil
}

// register adds a target to the in-memory registry. Callers hold m.mu.
func (m *Monitor) register(t models.Target) *addrState {
	key := t.Key()
	m.targets[key] = t
	m.order = append(m.order, key)

	st, ok := m.addrs[t.Addr]
	if !ok {
		st = &addrState{hist: make(models.Histogram)}
		m.addrs[t.Addr] = st
	}
	st.refs++
	return st
}
