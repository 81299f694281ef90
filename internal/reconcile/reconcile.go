// Package reconcile decides which offered targets this node monitors and
// under which canonical key.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"meshping/internal/models"
)

// ErrResolve marks a name that could not be resolved to any address.
var ErrResolve = errors.New("resolution failed")

// Reconciler merges peer and client target submissions into the engine
type Reconciler struct {
	engine     models.Engine
	classifier models.Classifier
	resolver   models.Resolver
	logger     *slog.Logger
}

// New creates a Reconciler
func New(engine models.Engine, classifier models.Classifier, resolver models.Resolver, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		engine:     engine,
		classifier: classifier,
		resolver:   resolver,
		logger:     logger,
	}
}

// MergePeers adds the acceptable descriptors of a peer submission and
// returns the current snapshot of each accepted target. Descriptors for our
// own interfaces, and local descriptors outside our segments, are skipped.
func (r *Reconciler) MergePeers(ctx context.Context, peers []models.PeerTarget) ([]models.TargetInfo, error) {
	batch := make([]models.Target, 0, len(peers))
	for _, p := range peers {
		t := models.Target{
			Name:  strings.TrimSpace(p.Name),
			Addr:  strings.TrimSpace(p.Addr),
			Local: p.Local,
		}
		if t.Name == "" || t.Addr == "" {
			return nil, malformed("required field missing in target")
		}
		batch = append(batch, t)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := make([]models.TargetInfo, 0, len(batch))
	for _, t := range batch {
		if r.classifier.IsOwnInterface(t.Addr) {
			continue
		}
		if t.Local && !r.classifier.IsLocalSegment(t.Addr) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := r.engine.AddTarget(ctx, t.Key()); err != nil {
			return nil, fmt.Errorf("add target %s: %w", t.Key(), err)
		}
		info, err := r.engine.TargetInfo(ctx, t.Addr, t.Name)
		if err != nil {
			return nil, fmt.Errorf("target info %s: %w", t.Key(), err)
		}
		stats = append(stats, info)
	}

	r.logger.Debug("peer submission merged", "offered", len(peers), "accepted", len(stats))
	return stats, nil
}

// AddTarget registers a client-supplied target. A name@addr string is taken
// verbatim; a bare name is resolved and registered once per address.
func (r *Reconciler) AddTarget(ctx context.Context, target string) ([]string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, malformed("missing target")
	}

	if strings.Contains(target, models.KeySeparator) {
		if _, _, ok := models.SplitTargetKey(target); !ok {
			return nil, malformed("target must be name@addr")
		}
		if err := r.engine.AddTarget(ctx, target); err != nil {
			return nil, fmt.Errorf("add target %s: %w", target, err)
		}
		return []string{target}, nil
	}

	addrs, err := r.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}

	added := make([]string, 0, len(addrs))
	var errs []error
	for _, addr := range addrs {
		key := models.TargetKey(target, addr)
		if err := r.engine.AddTarget(ctx, key); err != nil {
			r.logger.Warn("failed to add resolved target", "target", key, "error", err)
			errs = append(errs, fmt.Errorf("add target %s: %w", key, err))
			continue
		}
		added = append(added, key)
	}
	if len(added) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return added, nil
}

// Resolve returns the addresses of a host name
func (r *Reconciler) Resolve(ctx context.Context, name string) ([]string, error) {
	addrs, err := r.resolver.LookupAddrs(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolve, err)
	}
	return addrs, nil
}

// RemoveTarget removes a target by canonical key. Unknown keys are fine.
func (r *Reconciler) RemoveTarget(ctx context.Context, key string) error {
	if err := r.engine.RemoveTarget(ctx, key); err != nil {
		return fmt.Errorf("remove target %s: %w", key, err)
	}
	return nil
}

// ClearStats resets all counters and histograms, keeping the targets
func (r *Reconciler) ClearStats(ctx context.Context) error {
	return r.engine.ClearStats(ctx)
}

// ListTargets returns every target with loss and success percentages
func (r *Reconciler) ListTargets(ctx context.Context) ([]models.TargetStatus, error) {
	targets, err := r.engine.Targets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	out := make([]models.TargetStatus, 0, len(targets))
	for _, t := range targets {
		info, err := r.engine.TargetInfo(ctx, t.Addr, t.Name)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("target info %s: %w", t.Key(), err)
		}
		out = append(out, Status(info))
	}
	return out, nil
}

// FindTarget maps a chart request onto a registered target: name@addr is
// split, anything else must equal the name or address of a known target.
func (r *Reconciler) FindTarget(ctx context.Context, target string) (name, addr string, err error) {
	if strings.Contains(target, models.KeySeparator) {
		name, addr, ok := models.SplitTargetKey(target)
		if !ok {
			return "", "", malformed("target must be name@addr")
		}
		return name, addr, nil
	}

	targets, err := r.engine.Targets(ctx)
	if err != nil {
		return "", "", fmt.Errorf("list targets: %w", err)
	}
	for _, t := range targets {
		if t.Name == target || t.Addr == target {
			return t.Name, t.Addr, nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", models.ErrNotFound, target)
}

// Status derives the listing view of a target snapshot.
func Status(info models.TargetInfo) models.TargetStatus {
	var loss float64
	if info.Sent > 0 {
		loss = float64(info.Sent-info.Recv) / float64(info.Sent) * 100
	}

	name := info.Name
	if r := []rune(name); len(r) > models.DisplayNameLen {
		name = string(r[:models.DisplayNameLen])
	}

	return models.TargetStatus{
		Name:   name,
		Addr:   info.Addr,
		Sent:   info.Sent,
		Recv:   info.Recv,
		Lost:   info.Lost,
		Sum:    info.Sum,
		Max:    info.Max,
		Min:    info.Min,
		Loss:   loss,
		Succ:   100 - loss,
		Avg15m: valueOr(info.Avg15m),
		Avg6h:  valueOr(info.Avg6h),
		Avg24h: valueOr(info.Avg24h),
	}
}

func valueOr(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
