// Package chart renders latency charts for a target from the histogram
// series a Prometheus server scraped off a meshping node.
package chart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v2"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"meshping/internal/models"
)

const (
	defaultWindow   = 3 * 24 * time.Hour
	defaultStep     = time.Hour
	defaultTimeout  = 2 * time.Second
	defaultCacheTTL = time.Minute
)

// Config for the renderer
type Config struct {
	URL      string
	Query    string
	Window   time.Duration
	Step     time.Duration
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Renderer queries Prometheus and draws PNG charts
type Renderer struct {
	cfg    Config
	api    v1.API
	cache  *ttlcache.Cache
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Renderer talking to the Prometheus server at cfg.URL
func New(cfg Config, logger *slog.Logger) (*Renderer, error) {
	if cfg.URL == "" {
		return nil, errors.New("prometheus URL is required")
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Step <= 0 {
		cfg.Step = defaultStep
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}

	client, err := api.NewClient(api.Config{Address: cfg.URL})
	if err != nil {
		return nil, fmt.Errorf("prometheus client: %w", err)
	}

	cache := ttlcache.NewCache()
	if err := cache.SetTTL(cfg.CacheTTL); err != nil {
		return nil, fmt.Errorf("chart cache: %w", err)
	}
	cache.SkipTTLExtensionOnHit(true)

	return &Renderer{
		cfg:    cfg,
		api:    v1.NewAPI(client),
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close stops the cache janitor
func (r *Renderer) Close() error {
	return r.cache.Close()
}

// Expand fills the %(pingnode)s, %(name)s and %(addr)s placeholders of a
// query template.
func Expand(query, node, name, addr string) string {
	return strings.NewReplacer(
		"%(pingnode)s", node,
		"%(name)s", name,
		"%(addr)s", addr,
	).Replace(query)
}

// Render returns a PNG of the latency percentiles of name@addr as seen by
// node. models.ErrNotFound means Prometheus has no data for the target.
func (r *Renderer) Render(ctx context.Context, node, name, addr string) ([]byte, error) {
	key := node + "|" + models.TargetKey(name, addr)
	if cached, err := r.cache.Get(key); err == nil {
		return cached.([]byte), nil
	}

	matrix, err := r.query(ctx, Expand(r.cfg.Query, node, name, addr))
	if err != nil {
		return nil, err
	}

	series := percentiles(matrix)
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: no samples for %s", models.ErrNotFound, models.TargetKey(name, addr))
	}

	var buf bytes.Buffer
	if err := draw(&buf, fmt.Sprintf("%s (%s) from %s", name, addr, node), series); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}

	png := buf.Bytes()
	if err := r.cache.Set(key, png); err != nil {
		r.logger.Warn("failed to cache chart", "key", key, "error", err)
	}
	return png, nil
}

func (r *Renderer) query(ctx context.Context, q string) (model.Matrix, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	end := r.now()
	value, warnings, err := r.api.QueryRange(ctx, q, v1.Range{
		Start: end.Add(-r.cfg.Window),
		End:   end,
		Step:  r.cfg.Step,
	})
	if err != nil {
		return nil, fmt.Errorf("prometheus query: %w", err)
	}
	for _, w := range warnings {
		r.logger.Warn("prometheus query warning", "warning", w)
	}

	matrix, ok := value.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("prometheus query: unexpected result type %s", value.Type())
	}
	return matrix, nil
}
