// Package peer announces this node's targets to other meshping nodes.
package peer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"

	"meshping/internal/models"
)

const (
	defaultInterval = 30 * time.Second
	defaultTimeout  = 5 * time.Second
)

// Source lists the targets to announce
type Source interface {
	Targets(ctx context.Context) ([]models.Target, error)
}

// Config for the announcer
type Config struct {
	Peers    []string
	Interval time.Duration
	Timeout  time.Duration
}

// Announcer periodically POSTs our targets to every peer
type Announcer struct {
	cfg        Config
	source     Source
	classifier models.Classifier
	client     *http.Client
	logger     *slog.Logger
	wg         sync.WaitGroup
}

type submission struct {
	Targets []models.PeerTarget `json:"targets"`
}

// New creates an Announcer
func New(cfg Config, source Source, classifier models.Classifier, logger *slog.Logger) *Announcer {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Announcer{
		cfg:        cfg,
		source:     source,
		classifier: classifier,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Start announces immediately and then on every interval until ctx is done.
func (a *Announcer) Start(ctx context.Context) {
	if len(a.cfg.Peers) == 0 {
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ticker := time.NewTicker(a.cfg.Interval)
		defer ticker.Stop()

		for {
			if err := a.Announce(ctx); err != nil {
				a.logger.Warn("peer announcement failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Wait blocks until the announce loop has exited
func (a *Announcer) Wait() {
	a.wg.Wait()
}

// Announce sends one round of announcements. Every peer is tried; the
// failures are joined.
func (a *Announcer) Announce(ctx context.Context) error {
	body, err := a.payload(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, p := range a.cfg.Peers {
		if err := a.send(ctx, peerURL(p), body); err != nil {
			errs = append(errs, fmt.Errorf("peer %s: %w", p, err))
			continue
		}
		a.logger.Debug("announced targets", "peer", p)
	}
	return errors.Join(errs...)
}

func (a *Announcer) payload(ctx context.Context) ([]byte, error) {
	targets, err := a.source.Targets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	sub := submission{Targets: make([]models.PeerTarget, 0, len(targets))}
	for _, t := range targets {
		if a.classifier.IsOwnInterface(t.Addr) {
			continue
		}
		sub.Targets = append(sub.Targets, models.PeerTarget{
			Name:  t.Name,
			Addr:  t.Addr,
			Local: a.classifier.IsLocalSegment(t.Addr),
		})
	}
	return json.Marshal(sub)
}

func (a *Announcer) send(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

func peerURL(peer string) string {
	peer = strings.TrimRight(peer, "/")
	if !strings.Contains(peer, "://") {
		peer = "http://" + peer
	}
	return peer + "/peer"
}
