package models

import (
	"context"
	"time"
)

// Engine is the ping engine contract used by the HTTP-facing layer
type Engine interface {
	AddTarget(ctx context.Context, key string) error
	RemoveTarget(ctx context.Context, key string) error
	ClearStats(ctx context.Context) error
	Targets(ctx context.Context) ([]Target, error)
	TargetInfo(ctx context.Context, addr, name string) (TargetInfo, error)
	TargetHistogram(ctx context.Context, addr string) (Histogram, error)
}

// Classifier answers address-topology questions about this node
type Classifier interface {
	IsOwnInterface(addr string) bool
	IsLocalSegment(addr string) bool
}

// Resolver enumerates the addresses of a host name
type Resolver interface {
	LookupAddrs(ctx context.Context, name string) ([]string, error)
}

// Pinger defines ping execution operations
type Pinger interface {
	Ping(ctx context.Context, addr string, timeout time.Duration) (PingResult, error)
}

// ChartRenderer renders a latency chart for a target seen from a node
type ChartRenderer interface {
	Render(ctx context.Context, node, name, addr string) ([]byte, error)
}
