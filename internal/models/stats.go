package models

import "sort"

// TargetInfo is a point-in-time snapshot of a target's counters
type TargetInfo struct {
	Name   string   `json:"name"`
	Addr   string   `json:"addr"`
	Sent   uint64   `json:"sent"`
	Recv   uint64   `json:"recv"`
	Lost   uint64   `json:"lost"`
	Sum    float64  `json:"sum"`
	Max    float64  `json:"max"`
	Min    float64  `json:"min"`
	Avg15m *float64 `json:"avg15m,omitempty"`
	Avg6h  *float64 `json:"avg6h,omitempty"`
	Avg24h *float64 `json:"avg24h,omitempty"`
}

// TargetStatus is a target as shown in the target listing
type TargetStatus struct {
	Name   string  `json:"name"`
	Addr   string  `json:"addr"`
	Sent   uint64  `json:"sent"`
	Recv   uint64  `json:"recv"`
	Lost   uint64  `json:"lost"`
	Sum    float64 `json:"sum"`
	Max    float64 `json:"max"`
	Min    float64 `json:"min"`
	Loss   float64 `json:"loss"` // percentage
	Succ   float64 `json:"succ"` // percentage
	Avg15m float64 `json:"avg15m"`
	Avg6h  float64 `json:"avg6h"`
	Avg24h float64 `json:"avg24h"`
}

// Histogram maps a logarithmic latency bucket index to its observation count.
type Histogram map[int]uint64

// Buckets returns the bucket indices in ascending order.
func (h Histogram) Buckets() []int {
	buckets := make([]int, 0, len(h))
	for b := range h {
		buckets = append(buckets, b)
	}
	sort.Ints(buckets)
	return buckets
}

// Clone returns a copy that is safe to hand out of a lock.
func (h Histogram) Clone() Histogram {
	out := make(Histogram, len(h))
	for b, c := range h {
		out[b] = c
	}
	return out
}
