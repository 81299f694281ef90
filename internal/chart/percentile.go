package chart

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/common/model"
)

var quantiles = []float64{0.5, 0.9, 0.99}

// Series is one percentile line of the chart
type Series struct {
	Quantile float64
	Times    []time.Time
	Values   []float64
}

type bound struct {
	le    float64
	count float64
}

// percentiles turns cumulative bucket increases into percentile estimates
// per timestamp, interpolating linearly inside the bucket that holds the rank.
func percentiles(matrix model.Matrix) []Series {
	points := map[model.Time][]bound{}
	for _, stream := range matrix {
		le, err := strconv.ParseFloat(string(stream.Metric[model.BucketLabel]), 64)
		if err != nil {
			continue
		}
		for _, sample := range stream.Values {
			points[sample.Timestamp] = append(points[sample.Timestamp], bound{le: le, count: float64(sample.Value)})
		}
	}

	stamps := make([]model.Time, 0, len(points))
	for ts := range points {
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

	series := make([]Series, len(quantiles))
	for i, q := range quantiles {
		series[i].Quantile = q
	}

	for _, ts := range stamps {
		bounds := points[ts]
		sort.Slice(bounds, func(i, j int) bool { return bounds[i].le < bounds[j].le })
		// increase() may extrapolate buckets slightly out of order
		for i := 1; i < len(bounds); i++ {
			bounds[i].count = math.Max(bounds[i].count, bounds[i-1].count)
		}
		total := bounds[len(bounds)-1].count
		if total <= 0 {
			continue
		}
		for i, q := range quantiles {
			series[i].Times = append(series[i].Times, ts.Time())
			series[i].Values = append(series[i].Values, quantile(q, bounds, total))
		}
	}

	if len(series[0].Times) < 2 {
		return nil
	}
	return series
}

func quantile(q float64, bounds []bound, total float64) float64 {
	rank := q * total
	lower, below := 0.0, 0.0
	for _, b := range bounds {
		if b.count >= rank {
			if math.IsInf(b.le, 1) {
				return lower
			}
			inBucket := b.count - below
			if inBucket <= 0 {
				return b.le
			}
			return lower + (b.le-lower)*(rank-below)/inBucket
		}
		lower, below = b.le, b.count
	}
	return lower
}
