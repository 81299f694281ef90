// Package exposition renders target counters and latency histograms in the
// Prometheus text format.
package exposition

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"meshping/internal/models"
)

// ContentType of the encoded output
const ContentType = "text/plain; version=0.0.4"

var preamble = []string{
	"# HELP meshping_sent Sent pings",
	"# TYPE meshping_sent counter",
	"# HELP meshping_recv Received pongs",
	"# TYPE meshping_recv counter",
	"# HELP meshping_lost Lost pings (actual counter, not just sent - recv)",
	"# TYPE meshping_lost counter",
	"# HELP meshping_max max ping",
	"# TYPE meshping_max gauge",
	"# HELP meshping_min min ping",
	"# TYPE meshping_min gauge",
	"# HELP meshping_pings Pings bucketed by response time",
	"# TYPE meshping_pings histogram",
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// Source is the part of the ping engine the encoder reads from
type Source interface {
	Targets(ctx context.Context) ([]models.Target, error)
	TargetInfo(ctx context.Context, addr, name string) (models.TargetInfo, error)
	TargetHistogram(ctx context.Context, addr string) (models.Histogram, error)
}

// Encoder writes the metrics page
type Encoder struct {
	source Source
}

// New creates an Encoder reading from source
func New(source Source) *Encoder {
	return &Encoder{source: source}
}

// UpperBound returns the exclusive upper latency bound of bucket b in ms,
// less a hundredth so that it prints below the next bucket's floor.
func UpperBound(b int) float64 {
	return math.Pow(2, float64(b+1)/10) - 0.01
}

// Bucket is one cumulative histogram entry
type Bucket struct {
	Index int
	Le    float64
	Count uint64
}

// Cumulative returns the buckets of h in ascending order with running totals.
func Cumulative(h models.Histogram) []Bucket {
	out := make([]Bucket, 0, len(h))
	var total uint64
	for _, b := range h.Buckets() {
		total += h[b]
		out = append(out, Bucket{Index: b, Le: UpperBound(b), Count: total})
	}
	return out
}

// Encode writes the preamble followed by every target's series.
func (e *Encoder) Encode(ctx context.Context, w io.Writer) error {
	targets, err := e.source.Targets(ctx)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}

	bw := bufio.NewWriter(w)
	for _, line := range preamble {
		bw.WriteString(line)
		bw.WriteByte('\n')
	}

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}

		info, err := e.source.TargetInfo(ctx, t.Addr, t.Name)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("target info %s: %w", t.Key(), err)
		}
		hist, err := e.source.TargetHistogram(ctx, t.Addr)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("target histogram %s: %w", t.Key(), err)
		}

		writeTarget(bw, info, hist)
	}

	return bw.Flush()
}

func writeTarget(w *bufio.Writer, info models.TargetInfo, hist models.Histogram) {
	labels := fmt.Sprintf(`name="%s",target="%s"`, labelEscaper.Replace(info.Name), labelEscaper.Replace(info.Addr))

	fmt.Fprintf(w, "meshping_sent{%s} %d\n", labels, info.Sent)
	fmt.Fprintf(w, "meshping_recv{%s} %d\n", labels, info.Recv)
	fmt.Fprintf(w, "meshping_lost{%s} %d\n", labels, info.Lost)
	if info.Recv > 0 {
		fmt.Fprintf(w, "meshping_max{%s} %.2f\n", labels, info.Max)
		fmt.Fprintf(w, "meshping_min{%s} %.2f\n", labels, info.Min)
	}
	fmt.Fprintf(w, "meshping_pings_sum{%s} %f\n", labels, info.Sum)
	fmt.Fprintf(w, "meshping_pings_count{%s} %d\n", labels, info.Recv)

	for _, b := range Cumulative(hist) {
		fmt.Fprintf(w, "meshping_pings_bucket{%s,le=\"%.2f\"} %d\n", labels, b.Le, b.Count)
	}
}
