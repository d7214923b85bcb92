// Package metrics keeps in-process timing statistics for edgeloc's hot
// paths: tree rebuilds and inventory queries.
//
// Collection is on by default and can be turned off with EDGELOC_METRICS=0.
//
//	func (s *Store) ReplaceRoots(...) {
//	    defer metrics.Timer(metrics.RootsRebuild)()
//	    ...
//	}
package metrics

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync/atomic"
	"text/tabwriter"
	"time"
)

var enabled atomic.Bool

func init() {
	enabled.Store(os.Getenv("EDGELOC_METRICS") != "0")
}

// Enabled returns whether metrics collection is enabled.
func Enabled() bool { return enabled.Load() }

// SetEnabled allows programmatic control of metrics collection.
func SetEnabled(e bool) { enabled.Store(e) }

// TimingMetric tracks count, total, min and max for one named operation.
// Safe for concurrent use.
type TimingMetric struct {
	name    string
	count   atomic.Int64
	totalNs atomic.Int64
	maxNs   atomic.Int64
	minNs   atomic.Int64 // 0 means unset
}

func newTimingMetric(name string) *TimingMetric {
	return &TimingMetric{name: name}
}

// Record adds one measurement.
func (m *TimingMetric) Record(d time.Duration) {
	if !Enabled() {
		return
	}
	ns := d.Nanoseconds()
	m.count.Add(1)
	m.totalNs.Add(ns)

	for {
		old := m.maxNs.Load()
		if ns <= old || m.maxNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.minNs.Load()
		if old != 0 && ns >= old {
			break
		}
		if m.minNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// Name returns the metric name.
func (m *TimingMetric) Name() string { return m.name }

// Count returns the number of recorded measurements.
func (m *TimingMetric) Count() int64 { return m.count.Load() }

// Reset clears all recorded measurements.
func (m *TimingMetric) Reset() {
	m.count.Store(0)
	m.totalNs.Store(0)
	m.maxNs.Store(0)
	m.minNs.Store(0)
}

// TimingStats is a point-in-time copy of a metric.
type TimingStats struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	TotalMs float64 `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
	MinMs   float64 `json:"min_ms,omitempty"`
}

// Stats returns the current statistics.
func (m *TimingMetric) Stats() TimingStats {
	count := m.count.Load()
	total := m.totalNs.Load()
	var avg int64
	if count > 0 {
		avg = total / count
	}
	return TimingStats{
		Name:    m.name,
		Count:   count,
		TotalMs: float64(total) / 1e6,
		AvgMs:   float64(avg) / 1e6,
		MaxMs:   float64(m.maxNs.Load()) / 1e6,
		MinMs:   float64(m.minNs.Load()) / 1e6,
	}
}

// Timer returns a function that records the elapsed time when called.
func Timer(m *TimingMetric) func() {
	if !Enabled() || m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.Record(time.Since(start))
	}
}

// Tree and inventory metrics.
var (
	RootsRebuild    = newTimingMetric("roots_rebuild")
	ChildrenRebuild = newTimingMetric("children_rebuild")
	SearchRebuild   = newTimingMetric("search_rebuild")
	QueryRoots      = newTimingMetric("query_roots")
	QueryChildren   = newTimingMetric("query_children")
	QuerySearch     = newTimingMetric("query_search")
	QuerySiteCounts = newTimingMetric("query_site_counts")
	SeedImport      = newTimingMetric("seed_import")
	UIRender        = newTimingMetric("ui_render")
)

// All returns every registered metric.
func All() []*TimingMetric {
	return []*TimingMetric{
		RootsRebuild,
		ChildrenRebuild,
		SearchRebuild,
		QueryRoots,
		QueryChildren,
		QuerySearch,
		QuerySiteCounts,
		SeedImport,
		UIRender,
	}
}

// ResetAll resets every metric.
func ResetAll() {
	for _, m := range All() {
		m.Reset()
	}
}

// Snapshot returns stats for every metric that has data, sorted by total
// time descending.
func Snapshot() []TimingStats {
	var out []TimingStats
	for _, m := range All() {
		if m.Count() > 0 {
			out = append(out, m.Stats())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TotalMs > out[j].TotalMs
	})
	return out
}

// WriteReport prints Snapshot as an aligned table.
func WriteReport(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tCOUNT\tTOTAL ms\tAVG ms\tMAX ms")
	for _, s := range Snapshot() {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.3f\t%.3f\n", s.Name, s.Count, s.TotalMs, s.AvgMs, s.MaxMs)
	}
	return tw.Flush()
}
