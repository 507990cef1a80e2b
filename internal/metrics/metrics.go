// Package metrics exposes dispatchd operational metrics as a
// prometheus.Collector that queries its providers at scrape time.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TerminationCounter returns termination attempts grouped by outcome state.
type TerminationCounter interface {
	CountByState(ctx context.Context) (map[string]int64, error)
}

// CatalogStatsProvider exposes the recording catalog's current shape.
type CatalogStatsProvider interface {
	Size() int
	QueueDepth() int
	ReapedTotal() int64
}

// DirectorySizeProvider returns the entry count of one directory collection.
type DirectorySizeProvider interface {
	Len() int
}

// Collector gathers dispatchd metrics at scrape time. Any provider may be
// nil if unavailable.
type Collector struct {
	terminations TerminationCounter
	catalog      CatalogStatsProvider
	directories  map[string]DirectorySizeProvider
	startTime    time.Time

	terminationsDesc *prometheus.Desc
	catalogSizeDesc  *prometheus.Desc
	queueDepthDesc   *prometheus.Desc
	reapedDesc       *prometheus.Desc
	directoryDesc    *prometheus.Desc
	uptimeDesc       *prometheus.Desc
}

// NewCollector creates a metrics collector. directories maps a collection
// label (normal, webrtc, intercom) to its repository.
func NewCollector(
	terminations TerminationCounter,
	catalog CatalogStatsProvider,
	directories map[string]DirectorySizeProvider,
	startTime time.Time,
) *Collector {
	return &Collector{
		terminations: terminations,
		catalog:      catalog,
		directories:  directories,
		startTime:    startTime,

		terminationsDesc: prometheus.NewDesc(
			"dispatchd_terminations_total",
			"Total termination attempts by outcome state",
			[]string{"state"}, nil,
		),
		catalogSizeDesc: prometheus.NewDesc(
			"dispatchd_recordings_listed",
			"Number of recordings in the current catalog listing",
			nil, nil,
		),
		queueDepthDesc: prometheus.NewDesc(
			"dispatchd_recordings_queued_for_deletion",
			"Number of recordings awaiting the retention reaper",
			nil, nil,
		),
		reapedDesc: prometheus.NewDesc(
			"dispatchd_recordings_reaped_total",
			"Total recordings removed by the retention reaper",
			nil, nil,
		),
		directoryDesc: prometheus.NewDesc(
			"dispatchd_directory_entries",
			"Number of entries per directory collection",
			[]string{"kind"}, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"dispatchd_uptime_seconds",
			"Seconds since the dispatchd process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.terminationsDesc
	ch <- c.catalogSizeDesc
	ch <- c.queueDepthDesc
	ch <- c.reapedDesc
	ch <- c.directoryDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at
// scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.terminations != nil {
		counts, err := c.terminations.CountByState(ctx)
		if err != nil {
			slog.Error("metrics: failed to count terminations", "error", err)
		} else {
			for state, n := range counts {
				ch <- prometheus.MustNewConstMetric(
					c.terminationsDesc, prometheus.CounterValue,
					float64(n), state,
				)
			}
		}
	}

	if c.catalog != nil {
		ch <- prometheus.MustNewConstMetric(
			c.catalogSizeDesc, prometheus.GaugeValue,
			float64(c.catalog.Size()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.queueDepthDesc, prometheus.GaugeValue,
			float64(c.catalog.QueueDepth()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.reapedDesc, prometheus.CounterValue,
			float64(c.catalog.ReapedTotal()),
		)
	}

	for kind, repo := range c.directories {
		ch <- prometheus.MustNewConstMetric(
			c.directoryDesc, prometheus.GaugeValue,
			float64(repo.Len()), kind,
		)
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
