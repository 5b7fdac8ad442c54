package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const statsScrapeTimeout = 5 * time.Second

var (
	storedRecordsDesc = prometheus.NewDesc(
		"stash_stored_records",
		"Records currently held in the store, by kind.",
		[]string{"kind"}, nil,
	)
	storedBytesDesc = prometheus.NewDesc(
		"stash_stored_bytes",
		"Total size of stored files.",
		nil, nil,
	)
	usersDesc = prometheus.NewDesc(
		"stash_users",
		"Known users, by state.",
		[]string{"state"}, nil,
	)
)

// StatsCollector exposes the dashboard counts as gauges. The store is
// queried on every scrape.
type StatsCollector struct {
	stats  *StatsService
	logger *zap.Logger
}

func NewStatsCollector(stats *StatsService, logger *zap.Logger) *StatsCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsCollector{stats: stats, logger: logger.With(zap.String("component", "stats-collector"))}
}

func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- storedRecordsDesc
	ch <- storedBytesDesc
	ch <- usersDesc
}

// Collect emits nothing when the store cannot be read; the scrape still
// succeeds for every other collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), statsScrapeTimeout)
	defer cancel()

	stats, err := c.stats.Collect(ctx)
	if err != nil {
		c.logger.Warn("failed to collect store stats", zap.Error(err))
		return
	}

	ch <- prometheus.MustNewConstMetric(storedRecordsDesc, prometheus.GaugeValue, float64(stats.Files), "file")
	ch <- prometheus.MustNewConstMetric(storedRecordsDesc, prometheus.GaugeValue, float64(stats.Batches), "batch")
	ch <- prometheus.MustNewConstMetric(storedBytesDesc, prometheus.GaugeValue, float64(stats.TotalBytes))
	ch <- prometheus.MustNewConstMetric(usersDesc, prometheus.GaugeValue, float64(stats.Users-stats.BannedUsers), "active")
	ch <- prometheus.MustNewConstMetric(usersDesc, prometheus.GaugeValue, float64(stats.BannedUsers), "banned")
}
