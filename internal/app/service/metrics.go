package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	expiryScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stash_expiry_scans_total",
		Help: "Expiry scans by result (ok, aborted).",
	}, []string{"result"})

	expiryDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stash_expiry_deleted_total",
		Help: "Records removed after their delete time, by kind.",
	}, []string{"kind"})

	expiryFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stash_expiry_failures_total",
		Help: "Per-record expiry failures that were skipped.",
	})

	expiryScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stash_expiry_scan_duration_seconds",
		Help:    "Duration of one expiry scan.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stash_deliveries_total",
		Help: "Link and search resolutions by kind and outcome.",
	}, []string{"kind", "outcome"})

	deliveryItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stash_delivery_items_total",
		Help: "Individual message copies by result.",
	}, []string{"result"})

	searchQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stash_search_queries_total",
		Help: "Keyword searches by result (none, single, list).",
	}, []string{"result"})

	broadcastRecipientsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stash_broadcast_recipients_total",
		Help: "Broadcast sends by result.",
	}, []string{"result"})

	sessionRemovalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stash_session_removals_total",
		Help: "Pending actions removed from the session tracker.",
	})

	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stash_uploads_total",
		Help: "Stored files and batches by kind.",
	}, []string{"kind"})
)
