package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_scan_duration_seconds",
		Help:    "Time spent scanning the music directory",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	tracksIndexed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_tracks_indexed",
		Help: "Number of tracks in the published index",
	})

	filesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_files_skipped_total",
			Help: "Files left out of the index, by reason",
		},
		[]string{"reason"},
	)
)
