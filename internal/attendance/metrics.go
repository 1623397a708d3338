package attendance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkInsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schedoosh_checkins_total",
		Help: "Successful class check-ins.",
	})
	missesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schedoosh_misses_total",
		Help: "Occurrences scored as missed.",
	})
	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedoosh_scan_duration_seconds",
		Help:    "Duration of one scorer pass over all enabled classes.",
		Buckets: prometheus.DefBuckets,
	})
)
