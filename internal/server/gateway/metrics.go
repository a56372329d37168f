package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "securebox_uploads_total",
		Help: "Total file uploads.",
	})
	downloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "securebox_downloads_total",
		Help: "Total file downloads.",
	})
	uploadSizes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "securebox_file_size_bytes",
		Help:    "Sizes of uploaded files.",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})
)
