package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapdoc",
		Subsystem: "worker",
		Name:      "batches_total",
		Help:      "Finished batches by outcome.",
	}, []string{"outcome"})

	pagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "snapdoc",
		Subsystem: "worker",
		Name:      "pages_processed_total",
		Help:      "Images that made it into a document.",
	})

	pagesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "snapdoc",
		Subsystem: "worker",
		Name:      "pages_skipped_total",
		Help:      "Images dropped from a batch as unreadable.",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "snapdoc",
		Subsystem: "worker",
		Name:      "batch_duration_seconds",
		Help:      "Wall time from marker pickup to published document.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	outputBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "snapdoc",
		Subsystem: "worker",
		Name:      "output_bytes",
		Help:      "Size of published documents.",
		Buckets:   prometheus.ExponentialBuckets(64<<10, 2, 10),
	})
)

func observeBatch(resp Response) {
	outcome := "success"
	if !resp.Success {
		outcome = resp.Error
	}
	batchesTotal.WithLabelValues(outcome).Inc()
	batchDuration.Observe(float64(resp.DurationMS) / 1000)
	if resp.Success {
		pagesProcessed.Add(float64(resp.PageCount))
		outputBytes.Observe(float64(resp.SizeBytes))
	}
}
