package observability

import (
	"net/http"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts feed requests by method, route, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_http_requests_total",
			Help: "Total number of HTTP requests by method, route, and status",
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestDuration tracks feed request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to 16s
		},
		[]string{"method", "route"},
	)

	// PackageUploadsTotal counts uploads by outcome
	PackageUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_package_uploads_total",
			Help: "Total number of package uploads by outcome",
		},
		[]string{"outcome"}, // success, rejected, failure
	)

	// PackageUploadBytes tracks uploaded archive sizes
	PackageUploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feed_package_upload_bytes",
			Help:    "Uploaded archive size in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB to 256MiB
		},
	)

	// PackageDownloadsTotal counts archive downloads by package id
	PackageDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_package_downloads_total",
			Help: "Total number of archive downloads by package id",
		},
		[]string{"package_id"},
	)

	// PackageDeletionsTotal counts deletions by outcome
	PackageDeletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_package_deletions_total",
			Help: "Total number of version deletions by outcome",
		},
		[]string{"outcome"}, // success, blocked, failure
	)

	// DBQueryDuration tracks database transaction duration in seconds
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to 4s
		},
		[]string{"operation"},
	)

	// FeedPackagesTotal tracks the number of live packages
	FeedPackagesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_packages_total",
			Help: "Current number of packages in the feed",
		},
	)

	// FeedVersionsTotal tracks the number of live package versions
	FeedVersionsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_package_versions_total",
			Help: "Current number of package versions in the feed",
		},
	)
)

// RecordDownload counts one archive download.
func RecordDownload(packageID string) {
	PackageDownloadsTotal.WithLabelValues(packageID).Inc()
}

// SetFeedSize updates the package and version count gauges.
func SetFeedSize(packages, versions int64) {
	FeedPackagesTotal.Set(float64(packages))
	FeedVersionsTotal.Set(float64(versions))
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// GetCounterValue retrieves the current value of a counter metric with the given labels
// This is primarily intended for testing
func GetCounterValue(counter *prometheus.CounterVec, labels ...string) (float64, error) {
	metric, err := counter.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0, err
	}

	// Write metric to a DTO to read its value
	var pb dto.Metric
	if err := metric.Write(&pb); err != nil {
		return 0, err
	}

	if pb.Counter != nil {
		return pb.Counter.GetValue(), nil
	}

	return 0, nil
}

// GetHistogramSampleCount retrieves the observation count of a histogram
// metric with the given labels. This is primarily intended for testing
func GetHistogramSampleCount(hist *prometheus.HistogramVec, labels ...string) (uint64, error) {
	observer, err := hist.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0, err
	}

	var pb dto.Metric
	if err := observer.(prometheus.Metric).Write(&pb); err != nil {
		return 0, err
	}

	if pb.Histogram != nil {
		return pb.Histogram.GetSampleCount(), nil
	}

	return 0, nil
}

// GetGaugeValue retrieves the current value of a gauge metric.
// This is primarily intended for testing
func GetGaugeValue(gauge prometheus.Gauge) (float64, error) {
	var pb dto.Metric
	if err := gauge.Write(&pb); err != nil {
		return 0, err
	}

	if pb.Gauge != nil {
		return pb.Gauge.GetValue(), nil
	}

	return 0, nil
}
