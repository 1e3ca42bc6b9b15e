package vault

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UploadsTotal counts upload operations.
	// Labels: result (success, error)
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vaultd",
			Subsystem: "vault",
			Name:      "uploads_total",
			Help:      "Total number of file upload operations",
		},
		[]string{"result"},
	)

	// DownloadsTotal counts download operations.
	// Labels: result (success, error)
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vaultd",
			Subsystem: "vault",
			Name:      "downloads_total",
			Help:      "Total number of file download operations",
		},
		[]string{"result"},
	)

	// DeletesTotal counts delete operations.
	// Labels: result (success, error)
	DeletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vaultd",
			Subsystem: "vault",
			Name:      "deletes_total",
			Help:      "Total number of file delete operations",
		},
		[]string{"result"},
	)

	// BytesStored tracks total bytes held across all tenant folders.
	BytesStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vaultd",
			Subsystem: "vault",
			Name:      "bytes_stored",
			Help:      "Total bytes currently stored across all tenant folders",
		},
	)

	// AccessDenialsTotal counts failed access checks.
	AccessDenialsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vaultd",
			Subsystem: "vault",
			Name:      "access_denials_total",
			Help:      "Total number of denied access checks",
		},
	)

	// IndexingFailuresTotal counts uploads whose indexing failed.
	IndexingFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vaultd",
			Subsystem: "vault",
			Name:      "indexing_failures_total",
			Help:      "Total number of uploads with failed knowledge indexing",
		},
	)
)
