package webbotauth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botcha_signature_verifications",
		Help: "The total number of Web Bot Auth verifications, by result",
	}, []string{"result"})

	DirectoryFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "botcha_directory_fetch_duration_seconds",
		Help:    "How long agent directory fetches took",
		Buckets: prometheus.DefBuckets,
	})
)
