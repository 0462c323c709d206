package challenge

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Issued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botcha_challenges_issued",
		Help: "The total number of challenges issued",
	}, []string{"kind"})

	Validated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botcha_challenges_validated",
		Help: "The total number of challenge answers checked, by result",
	}, []string{"kind", "result"})

	Swept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botcha_challenges_swept",
		Help: "The total number of expired challenges removed by the sweeper",
	})

	TimeTaken = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "botcha_time_taken",
		Help:    "The time taken for an agent to answer a challenge (milliseconds)",
		Buckets: prometheus.ExponentialBucketsRange(1, math.Pow(2, 14), 15),
	}, []string{"kind"})
)
