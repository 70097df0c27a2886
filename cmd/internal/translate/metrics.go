package translate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expertly_translate_requests_total",
		Help: "Translation API requests by operation and outcome.",
	}, []string{"op", "outcome"})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "expertly_translate_breaker_state",
		Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
	})
)
