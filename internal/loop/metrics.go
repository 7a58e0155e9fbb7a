package loop

import "github.com/prometheus/client_golang/prometheus"

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pumpd",
			Subsystem: "loop",
			Name:      "cycles_total",
			Help:      "Total loop cycles by terminal status",
		},
		[]string{"status"},
	)

	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pumpd",
			Subsystem: "loop",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of loop cycles in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	actuationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pumpd",
			Subsystem: "pump",
			Name:      "actuations_total",
			Help:      "Total pump actuations by kind and result",
		},
		[]string{"kind", "result"},
	)

	bolusProgressGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pumpd",
			Subsystem: "pump",
			Name:      "bolus_progress",
			Help:      "Bolus delivery progress (0..1), 0 when idle",
		},
	)
)

func init() {
	prometheus.MustRegister(cyclesTotal, cycleDuration, actuationsTotal, bolusProgressGauge)
}

func observeActuation(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	actuationsTotal.WithLabelValues(kind, result).Inc()
}
