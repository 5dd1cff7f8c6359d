package track_fields

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

var trackerMetricsOnce sync.Once

var (
	checksTotal      *prometheus.CounterVec
	checkDuration    *prometheus.HistogramVec
	runDuration      prometheus.Histogram
	lastRunTimestamp prometheus.Gauge
)

func registerHistogramVec(c *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
		log.Printf("prometheus histogram register failed: %v", err)
	}
	return c
}

func registerCountVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		log.Printf("prometheus counter register failed: %v", err)
	}
	return c
}

// InitMetrics registers the tracker metric vectors. Safe to call more than
// once, including from tests.
func InitMetrics() {
	trackerMetricsOnce.Do(func() {
		checksTotal = registerCountVec(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storewatch",
			Subsystem: "tracker",
			Name:      "checks_total",
			Help:      "Total number of store checks.",
		}, []string{"aggregator", "status", "result"}))

		checkDuration = registerHistogramVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storewatch",
			Subsystem: "tracker",
			Name:      "check_duration_seconds",
			Help:      "Duration of individual store checks.",
			Buckets:   []float64{1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
		}, []string{"aggregator", "result"}))

		runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storewatch",
			Subsystem: "tracker",
			Name:      "run_duration_seconds",
			Help:      "Duration of full tracker cycles.",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 900, 1800},
		})
		if err := prometheus.Register(runDuration); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(prometheus.Histogram); ok {
					runDuration = existing
				}
			} else {
				log.Printf("prometheus histogram register failed: %v", err)
			}
		}

		lastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "storewatch",
			Subsystem: "tracker",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed cycle.",
		})
		if err := prometheus.Register(lastRunTimestamp); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(prometheus.Gauge); ok {
					lastRunTimestamp = existing
				}
			} else {
				log.Printf("prometheus gauge register failed: %v", err)
			}
		}
	})
}

// RecordCheck updates the per-check metrics.
func RecordCheck(aggregator, status string, err error, duration time.Duration) {
	if checksTotal == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
		status = "error"
	}
	checksTotal.WithLabelValues(aggregator, status, result).Inc()
	checkDuration.WithLabelValues(aggregator, result).Observe(duration.Seconds())
}

// RecordRun updates the per-cycle metrics.
func RecordRun(duration time.Duration, finished time.Time) {
	if runDuration == nil {
		return
	}
	runDuration.Observe(duration.Seconds())
	lastRunTimestamp.Set(float64(finished.Unix()))
}
