package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operational metrics exposed on the CLI's --metrics-addr endpoint. All are
// registered against the default registry so promhttp.Handler picks them up
// without any explicit wiring at the call site.
var (
	metricElementsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "buildcore",
		Subsystem: "scheduler",
		Name:      "elements_finished_total",
		Help:      "Elements that left the pipeline, by outcome (success or failed; propagated dependency failures count as failed).",
	}, []string{"outcome"})

	metricJobsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "buildcore",
		Subsystem: "scheduler",
		Name:      "jobs_in_flight",
		Help:      "Jobs currently dispatched to a worker, per queue.",
	}, []string{"queue"})

	metricJobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "buildcore",
		Subsystem: "scheduler",
		Name:      "jobs_processed_total",
		Help:      "Worker completions handed back to the scheduler, per queue.",
	}, []string{"queue"})
)
