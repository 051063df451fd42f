// Package metrics exposes reconciliation outcomes as Prometheus metrics.
//
// A Recorder owns its registry, so several recorders can coexist in tests.
// All methods are safe on a nil *Recorder, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/reconcile"
)

const namespace = "keen_netstate"

// Operation names used as the "operation" label.
const (
	OperationPlan   = "plan"
	OperationApply  = "apply"
	OperationVerify = "verify"
)

// ResultSuccess is the "result" label of operations that did not fail.
const ResultSuccess = "success"

type Recorder struct {
	registry *prometheus.Registry

	operations    *prometheus.CounterVec
	planSize      *prometheus.GaugeVec
	applyDuration prometheus.Histogram
	applyRetries  prometheus.Counter
	rollbacks     *prometheus.CounterVec
	lastSuccess   prometheus.Gauge
}

// NewRecorder creates a recorder with its own registry, including the Go
// runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Number of plan, apply and verify operations by result. Failed operations are labeled with their error kind.",
		}, []string{"operation", "result"}),
		planSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_plan_entries",
			Help:      "Number of entries of the last computed plan by section.",
		}, []string{"section"}),
		applyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "apply_duration_seconds",
			Help:      "Time from checkpoint creation to commit or rollback.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		applyRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apply_retries_total",
			Help:      "Number of repeated plan applications after transient backend failures.",
		}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Number of checkpoint rollbacks by the error kind that caused them.",
		}, []string{"reason"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_apply_timestamp_seconds",
			Help:      "Unix time of the last committed apply.",
		}),
	}

	r.registry.MustRegister(
		r.operations,
		r.planSize,
		r.applyDuration,
		r.applyRetries,
		r.rollbacks,
		r.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry the recorder's metrics live in.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.InstrumentMetricHandler(r.registry,
		promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
}

// ObserveOperation counts one finished operation.
func (r *Recorder) ObserveOperation(operation string, err error) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(operation, resultOf(err)).Inc()
}

// ObservePlan records the size of plan.
func (r *Recorder) ObservePlan(plan *reconcile.Plan) {
	if r == nil || plan == nil {
		return
	}
	r.planSize.WithLabelValues("add").Set(float64(len(plan.Add)))
	r.planSize.WithLabelValues("change").Set(float64(len(plan.Change)))
	r.planSize.WithLabelValues("delete").Set(float64(len(plan.Delete)))
	r.planSize.WithLabelValues("routes").Set(float64(len(plan.Routes)))
	r.planSize.WithLabelValues("rules").Set(float64(len(plan.Rules)))
}

// ObserveApply records a finished apply that took attempts tries.
func (r *Recorder) ObserveApply(d time.Duration, attempts int, err error) {
	if r == nil {
		return
	}
	r.applyDuration.Observe(d.Seconds())
	if attempts > 1 {
		r.applyRetries.Add(float64(attempts - 1))
	}
	if err == nil {
		r.lastSuccess.SetToCurrentTime()
	}
}

// ObserveRollback counts a rollback caused by cause.
func (r *Recorder) ObserveRollback(cause error) {
	if r == nil {
		return
	}
	r.rollbacks.WithLabelValues(resultOf(cause)).Inc()
}

func resultOf(err error) string {
	if err == nil {
		return ResultSuccess
	}
	return string(errors.KindOf(err))
}
