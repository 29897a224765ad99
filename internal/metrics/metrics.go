// Package metrics instruments the planner and the OpenStack adapter with
// Prometheus collectors. Nothing in this module requires a running
// registry: NoopRecorder is a fully functional, side-effect-free Recorder,
// and planner.New and openstacksource.New fall back to it when given nil.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the instrumentation surface the planner and adapter call
// into. A caller that never constructs a Registry still gets a working
// planner via NoopRecorder.
type Recorder interface {
	IterationAccepted()
	MigrationsPlanned(n int)
	BufferInserted()
	PlanInfeasible()
	AdapterRequest(resource string, d time.Duration)
}

// NoopRecorder discards every observation.
type NoopRecorder struct{}

func (NoopRecorder) IterationAccepted()                             {}
func (NoopRecorder) MigrationsPlanned(int)                          {}
func (NoopRecorder) BufferInserted()                                {}
func (NoopRecorder) PlanInfeasible()                                 {}
func (NoopRecorder) AdapterRequest(resource string, d time.Duration) {}

// Registry is a Recorder backed by real Prometheus collectors, grounded on
// cobaltcore-dev-cortex's mon.PipelineRequestTimer pattern.
type Registry struct {
	plannerIterations  prometheus.Counter
	migrationsPlanned  prometheus.Counter
	bufferInsertions   prometheus.Counter
	planInfeasible     prometheus.Counter
	adapterRequestTime *prometheus.HistogramVec
}

// NewRegistry constructs collectors and registers them against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		plannerIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hyperbalance_planner_iterations_total",
			Help: "Outer-loop iterations that accepted a hypervisor mix.",
		}),
		migrationsPlanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hyperbalance_migrations_planned_total",
			Help: "Migrations emitted by the planner across all runs.",
		}),
		bufferInsertions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hyperbalance_buffer_insertions_total",
			Help: "Auxiliary buffer migrations inserted to free capacity en route.",
		}),
		planInfeasible: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hyperbalance_plan_infeasible_total",
			Help: "Batches abandoned because no buffer could be found.",
		}),
		adapterRequestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "hyperbalance_adapter_request_duration_seconds",
			Help: "Duration of inventory-source requests, by resource.",
		}, []string{"resource"}),
	}
	reg.MustRegister(r.plannerIterations, r.migrationsPlanned, r.bufferInsertions, r.planInfeasible, r.adapterRequestTime)
	return r
}

func (r *Registry) IterationAccepted()    { r.plannerIterations.Inc() }
func (r *Registry) MigrationsPlanned(n int) { r.migrationsPlanned.Add(float64(n)) }
func (r *Registry) BufferInserted()       { r.bufferInsertions.Inc() }
func (r *Registry) PlanInfeasible()       { r.planInfeasible.Inc() }
func (r *Registry) AdapterRequest(resource string, d time.Duration) {
	r.adapterRequestTime.WithLabelValues(resource).Observe(d.Seconds())
}
