package metrics

import (
	"context"
	"math/big"
	"net/http"
	"sync"
	"time"

	"referral-network-indexer/internal/domain/entity"

	"github.com/axiomhq/hyperloglog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "referral_indexer"

// Recorder exports traversal metrics and keeps a distinct-referee estimate
// across every committed profile
type Recorder struct {
	registry *prometheus.Registry

	builds        *prometheus.CounterVec
	buildDuration prometheus.Histogram
	nodes         prometheus.Histogram
	levels        prometheus.Histogram
	truncations   prometheus.Counter
	distinctGauge prometheus.Gauge
	networkStaked prometheus.Gauge

	mu       sync.Mutex
	referees *hyperloglog.Sketch
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_builds_total",
			Help:      "Profile builds by result",
		}, []string{"result"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "profile_build_duration_seconds",
			Help:      "Wall time of one profile build",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		nodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "profile_nodes",
			Help:      "Referral network nodes per committed profile",
			Buckets:   []float64{0, 1, 10, 50, 100, 250, 500, 1000, 2000},
		}),
		levels: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "profile_levels",
			Help:      "Levels traversed per committed profile",
			Buckets:   prometheus.LinearBuckets(0, 1, 16),
		}),
		truncations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_truncations_total",
			Help:      "Committed profiles cut short by the node budget",
		}),
		distinctGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "distinct_referees_estimate",
			Help:      "Estimated distinct referees seen across all profiles",
		}),
		networkStaked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_network_total_staked",
			Help:      "Network total staked of the last committed profile, in base units",
		}),
		referees: hyperloglog.New14(),
	}

	r.registry.MustRegister(
		r.builds,
		r.buildDuration,
		r.nodes,
		r.levels,
		r.truncations,
		r.distinctGauge,
		r.networkStaked,
	)
	return r
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveBuild implements service.BuildObserver
func (r *Recorder) ObserveBuild(root entity.Address, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.builds.WithLabelValues(result).Inc()
	r.buildDuration.Observe(elapsed.Seconds())
}

// Name implements service.ProfileHook
func (r *Recorder) Name() string {
	return "metrics"
}

// HandleProfile implements service.ProfileHook
func (r *Recorder) HandleProfile(ctx context.Context, profile *entity.Profile) error {
	r.nodes.Observe(float64(profile.TotalNodes))
	r.levels.Observe(float64(len(profile.Levels)))
	if profile.Truncated {
		r.truncations.Inc()
	}
	if profile.NetworkTotalStaked != nil {
		staked, _ := new(big.Float).SetInt(profile.NetworkTotalStaked).Float64()
		r.networkStaked.Set(staked)
	}

	r.mu.Lock()
	for _, level := range profile.Levels {
		for _, row := range level.Rows {
			r.referees.Insert([]byte(row.Address))
		}
	}
	estimate := r.referees.Estimate()
	r.mu.Unlock()

	r.distinctGauge.Set(float64(estimate))
	return nil
}

// DistinctReferees returns the current distinct-referee estimate
func (r *Recorder) DistinctReferees() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.referees.Estimate()
}
