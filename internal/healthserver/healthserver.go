// Package healthserver exposes the engine process's liveness/readiness
// probes and Prometheus metrics over a small gorilla/mux router,
// independent of the pool server's peer-facing endpoints.
package healthserver

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ProbeStatus is the liveness/readiness response body.
type ProbeStatus struct {
	Live    bool   `json:"live"`
	Ready   bool   `json:"ready"`
	Message string `json:"message,omitempty"`
}

// Server tracks process liveness/readiness and serves them alongside the
// engine's Prometheus metrics.
type Server struct {
	startTime time.Time
	live      atomic.Bool
	ready     atomic.Bool

	router *mux.Router

	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	MutationsTotal    *prometheus.CounterVec
	PromotionsTotal   *prometheus.CounterVec
}

// New builds a Server with its metrics registered against registerer. A
// nil registerer uses prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *Server {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	s := &Server{
		startTime: time.Now(),
		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "sg_executions_total", Help: "Total gene executions by locus and outcome."},
			[]string{"locus", "outcome"},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sg_execution_duration_seconds",
				Help:    "Gene execution wall-clock duration in seconds.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"locus"},
		),
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "sg_mutations_total", Help: "Total mutation engine invocations by locus and outcome."},
			[]string{"locus", "outcome"},
		),
		PromotionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "sg_promotions_total", Help: "Total dominance promotions by locus."},
			[]string{"locus"},
		),
	}
	s.live.Store(true)

	hostCPU := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "sg_host_cpu_percent", Help: "Host CPU utilization percent, sampled at scrape time."},
		func() float64 { return sampleCPUPercent() },
	)
	hostMem := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "sg_host_memory_used_percent", Help: "Host memory utilization percent, sampled at scrape time."},
		func() float64 { return sampleMemoryPercent() },
	)

	registerer.MustRegister(s.ExecutionsTotal, s.ExecutionDuration, s.MutationsTotal, s.PromotionsTotal, hostCPU, hostMem)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadiness).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router = r

	return s
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetReady marks the engine ready (or not) to serve execute_locus traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// SetLive marks the engine process alive (or not).
func (s *Server) SetLive(live bool) {
	s.live.Store(live)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	status := ProbeStatus{Live: s.live.Load(), Ready: s.ready.Load()}
	if !status.Live {
		status.Message = "engine not live"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status := ProbeStatus{Live: s.live.Load(), Ready: s.ready.Load()}
	if !status.Ready {
		status.Message = "engine not ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

// Uptime reports how long the server has been running.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// sampleCPUPercent reports instantaneous, all-core CPU utilization. A
// gopsutil error (unsupported platform, /proc unavailable) degrades to 0
// rather than failing the scrape.
func sampleCPUPercent() float64 {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return 0
	}
	return percents[0]
}

// sampleMemoryPercent reports host memory utilization percent.
func sampleMemoryPercent() float64 {
	stat, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return stat.UsedPercent
}
