package metrics

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries const labels for the dispatch metrics.
type Config struct {
	ServiceName string
	Environment string
}

// DispatchMetrics captures command-dispatch health signals.
type DispatchMetrics struct {
	commandRuns     *prometheus.CounterVec
	commandErrors   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	unknownVerbs    prometheus.Counter
	queueDepth      *prometheus.GaugeVec
	filesRemade     *prometheus.CounterVec
}

var (
	dispatchMetricsOnce sync.Once
	dispatchMetrics     *DispatchMetrics
)

// Dispatch returns the singleton dispatch metrics registry.
func Dispatch() *DispatchMetrics {
	return DispatchWithConfig(Config{})
}

// DispatchWithConfig returns the singleton dispatch metrics registry using config labels.
func DispatchWithConfig(cfg Config) *DispatchMetrics {
	dispatchMetricsOnce.Do(func() {
		dispatchMetrics = newDispatchMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return dispatchMetrics
}

// ResetDispatchMetricsForTest resets the dispatch metrics singleton for tests.
func ResetDispatchMetricsForTest() {
	dispatchMetricsOnce = sync.Once{}
	dispatchMetrics = nil
}

func newDispatchMetrics(registerer prometheus.Registerer, cfg Config) *DispatchMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "doms"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	commandRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "doms_command_runs_total",
		Help:        "Dispatched queue commands by verb.",
		ConstLabels: constLabels,
	}, []string{"verb"})
	commandErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "doms_command_errors_total",
		Help:        "Failed queue commands by verb.",
		ConstLabels: constLabels,
	}, []string{"verb"})
	commandDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "doms_command_duration_seconds",
		Help:        "Queue command handler latency.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	}, []string{"verb"})
	unknownVerbs := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "doms_command_unknown_verbs_total",
		Help:        "Consumed commands whose verb had no registered handler.",
		ConstLabels: constLabels,
	})
	queueDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "doms_queue_depth",
		Help:        "Pending command files per queue namespace.",
		ConstLabels: constLabels,
	}, []string{"namespace"})
	filesRemade := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "doms_system_files_remade_total",
		Help:        "Generated system file rebuilds by artifact set.",
		ConstLabels: constLabels,
	}, []string{"set"})

	for _, collector := range []prometheus.Collector{
		commandRuns, commandErrors, commandDuration, unknownVerbs, queueDepth, filesRemade,
	} {
		if err := registerer.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}

	return &DispatchMetrics{
		commandRuns:     commandRuns,
		commandErrors:   commandErrors,
		commandDuration: commandDuration,
		unknownVerbs:    unknownVerbs,
		queueDepth:      queueDepth,
		filesRemade:     filesRemade,
	}
}

func (m *DispatchMetrics) IncCommandRun(verb string) {
	if m == nil {
		return
	}
	m.commandRuns.WithLabelValues(verb).Inc()
}

func (m *DispatchMetrics) IncCommandError(verb string) {
	if m == nil {
		return
	}
	m.commandErrors.WithLabelValues(verb).Inc()
}

func (m *DispatchMetrics) ObserveCommandDuration(verb string, d time.Duration) {
	if m == nil {
		return
	}
	m.commandDuration.WithLabelValues(verb).Observe(d.Seconds())
}

func (m *DispatchMetrics) IncUnknownVerb() {
	if m == nil {
		return
	}
	m.unknownVerbs.Inc()
}

func (m *DispatchMetrics) SetQueueDepth(namespace string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(namespace).Set(float64(depth))
}

func (m *DispatchMetrics) IncFilesRemade(set string) {
	if m == nil {
		return
	}
	m.filesRemade.WithLabelValues(set).Inc()
}
