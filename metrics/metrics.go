package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-treerunner/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "treerunner"
)

var (
	Debug                bool = true
	terminalStatuses          = []types.NodeStatus{types.StatusPassed, types.StatusFailed, types.StatusSkipped}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	nodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "nodes_total",
		Help:      "Count of finished execution tree nodes",
	}, []string{
		"role",
		"status",
	})

	nodesRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "nodes_running",
		Help:      "Number of execution tree nodes currently running",
	}, []string{
		"role",
	})

	nodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "node_duration_seconds",
		Help:      "Time spent executing a node, hooks and children included",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{
		"role",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of runs by result",
	}, []string{
		"result",
	})

	runTests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_tests",
		Help:      "Test cases of the last run by result",
	}, []string{
		"result",
	})

	runDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the last run",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordNodeStarted tracks a node entering the running state
func RecordNodeStarted(role types.Role) {
	nodesRunning.WithLabelValues(role.String()).Inc()
}

// RecordNodeFinished tracks a node leaving the running state
func RecordNodeFinished(role types.Role, status types.NodeStatus, duration time.Duration) {
	if !isTerminal(status) {
		log.Error("RecordNodeFinished - invalid status", "status", status)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "nodes_total",
			"role", role,
			"status", status)
	}
	nodesRunning.WithLabelValues(role.String()).Dec()
	nodesTotal.WithLabelValues(role.String(), status.String()).Inc()
	nodeDuration.WithLabelValues(role.String()).Observe(duration.Seconds())
}

// RecordRun records the outcome of a complete run
func RecordRun(result types.NodeStatus, passed, failed, skipped int, duration time.Duration) {
	runsTotal.WithLabelValues(result.String()).Inc()
	runTests.WithLabelValues(types.StatusPassed.String()).Set(float64(passed))
	runTests.WithLabelValues(types.StatusFailed.String()).Set(float64(failed))
	runTests.WithLabelValues(types.StatusSkipped.String()).Set(float64(skipped))
	runDuration.Set(duration.Seconds())
}

func isTerminal(status types.NodeStatus) bool {
	return slices.Contains(terminalStatuses, status)
}
