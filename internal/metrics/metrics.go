// Package metrics provides Prometheus metrics for the masterlist server.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the Prometheus registry serving /metrics.
	Registry = prometheus.NewRegistry()

	initOnce sync.Once
	initErr  error
)

// Init registers every collector with Registry. Repeated calls are no-ops.
func Init() error {
	initOnce.Do(func() {
		initErr = register(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if initErr != nil {
			return
		}
		if initErr = registerHTTPMetrics(); initErr != nil {
			return
		}
		initErr = registerRegistryMetrics()
	})
	return initErr
}

// MustInit initializes metrics and panics on error.
func MustInit() {
	if err := Init(); err != nil {
		panic("failed to initialize metrics: " + err.Error())
	}
}

func register(cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := Registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
