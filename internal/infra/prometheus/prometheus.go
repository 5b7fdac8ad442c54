package prometheus

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sifan077/PowerStash/config"
)

const (
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 10 * time.Second
	defaultPort       = 9090
)

// NewServer builds the /metrics server. Counters registered through promauto
// are served alongside extra, which is registered on the default registry
// here. Registering the same collector twice returns an error.
func NewServer(cfg config.PrometheusConfig, extra ...prometheus.Collector) (*http.Server, error) {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	for _, c := range extra {
		if err := prometheus.Register(c); err != nil {
			return nil, fmt.Errorf("prometheus: register collector: %w", err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}, nil
}

// BuildInfo reports the running version as a constant gauge.
func BuildInfo(version string) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "stash_build_info",
		Help:        "Always 1; the version label names the running build.",
		ConstLabels: prometheus.Labels{"version": version},
	}, func() float64 { return 1 })
}
