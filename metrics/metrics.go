package metrics

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Config contains the Prometheus endpoint settings.
type Config struct {
	Addr        string `envconfig:"METRICS_ADDR"`                      // host:port, empty disables the endpoint
	ReadTimeout int    `envconfig:"METRICS_READ_TIMEOUT" default:"30"` // seconds
}

// Enabled reports whether an address is configured.
func (c Config) Enabled() bool {
	return c.Addr != ""
}

// Metrics serves the otel meters of the process on /metrics.
type Metrics struct {
	config   Config
	registry *prometheus.Registry
	server   *http.Server
	provider *sdkmetric.MeterProvider
	addr     net.Addr
}

// InitDefault starts the endpoint when config is enabled. The returned closer
// is a no-op otherwise.
func InitDefault(config Config) (io.Closer, error) {
	if !config.Enabled() {
		return nopCloser{}, nil
	}

	provider := New(config)
	if err := provider.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start metrics server")
	}

	return provider, nil
}

// New creates Metrics with its own registry.
func New(config Config) *Metrics {
	registry := prometheus.NewRegistry()
	return &Metrics{
		config:   config,
		registry: registry,
		server:   NewHttpServer(config, registry),
	}
}

// Start installs the global meter provider and serves /metrics in background.
func (s *Metrics) Start() error {
	provider, err := InitPrometheus(s.registry)
	if err != nil {
		return errors.Wrap(err, "failed to init prometheus")
	}

	l, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return errors.Wrapf(err, "failed to listen on %s", s.config.Addr)
	}
	s.provider = provider
	s.addr = l.Addr()

	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Default().Warn("metrics server failed", "error", err.Error())
		}
	}()

	return nil
}

// Addr returns the bound address, nil before Start.
func (s *Metrics) Addr() net.Addr {
	return s.addr
}

// Close stops the server and flushes the meter provider.
func (s *Metrics) Close() error {
	if err := s.server.Close(); err != nil {
		return errors.Wrap(err, "failed to close metrics")
	}
	if s.provider == nil {
		return nil
	}
	return errors.Wrap(s.provider.Shutdown(context.Background()), "failed to shutdown meter provider")
}

// NewHttpServer exposes gatherer on /metrics.
func NewHttpServer(conf Config, gatherer prometheus.Gatherer) *http.Server {
	r := http.NewServeMux()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:        conf.Addr,
		Handler:     r,
		ReadTimeout: time.Duration(conf.ReadTimeout) * time.Second,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
