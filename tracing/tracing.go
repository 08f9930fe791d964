package tracing

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var _ Provider = (*OTLPProvider)(nil)

type Provider interface {
	trace.TracerProvider
	io.Closer
}

// Config contains the OTLP/HTTP exporter settings.
type Config struct {
	Endpoint    string `envconfig:"TRACING_ENDPOINT"` // e.g. http://localhost:4318/v1/traces, empty disables tracing
	ServiceName string `envconfig:"SERVICE_NAME" default:"mailbatch"`
	AppVersion  string `envconfig:"APP_VERSION" default:"dev"`
}

// ProviderBuilder wrap all realization details of constructor (ex. config struct)
type ProviderBuilder func() (Provider, error)

// InitDefault installs an OTLP provider for conf, or a noop one when no endpoint is set.
func InitDefault(conf Config) (Provider, error) {
	if conf.Endpoint == "" {
		return &NoopProvider{}, nil
	}
	return Init(NewProviderBuilder(conf))
}

// Init installs the provider built by creator as global. A failing creator
// yields a NoopProvider together with the error.
func Init(creator ProviderBuilder) (Provider, error) {
	provider, err := creator()
	if err != nil {
		return &NoopProvider{}, errors.Wrap(err, "failed to load tracing provider")
	}

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return provider, nil
}

type NoopProvider struct{ noop.TracerProvider }

func (NoopProvider) Close() error { return nil }

// OTLPProvider extends tracesdk.TracerProvider with an OTLP/HTTP exporter.
type OTLPProvider struct {
	*tracesdk.TracerProvider
}

func (p *OTLPProvider) Close() error {
	ctx := context.Background()
	if err := p.ForceFlush(ctx); err != nil {
		// shutdown anyway to stop the batcher
		if shutdownErr := p.Shutdown(ctx); shutdownErr != nil {
			return errors.Wrap(err, "otlp force flush failed (also shutdown failed)")
		}
		return errors.Wrap(err, "otlp force flush failed")
	}

	return errors.Wrap(p.Shutdown(ctx), "shutdown otlp")
}

// NewProviderBuilder returns a builder of an always-sampling OTLP/HTTP provider.
func NewProviderBuilder(conf Config) ProviderBuilder {
	return func() (Provider, error) {
		if conf.Endpoint == "" {
			return nil, errors.New("empty connection string")
		}
		if conf.ServiceName == "" {
			return nil, errors.New("service name is empty")
		}

		exp, err := otlptrace.New(
			context.Background(),
			otlptracehttp.NewClient(
				otlptracehttp.WithEndpointURL(conf.Endpoint),
			),
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create otlp exporter")
		}

		tp := tracesdk.NewTracerProvider(
			tracesdk.WithBatcher(exp),
			tracesdk.WithResource(resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceNameKey.String(conf.ServiceName),
				semconv.ServiceVersionKey.String(conf.AppVersion),
			)),
			tracesdk.WithSampler(tracesdk.AlwaysSample()),
		)

		return &OTLPProvider{TracerProvider: tp}, nil
	}
}
