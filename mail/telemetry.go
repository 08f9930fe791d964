package mail

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/pure-golang/mailbatch/mail"

const (
	statusSent    = "sent"
	statusSkipped = "skipped"
	statusFailed  = "failed"
)

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)

	// emailsTotal counts processed jobs by outcome
	emailsTotal, _ = meter.Int64Counter(
		"mailbatch.emails",
		metric.WithDescription("Jobs processed by outcome"),
	)

	// batchDuration records wall time of SendEmails, pacing included
	batchDuration, _ = meter.Float64Histogram(
		"mailbatch.batch.duration",
		metric.WithDescription("Duration of batch sends"),
		metric.WithUnit("s"),
	)
)

func recordEmail(ctx context.Context, status string) {
	emailsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func recordBatch(ctx context.Context, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		if code, ok := CodeOf(err); ok {
			status = string(code)
		}
	}
	batchDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

func recordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
