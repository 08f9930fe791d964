package mail

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailbatch/logger"
)

// SleepFunc pauses between two sends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// BatchSenderOptions contains options for creating a BatchSender.
type BatchSenderOptions struct {
	Delay  time.Duration    // pause after every sent email
	Loader AttachmentLoader // FileLoader when nil
	Logger *slog.Logger     // logger from context when nil
	Sleep  SleepFunc        // context-aware timer when nil
}

// BatchSender sends a batch of jobs over one Session per call.
type BatchSender struct {
	from      string
	connector Connector
	delay     time.Duration
	loader    AttachmentLoader
	logger    *slog.Logger
	sleep     SleepFunc
}

// NewBatchSender creates a BatchSender sending as from through connector.
func NewBatchSender(from string, connector Connector, options *BatchSenderOptions) *BatchSender {
	if options == nil {
		options = &BatchSenderOptions{}
	}

	s := &BatchSender{
		from:      from,
		connector: connector,
		delay:     options.Delay,
		loader:    options.Loader,
		logger:    options.Logger,
		sleep:     options.Sleep,
	}
	if s.loader == nil {
		s.loader = FileLoader{}
	}
	if s.sleep == nil {
		s.sleep = Sleep
	}
	if s.delay < 0 {
		s.delay = 0
	}

	return s
}

// SendEmails opens a session, sends every complete job in insertion order and
// closes the session. Incomplete jobs are reported and skipped; any other
// failure aborts the batch.
func (s *BatchSender) SendEmails(ctx context.Context, batch *Batch) (err error) {
	ctx, span := tracer.Start(ctx, "mail.SendEmails", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	batchID := uuid.NewString()
	log := s.loggerFor(ctx).With("batch_id", batchID)

	span.SetAttributes(
		attribute.String("mail.batch_id", batchID),
		attribute.Int("mail.jobs", batch.Len()),
		attribute.Int64("mail.delay_ms", s.delay.Milliseconds()),
	)

	start := time.Now()
	defer func() {
		recordBatch(ctx, time.Since(start), err)
		if err != nil {
			recordError(span, err)
			return
		}
		span.SetStatus(codes.Ok, "")
	}()

	session, err := s.connector.Connect(ctx)
	if err != nil {
		if _, ok := CodeOf(err); !ok {
			err = NewError(CodeConnection, "failed to open session", err)
		}
		return err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			if err == nil {
				err = pkgerrors.Wrap(closeErr, "failed to close session")
				return
			}
			log.Warn("failed to close session", "error", closeErr.Error())
		}
	}()

	for label, job := range batch.All() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return pkgerrors.Wrap(ctxErr, "batch interrupted")
		}

		if invalid := job.Validate(); invalid != nil {
			log.Warn("incomplete arguments, skipping", "label", label, "missing", job.Missing())
			recordEmail(ctx, statusSkipped)
			continue
		}

		if sendErr := s.send(ctx, session, label, job); sendErr != nil {
			recordEmail(ctx, statusFailed)
			return sendErr
		}
		recordEmail(ctx, statusSent)
		log.Info("email sent", "label", label, "to", job.Receiver)

		if sleepErr := s.sleep(ctx, s.delay); sleepErr != nil {
			return pkgerrors.Wrap(sleepErr, "batch interrupted")
		}
	}

	return nil
}

func (s *BatchSender) send(ctx context.Context, session Session, label string, job Job) error {
	ctx, span := tracer.Start(ctx, "mail.SendEmail")
	defer span.End()

	span.SetAttributes(
		attribute.String("mail.label", label),
		attribute.Int("mail.attachments", len(job.Attachments)),
		attribute.Bool("mail.cc", len(job.Cc) > 0),
		attribute.Bool("mail.bcc", len(job.Bcc) > 0),
	)

	email, err := Compose(ctx, s.from, job, s.loader)
	if err != nil {
		err = withLabel(err, label, CodeAttachmentRead)
		recordError(span, err)
		return err
	}

	if err := session.Send(ctx, email); err != nil {
		err = withLabel(err, label, CodeTransmission)
		recordError(span, err)
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *BatchSender) loggerFor(ctx context.Context) *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return logger.FromContext(ctx)
}

// withLabel attaches label to err, classifying foreign errors as code.
func withLabel(err error, label string, code ErrorCode) error {
	var mailErr *Error
	if errors.As(err, &mailErr) {
		if mailErr.Label != "" {
			return err
		}
		labelled := *mailErr
		labelled.Label = label
		return &labelled
	}

	return &Error{Code: code, Message: "failed to send email", Label: label, Err: err}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
