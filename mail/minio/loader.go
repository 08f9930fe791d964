package minio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailbatch/mail"
)

var (
	_ mail.AttachmentLoader = (*Loader)(nil)
	_ io.Closer             = (*Loader)(nil)
)

var tracer = otel.Tracer("github.com/pure-golang/mailbatch/mail/minio")

// LoaderOptions contains options for creating a Loader.
type LoaderOptions struct {
	Logger *slog.Logger
}

// Loader reads attachments referenced as s3://bucket/key.
type Loader struct {
	client  *minio.Client
	maxSize int64
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewLoader connects to the configured endpoint and checks it by listing buckets.
func NewLoader(cfg Config, options *LoaderOptions) (*Loader, error) {
	if !cfg.Enabled() {
		return nil, mail.NewError(mail.CodeConfig, "missing S3_ENDPOINT", nil)
	}

	secure := cfg.Secure
	if cfg.InsecureSkipVerify {
		secure = false
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Region: cfg.Region,
		Secure: secure,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create S3 client")
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if _, err := client.ListBuckets(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to connect to S3 storage")
	}

	l := NewLoaderFromClient(client, cfg.MaxSize, options)
	l.logger.Info("S3 attachment loader initialized", "endpoint", cfg.Endpoint, "region", cfg.Region)
	return l, nil
}

// NewLoaderFromClient wraps an existing client. maxSize <= 0 means DefaultMaxSize.
func NewLoaderFromClient(client *minio.Client, maxSize int64, options *LoaderOptions) *Loader {
	if options == nil {
		options = &LoaderOptions{}
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	return &Loader{
		client:  client,
		maxSize: maxSize,
		logger:  options.Logger.WithGroup("s3"),
	}
}

// Load downloads the object at ref. The attachment is named after the last key segment.
func (l *Loader) Load(ctx context.Context, ref string) (mail.Attachment, error) {
	ctx, span := tracer.Start(ctx, "S3.GetAttachment", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(attribute.String("s3.ref", ref))

	attachment, err := l.load(ctx, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return mail.Attachment{}, &mail.Error{
			Code:    mail.CodeAttachmentRead,
			Message: "failed to read attachment " + ref,
			Err:     err,
		}
	}

	span.SetAttributes(attribute.Int("s3.size", len(attachment.Data)))
	span.SetStatus(codes.Ok, "")
	return attachment, nil
}

func (l *Loader) load(ctx context.Context, raw string) (mail.Attachment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return mail.Attachment{}, ErrClosed
	}

	ref, err := ParseRef(raw)
	if err != nil {
		return mail.Attachment{}, err
	}

	obj, err := l.client.GetObject(ctx, ref.Bucket, ref.Key, minio.GetObjectOptions{})
	if err != nil {
		return mail.Attachment{}, toLoadError(err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return mail.Attachment{}, toLoadError(err)
	}
	if info.Size > l.maxSize {
		return mail.Attachment{}, errors.Wrapf(ErrTooLarge, "%d bytes", info.Size)
	}

	data, err := io.ReadAll(io.LimitReader(obj, l.maxSize+1))
	if err != nil {
		return mail.Attachment{}, toLoadError(err)
	}
	if int64(len(data)) > l.maxSize {
		return mail.Attachment{}, ErrTooLarge
	}

	l.logger.Debug("attachment downloaded", "bucket", ref.Bucket, "key", ref.Key, "size", len(data))
	return mail.Attachment{Name: ref.Name(), Data: data}, nil
}

// Close marks the loader closed. minio.Client holds no connection to release.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.logger.Info("S3 attachment loader closed")
	return nil
}
