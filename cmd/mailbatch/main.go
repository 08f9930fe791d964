package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/pure-golang/mailbatch/env"
	"github.com/pure-golang/mailbatch/logger"
	"github.com/pure-golang/mailbatch/mail"
	"github.com/pure-golang/mailbatch/mail/minio"
	"github.com/pure-golang/mailbatch/mail/noop"
	"github.com/pure-golang/mailbatch/mail/smtp"
	"github.com/pure-golang/mailbatch/metrics"
	"github.com/pure-golang/mailbatch/tracing"
)

// Config is everything read from the environment.
type Config struct {
	Logger  logger.Config
	SMTP    smtp.Config
	S3      minio.Config
	Metrics metrics.Config
	Tracing tracing.Config
}

// dryRunSender replaces the SMTP settings on a dry run.
type dryRunSender struct {
	Sender string `envconfig:"SENDER" default:"dry-run@localhost"`
}

type options struct {
	batch   string
	delay   time.Duration
	dryRun  bool
	envFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "mailbatch:", err)
		}
		os.Exit(1)
	}
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("mailbatch", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.batch, "batch", "", "YAML or JSON file mapping labels to jobs")
	fs.DurationVar(&opts.delay, "delay", 0, "pause after every sent email, e.g. 2s")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "compose every email without connecting to a server")
	fs.StringVar(&opts.envFile, "env", env.DefaultEnvFile, "dotenv file read before the environment")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.batch == "" {
		return opts, pkgerrors.New("-batch is required")
	}
	if opts.delay < 0 {
		return opts, pkgerrors.Errorf("-delay must not be negative, got %s", opts.delay)
	}

	return opts, nil
}

func run(ctx context.Context, args []string, output io.Writer) error {
	opts, err := parseFlags(args, output)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Logger, output)
	slog.SetDefault(log)
	ctx = logger.NewContext(ctx, log)

	metricsCloser, err := metrics.InitDefault(cfg.Metrics)
	if err != nil {
		return err
	}
	defer closeLogged("metrics", metricsCloser)

	tracer, err := tracing.InitDefault(cfg.Tracing)
	if err != nil {
		log.Warn("tracing disabled", "error", err.Error())
	}
	defer closeLogged("tracing", tracer)

	loader, closeLoader, err := newLoader(cfg.S3, log)
	if err != nil {
		return err
	}
	defer closeLoader()

	batch, err := mail.LoadBatchFile(opts.batch)
	if err != nil {
		return err
	}

	sender, err := newSender(cfg, opts, loader, log)
	if err != nil {
		return err
	}

	log.Info("sending batch", "file", opts.batch, "jobs", batch.Len(), "dry_run", opts.dryRun)
	return sender.SendEmails(ctx, batch)
}

// loadConfig reads every section with its own variable names. SMTP
// credentials are not required on a dry run.
func loadConfig(opts options) (Config, error) {
	var cfg Config

	sections := []any{&cfg.Logger, &cfg.S3, &cfg.Metrics, &cfg.Tracing}
	for _, section := range sections {
		if err := env.Load(section, opts.envFile); err != nil {
			return cfg, err
		}
	}

	if opts.dryRun {
		var dry dryRunSender
		if err := env.Load(&dry, opts.envFile); err != nil {
			return cfg, err
		}
		cfg.SMTP.Sender = dry.Sender
		return cfg, nil
	}

	if err := env.Load(&cfg.SMTP, opts.envFile); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newSender(cfg Config, opts options, loader mail.AttachmentLoader, log *slog.Logger) (*mail.BatchSender, error) {
	if opts.dryRun {
		return mail.NewBatchSender(cfg.SMTP.Sender, noop.NewConnector(), &mail.BatchSenderOptions{
			Delay:  opts.delay,
			Loader: loader,
			Logger: log,
		}), nil
	}

	return smtp.NewSender(cfg.SMTP, &smtp.SenderOptions{
		Delay:  opts.delay,
		Loader: loader,
		Logger: log,
	})
}

// newLoader routes s3:// references to object storage when it is configured.
func newLoader(cfg minio.Config, log *slog.Logger) (mail.AttachmentLoader, func(), error) {
	if !cfg.Enabled() {
		return mail.FileLoader{}, func() {}, nil
	}

	s3, err := minio.NewLoader(cfg, &minio.LoaderOptions{Logger: log})
	if err != nil {
		return nil, nil, err
	}

	loader := mail.RouteLoader{
		Schemes: map[string]mail.AttachmentLoader{minio.Scheme: s3},
		Default: mail.FileLoader{},
	}
	return loader, func() { closeLogged("s3", s3) }, nil
}

func closeLogged(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.WithErr(err).Warn("failed to close " + name)
	}
}
