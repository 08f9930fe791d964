package smtp

import (
	"log/slog"
	"time"

	"github.com/pure-golang/mailbatch/mail"
)

// SenderOptions contains options for creating a batch sender from Config.
type SenderOptions struct {
	Delay     time.Duration
	Loader    mail.AttachmentLoader
	Logger    *slog.Logger
	Connector *ConnectorOptions
}

// NewSender builds a mail.BatchSender sending as cfg.Sender through the
// connector selected by cfg.Mode.
func NewSender(cfg Config, options *SenderOptions) (*mail.BatchSender, error) {
	if options == nil {
		options = &SenderOptions{}
	}

	connOpts := &ConnectorOptions{}
	if options.Connector != nil {
		*connOpts = *options.Connector
	}
	if connOpts.Logger == nil {
		connOpts.Logger = options.Logger
	}

	connector, err := NewConnector(cfg, connOpts)
	if err != nil {
		return nil, err
	}

	return mail.NewBatchSender(cfg.Sender, connector, &mail.BatchSenderOptions{
		Delay:  options.Delay,
		Loader: options.Loader,
		Logger: options.Logger,
	}), nil
}
