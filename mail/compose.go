package mail

import (
	"context"
	"net/url"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

var (
	_ AttachmentLoader = FileLoader{}
	_ AttachmentLoader = RouteLoader{}
)

// Compose builds the Email for job. Attachments are loaded through loader,
// FileLoader when nil. No partial Email is returned on failure.
func Compose(ctx context.Context, from string, job Job, loader AttachmentLoader) (*Email, error) {
	if loader == nil {
		loader = FileLoader{}
	}

	email := &Email{
		From:    from,
		To:      job.Receiver,
		Cc:      job.Cc.Header(),
		Bcc:     job.Bcc.Header(),
		Subject: job.Subject,
		Body:    job.Message,
	}

	for _, path := range job.Attachments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attachment, err := loader.Load(ctx, path)
		if err != nil {
			if IsAttachmentRead(err) {
				return nil, err
			}
			return nil, &Error{
				Code:    CodeAttachmentRead,
				Message: "failed to read attachment " + path,
				Err:     err,
			}
		}
		email.Attachments = append(email.Attachments, attachment)
	}

	return email, nil
}

// FileLoader reads attachments from the local filesystem.
type FileLoader struct{}

// Load reads the file at path; the attachment is named after its last path segment.
func (FileLoader) Load(_ context.Context, path string) (Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, &Error{
			Code:    CodeAttachmentRead,
			Message: "failed to read attachment " + path,
			Err:     errors.WithStack(err),
		}
	}

	return Attachment{Name: filepath.Base(path), Data: data}, nil
}

// RouteLoader dispatches by URL scheme (e.g. "s3") and falls back to Default
// for plain paths and unknown schemes.
type RouteLoader struct {
	Schemes map[string]AttachmentLoader
	Default AttachmentLoader
}

func (r RouteLoader) Load(ctx context.Context, path string) (Attachment, error) {
	if u, err := url.Parse(path); err == nil && u.Scheme != "" {
		if loader, ok := r.Schemes[u.Scheme]; ok {
			return loader.Load(ctx, path)
		}
	}

	if r.Default != nil {
		return r.Default.Load(ctx, path)
	}
	return FileLoader{}.Load(ctx, path)
}
