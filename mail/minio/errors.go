package minio

import (
	"errors"

	"github.com/minio/minio-go/v7"
)

var (
	ErrClosed       = errors.New("loader is closed")
	ErrNotFound     = errors.New("object not found")
	ErrAccessDenied = errors.New("access denied")
	ErrTooLarge     = errors.New("attachment too large")
)

// toLoadError maps S3 error responses onto the package sentinels.
func toLoadError(err error) error {
	if err == nil {
		return nil
	}

	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return &objectError{sentinel: ErrNotFound, err: err}
	case "AccessDenied", "Forbidden":
		return &objectError{sentinel: ErrAccessDenied, err: err}
	default:
		return err
	}
}

// objectError matches its sentinel with errors.Is while keeping the S3 response.
type objectError struct {
	sentinel error
	err      error
}

func (e *objectError) Error() string {
	return e.sentinel.Error() + ": " + e.err.Error()
}

func (e *objectError) Is(target error) bool {
	return target == e.sentinel
}

func (e *objectError) Unwrap() error {
	return e.err
}
