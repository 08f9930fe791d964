package minio

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	// Scheme is the URL scheme of attachment references served by Loader.
	Scheme = "s3"

	// DefaultMaxSize caps a single attachment read from object storage.
	DefaultMaxSize = 25 << 20
)

// Config contains S3-compatible storage connection configuration.
// Works with MinIO, Yandex Cloud Storage, AWS S3, and other S3-compatible providers.
type Config struct {
	Endpoint           string `envconfig:"S3_ENDPOINT"`                               // empty disables s3:// attachments
	AccessKey          string `envconfig:"S3_ACCESS_KEY"`                             // Access key ID
	SecretKey          string `envconfig:"S3_SECRET_KEY"`                             // Secret access key
	Region             string `envconfig:"S3_REGION" default:"us-east-1"`             // Region name
	Secure             bool   `envconfig:"S3_SECURE" default:"true"`                  // Use HTTPS
	Timeout            int    `envconfig:"S3_TIMEOUT" default:"30"`                   // Connection check timeout in seconds
	MaxSize            int64  `envconfig:"S3_MAX_ATTACHMENT_SIZE" default:"26214400"` // bytes
	InsecureSkipVerify bool   `envconfig:"S3_INSECURE_SKIP_VERIFY" default:"false"`   // plain HTTP regardless of S3_SECURE
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

// Ref is a parsed s3://bucket/key attachment reference.
type Ref struct {
	Bucket string
	Key    string
}

func (r Ref) String() string {
	return Scheme + "://" + r.Bucket + "/" + r.Key
}

// Name returns the last segment of the key.
func (r Ref) Name() string {
	if i := strings.LastIndex(r.Key, "/"); i >= 0 {
		return r.Key[i+1:]
	}
	return r.Key
}

// ParseRef parses "s3://bucket/path/to/key".
func ParseRef(raw string) (Ref, error) {
	rest, ok := strings.CutPrefix(raw, Scheme+"://")
	if !ok {
		return Ref{}, errors.Errorf("not an %s reference: %q", Scheme, raw)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return Ref{}, errors.Errorf("invalid %s reference %q: want %s://bucket/key", Scheme, raw, Scheme)
	}

	return Ref{Bucket: bucket, Key: key}, nil
}
