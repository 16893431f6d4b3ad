// Package archive stores raw copies of fetched messages in S3-compatible
// object storage. Archival is optional and off by default; when enabled,
// every successfully fetched message body is uploaded under its BLAKE3
// content hash, so repeated fetches of the same message deduplicate to a
// single object.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hatomail/hato/config"
	"github.com/hatomail/hato/consts"
	"github.com/hatomail/hato/logger"
	"github.com/hatomail/hato/pkg/metrics"
)

// Uploader writes raw messages to one bucket. It is safe for concurrent
// use.
type Uploader struct {
	client *minio.Client
	bucket string
}

// New builds an uploader from the archive configuration. The caller is
// expected to check cfg.Enabled first; New only validates connectivity
// parameters, it does not touch the network.
func New(cfg config.ArchiveConfig) (*Uploader, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("archive requires an endpoint and a bucket")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: !cfg.DisableTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize archive client: %w", err)
	}
	if cfg.Debug {
		client.TraceOn(os.Stdout)
	}

	return &Uploader{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the configured bucket when it does not exist yet.
// Called once at startup.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check archive bucket %s: %w", u.bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create archive bucket %s: %w", u.bucket, err)
	}
	logger.Infof("archive bucket %s created", u.bucket)
	return nil
}

// objectKey scopes objects per account so one account's messages can be
// listed and expired together.
func objectKey(email, hash string) string {
	return email + "/" + hash
}

// StoreRaw uploads one raw message under its content hash. An object that
// already exists is left untouched.
func (u *Uploader) StoreRaw(ctx context.Context, email, hash string, raw []byte) error {
	key := objectKey(email, hash)

	exists, err := u.exists(ctx, key)
	if err != nil {
		metrics.ArchiveUploadsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("%w: %v", consts.ErrArchiveUploadFailed, err)
	}
	if exists {
		metrics.ArchiveUploadsTotal.WithLabelValues("duplicate").Inc()
		logger.Debugf("archive object %s already present, skipping upload", key)
		return nil
	}

	_, err = u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType:    "message/rfc822",
		SendContentMd5: true,
	})
	if err != nil {
		metrics.ArchiveUploadsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("%w: %v", consts.ErrArchiveUploadFailed, err)
	}

	metrics.ArchiveUploadsTotal.WithLabelValues("success").Inc()
	logger.Debugf("archived message %s (%d bytes)", key, len(raw))
	return nil
}

// Fetch returns an archived raw message.
func (u *Uploader) Fetch(ctx context.Context, email, hash string) ([]byte, error) {
	key := objectKey(email, hash)
	obj, err := u.client.GetObject(ctx, u.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch archive object %s: %w", key, err)
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read archive object %s: %w", key, err)
	}
	return raw, nil
}

func (u *Uploader) exists(ctx context.Context, key string) (bool, error) {
	_, err := u.client.StatObject(ctx, u.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	var respErr minio.ErrorResponse
	if errors.As(err, &respErr) && respErr.StatusCode == 404 {
		return false, nil
	}
	return false, err
}
