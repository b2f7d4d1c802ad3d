// Package storage uploads evidence attachments to an S3-compatible bucket
// (Supabase Storage's S3 endpoint or MinIO).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"offboarding/ocm/internal/util"
)

var (
	ErrNotConfigured = errors.New("storage: endpoint not configured")
	ErrEmptyUpload   = errors.New("storage: empty upload")
)

const defaultContentType = "application/octet-stream"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Logger    *zap.Logger
}

// Uploader writes attachment objects under <org>/<task>/<id>-<name>.
type Uploader struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

func New(opts Options) (*Uploader, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, ErrNotConfigured
	}
	// minio wants host[:port]; accept a URL for convenience.
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "http" {
			opts.UseSSL = false
		}
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("storage: bucket required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{client: client, bucket: bucket, logger: logger.Named("storage")}, nil
}

// Upload stores one attachment and returns its object path, which is what
// the evidence row records as storage_path.
func (u *Uploader) Upload(ctx context.Context, orgID, taskID, name string, body io.Reader, size int64, contentType string) (string, error) {
	if body == nil || size == 0 {
		return "", ErrEmptyUpload
	}
	if contentType == "" {
		contentType = defaultContentType
	}
	objectPath := ObjectPath(orgID, taskID, name, util.NewObjectID())
	start := time.Now()
	info, err := u.client.PutObject(ctx, u.bucket, objectPath, body, size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"org-id":  orgID,
			"task-id": taskID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("storage: put %s: %w", objectPath, err)
	}
	u.logger.Info("attachment uploaded",
		zap.String("bucket", u.bucket),
		zap.String("path", objectPath),
		zap.Int64("bytes", info.Size),
		zap.Duration("duration", time.Since(start)),
	)
	return objectPath, nil
}

// Remove deletes an uploaded object. Used to undo an upload whose evidence row failed.
func (u *Uploader) Remove(ctx context.Context, objectPath string) error {
	if err := u.client.RemoveObject(ctx, u.bucket, objectPath, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("storage: remove %s: %w", objectPath, err)
	}
	return nil
}

// SignedURL returns a time-limited download link for objectPath.
func (u *Uploader) SignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	signed, err := u.client.PresignedGetObject(ctx, u.bucket, objectPath, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("storage: presign %s: %w", objectPath, err)
	}
	return signed.String(), nil
}

// Ping checks that the bucket exists and is reachable.
func (u *Uploader) Ping(ctx context.Context) error {
	ok, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if !ok {
		return fmt.Errorf("storage: bucket %q does not exist", u.bucket)
	}
	return nil
}

// ObjectPath builds the object key for an attachment. Segments are sanitized
// so user-supplied file names cannot escape the task prefix.
func ObjectPath(orgID, taskID, name, id string) string {
	base := "attachment"
	if raw := path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")); raw != "." && raw != "/" {
		base = sanitize(raw)
	}
	return path.Join(sanitize(orgID), sanitize(taskID), id+"-"+base)
}

func sanitize(segment string) string {
	segment = unsafeName.ReplaceAllString(strings.TrimSpace(segment), "_")
	segment = strings.Trim(segment, "._")
	if segment == "" {
		return "_"
	}
	return segment
}
