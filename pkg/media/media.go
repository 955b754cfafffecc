// Package media issues presigned object storage URLs for report photos and videos. Clients
// upload directly to storage; the API only ever stores the resulting URL.
package media

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"campus-issue-reporting/pkg/config"
	"campus-issue-reporting/pkg/report"
)

var ErrUnsupportedType = errors.New("unsupported media type")

type mediaType struct {
	kind report.AttachmentKind
	ext  string
}

var allowedTypes = map[string]mediaType{
	"image/jpeg":      {report.AttachmentPhoto, ".jpg"},
	"image/png":       {report.AttachmentPhoto, ".png"},
	"image/webp":      {report.AttachmentPhoto, ".webp"},
	"image/heic":      {report.AttachmentPhoto, ".heic"},
	"video/mp4":       {report.AttachmentVideo, ".mp4"},
	"video/quicktime": {report.AttachmentVideo, ".mov"},
	"video/webm":      {report.AttachmentVideo, ".webm"},
}

type Upload struct {
	Kind      report.AttachmentKind `json:"kind"`
	ObjectKey string                `json:"object_key"`
	UploadURL string                `json:"upload_url"`
	URL       string                `json:"url"`
	ExpiresAt time.Time             `json:"expires_at"`
}

type Storage struct {
	client *minio.Client
	bucket string
	expiry time.Duration
	base   string
	now    func() time.Time
}

func NewStorage(cfg config.MinioConfig) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: "us-east-1",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	return &Storage{
		client: client,
		bucket: cfg.Bucket,
		expiry: expiry,
		base:   fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket),
		now:    time.Now,
	}, nil
}

// EnsureBucket creates the media bucket on first start.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// PresignUpload reserves an object key for one attachment and returns a URL the client can PUT to.
func (s *Storage) PresignUpload(ctx context.Context, contentType string) (Upload, error) {
	kind, ext, err := classify(contentType)
	if err != nil {
		return Upload{}, err
	}

	now := s.now().UTC()
	key := path.Join("reports", now.Format("2006/01"), uuid.NewString()+ext)

	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, s.expiry)
	if err != nil {
		return Upload{}, fmt.Errorf("failed to presign upload: %w", err)
	}

	return Upload{
		Kind:      kind,
		ObjectKey: key,
		UploadURL: u.String(),
		URL:       s.base + "/" + key,
		ExpiresAt: now.Add(s.expiry),
	}, nil
}

// PresignDownload returns a time-limited GET URL for an attachment URL issued by this storage.
func (s *Storage) PresignDownload(ctx context.Context, attachmentURL string) (string, error) {
	key, ok := strings.CutPrefix(attachmentURL, s.base+"/")
	if !ok || key == "" {
		return "", fmt.Errorf("%w: url is not in bucket %s", report.ErrValidation, s.bucket)
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}
	return u.String(), nil
}

func classify(contentType string) (report.AttachmentKind, string, error) {
	parsed, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	t, ok := allowedTypes[parsed]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedType, parsed)
	}
	return t.kind, t.ext, nil
}
