// Package minio implements the object store port on MinIO / S3-compatible
// storage. Original PDFs and split part files live here; downstream services
// only ever see presigned URLs.
package minio

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// Options configures the store.
type Options struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PresignExpiry time.Duration
}

// Store implements domain.ObjectStore.
type Store struct {
	client        *minio.Client
	bucket        string
	presignExpiry time.Duration
}

// New connects to the object store and ensures the bucket exists.
func New(ctx domain.Context, opts Options) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("op=minio.New: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("op=minio.New: bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("op=minio.New: make bucket: %w", err)
		}
	}
	expiry := opts.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &Store{client: client, bucket: opts.Bucket, presignExpiry: expiry}, nil
}

// UploadPdf stores the bytes under a fresh object key derived from filename
// and returns the key plus a presigned download URL.
func (s *Store) UploadPdf(ctx domain.Context, b []byte, filename string) (string, string, error) {
	tracer := otel.Tracer("objectstore.minio")
	ctx, span := tracer.Start(ctx, "minio.UploadPdf")
	defer span.End()

	objectKey := fmt.Sprintf("pdfs/%s-%s", uuid.New().String(), filename)
	contentType := mimetype.Detect(b).String()
	_, err := s.client.PutObject(ctx, s.bucket, objectKey, bytes.NewReader(b), int64(len(b)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", "", fmt.Errorf("op=minio.UploadPdf: %w", err)
	}
	u, err := s.GetPdfDownloadURL(ctx, objectKey)
	if err != nil {
		return "", "", err
	}
	return objectKey, u, nil
}

// GetPdf fetches the object's bytes.
func (s *Store) GetPdf(ctx domain.Context, objectKey string) ([]byte, error) {
	tracer := otel.Tracer("objectstore.minio")
	ctx, span := tracer.Start(ctx, "minio.GetPdf")
	defer span.End()

	obj, err := s.client.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("op=minio.GetPdf: %w", err)
	}
	defer obj.Close()
	b, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("op=minio.GetPdf: object %s: %w", objectKey, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("op=minio.GetPdf: read: %w", err)
	}
	return b, nil
}

// GetPdfDownloadURL returns a presigned GET URL for the object.
func (s *Store) GetPdfDownloadURL(ctx domain.Context, objectKey string) (string, error) {
	params := make(url.Values)
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, s.presignExpiry, params)
	if err != nil {
		return "", fmt.Errorf("op=minio.GetPdfDownloadURL: %w", err)
	}
	return u.String(), nil
}
