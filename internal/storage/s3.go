package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config conveys upload destination metadata.
type S3Config struct {
	Bucket    string
	KeyPrefix string
	Region    string
	// Endpoint overrides the AWS endpoint for S3-compatible providers; when
	// set, object URLs are derived path-style from it.
	Endpoint string
}

// S3Service uploads image data to Amazon S3 (or compatible APIs).
type S3Service struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
}

func NewS3Service(client *s3.Client, cfg S3Config) *S3Service {
	return &S3Service{
		client:   client,
		uploader: manager.NewUploader(client),
		cfg:      cfg,
	}
}

func (s *S3Service) UploadImage(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if s.cfg.Bucket == "" {
		return "", fmt.Errorf("storage bucket is required")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("image data is empty")
	}

	key = strings.TrimPrefix(key, "/")
	if prefix := strings.Trim(s.cfg.KeyPrefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("upload image %s: %w", key, err)
	}

	return s.objectURL(key), nil
}

func (s *S3Service) objectURL(key string) string {
	if s.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.cfg.Endpoint, "/"), s.cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

var _ Service = (*S3Service)(nil)
