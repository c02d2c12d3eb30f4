package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"propdesk/core/internal/config"
)

// IReceiptStorage defines the interface for receipt document storage.
type IReceiptStorage interface {
	GenerateReceiptUploadURL(ctx context.Context, scheduleID, instalmentID, filename, contentType string) (string, string, error)
}

// s3ReceiptStorage implements IReceiptStorage over S3 presigned PUT URLs, so
// receipt files never transit the API server.
type s3ReceiptStorage struct {
	cfg           *config.Config
	s3Client      *s3.Client
	presignClient *s3.PresignClient
}

// NewS3ReceiptStorage creates a new S3-backed receipt storage service.
func NewS3ReceiptStorage(cfg *config.Config) (IReceiptStorage, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(context.TODO(),
		aws_config.WithRegion(cfg.AwsRegion),
		// Static credentials from config; prefer IAM roles in production.
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"", // session token
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	return &s3ReceiptStorage{
		cfg:           cfg,
		s3Client:      s3Client,
		presignClient: s3.NewPresignClient(s3Client),
	}, nil
}

// GenerateReceiptUploadURL creates a pre-signed PUT URL for uploading a
// receipt document. It returns the URL and the generated S3 object key, which
// the caller attaches to the instalment once the upload succeeds.
func (s *s3ReceiptStorage) GenerateReceiptUploadURL(ctx context.Context, scheduleID, instalmentID, filename, contentType string) (string, string, error) {
	objectKey := fmt.Sprintf("receipts/%s/%s/%s_%s", scheduleID, instalmentID, uuid.NewString(), sanitizeFilename(filename))

	expiration := 15 * time.Minute
	presignParams := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AwsS3Bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}

	presignedReq, err := s.presignClient.PresignPutObject(ctx, presignParams, s3.WithPresignExpires(expiration))
	if err != nil {
		return "", "", fmt.Errorf("failed to generate presigned PUT URL for key %s: %w", objectKey, err)
	}
	return presignedReq.URL, objectKey, nil
}

// sanitizeFilename strips path separators so a client-supplied filename
// cannot escape the receipt key prefix.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = "receipt"
	}
	return name
}
