// Package storage keeps proof-of-payment uploads outside the database.
// The ledger only ever sees the opaque reference a store returns.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	appconfig "ajo_ledger/internal/infra/config"
)

// ProofStore saves one receipt and returns the reference stored on the payment.
type ProofStore interface {
	SaveProof(ctx context.Context, paymentID int64, fileName string, body io.Reader, size int64) (string, error)
}

// S3Store writes proofs to an S3-compatible bucket.
type S3Store struct {
	client   *s3.Client
	bucket   string
	endpoint string
	logger   *logrus.Entry
}

var _ ProofStore = (*S3Store)(nil)

func NewS3Store(ctx context.Context, cfg appconfig.S3Config, logger *logrus.Entry) (*S3Store, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("S3_BUCKET is not set")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: cfg.Bucket, endpoint: endpoint, logger: logger}, nil
}

// SaveProof uploads body under proofs/<paymentID>/ with a random name.
func (s *S3Store) SaveProof(ctx context.Context, paymentID int64, fileName string, body io.Reader, size int64) (string, error) {
	key := objectKey(paymentID, uuid.NewString(), fileName)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType(fileName)),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload proof %s: %w", key, err)
	}

	ref := objectURL(s.endpoint, s.bucket, key)
	s.logger.WithFields(logrus.Fields{"payment_id": paymentID, "key": key}).Info("Proof of payment stored")
	return ref, nil
}

func objectKey(paymentID int64, id, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	if ext == "" {
		ext = ".jpg"
	}
	return fmt.Sprintf("proofs/%d/%s%s", paymentID, id, ext)
}

func contentType(fileName string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(fileName))); ct != "" {
		return ct
	}
	return "image/jpeg"
}

// objectURL is path-style under a custom endpoint, s3:// otherwise.
func objectURL(endpoint, bucket, key string) string {
	if endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", endpoint, bucket, key)
	}
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
