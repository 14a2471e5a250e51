// Package objectstore implements storage.BlobStore on S3-compatible object
// storage.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/potkeeper/pkg/storage"
)

var tracer = otel.Tracer("potkeeper/objectstore")

// ErrObjectNotFound is returned by Get for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// s3API is the subset of the S3 client used by S3BlobStore.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3BlobStore stores images in a single bucket.
type S3BlobStore struct {
	client s3API
	bucket string
}

// NewS3BlobStore builds a client from cfg and makes sure the bucket exists.
func NewS3BlobStore(ctx context.Context, cfg storage.Config) (*S3BlobStore, error) {
	var awsConfig aws.Config
	var err error

	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		// Static credentials, for MinIO or explicit AWS keys
		awsConfig, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.S3Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.S3AccessKey,
				cfg.S3SecretKey,
				"",
			)),
		)
	} else {
		awsConfig, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.S3Region))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	return newS3BlobStore(ctx, client, cfg.S3Bucket)
}

func newS3BlobStore(ctx context.Context, client s3API, bucket string) (*S3BlobStore, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if err := createBucketIfNotExists(ctx, client, bucket); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}
	return &S3BlobStore{client: client, bucket: bucket}, nil
}

func (s *S3BlobStore) span(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "S3."+op,
		trace.WithAttributes(
			attribute.String("s3.operation", op),
			attribute.String("s3.bucket", s.bucket),
			attribute.String("s3.key", key),
		),
	)
}

// Put uploads body under key.
func (s *S3BlobStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	ctx, span := s.span(ctx, "PutObject", key)
	defer span.End()
	span.SetAttributes(attribute.String("content.type", contentType))

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload to s3")
		return fmt.Errorf("failed to upload to s3: %w", err)
	}

	span.SetStatus(codes.Ok, "object uploaded")
	return nil
}

// Get streams the object stored under key.
func (s *S3BlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, span := s.span(ctx, "GetObject", key)
	defer span.End()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get object from s3")
		return nil, fmt.Errorf("failed to get object from s3: %w", err)
	}

	if out.ContentLength != nil {
		span.SetAttributes(attribute.Int64("content.size", *out.ContentLength))
	}
	span.SetStatus(codes.Ok, "object retrieved")
	return out.Body, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *S3BlobStore) Delete(ctx context.Context, key string) error {
	ctx, span := s.span(ctx, "DeleteObject", key)
	defer span.End()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete object")
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// HealthCheck verifies the bucket is reachable.
func (s *S3BlobStore) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

func createBucketIfNotExists(ctx context.Context, client s3API, bucket string) error {
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}

	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil && !isBucketAlreadyExists(err) {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}

func isBucketAlreadyExists(err error) bool {
	var exists *types.BucketAlreadyExists
	var owned *types.BucketAlreadyOwnedByYou
	return errors.As(err, &exists) || errors.As(err, &owned)
}
