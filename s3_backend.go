package occasync

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3SnapshotBackend stores the snapshot in an S3 (or S3-compatible) bucket.
// The snapshot is a single small object rewritten on every mutation, so the
// lack of atomic conditional writes on S3 does not matter here: the last
// writer wins, which is the same contract the filesystem backend offers.
type S3SnapshotBackend struct {
	client *s3.Client
	bucket string
}

// NewS3SnapshotBackend creates an S3 snapshot backend from an existing client
func NewS3SnapshotBackend(client *s3.Client, bucket string) *S3SnapshotBackend {
	return &S3SnapshotBackend{
		client: client,
		bucket: bucket,
	}
}

// NewS3SnapshotBackendFromEnv builds the client from the default AWS config
// chain. When accessKey is non-empty, static credentials override the chain
// (useful for MinIO and other S3-compatible endpoints).
func NewS3SnapshotBackendFromEnv(ctx context.Context, cfg SnapshotConfig, accessKey, secretKey string) (*S3SnapshotBackend, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if accessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	return NewS3SnapshotBackend(s3.NewFromConfig(awsCfg), cfg.Bucket), nil
}

func (b *S3SnapshotBackend) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NoSuchKey") {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	defer func() { _ = result.Body.Close() }()

	return io.ReadAll(result.Body)
}

func (b *S3SnapshotBackend) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (b *S3SnapshotBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NotFound") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *S3SnapshotBackend) Ping(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	return err
}

func (b *S3SnapshotBackend) Close() error {
	// S3 client doesn't need explicit closing
	return nil
}
