// Package storage implements core.ObjectStorage on S3-compatible object stores.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/target/mmk-docpipe/config"
	"github.com/target/mmk-docpipe/internal/core"
)

// S3Options configures S3Storage.
type S3Options struct {
	Config config.StorageConfig
	// HTTPClient overrides the SDK transport (tests, proxies).
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// S3Storage stores document bytes in one bucket. Clients upload and download
// directly with presigned URLs; the service itself only reads for scanning.
type S3Storage struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	logger  *slog.Logger
}

// NewS3Storage loads the AWS configuration and builds the S3 clients.
func NewS3Storage(ctx context.Context, opts S3Options) (*S3Storage, error) {
	cfg := opts.Config
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.HasStaticCredentials() {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	if opts.HTTPClient != nil {
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(opts.HTTPClient))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Storage{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		logger:  logger.With("component", "s3_storage", "bucket", cfg.Bucket),
	}, nil
}

// Bucket returns the configured bucket name.
func (s *S3Storage) Bucket() string { return s.bucket }

// IssueUploadURL presigns a PUT bound to the key and content type.
func (s *S3Storage) IssueUploadURL(ctx context.Context, params core.PresignParams) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(params.Key),
		ContentType: aws.String(params.ContentType),
	}, s3.WithPresignExpires(params.TTL))
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", params.Key, err)
	}
	return req.URL, nil
}

// IssueDownloadURL presigns a GET. The response content type is pinned to the
// recorded MIME type when one is given.
func (s *S3Storage) IssueDownloadURL(ctx context.Context, params core.PresignParams) (string, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(params.Key),
	}
	if params.ContentType != "" {
		in.ResponseContentType = aws.String(params.ContentType)
	}
	req, err := s.presign.PresignGetObject(ctx, in, s3.WithPresignExpires(params.TTL))
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", params.Key, err)
	}
	return req.URL, nil
}

// StatObject issues a HEAD for key. A missing object is (nil, nil).
func (s *S3Storage) StatObject(ctx context.Context, key string) (*core.ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("head object %s: %w", key, err)
	}
	return &core.ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ETag:        strings.Trim(aws.ToString(out.ETag), `"`),
	}, nil
}

// OpenObject streams the object body. The caller closes it.
func (s *S3Storage) OpenObject(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return out.Body, nil
}

// Ping checks the bucket is reachable with the configured credentials.
func (s *S3Storage) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("head bucket: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

var _ core.ObjectStorage = (*S3Storage)(nil)
