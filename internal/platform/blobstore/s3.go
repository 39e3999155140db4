package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Config holds the settings for an S3 or S3-compatible backend.
type S3Config struct {
	Region          string
	Endpoint        string // optional, for MinIO/LocalStack
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string // optional, e.g. a CDN in front of the buckets
	UsePathStyle    bool
}

// S3Store implements ObjectStore on top of Amazon S3. Bucket names are used
// as given.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	cfg     S3Config
}

// NewS3Store loads the AWS configuration (explicit keys when given, the
// default chain otherwise) and builds the client.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StoreFromClient(client, cfg), nil
}

// NewS3StoreFromClient wraps an existing client.
func NewS3StoreFromClient(client *s3.Client, cfg S3Config) *S3Store {
	return &S3Store{client: client, presign: s3.NewPresignClient(client), cfg: cfg}
}

// Put uploads the object with If-None-Match: * so an existing key is never
// overwritten.
func (s *S3Store) Put(ctx context.Context, bucket, path, contentType string, body io.Reader, size int64) (*Object, error) {
	if err := validPath(bucket, path); err != nil {
		return nil, err
	}

	// The SDK needs a seekable body to compute payload checksums.
	rs, ok := body.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("reading content: %w", err)
		}
		rs = bytes.NewReader(data)
		size = int64(len(data))
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(path),
		Body:        rs,
		ContentType: aws.String(contentType),
		IfNoneMatch: aws.String("*"),
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}

	out, err := s.client.PutObject(ctx, in)
	if err != nil {
		if apiErrorCode(err) == "PreconditionFailed" {
			return nil, ErrObjectExists
		}
		return nil, fmt.Errorf("s3 put %s/%s: %w", bucket, path, err)
	}

	return &Object{
		Bucket:      bucket,
		Path:        path,
		ContentType: contentType,
		Size:        size,
		Hash:        strings.Trim(aws.ToString(out.ETag), `"`),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (s *S3Store) Get(ctx context.Context, bucket, path string) (io.ReadCloser, *Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrObjectNotFound
		}
		return nil, nil, fmt.Errorf("s3 get %s/%s: %w", bucket, path, err)
	}

	obj := &Object{
		Bucket:      bucket,
		Path:        path,
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
		Hash:        strings.Trim(aws.ToString(out.ETag), `"`),
	}
	if out.LastModified != nil {
		obj.CreatedAt = *out.LastModified
	}
	return out.Body, obj, nil
}

func (s *S3Store) Delete(ctx context.Context, bucket, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s/%s: %w", bucket, path, err)
	}
	return nil
}

// PublicURL returns the unsigned URL of an object: under PublicBaseURL when
// configured, otherwise the virtual-hosted (or path-style) S3 address.
func (s *S3Store) PublicURL(bucket, path string) string {
	if s.cfg.PublicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.cfg.PublicBaseURL, "/"), bucket, escapePath(path))
	}
	if s.cfg.Endpoint != "" || s.cfg.UsePathStyle {
		base := s.cfg.Endpoint
		if base == "" {
			base = fmt.Sprintf("https://s3.%s.amazonaws.com", s.cfg.Region)
		}
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), bucket, escapePath(path))
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, s.cfg.Region, escapePath(path))
}

// SignedURL presigns a GET for ttl. No request is made.
func (s *S3Store) SignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	if err := validPath(bucket, path); err != nil {
		return "", err
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, path, err)
	}
	return req.URL, nil
}

func apiErrorCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	code := apiErrorCode(err)
	return code == "NotFound" || code == "NoSuchKey"
}
