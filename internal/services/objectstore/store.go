package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
)

// Store is the behaviour the upload and manifest stages require.
type Store interface {
	Put(ctx context.Context, key, filePath, contentType string) error
	Stat(ctx context.Context, key string) (int64, bool, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Config holds construction parameters for an S3-compatible backend
// (AWS S3 or MinIO).
type Config struct {
	Region          string
	Bucket          string
	Endpoint        string // optional; if set enables custom endpoint (e.g. MinIO)
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string // optional
	PathStyle       bool
	TimeoutSeconds  int
}

// Client implements Store against a single bucket. Keys map to object keys
// directly.
type Client struct {
	client  *s3.Client
	bucket  string
	timeout time.Duration
}

// New creates an S3 store from Config.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Client{
		client:  client,
		bucket:  cfg.Bucket,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, nil
}

// Put streams filePath to the bucket under key, overwriting any prior object.
func (c *Client) Put(ctx context.Context, key, filePath, contentType string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", filePath, err)
	}
	defer file.Close()

	putCtx, cancel := c.opContext(ctx)
	defer cancel()

	input := &s3.PutObjectInput{Bucket: &c.bucket, Key: &key, Body: file}
	if contentType != "" {
		input.ContentType = &contentType
	}
	if _, err := c.client.PutObject(putCtx, input); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Stat reports the size of the object at key, and whether it exists at all.
func (c *Client) Stat(ctx context.Context, key string) (int64, bool, error) {
	statCtx, cancel := c.opContext(ctx)
	defer cancel()

	out, err := c.client.HeadObject(statCtx, &s3.HeadObjectInput{Bucket: &c.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("stat %s: %w", key, err)
	}
	size := int64(0)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return size, true, nil
}

// List returns all objects under prefix, sorted by key.
func (c *Client) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var infos []ObjectInfo
	var token *string
	for {
		listCtx, cancel := c.opContext(ctx)
		out, err := c.client.ListObjectsV2(listCtx, &s3.ListObjectsV2Input{
			Bucket:            &c.bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			var size int64
			if obj.Size != nil {
				size = *obj.Size
			}
			infos = append(infos, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         size,
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (c *Client) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}

// permanentCodes are request failures that a retry will never fix.
var permanentCodes = map[string]struct{}{
	"AccessDenied":          {},
	"InvalidAccessKeyId":    {},
	"SignatureDoesNotMatch": {},
	"NoSuchBucket":          {},
	"InvalidBucketName":     {},
	"AccountProblem":        {},
}

// IsPermanent reports whether a storage error indicates a configuration or
// authorization problem that retrying cannot resolve.
func IsPermanent(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		_, permanent := permanentCodes[apiErr.ErrorCode()]
		return permanent
	}
	return false
}

// PutWithRetry uploads one file with exponential backoff. Permanent storage
// errors (authorization, missing bucket) abort immediately.
func PutWithRetry(ctx context.Context, store Store, key, path, contentType string, maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxAttempts)),
		ctx,
	)
	return backoff.Retry(func() error {
		err := store.Put(ctx, key, path, contentType)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// KeyJoin builds an object key from path segments, skipping empties.
func KeyJoin(parts ...string) string {
	kept := parts[:0:0]
	for _, part := range parts {
		part = strings.Trim(part, "/")
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "/")
}
