// Package objstore wraps the S3 operations the planner needs: reading
// Sentinel-1 manifests, probing and listing keys, and uploading plans.
package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrInvalidURI is returned for references that are not s3://bucket/key.
var ErrInvalidURI = errors.New("invalid s3 uri")

// API is the subset of the S3 client used here.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Options configures the S3 connection.
type Options struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	UsePathStyle  bool
	RequesterPays bool
}

// Client performs S3 operations on any bucket.
type Client struct {
	api           API
	requesterPays bool
	logger        *slog.Logger
}

// Connect builds a client from the default AWS configuration chain,
// overridden by the non-empty fields of opts.
func Connect(ctx context.Context, opts Options, logger *slog.Logger) (*Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.Endpoint != "" {
		loadOpts = append(loadOpts, awsconfig.WithBaseEndpoint(opts.Endpoint))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     opts.AccessKey,
					SecretAccessKey: opts.SecretKey,
				}, nil
			})))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	api := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.UsePathStyle
	})
	return New(api, opts.RequesterPays, logger), nil
}

// New wraps an existing S3 API.
func New(api API, requesterPays bool, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, requesterPays: requesterPays, logger: logger}
}

// ParseURI splits s3://bucket/key.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	return bucket, key, nil
}

func (c *Client) payer() types.RequestPayer {
	if c.requesterPays {
		return types.RequestPayerRequester
	}
	return ""
}

// Fetch reads the object behind an s3:// reference.
func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := ParseURI(ref)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "fetching object", slog.String("bucket", bucket), slog.String("key", key))

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket:       aws.String(bucket),
		Key:          aws.String(key),
		RequestPayer: c.payer(),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return data, nil
}

// Exists reports whether bucket/key exists.
func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:       aws.String(bucket),
		Key:          aws.String(key),
		RequestPayer: c.payer(),
	})
	if err == nil {
		return true, nil
	}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return false, nil
	}
	return false, fmt.Errorf("head s3://%s/%s: %w", bucket, key, err)
}

// ListKeys returns every key under prefix.
func (c *Client) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket:       aws.String(bucket),
		Prefix:       aws.String(prefix),
		RequestPayer: c.payer(),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	c.logger.DebugContext(ctx, "listed objects",
		slog.String("bucket", bucket),
		slog.String("prefix", prefix),
		slog.Int("count", len(keys)),
	)
	return keys, nil
}

// Upload writes body to bucket/key.
func (c *Client) Upload(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	c.logger.InfoContext(ctx, "uploaded object", slog.String("bucket", bucket), slog.String("key", key))
	return nil
}

// ManifestRef returns the manifest.safe reference of a Sentinel-1 product
// from the href of one of its measurement files, e.g.
// s3://sentinel-s1-l1c/GRD/2020/6/1/IW/DV/<product>/measurement/iw-vv.tiff.
func ManifestRef(measurementHref string) string {
	i := strings.LastIndex(measurementHref, "/")
	if i < 0 {
		return ""
	}
	dir := measurementHref[:i]
	if !strings.HasSuffix(dir, "/measurement") {
		return ""
	}
	return strings.TrimSuffix(dir, "measurement") + "manifest.safe"
}
