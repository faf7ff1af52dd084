// Package s3blob keeps archived dashboard CSV exports in S3 or any
// S3-compatible bucket (MinIO, Cloudflare R2, iDrive e2).
package s3blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig describes the export bucket. Endpoint is empty for AWS itself.
// UseSSL only matters for an Endpoint given without a scheme. Most
// compatible providers need ForcePathStyle.
type ClientConfig struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	ForcePathStyle bool
}

func (cfg ClientConfig) validate() error {
	var errs []error
	if cfg.Bucket == "" {
		errs = append(errs, errors.New("bucket name is required"))
	}
	if cfg.Region == "" {
		errs = append(errs, errors.New("region is required"))
	}
	return errors.Join(errs...)
}

// options translates the provider settings into SDK client options.
func (cfg ClientConfig) options() []func(*s3.Options) {
	endpoint := ""
	if cfg.Endpoint != "" {
		endpoint = normaliseEndpoint(cfg.Endpoint, cfg.UseSSL)
	}
	return []func(*s3.Options){func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}}
}

// Client is a connected handle on the export bucket.
type Client struct {
	api    *s3.Client
	bucket string
}

// New builds a client with static credentials. It does not contact the
// provider; call Health for that.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("s3blob: %w", err)
	}
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}
	return &Client{
		api:    s3.NewFromConfig(awsCfg, cfg.options()...),
		bucket: cfg.Bucket,
	}, nil
}

// Health checks the bucket is reachable with the configured credentials.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close releases nothing; the SDK client has no teardown.
func (c *Client) Close() error { return nil }

// Bucket returns the export bucket name.
func (c *Client) Bucket() string { return c.bucket }

// object returns the bucket and key pointers every object request needs.
func (c *Client) object(path string) (bucket, key *string) {
	return aws.String(c.bucket), aws.String(path)
}

// normaliseEndpoint adds https:// or http:// to an endpoint without a scheme.
// "host:port" would parse as scheme "host", so only "://" counts.
func normaliseEndpoint(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
