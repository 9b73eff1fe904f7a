// Package spaces downloads task imagery from S3-compatible object storage
// (DigitalOcean Spaces). The labeling tool hands out s3:// references in
// task data; this package resolves them to bytes.
package spaces

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/urbancanopy/treedetect-go/internal/conf"
	"github.com/urbancanopy/treedetect-go/internal/errors"
	"github.com/urbancanopy/treedetect-go/internal/logging"
)

// refPattern matches the filepath format given by the labeling tool.
var refPattern = regexp.MustCompile(`^s3://([^/]+)/(.+)$`)

// ParseRef splits an s3://bucket/key reference into bucket and key.
func ParseRef(ref string) (bucket, key string, err error) {
	m := refPattern.FindStringSubmatch(ref)
	if m == nil {
		return "", "", errors.Newf("invalid object reference %q, want s3://bucket/key", ref).
			Component("spaces").
			Category(errors.CategoryValidation).
			Build()
	}
	return m[1], m[2], nil
}

// Client fetches objects from a Spaces region endpoint using virtual-host
// addressing, mirroring the upstream storage configuration.
type Client struct {
	s3  *s3.Client
	log *slog.Logger
}

// New builds a Spaces client from settings. The endpoint is derived from the
// region and domain, e.g. https://nyc3.digitaloceanspaces.com.
func New(ctx context.Context, settings *conf.Settings) (*Client, error) {
	sp := settings.Spaces

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(sp.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(sp.Key, sp.Secret, "")),
	)
	if err != nil {
		return nil, errors.New(err).
			Component("spaces").
			Category(errors.CategoryConfiguration).
			Build()
	}

	endpoint := fmt.Sprintf("https://%s.%s", sp.Region, sp.Domain)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		// Virtual-host (subdomain) calling format, as Spaces expects.
		o.UsePathStyle = false
	})

	return &Client{
		s3:  client,
		log: logging.ForService("spaces"),
	}, nil
}

// Fetch downloads the object behind an s3:// reference into memory.
func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}

	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("spaces").
			Category(errors.CategoryImageFetch).
			Context("bucket", bucket).
			Context("key", key).
			Build()
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.New(err).
			Component("spaces").
			Category(errors.CategoryImageFetch).
			Context("bucket", bucket).
			Context("key", key).
			Build()
	}

	c.log.Debug("object fetched", "bucket", bucket, "key", key, "bytes", len(data))
	return data, nil
}
