// Package s3 fetches model artifacts (weights + descriptor) from object
// storage at startup so deployments do not need the files baked into the
// image. MinIO style custom endpoints are supported.
package s3

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Config struct {
	S3EndpointURL     string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
}

type Client struct {
	s3Client   *s3.Client
	downloader *manager.Downloader
}

func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	var opts []func(*aws_config.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, aws_config.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, aws_config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := aws_config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.S3EndpointURL)
			o.UsePathStyle = true // required for MinIO
		}
	})

	return &Client{
		s3Client:   s3Client,
		downloader: manager.NewDownloader(s3Client),
	}, nil
}

// ParseURI splits an s3://bucket/prefix location.
func ParseURI(uri string) (bucket, prefix string, err error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 uri %q, expected s3://bucket/prefix", uri)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// DownloadArtifacts copies every object under uri into destDir, preserving
// base names. Used to stage the model weights and descriptor before load.
func (c *Client) DownloadArtifacts(ctx context.Context, uri, destDir string) error {
	bucket, prefix, err := ParseURI(uri)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}

	paginator := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	count := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("listing s3 objects under %s: %w", uri, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}

			dest := filepath.Join(destDir, filepath.Base(key))
			if err := c.downloadObject(ctx, bucket, key, dest); err != nil {
				return err
			}
			slog.Info("downloaded model artifact", "bucket", bucket, "key", key, "dest", dest)
			count++
		}
	}

	if count == 0 {
		return fmt.Errorf("no model artifacts found under %s", uri)
	}
	return nil
}

func (c *Client) downloadObject(ctx context.Context, bucket, key, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}

	if _, err := c.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		f.Close()
		return fmt.Errorf("downloading s3://%s/%s: %w", bucket, key, err)
	}

	return f.Close()
}
