package source

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dd0wney/attendnet/pkg/records"
	"github.com/dd0wney/attendnet/pkg/validation"
)

// S3Options configures the object storage source. With AccessKey set,
// static credentials replace the shared config chain. Endpoint and
// UsePathStyle point the client at S3-compatible stores such as MinIO.
type S3Options struct {
	Bucket       string
	Keys         []string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3Source streams one or more CSV extract objects in order.
type S3Source struct {
	client *s3.Client
	bucket string
	keys   []string
}

// NewS3Source resolves AWS configuration and builds the source.
func NewS3Source(ctx context.Context, opts S3Options) (*S3Source, error) {
	v := validation.NewConfigValidator("s3")
	v.Required("bucket", opts.Bucket)
	v.Custom("keys", func() error {
		if len(opts.Keys) == 0 {
			return fmt.Errorf("at least one object key required")
		}
		return nil
	})
	if err := v.Validate(); err != nil {
		return nil, err
	}

	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("source: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return &S3Source{client: client, bucket: opts.Bucket, keys: opts.Keys}, nil
}

// Name identifies the source in logs and metrics.
func (s *S3Source) Name() string { return "s3" }

// Each downloads and streams every object in turn.
func (s *S3Source) Each(ctx context.Context, fn func(records.RawRecord) error) error {
	for _, key := range s.keys {
		if err := s.eachObject(ctx, key, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *S3Source) eachObject(ctx context.Context, key string, fn func(records.RawRecord) error) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("source: get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	if err := EachCSV(ctx, out.Body, fn); err != nil {
		return fmt.Errorf("source: s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}
