package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dd0wney/attendnet/pkg/validation"
)

// S3Options configures the S3 sink. With AccessKey set, static credentials
// replace the shared config chain. Endpoint and UsePathStyle point the
// client at S3-compatible stores such as MinIO.
type S3Options struct {
	Bucket       string
	Key          string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3Sink uploads the document as a single object.
type S3Sink struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Sink resolves AWS configuration and builds the sink.
func NewS3Sink(ctx context.Context, opts S3Options) (*S3Sink, error) {
	v := validation.NewConfigValidator("s3")
	v.Required("bucket", opts.Bucket)
	v.Required("key", opts.Key)
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
		return nil, fmt.Errorf("export: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return &S3Sink{client: client, bucket: opts.Bucket, key: opts.Key}, nil
}

// Name identifies the sink in logs and metrics.
func (s *S3Sink) Name() string { return "s3" }

// Write uploads the payload.
func (s *S3Sink) Write(ctx context.Context, data []byte) (int, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return 0, fmt.Errorf("put s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return len(data), nil
}
