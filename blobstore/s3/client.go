package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Client is the subset of the S3 API used by Store.
// *s3.Client satisfies it.
type Client interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var _ Client = (*s3.Client)(nil)

type options struct {
	prefix       string
	region       string
	endpoint     string
	usePathStyle bool
	upload       UploadConfig
}

// Option configures New.
type Option func(*options)

// WithPrefix sets the key prefix every blob name is joined to.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithRegion overrides the region from the default AWS config chain.
func WithRegion(region string) Option {
	return func(o *options) { o.region = region }
}

// WithEndpoint points the client at an S3-compatible endpoint.
func WithEndpoint(endpoint string, usePathStyle bool) Option {
	return func(o *options) {
		o.endpoint = endpoint
		o.usePathStyle = usePathStyle
	}
}

// WithUploadConfig overrides DefaultUploadConfig.
func WithUploadConfig(cfg UploadConfig) Option {
	return func(o *options) { o.upload = cfg }
}

// New loads the default AWS configuration and returns a Store for bucket.
func New(ctx context.Context, bucket string, optFns ...Option) (*Store, error) {
	o := options{upload: DefaultUploadConfig()}
	for _, fn := range optFns {
		fn(&o)
	}

	var loadOpts []func(*config.LoadOptions) error
	if o.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(o.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.endpoint != "" {
			so.BaseEndpoint = aws.String(o.endpoint)
		}
		so.UsePathStyle = o.usePathStyle
	})

	s := NewStore(client, bucket, o.prefix)
	s.upload = o.upload
	s.uploader = newUploader(client, o.upload)
	return s, nil
}
