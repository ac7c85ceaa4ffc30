package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/hupe1980/steparena"
	"github.com/hupe1980/steparena/blobstore"
	"github.com/hupe1980/steparena/blobstore/minio"
	"github.com/hupe1980/steparena/blobstore/s3"
	"github.com/hupe1980/steparena/checkpoint"
	"github.com/hupe1980/steparena/checkpoint/ddb"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func openBackend(ctx context.Context, bc steparena.BackendConfig) (blobstore.BlobStore, error) {
	switch bc.Kind {
	case "", "memory":
		return blobstore.NewMemoryStore(), nil
	case "local":
		return blobstore.NewLocalStore(bc.Root, blobstore.WithMmap(bc.Mmap)), nil
	case "s3":
		var opts []s3.Option
		if bc.Prefix != "" {
			opts = append(opts, s3.WithPrefix(bc.Prefix))
		}
		if bc.Region != "" {
			opts = append(opts, s3.WithRegion(bc.Region))
		}
		if bc.Endpoint != "" {
			opts = append(opts, s3.WithEndpoint(bc.Endpoint, bc.UsePathStyle))
		}
		return s3.New(ctx, bc.Bucket, opts...)
	case "minio":
		client, err := miniogo.New(bc.Endpoint, &miniogo.Options{
			Creds:  credentials.NewEnvMinio(),
			Secure: bc.Secure,
			Region: bc.Region,
		})
		if err != nil {
			return nil, err
		}
		return minio.NewStore(client, bc.Bucket, bc.Prefix), nil
	default:
		return nil, fmt.Errorf("steprun: unknown backend %q", bc.Kind)
	}
}

// openCheckpoint returns the scalar store, or nil for the default
// document blob next to the segments.
func openCheckpoint(ctx context.Context, cfg steparena.Config, instance string) (checkpoint.Store, error) {
	switch cfg.Checkpoint.Kind {
	case "", "blob":
		return nil, nil
	case "memory":
		return checkpoint.NewMemoryStore(cfg.ScalarCapacity), nil
	case "dynamodb":
		var opts []func(*config.LoadOptions) error
		if cfg.Backend.Region != "" {
			opts = append(opts, config.WithRegion(cfg.Backend.Region))
		}
		return ddb.New(ctx, cfg.Checkpoint.Table, instance, cfg.ScalarCapacity, opts...)
	default:
		return nil, fmt.Errorf("steprun: unknown checkpoint store %q", cfg.Checkpoint.Kind)
	}
}
