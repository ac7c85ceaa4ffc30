package s3

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/steparena/internal/hash"
)

// UploadConfig configures the multipart uploader used for large puts.
type UploadConfig struct {
	// PartSize is the multipart part size and the threshold above which Put
	// switches from a single PutObject to the uploader.
	// Default: 8MB
	PartSize int64

	// Concurrency is the number of concurrent part uploads.
	// Default: 5
	Concurrency int

	// LeavePartsOnError keeps the parts of a failed multipart upload.
	// Default: false (abort on error)
	LeavePartsOnError bool
}

// DefaultUploadConfig returns the default upload settings.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		PartSize:    8 * 1024 * 1024,
		Concurrency: 5,
	}
}

func newUploader(client Client, cfg UploadConfig) *manager.Uploader {
	return manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = cfg.PartSize
		u.Concurrency = cfg.Concurrency
		u.LeavePartsOnError = cfg.LeavePartsOnError
	})
}

// computeCRC32C returns the base64 big-endian CRC32C S3 expects.
func computeCRC32C(data []byte) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], hash.CRC32C(data))
	return base64.StdEncoding.EncodeToString(b[:])
}

// condition makes a single-request upload conditional on the current
// object. The zero value uploads unconditionally.
type condition struct {
	ifNoneMatch bool
	ifMatch     string
}

// putObject uploads data in one request with a CRC32C checksum.
func putObject(ctx context.Context, client Client, bucket, key string, data []byte, cond condition) (*s3.PutObjectOutput, error) {
	in := &s3.PutObjectInput{
		Bucket:         aws.String(bucket),
		Key:            aws.String(key),
		Body:           bytes.NewReader(data),
		ContentLength:  aws.Int64(int64(len(data))),
		ChecksumCRC32C: aws.String(computeCRC32C(data)),
	}
	switch {
	case cond.ifNoneMatch:
		in.IfNoneMatch = aws.String("*")
	case cond.ifMatch != "":
		in.IfMatch = aws.String(cond.ifMatch)
	}
	return client.PutObject(ctx, in)
}

func uploadObject(ctx context.Context, u *manager.Uploader, bucket, key string, data []byte) error {
	_, err := u.Upload(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(bucket),
		Key:               aws.String(key),
		Body:              bytes.NewReader(data),
		ChecksumAlgorithm: types.ChecksumAlgorithmCrc32c,
	})
	return err
}
