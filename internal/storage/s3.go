package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/petermazzocco/go-denoise-project/internal/config"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror copies stored images into a bucket under "raw/" and "clean/".
type S3Mirror struct {
	client objectPutter
	bucket string
	log    *zap.Logger
}

// NewS3Mirror builds a client from static credentials. A non-empty endpoint
// targets S3-compatible stores such as R2 or MinIO.
func NewS3Mirror(ctx context.Context, cfg config.S3Config, log *zap.Logger) (*S3Mirror, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Mirror(client, cfg.Bucket, log), nil
}

func newS3Mirror(client objectPutter, bucket string, log *zap.Logger) *S3Mirror {
	return &S3Mirror{client: client, bucket: bucket, log: log}
}

func (m *S3Mirror) Put(ctx context.Context, kind Kind, name, contentType string, data []byte) error {
	key := fmt.Sprintf("%s/%s", kind, name)
	obj, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	m.log.Info("image mirrored", zap.String("key", key), zap.String("etag", aws.ToString(obj.ETag)))
	return nil
}
