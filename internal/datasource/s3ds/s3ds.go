// Package s3ds reads a dataset object from S3 or an S3-compatible store.
package s3ds

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"jobmarket/internal/config"
	apperrors "jobmarket/internal/errors"
)

// URI renders src as s3://bucket/key.
func URI(src config.S3Source) string {
	return "s3://" + src.Bucket + "/" + src.Key
}

// NewClient builds an S3 client from the default AWS credential chain.
// src.Region and src.Endpoint override the environment; optFns are applied
// last.
func NewClient(ctx context.Context, src config.S3Source, optFns ...func(*awsconfig.LoadOptions) error) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if src.Region != "" {
		opts = append(opts, awsconfig.WithRegion(src.Region))
	}
	opts = append(opts, optFns...)

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 source: load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if src.Endpoint != "" {
			o.BaseEndpoint = aws.String(src.Endpoint)
		}
		o.UsePathStyle = src.UsePathStyle
	}), nil
}

// Open returns the body of the object named by src.
//
// Errors:
//   - SourceNotFound when the bucket or key does not exist.
func Open(ctx context.Context, client *s3.Client, src config.S3Source) (io.ReadCloser, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(src.Bucket),
		Key:    aws.String(src.Key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var nsb *types.NoSuchBucket
		if errors.As(err, &nsk) || errors.As(err, &nsb) {
			return nil, apperrors.SourceNotFound(URI(src), err)
		}
		return nil, fmt.Errorf("s3 source %s: %w", URI(src), err)
	}
	return out.Body, nil
}
