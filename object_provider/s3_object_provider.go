package objectprovider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3Types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/schollz/progressbar/v3"
)

type s3Publisher struct {
	input *S3PublisherInput
	s3    *s3.Client
}

type S3PublisherInput struct {
	AwsConfig    aws.Config
	Bucket       string
	Prefix       string
	CreateBucket bool
}

func NewS3Publisher(input *S3PublisherInput) Publisher {
	return &s3Publisher{
		input: input,
		s3:    s3.NewFromConfig(input.AwsConfig),
	}
}

func (o *s3Publisher) Describe() string {
	return fmt.Sprintf("s3://%s/%s", o.input.Bucket, o.input.Prefix)
}

func (o *s3Publisher) SetUp(ctx context.Context) error {
	if !o.input.CreateBucket {
		return nil
	}

	in := &s3.CreateBucketInput{
		Bucket: &o.input.Bucket,
		ACL:    s3Types.BucketCannedACLPrivate,
	}
	// us-east-1 rejects an explicit location constraint
	if o.input.AwsConfig.Region != "" && o.input.AwsConfig.Region != "us-east-1" {
		in.CreateBucketConfiguration = &s3Types.CreateBucketConfiguration{
			LocationConstraint: s3Types.BucketLocationConstraint(o.input.AwsConfig.Region),
		}
	}
	_, err := o.s3.CreateBucket(ctx, in)
	var owned *s3Types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		slog.Debug("bucket already exists", slog.String("name", o.input.Bucket))
		return nil
	} else if err != nil {
		return fmt.Errorf("creating bucket %s: %w", o.input.Bucket, err)
	}
	slog.Debug("created bucket", slog.String("name", o.input.Bucket))
	return nil
}

func (o *s3Publisher) Publish(ctx context.Context, localPath, runID string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("opening archive: %w", err)
	}

	key := ObjectKey(o.input.Prefix, runID, filepath.Base(localPath))
	slog.Info("uploading archive", slog.String("bucket", o.input.Bucket), slog.String("key", key))

	uploader := manager.NewUploader(o.s3, func(u *manager.Uploader) {
		u.PartSize = 1024 * 1024 * 10
	})
	p := progressbar.DefaultBytes(info.Size(), "Uploading archive:")
	body := progressbar.NewReader(f, p)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &o.input.Bucket,
		Key:    &key,
		Body:   &body,
	})
	p.Finish()
	if err != nil {
		slog.Error("failed to upload archive", slog.String("error", err.Error()))
		return "", fmt.Errorf("uploading archive: %w", err)
	}

	location := fmt.Sprintf("s3://%s/%s", o.input.Bucket, key)
	slog.Info("done uploading", slog.String("location", location))
	return location, nil
}
