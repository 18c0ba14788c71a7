package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// LocalSink writes objects below a directory.
type LocalSink struct {
	Dir string
}

// Put writes through a temp file and rename so readers never see a partial
// snapshot.
func (s LocalSink) Put(_ context.Context, key string, body []byte) error {
	dest := filepath.Join(s.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".snapshot-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

// PutObjectAPI is the subset of the S3 client used by S3Sink.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink writes objects to a bucket.
type S3Sink struct {
	client PutObjectAPI
	bucket string
}

// NewS3SinkWithClient wraps an existing client.
func NewS3SinkWithClient(client PutObjectAPI, bucket string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket}
}

// S3Options configures NewS3Sink.
type S3Options struct {
	Bucket    string
	Region    string
	Profile   string // empty uses the default credential chain
	AccessKey string
	SecretKey string
}

// NewS3Sink loads AWS configuration and creates an S3 client. Static keys
// take precedence over a named profile.
func NewS3Sink(ctx context.Context, opts S3Options) (*S3Sink, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	switch {
	case opts.AccessKey != "" && opts.SecretKey != "":
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	case opts.Profile != "":
		loaders = append(loaders, awsconfig.WithSharedConfigProfile(opts.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for archive: %w", err)
	}
	return NewS3SinkWithClient(s3.NewFromConfig(cfg), opts.Bucket), nil
}

// Put implements Sink.
func (s *S3Sink) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s/%s: %w", s.bucket, key, err)
	}
	return nil
}
