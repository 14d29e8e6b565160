package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// S3Config describes an S3-compatible bucket (AWS S3, Cloudflare R2, MinIO).
type S3Config struct {
	Bucket    string
	Key       string
	Region    string
	Endpoint  string // empty for AWS
	AccessKey string // empty to use the default credential chain
	SecretKey string
}

// s3API is the subset of the S3 client the store needs.
type s3API interface {
	manager.UploadAPIClient
	manager.DownloadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Store keeps the snapshot as a single object.
type S3Store struct {
	client     s3API
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	key        string
	log        zerolog.Logger
}

// NewS3Store builds an S3 client from cfg.
func NewS3Store(ctx context.Context, cfg S3Config, log zerolog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, fmt.Errorf("snapshot bucket and key are required")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, cfg.Bucket, cfg.Key, log), nil
}

func newS3Store(client s3API, bucket, key string, log zerolog.Logger) *S3Store {
	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
		key:        key,
		log:        log.With().Str("component", "snapshot_s3").Logger(),
	}
}

// ModTime returns the object's LastModified timestamp.
func (s *S3Store) ModTime(ctx context.Context) (time.Time, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		if isNotFound(err) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to head %s: %w", s.Location(), err)
	}
	if out.LastModified == nil {
		return time.Time{}, nil
	}
	return *out.LastModified, nil
}

// Load downloads the object.
func (s *S3Store) Load(ctx context.Context) ([]byte, error) {
	buf := manager.NewWriteAtBuffer([]byte{})
	n, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to download %s: %w", s.Location(), err)
	}

	s.log.Debug().Int64("bytes", n).Msg("Downloaded snapshot")
	return buf.Bytes(), nil
}

// Save uploads data, replacing the object.
func (s *S3Store) Save(ctx context.Context, data []byte) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/xml"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", s.Location(), err)
	}

	s.log.Info().Int("bytes", len(data)).Str("location", s.Location()).Msg("Uploaded snapshot")
	return nil
}

// Location returns the s3:// URL of the object.
func (s *S3Store) Location() string {
	return "s3://" + s.bucket + "/" + s.key
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
