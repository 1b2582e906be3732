package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"darkroom/internal/config"
	"darkroom/internal/logging"
	"darkroom/internal/services"
)

const defaultRegion = "us-east-1"

// S3 archives into an S3-compatible bucket.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3 builds an S3 client from the archive settings. Static credentials
// are used when both keys are set; otherwise the default AWS chain applies.
func NewS3(ctx context.Context, cfg config.S3, logger *slog.Logger) (*S3, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "archive", "s3", "archive.s3.bucket is required", nil)
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	optFns := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "archive", "s3", "Unable to load AWS configuration", err)
	}

	var s3OptFns []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.PathStyle {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3{
		client: s3.NewFromConfig(awsCfg, s3OptFns...),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logging.NewComponentLogger(logger, "archive"),
	}, nil
}

func (s *S3) Name() string { return "s3" }

func (s *S3) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *S3) Put(ctx context.Context, key, src string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	f, err := os.Open(src)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "archive", "open", "Unable to open gold file", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", src, err)
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(src)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	objectKey := s.objectKey(key)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          f,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "archive", "put object", "Unable to upload to archive bucket", err)
	}
	location := "s3://" + s.bucket + "/" + objectKey
	s.logger.Debug("archived file", logging.String("source", src), logging.String("destination", location))
	return location, nil
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, services.Wrap(services.ErrTransient, "archive", "head object", "Unable to query archive bucket", err)
}
