// Package s3 implements remote.Store on Amazon S3 (or any S3-compatible
// endpoint such as LocalStack or MinIO).
package s3

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/caarlos0/env/v11"

	"github.com/creativepipe/assetcache/remote"
)

// Config holds S3 connection settings. All fields can be populated from
// the environment via ConfigFromEnv.
type Config struct {
	Bucket         string        `env:"S3_BUCKET_NAME"`
	Region         string        `env:"S3_REGION" envDefault:"us-east-1"`
	KeyPrefix      string        `env:"S3_KEY_PREFIX" envDefault:"creative-assets"`
	Endpoint       string        `env:"S3_ENDPOINT"`
	ForcePathStyle bool          `env:"S3_FORCE_PATH_STYLE"`
	StorageClass   string        `env:"S3_STORAGE_CLASS"`
	UploadTimeout  time.Duration `env:"S3_UPLOAD_TIMEOUT" envDefault:"5m"`
	RequestTimeout time.Duration `env:"S3_REQUEST_TIMEOUT" envDefault:"30s"`
}

// ConfigFromEnv reads Config from process environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("s3 config: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Bucket == "" {
		return errors.New("s3: bucket name required")
	}
	return nil
}

// api is the subset of the S3 client the store uses. It exists so tests
// can substitute a fake.
type api interface {
	HeadObject(ctx context.Context, in *awss3.HeadObjectInput, opts ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, opts ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *awss3.ListObjectsV2Input, opts ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
}

type uploader interface {
	Upload(ctx context.Context, in *awss3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type downloader interface {
	Download(ctx context.Context, w any, in *awss3.GetObjectInput, opts ...func(*manager.Downloader)) (int64, error)
}

// managerDownloader adapts manager.Downloader, whose Download takes an
// io.WriterAt, to the seam above.
type managerDownloader struct{ d *manager.Downloader }

func (m managerDownloader) Download(ctx context.Context, w any, in *awss3.GetObjectInput, opts ...func(*manager.Downloader)) (int64, error) {
	f, ok := w.(*os.File)
	if !ok {
		return 0, errors.New("s3: download target must be *os.File")
	}
	return m.d.Download(ctx, f, in, opts...)
}

// Store implements remote.Store on a single S3 bucket.
type Store struct {
	cfg        Config
	client     api
	uploader   uploader
	downloader downloader
}

var _ remote.Store = (*Store)(nil)

// New connects to S3 using the default AWS credential chain. A custom
// endpoint in cfg routes calls to an S3-compatible service instead.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return &Store{
		cfg:        cfg,
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: managerDownloader{manager.NewDownloader(client)},
	}, nil
}

// Bucket returns the configured bucket name.
func (s *Store) Bucket() string { return s.cfg.Bucket }

func (s *Store) Upload(ctx context.Context, key, localPath string, metadata map[string]string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("s3: open %s: %w", localPath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.UploadTimeout)
	defer cancel()

	in := &awss3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentTypeFor(localPath)),
		Metadata:    metadata,
	}
	if s.cfg.StorageClass != "" {
		in.StorageClass = types.StorageClass(s.cfg.StorageClass)
	}
	if _, err := s.uploader.Upload(ctx, in); err != nil {
		return fmt.Errorf("s3: upload %s: %w", key, err)
	}
	return nil
}

func (s *Store) Download(ctx context.Context, key, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.UploadTimeout)
	defer cancel()

	if _, err := s.downloader.Download(ctx, f, &awss3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("s3: download %s: %w", key, err)
	}
	return nil
}

func (s *Store) Head(ctx context.Context, key string) (remote.ObjectInfo, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	out, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return remote.ObjectInfo{}, false, nil
		}
		return remote.ObjectInfo{}, false, fmt.Errorf("s3: head %s: %w", key, err)
	}
	info := remote.ObjectInfo{
		Key:       key,
		SizeBytes: aws.ToInt64(out.ContentLength),
		Metadata:  out.Metadata,
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, true, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]remote.ObjectInfo, error) {
	var infos []remote.ObjectInfo
	in := &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(prefix),
	}
	for {
		out, err := s.client.ListObjectsV2(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("s3: list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			info := remote.ObjectInfo{
				Key:       aws.ToString(obj.Key),
				SizeBytes: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			infos = append(infos, info)
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		in.ContinuationToken = out.NextContinuationToken
	}
	return infos, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	if _, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("s3: delete %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
