package upload

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/trellis/pkg/config"
	"github.com/ajitpratap0/trellis/pkg/errors"
	"github.com/ajitpratap0/trellis/pkg/panels"
)

// S3Uploader pushes files to an S3 bucket using the transfer manager,
// which handles multipart uploads for large panel files.
type S3Uploader struct {
	cfg      config.UploadConfig
	client   *s3.Client
	uploader *manager.Uploader
	logger   *zap.Logger
}

// NewS3Uploader builds an uploader from the default AWS credential
// chain plus the configured region.
func NewS3Uploader(ctx context.Context, cfg config.UploadConfig) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "s3 upload requires a bucket")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to load AWS configuration")
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3Uploader{
		cfg:      cfg,
		client:   client,
		uploader: manager.NewUploader(client),
		logger:   uploadLogger("s3", cfg),
	}, nil
}

// UploadDir uploads every file under root.
func (u *S3Uploader) UploadDir(ctx context.Context, root string) (int, error) {
	items, err := collectFiles(root, u.cfg.Prefix)
	if err != nil {
		return 0, err
	}
	n, err := uploadAll(ctx, items, u.cfg.MaxConcurrency, func(ctx context.Context, item uploadItem) error {
		return u.put(ctx, item.localPath, item.key)
	})
	if err != nil {
		return n, err
	}
	u.logger.Info("collection uploaded", zap.Int("files", n), zap.String("prefix", u.cfg.Prefix))
	return n, nil
}

// UploadFile uploads one file to the given key under the prefix.
func (u *S3Uploader) UploadFile(ctx context.Context, localPath, key string) error {
	return u.put(ctx, localPath, path.Join(u.cfg.Prefix, key))
}

func (u *S3Uploader) put(ctx context.Context, localPath, key string) error {
	f, err := openLocal(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(localPath)),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection,
			fmt.Sprintf("failed to upload %s to s3://%s/%s", localPath, u.cfg.Bucket, key))
	}
	u.logger.Debug("object uploaded", zap.String("key", key))
	return nil
}

// PanelSource resolves panels against the public base URL when one is
// configured, falling back to the bucket's virtual-hosted endpoint.
func (u *S3Uploader) PanelSource(panelDir string) *panels.Remote {
	base := u.cfg.PublicBaseURL
	if base == "" {
		host := fmt.Sprintf("https://%s.s3.amazonaws.com", u.cfg.Bucket)
		if u.cfg.Region != "" {
			host = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", u.cfg.Bucket, u.cfg.Region)
		}
		base = host
	}
	base = strings.TrimRight(base, "/")
	joined, _ := url.JoinPath(base, u.cfg.Prefix, panelDir)
	return &panels.Remote{BaseURL: joined}
}

// Close is a no-op; the SDK client holds no long-lived resources.
func (u *S3Uploader) Close() error { return nil }
