package upload

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/trellis/pkg/config"
	"github.com/ajitpratap0/trellis/pkg/errors"
	"github.com/ajitpratap0/trellis/pkg/panels"
)

// GCSUploader pushes files to a Google Cloud Storage bucket.
type GCSUploader struct {
	cfg    config.UploadConfig
	client *storage.Client
	bucket *storage.BucketHandle
	logger *zap.Logger
}

// NewGCSUploader builds an uploader using application default
// credentials, or an explicit service account file when configured.
func NewGCSUploader(ctx context.Context, cfg config.UploadConfig) (*GCSUploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "gcs upload requires a bucket")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create GCS client")
	}
	return &GCSUploader{
		cfg:    cfg,
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		logger: uploadLogger("gcs", cfg),
	}, nil
}

// UploadDir uploads every file under root.
func (u *GCSUploader) UploadDir(ctx context.Context, root string) (int, error) {
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
func (u *GCSUploader) UploadFile(ctx context.Context, localPath, key string) error {
	return u.put(ctx, localPath, path.Join(u.cfg.Prefix, key))
}

func (u *GCSUploader) put(ctx context.Context, localPath, key string) error {
	f, err := openLocal(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := u.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType(localPath)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection,
			fmt.Sprintf("failed to upload %s to gs://%s/%s", localPath, u.cfg.Bucket, key))
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection,
			fmt.Sprintf("failed to finalize gs://%s/%s", u.cfg.Bucket, key))
	}
	u.logger.Debug("object uploaded", zap.String("key", key))
	return nil
}

// PanelSource resolves panels against the public base URL when one is
// configured, falling back to the public storage endpoint.
func (u *GCSUploader) PanelSource(panelDir string) *panels.Remote {
	base := u.cfg.PublicBaseURL
	if base == "" {
		base = fmt.Sprintf("https://storage.googleapis.com/%s", u.cfg.Bucket)
	}
	base = strings.TrimRight(base, "/")
	joined, _ := url.JoinPath(base, u.cfg.Prefix, panelDir)
	return &panels.Remote{BaseURL: joined}
}

// Close releases the storage client.
func (u *GCSUploader) Close() error { return u.client.Close() }
