// Package upload deploys a built collection directory to object
// storage so that panels can be served as remote sources. Providers
// share the Uploader interface; S3 and Google Cloud Storage are
// implemented.
package upload

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/trellis/pkg/config"
	"github.com/ajitpratap0/trellis/pkg/errors"
	"github.com/ajitpratap0/trellis/pkg/logger"
	"github.com/ajitpratap0/trellis/pkg/panels"
)

// Uploader pushes local files into a bucket.
type Uploader interface {
	// UploadDir walks root and uploads every regular file, preserving
	// relative paths under the configured prefix. It returns the number
	// of files uploaded.
	UploadDir(ctx context.Context, root string) (int, error)
	// UploadFile uploads a single file to the given relative key.
	UploadFile(ctx context.Context, localPath, key string) error
	// PanelSource returns the remote source viewers should use for
	// panels uploaded from the given local panel directory.
	PanelSource(panelDir string) *panels.Remote
	// Close releases provider clients.
	Close() error
}

// New builds the uploader named by the configuration.
func New(ctx context.Context, cfg config.UploadConfig) (Uploader, error) {
	switch cfg.Provider {
	case "s3":
		return NewS3Uploader(ctx, cfg)
	case "gcs":
		return NewGCSUploader(ctx, cfg)
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown upload provider %q", cfg.Provider)
	}
}

// walkFiles lists every regular file under root with its bucket key.
type uploadItem struct {
	localPath string
	key       string
}

func collectFiles(root, prefix string) ([]uploadItem, error) {
	var items []uploadItem
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		items = append(items, uploadItem{
			localPath: p,
			key:       path.Join(prefix, filepath.ToSlash(rel)),
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile,
			fmt.Sprintf("failed to walk collection directory %s", root))
	}
	return items, nil
}

// uploadAll fans the items out over a bounded worker group. The first
// error wins; remaining uploads still drain but their errors are
// dropped.
func uploadAll(ctx context.Context, items []uploadItem, concurrency int,
	one func(context.Context, uploadItem) error) (int, error) {
	if concurrency < 1 {
		concurrency = 4
	}
	sem := make(chan struct{}, concurrency)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		done     int
	)
	for _, item := range items {
		item := item
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := one(ctx, item); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			mu.Lock()
			done++
			mu.Unlock()
		}()
	}
	wg.Wait()
	return done, firstErr
}

func contentType(p string) string {
	if ct := mime.TypeByExtension(filepath.Ext(p)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func openLocal(p string) (*os.File, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile,
			fmt.Sprintf("failed to open %s for upload", p))
	}
	return f, nil
}

func uploadLogger(provider string, cfg config.UploadConfig) *zap.Logger {
	return logger.Get().Named("upload").With(
		zap.String("provider", provider),
		zap.String("bucket", cfg.Bucket))
}
