// Package gcs provides a report Provider backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name, e.g. "progresswatch/".
	Prefix string
}

// Provider writes objects to a configured GCS bucket.
type Provider struct {
	client *storage.Client
	bucket string
	prefix string
	logger *zap.Logger
	owned  bool
}

// New creates an ADC-authenticated client and verifies the bucket is
// reachable. The returned provider owns the client; call Close when done.
func New(ctx context.Context, cfg Config, logger *zap.Logger, opts ...option.ClientOption) (*Provider, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil && logger != nil {
			logger.Warn("failed to close GCS client after bucket check", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to get GCS bucket %q attributes: %w", cfg.Bucket, err)
	}
	p, err := NewWithClient(client, cfg, logger)
	if err != nil {
		return nil, err
	}
	p.owned = true
	return p, nil
}

// NewWithClient wraps an existing client. The caller keeps ownership of it.
func NewWithClient(client *storage.Client, cfg Config, logger *zap.Logger) (*Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.TrimPrefix(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

// URI returns the gs:// location objectName is written to.
func (p *Provider) URI(objectName string) string {
	return fmt.Sprintf("gs://%s/%s", p.bucket, p.prefix+objectName)
}

// Save uploads data to objectName under the configured prefix.
func (p *Provider) Save(ctx context.Context, objectName string, data []byte) error {
	if strings.TrimSpace(objectName) == "" {
		return fmt.Errorf("object name is required")
	}
	name := p.prefix + objectName
	wc := p.client.Bucket(p.bucket).Object(name).NewWriter(ctx)
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		wc.ContentType = ct
	}
	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			p.logger.Warn("failed to close GCS writer after write failure", zap.Error(closeErr))
		}
		return fmt.Errorf("failed to write GCS object %s: %w", name, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for object %s: %w", name, err)
	}
	return nil
}

// Close releases the client when the provider created it.
func (p *Provider) Close() error {
	if p == nil || !p.owned {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close GCS client: %w", err)
	}
	return nil
}
