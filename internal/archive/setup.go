package archive

import (
	"context"

	"github.com/ignite/kpi-rollup/internal/config"
)

// FromConfig builds the exporter selected by the archive config. It returns
// nil when archiving is disabled.
func FromConfig(ctx context.Context, cfg config.ArchiveConfig, lister MonthlyLister) (*Exporter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Type == "s3" {
		sink, err := NewS3Sink(ctx, S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.AWSRegion,
			Profile:   cfg.AWSProfile,
			AccessKey: cfg.AWSAccessKey,
			SecretKey: cfg.AWSSecretKey,
		})
		if err != nil {
			return nil, err
		}
		return NewExporter(lister, sink, cfg.S3Prefix), nil
	}
	return NewExporter(lister, LocalSink{Dir: cfg.LocalPath}, cfg.S3Prefix), nil
}
