package blob

import (
	"context"
	"fmt"

	"github.com/snarg/radio-ingest/internal/config"
)

// New builds the Store implied by cfg: a LocalStore rooted at
// storage.base_dir/storage.upload_dir when S3 is not configured, else an
// S3Store. Mirrors the teacher's storage.New selection logic.
func New(ctx context.Context, storageCfg config.StorageConfig, s3Cfg config.S3Config) (Store, error) {
	if !s3Cfg.Enabled() {
		path := storageCfg.BaseDir + "/" + storageCfg.UploadDir
		local, err := NewLocalStore(path)
		if err != nil {
			return nil, fmt.Errorf("build local store: %w", err)
		}
		return local, nil
	}

	s3Store, err := NewS3Store(ctx, S3Options{
		Bucket:    s3Cfg.Bucket,
		Region:    s3Cfg.Region,
		Endpoint:  s3Cfg.Endpoint,
		AccessKey: s3Cfg.AccessKey,
		SecretKey: s3Cfg.SecretKey,
		Prefix:    s3Cfg.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("build s3 store: %w", err)
	}
	return s3Store, nil
}
