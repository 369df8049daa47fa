package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/teamchat-backend/internal/platform/attachments"
	"github.com/yungbote/teamchat-backend/internal/platform/gcp"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

var newBucketStore = gcp.NewBucketStore

type StorageBootstrapErrorCode string

const (
	StorageBootstrapErrorInvalidMode   StorageBootstrapErrorCode = "invalid_mode"
	StorageBootstrapErrorInvalidConfig StorageBootstrapErrorCode = "invalid_config"
	StorageBootstrapErrorConnectFailed StorageBootstrapErrorCode = "connect_failed"
)

type StorageBootstrapError struct {
	Code  StorageBootstrapErrorCode
	Store string
	Cause error
}

func (e *StorageBootstrapError) Error() string {
	if e == nil {
		return "attachment storage bootstrap failed"
	}
	return fmt.Sprintf("attachment storage bootstrap failed (code=%s store=%q): %v", e.Code, e.Store, e.Cause)
}

func (e *StorageBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

type attachmentBackend struct {
	Store attachments.Store
	// MediaRoot is non-empty when blobs sit on local disk and must be served by the router.
	MediaRoot string
	Close     func() error
}

func resolveAttachmentStore(ctx context.Context, log *logger.Logger, cfg Config) (attachmentBackend, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.AttachmentStore))
	noop := func() error { return nil }
	switch kind {
	case "", "local", "disk":
		ds, err := attachments.NewDiskStore(log, cfg.AttachmentDir, cfg.AttachmentPublicBaseURL)
		if err != nil {
			return attachmentBackend{}, &StorageBootstrapError{Code: StorageBootstrapErrorInvalidConfig, Store: "local", Cause: err}
		}
		log.Info("Attachment store selected", "store", "local", "dir", ds.Root())
		return attachmentBackend{Store: ds, MediaRoot: ds.Root(), Close: noop}, nil
	case "memory":
		log.Warn("Attachment store is in-memory; uploads are lost on restart")
		return attachmentBackend{Store: attachments.NewMemoryStore(), Close: noop}, nil
	case "gcs":
		storageCfg, err := gcp.ResolveObjectStorageConfigFromEnv()
		if err != nil {
			return attachmentBackend{}, &StorageBootstrapError{Code: StorageBootstrapErrorInvalidConfig, Store: kind, Cause: err}
		}
		bs, err := newBucketStore(ctx, log, gcp.BucketConfig{
			Bucket:        cfg.AttachmentGCSBucket,
			CDNDomain:     cfg.AttachmentCDNDomain,
			PublicBaseURL: cfg.AttachmentPublicBaseURL,
			Storage:       storageCfg,
		})
		if err != nil {
			log.Error("Attachment bucket init failed", "bucket", cfg.AttachmentGCSBucket, "mode", storageCfg.Mode, "error", err)
			return attachmentBackend{}, &StorageBootstrapError{Code: StorageBootstrapErrorConnectFailed, Store: kind, Cause: err}
		}
		log.Info("Attachment store selected", "store", "gcs", "bucket", cfg.AttachmentGCSBucket, "mode", storageCfg.Mode)
		return attachmentBackend{Store: bs, Close: bs.Close}, nil
	default:
		return attachmentBackend{}, &StorageBootstrapError{
			Code:  StorageBootstrapErrorInvalidMode,
			Store: kind,
			Cause: fmt.Errorf("unsupported ATTACHMENT_STORE %q (allowed: local, gcs, memory)", cfg.AttachmentStore),
		}
	}
}
