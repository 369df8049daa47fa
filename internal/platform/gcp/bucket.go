package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/yungbote/teamchat-backend/internal/platform/attachments"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

type BucketConfig struct {
	Bucket        string
	CDNDomain     string
	PublicBaseURL string
	Storage       ObjectStorageConfig
}

// BucketStore is the GCS attachment store.
type BucketStore struct {
	log    *logger.Logger
	client *storage.Client
	cfg    BucketConfig
}

var _ attachments.Store = (*BucketStore)(nil)

func NewBucketStore(ctx context.Context, log *logger.Logger, cfg BucketConfig) (*BucketStore, error) {
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("missing ATTACHMENT_GCS_BUCKET")
	}
	if err := ValidateObjectStorageConfig(cfg.Storage); err != nil {
		return nil, err
	}
	if raw := strings.TrimSpace(cfg.PublicBaseURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid attachment public base url %q", raw)
		}
	}
	client, err := newStorageClient(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	serviceLog := log.With("service", "BucketAttachmentStore")
	serviceLog.Info("attachment bucket initialized",
		"bucket", cfg.Bucket,
		"mode", cfg.Storage.Mode,
		"mode_inferred", cfg.Storage.Inferred,
		"cdn_domain", cfg.CDNDomain,
	)
	return &BucketStore{log: serviceLog, client: client, cfg: cfg}, nil
}

func newStorageClient(ctx context.Context, sc ObjectStorageConfig) (*storage.Client, error) {
	if sc.IsEmulatorMode() {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(sc.EmulatorHost, "/"))
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	opts := append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
	return storage.NewClient(ctx, opts...)
}

func (bs *BucketStore) Put(ctx context.Context, messageID int64, up attachments.Upload) (attachments.Stored, error) {
	if err := attachments.Validate(up); err != nil {
		return attachments.Stored{}, err
	}
	ct := attachments.DetectContentType(up)
	key := attachments.ObjectKey(messageID, uuid.NewString()[:8], up.FileName)
	if err := bs.upload(ctx, key, ct, up.Data); err != nil {
		return attachments.Stored{}, err
	}
	out := attachments.Stored{
		Key:         key,
		URL:         PublicURL(bs.cfg, key),
		ByteSize:    int64(len(up.Data)),
		ContentType: ct,
	}
	if !attachments.IsImage(ct) {
		return out, nil
	}
	thumb, err := attachments.Thumbnail(up.Data, attachments.ThumbnailMaxSide)
	if err != nil {
		bs.log.Warn("thumbnail skipped", "key", key, "error", err)
		return out, nil
	}
	tk := attachments.ThumbKey(key)
	if err := bs.upload(ctx, tk, "image/jpeg", thumb); err != nil {
		_ = bs.Delete(ctx, key)
		return attachments.Stored{}, err
	}
	out.ThumbKey = tk
	out.ThumbURL = PublicURL(bs.cfg, tk)
	return out, nil
}

func (bs *BucketStore) upload(ctx context.Context, key, contentType string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	w := bs.client.Bucket(bs.cfg.Bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (bs *BucketStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err := bs.client.Bucket(bs.cfg.Bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object: %w", err)
	}
	return nil
}

func (bs *BucketStore) Close() error {
	if bs == nil || bs.client == nil {
		return nil
	}
	return bs.client.Close()
}

// PublicURL prefers the CDN domain, then the emulator media endpoint, then the public base URL.
func PublicURL(cfg BucketConfig, key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if cdn := strings.TrimSpace(cfg.CDNDomain); cdn != "" {
		return fmt.Sprintf("https://%s/%s", cdn, key)
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if cfg.Storage.IsEmulatorMode() {
		if base == "" {
			base = strings.TrimRight(strings.TrimSpace(cfg.Storage.EmulatorHost), "/")
		}
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", base, url.PathEscape(cfg.Bucket), url.PathEscape(key))
	}
	if base != "" {
		return fmt.Sprintf("%s/%s/%s", base, cfg.Bucket, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", cfg.Bucket, key)
}
