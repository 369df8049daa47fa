package app

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/teamchat-backend/internal/platform/attachments"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

func TestResolveAttachmentStoreLocal(t *testing.T) {
	dir := t.TempDir()
	backend, err := resolveAttachmentStore(context.Background(), logger.Nop(), Config{AttachmentStore: "local", AttachmentDir: dir})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, ok := backend.Store.(*attachments.DiskStore); !ok {
		t.Fatalf("store: want=*attachments.DiskStore got=%T", backend.Store)
	}
	if backend.MediaRoot != dir {
		t.Fatalf("media root: want=%q got=%q", dir, backend.MediaRoot)
	}
}

func TestResolveAttachmentStoreMemory(t *testing.T) {
	backend, err := resolveAttachmentStore(context.Background(), logger.Nop(), Config{AttachmentStore: "memory"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if backend.MediaRoot != "" {
		t.Fatalf("media root: want empty got=%q", backend.MediaRoot)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestResolveAttachmentStoreErrors(t *testing.T) {
	_, err := resolveAttachmentStore(context.Background(), logger.Nop(), Config{AttachmentStore: "s3"})
	var be *StorageBootstrapError
	if !errors.As(err, &be) || be.Code != StorageBootstrapErrorInvalidMode {
		t.Fatalf("invalid store: want code=%q got=%v", StorageBootstrapErrorInvalidMode, err)
	}

	t.Setenv("OBJECT_STORAGE_MODE", "gcs_emulator")
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	_, err = resolveAttachmentStore(context.Background(), logger.Nop(), Config{AttachmentStore: "gcs", AttachmentGCSBucket: "b"})
	if !errors.As(err, &be) || be.Code != StorageBootstrapErrorInvalidConfig {
		t.Fatalf("emulator without host: want code=%q got=%v", StorageBootstrapErrorInvalidConfig, err)
	}
}
