package attachments

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

// DiskStore writes blobs under Root and serves them from PublicBaseURL (typically "/media").
type DiskStore struct {
	log           *logger.Logger
	root          string
	publicBaseURL string
}

func NewDiskStore(log *logger.Logger, root, publicBaseURL string) (*DiskStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("missing attachment dir")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment dir: %w", err)
	}
	if strings.TrimSpace(publicBaseURL) == "" {
		publicBaseURL = "/media"
	}
	return &DiskStore{
		log:           log.With("service", "DiskAttachmentStore"),
		root:          root,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

func (s *DiskStore) Root() string { return s.root }

func (s *DiskStore) Put(ctx context.Context, messageID int64, up Upload) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}
	if err := Validate(up); err != nil {
		return Stored{}, err
	}
	ct := DetectContentType(up)
	key := ObjectKey(messageID, uuid.NewString()[:8], up.FileName)
	if err := s.write(key, up.Data); err != nil {
		return Stored{}, err
	}
	out := Stored{
		Key:         key,
		URL:         s.publicURL(key),
		ByteSize:    int64(len(up.Data)),
		ContentType: ct,
	}
	if IsImage(ct) {
		thumb, err := Thumbnail(up.Data, ThumbnailMaxSide)
		if err != nil {
			s.log.Warn("thumbnail skipped", "key", key, "error", err)
			return out, nil
		}
		tk := ThumbKey(key)
		if err := s.write(tk, thumb); err != nil {
			_ = s.Delete(ctx, key)
			return Stored{}, err
		}
		out.ThumbKey = tk
		out.ThumbURL = s.publicURL(tk)
	}
	return out, nil
}

func (s *DiskStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *DiskStore) write(key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// path rejects keys that would escape root.
func (s *DiskStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid attachment key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *DiskStore) publicURL(key string) string {
	return s.publicBaseURL + "/" + key
}
