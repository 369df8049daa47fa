// Package attachments stores message attachment blobs and renders image thumbnails.
package attachments

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"regexp"
	"strings"
)

// MaxUploadBytes caps a single attachment.
const MaxUploadBytes = 25 << 20

type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Stored describes a persisted blob; ThumbKey is empty when no thumbnail was made.
type Stored struct {
	Key         string
	ThumbKey    string
	URL         string
	ThumbURL    string
	ByteSize    int64
	ContentType string
}

type Store interface {
	Put(ctx context.Context, messageID int64, up Upload) (Stored, error)
	Delete(ctx context.Context, key string) error
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFileName keeps the base name and replaces anything outside [A-Za-z0-9._-].
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	name = unsafeName.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	if len(name) > 120 {
		name = name[len(name)-120:]
	}
	return name
}

// ObjectKey is "chat/<message_id>/<nonce>-<file>".
func ObjectKey(messageID int64, nonce, fileName string) string {
	return fmt.Sprintf("chat/%d/%s-%s", messageID, nonce, SanitizeFileName(fileName))
}

func ThumbKey(key string) string {
	return key + ".thumb.jpg"
}

// DetectContentType trusts a declared type unless it is empty or generic.
func DetectContentType(up Upload) string {
	ct := strings.TrimSpace(up.ContentType)
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if len(up.Data) == 0 {
		return "application/octet-stream"
	}
	return http.DetectContentType(up.Data)
}

func Validate(up Upload) error {
	if len(up.Data) == 0 {
		return fmt.Errorf("attachment %q is empty", up.FileName)
	}
	if len(up.Data) > MaxUploadBytes {
		return fmt.Errorf("attachment %q exceeds %d bytes", up.FileName, MaxUploadBytes)
	}
	return nil
}

func IsImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "image/")
}
