// Package media maps uploaded images to object keys and removes blobs that
// are no longer referenced.
package media

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/potkeeper/pkg/apperr"
)

// MaxImageSize is the largest accepted upload.
const MaxImageSize = 5 << 20

var allowedTypes = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Upload types understood by ObjectKey. Anything else is stored under
// the general prefix.
const (
	UploadPot      = "pot"
	UploadTimeline = "timeline"
	UploadCare     = "care"
)

// Keys converts between public image URLs and object keys.
type Keys struct {
	baseURL  string
	defaults []string
}

// NewKeys builds a key mapper. defaults are URL fragments that identify
// shared placeholder images.
func NewKeys(publicBaseURL string, defaults []string) *Keys {
	return &Keys{
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
		defaults: defaults,
	}
}

// IsDefault reports whether url points at a shared placeholder image.
func (k *Keys) IsDefault(url string) bool {
	if url == "" {
		return false
	}
	for _, d := range k.defaults {
		if d != "" && strings.Contains(url, d) {
			return true
		}
	}
	return false
}

// URL returns the public URL of key.
func (k *Keys) URL(key string) string {
	return k.baseURL + "/" + key
}

// KeyFromURL extracts the object key from an image URL. URLs under the
// public base map to the remainder of the path; other absolute URLs map to
// their path; anything unparseable is taken as a key.
func (k *Keys) KeyFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if k.baseURL != "" && strings.HasPrefix(raw, k.baseURL+"/") {
		return strings.TrimPrefix(raw, k.baseURL+"/")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return strings.TrimPrefix(raw, "/")
	}
	return strings.TrimPrefix(u.Path, "/")
}

// ObjectKey lays out an upload by type. Timeline and care uploads belong to
// a pot and need its id.
func ObjectKey(uploadType, userID, potID, fileName string) (string, error) {
	switch uploadType {
	case UploadPot:
		return fmt.Sprintf("pots/%s/%s", userID, fileName), nil
	case UploadTimeline:
		if potID == "" {
			return "", apperr.Validationf("potId is required for timeline images")
		}
		return fmt.Sprintf("timeline/%s/%s/%s", userID, potID, fileName), nil
	case UploadCare:
		if potID == "" {
			return "", apperr.Validationf("potId is required for care images")
		}
		return fmt.Sprintf("care/%s/%s/%s", userID, potID, fileName), nil
	default:
		return fmt.Sprintf("general/%s/%s", userID, fileName), nil
	}
}

// ValidateImage checks the content type and size of an upload and returns
// the file extension to use.
func ValidateImage(contentType string, size int64) (string, error) {
	ext, ok := allowedTypes[contentType]
	if !ok {
		return "", apperr.Validationf("invalid image type, allowed types: JPEG, PNG, GIF, WebP")
	}
	if size > MaxImageSize {
		return "", apperr.Validationf("image file too large, maximum size is 5MB")
	}
	return ext, nil
}

// FileName returns a unique name for an uploaded image.
func FileName(now time.Time, ext string) string {
	return fmt.Sprintf("image_%d_%s.%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:12], ext)
}

// Unreferenced returns the candidates that do not appear in referenced,
// without duplicates.
func Unreferenced(candidates, referenced []string) []string {
	inUse := make(map[string]struct{}, len(referenced))
	for _, r := range referenced {
		inUse[r] = struct{}{}
	}
	var out []string
	seen := map[string]struct{}{}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, ok := inUse[c]; ok {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
