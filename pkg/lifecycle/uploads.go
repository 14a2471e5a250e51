package lifecycle

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/platinummonkey/potkeeper/pkg/auth"
	"github.com/platinummonkey/potkeeper/pkg/media"
	"github.com/platinummonkey/potkeeper/pkg/storage/postgres"
)

// UploadInput describes one image upload.
type UploadInput struct {
	UploadType   string
	PotID        string
	OriginalName string
	ContentType  string
	Size         int64
	Body         io.Reader
}

// UploadResult is returned to the client after a successful upload.
type UploadResult struct {
	URL          string `json:"url"`
	ImageURL     string `json:"imageUrl"`
	Key          string `json:"key"`
	FileName     string `json:"fileName"`
	OriginalName string `json:"originalName,omitempty"`
	Size         int64  `json:"size"`
	Type         string `json:"type"`
	UploadType   string `json:"uploadType"`
	PotID        string `json:"potId,omitempty"`
}

// Upload stores an image under the caller's key space. A pot id, when given,
// must belong to the caller and is checked before anything is written. Pot
// uploads also replace the pot's image.
func (s *Service) Upload(ctx context.Context, p *auth.Principal, in UploadInput) (*UploadResult, error) {
	if in.UploadType == "" {
		in.UploadType = media.UploadPot
	}
	in.PotID = strings.TrimSpace(in.PotID)

	ext, err := media.ValidateImage(in.ContentType, in.Size)
	if err != nil {
		return nil, err
	}

	var oldImage string
	if in.PotID != "" {
		if oldImage, err = s.gate.PotOwned(ctx, in.PotID, p.UserID); err != nil {
			return nil, err
		}
	}

	fileName := media.FileName(s.now(), ext)
	key, err := media.ObjectKey(in.UploadType, p.UserID, in.PotID, fileName)
	if err != nil {
		return nil, err
	}
	if err := s.blobs.Put(ctx, key, in.Body, in.ContentType); err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	url := s.cleaner.Keys().URL(key)
	if in.UploadType == media.UploadPot && in.PotID != "" {
		update := postgres.PotUpdate{ImageURL: &url}
		if err := s.pots().Update(ctx, in.PotID, p.UserID, update); err != nil {
			return nil, err
		}
		s.cleanupLater(ctx, "pot_image_cleanup", []string{oldImage})
	}

	s.logger.WithFields(map[string]interface{}{
		"key":         key,
		"upload_type": in.UploadType,
		"size":        in.Size,
	}).Info("image uploaded")

	return &UploadResult{
		URL:          url,
		ImageURL:     url,
		Key:          key,
		FileName:     fileName,
		OriginalName: in.OriginalName,
		Size:         in.Size,
		Type:         in.ContentType,
		UploadType:   in.UploadType,
		PotID:        in.PotID,
	}, nil
}
