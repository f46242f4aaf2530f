package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/CatPortrait/internal/models"
)

const maxImageBytes = 20 << 20

var errNotImage = errors.New("payload is not an image")

type SaveImageInput struct {
	ImageURL string
	Prompt   string
	APIUsed  string
	IsPublic bool
}

type ImagePage struct {
	Images []models.Image `json:"images"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
	Total  int            `json:"total"`
}

type ImageService struct {
	images     ImageStore
	uploader   ObjectUploader
	httpClient *http.Client
	log        *slog.Logger
}

// NewImageService wires the gallery. uploader may be nil when object storage
// is not configured; saving is then rejected.
func NewImageService(images ImageStore, uploader ObjectUploader, log *slog.Logger) *ImageService {
	return &ImageService{
		images:     images,
		uploader:   uploader,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log,
	}
}

// Save copies a generated image into object storage and records it.
func (s *ImageService) Save(ctx context.Context, userID string, in SaveImageInput) (*models.Image, error) {
	if s.uploader == nil {
		return nil, ErrStorageDisabled
	}
	if strings.TrimSpace(in.ImageURL) == "" {
		return nil, fmt.Errorf("%w: imageUrl required", ErrInvalidInput)
	}

	data, contentType, err := s.load(ctx, in.ImageURL)
	if err != nil {
		return nil, err
	}
	obj, err := s.uploader.Upload(ctx, userID, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	img, err := s.images.Create(ctx, &models.Image{
		ID:         uuid.NewString(),
		UserID:     userID,
		ImageURL:   obj.URL,
		StorageKey: obj.Key,
		Prompt:     in.Prompt,
		APIUsed:    in.APIUsed,
		IsPublic:   in.IsPublic,
	})
	if err != nil {
		return nil, fmt.Errorf("record image: %w", err)
	}
	s.log.InfoContext(ctx, "image saved", "user", userID, "image", img.ID, "key", obj.Key)
	return img, nil
}

// List pages through public images, or the caller's own when ownerID is set.
func (s *ImageService) List(ctx context.Context, ownerID string, page, limit int) (*ImagePage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	images, total, err := s.images.List(ctx, ownerID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return &ImagePage{Images: images, Page: page, Limit: limit, Total: total}, nil
}

func (s *ImageService) SetVisibility(ctx context.Context, userID, imageID string, public bool) error {
	if imageID == "" {
		return fmt.Errorf("%w: imageId required", ErrInvalidInput)
	}
	ok, err := s.images.SetVisibility(ctx, imageID, userID, public)
	if err != nil {
		return fmt.Errorf("set visibility: %w", err)
	}
	if !ok {
		return ErrImageNotFound
	}
	return nil
}

func (s *ImageService) Stats(ctx context.Context, imageID string) (*models.ImageStats, error) {
	if imageID == "" {
		return nil, fmt.Errorf("%w: imageId required", ErrInvalidInput)
	}
	if _, err := s.find(ctx, imageID); err != nil {
		return nil, err
	}
	stats, err := s.images.Stats(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("image stats: %w", err)
	}
	return stats, nil
}

// RecordEvent counts a download or share, or stores a 1..5 rating.
func (s *ImageService) RecordEvent(ctx context.Context, userID, imageID string, action models.ImageAction, value int) (*models.ImageStats, error) {
	if imageID == "" {
		return nil, fmt.Errorf("%w: imageId required", ErrInvalidInput)
	}
	switch action {
	case models.ImageActionDownload, models.ImageActionShare:
		value = 1
	case models.ImageActionRating:
		if value < 1 || value > 5 {
			return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action)
	}
	if _, err := s.find(ctx, imageID); err != nil {
		return nil, err
	}
	if err := s.images.RecordEvent(ctx, imageID, userID, action, value); err != nil {
		return nil, fmt.Errorf("record event: %w", err)
	}
	return s.images.Stats(ctx, imageID)
}

func (s *ImageService) find(ctx context.Context, imageID string) (*models.Image, error) {
	img, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	if img == nil {
		return nil, ErrImageNotFound
	}
	return img, nil
}

// load resolves a data URL or downloads an http(s) URL.
func (s *ImageService) load(ctx context.Context, src string) ([]byte, string, error) {
	if strings.HasPrefix(src, "data:") {
		return decodeDataURL(src)
	}
	if !strings.HasPrefix(src, "https://") && !strings.HasPrefix(src, "http://") {
		return nil, "", fmt.Errorf("%w: unsupported image url", ErrInvalidInput)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("download image: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image body: %w", err)
	}
	if len(body) > maxImageBytes {
		return nil, "", fmt.Errorf("%w: image too large", ErrInvalidInput)
	}
	ct, err := normalizeImageContentType(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return body, ct, nil
}

func decodeDataURL(src string) ([]byte, string, error) {
	header, encoded, ok := strings.Cut(strings.TrimPrefix(src, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, "", fmt.Errorf("%w: malformed data url", ErrInvalidInput)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode data url: %v", ErrInvalidInput, err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("%w: image too large", ErrInvalidInput)
	}
	ct, err := normalizeImageContentType(strings.TrimSuffix(header, ";base64"), data)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return data, ct, nil
}

func normalizeImageContentType(headerCT string, data []byte) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(headerCT))
	if idx := strings.Index(ct, ";"); idx > 0 {
		ct = ct[:idx]
	}
	if ct == "" || ct == "application/octet-stream" || !strings.HasPrefix(ct, "image/") {
		if len(data) > 0 {
			ct = http.DetectContentType(data)
			if idx := strings.Index(ct, ";"); idx > 0 {
				ct = ct[:idx]
			}
		}
	}

	switch ct {
	case "image/jpeg", "image/jpg":
		return "image/jpeg", nil
	case "image/png":
		return "image/png", nil
	case "image/webp":
		return "image/webp", nil
	default:
		return "", errNotImage
	}
}
