package app

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	OriginalsPrefix = "originals/"
	DefaultMaxSize  = 10 * 1024 * 1024

	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

var (
	allowedExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".avif": true}
	allowedMIMETypes  = map[string]bool{"image/jpeg": true, "image/png": true, "image/webp": true, "image/avif": true}
)

// ObjectGateway is the storage side of the upload service.
type ObjectGateway interface {
	PresignPut(ctx context.Context, objectKey string) (string, error)
	PresignGet(ctx context.Context, objectKey string, opts GetOptions) (string, time.Duration, error)
	PresignView(ctx context.Context, objectKey string) (string, error)
}

// ImageFilter selects images; a nil UserID selects every user.
type ImageFilter struct {
	UserID *uint
	Page   Page
}

// ImageStore persists image metadata.
type ImageStore interface {
	CreateImage(ctx context.Context, image *Image) error
	ListImages(ctx context.Context, filter ImageFilter) ([]Image, error)
}

// UploadRecorder is notified of issued URLs; metrics implement it.
type UploadRecorder interface {
	UploadURLIssued()
	DownloadURLIssued()
}

type UploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
	Size        int64  `json:"size"`
}

type UploadResponse struct {
	PresignedURL string `json:"presignedUrl"`
	ObjectKey    string `json:"objectKey"`
}

type DownloadResponse struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expiresIn"`
	Download  bool   `json:"download"`
}

// ImageView is an image row with a fresh presigned GET URL.
type ImageView struct {
	ID          uint      `json:"id"`
	UserID      uint      `json:"user_id"`
	Key         string    `json:"key"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}

// Page is an offset/limit window.
type Page struct {
	Skip  int
	Limit int
}

// NewPage normalizes skip to >= 0 and limit to [1, 100]. Callers apply
// DefaultPageLimit when no limit was given.
func NewPage(skip, limit int) Page {
	if skip < 0 {
		skip = 0
	}
	switch {
	case limit < 1:
		limit = 1
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}
	return Page{Skip: skip, Limit: limit}
}

// DefaultPage is the first page at the default size.
func DefaultPage() Page {
	return Page{Limit: DefaultPageLimit}
}

// UploadService validates upload requests, issues presigned URLs and
// records per-user image metadata.
type UploadService struct {
	storage  ObjectGateway
	images   ImageStore
	maxSize  int64
	newKey   func(ext string) string
	recorder UploadRecorder
	log      logrus.FieldLogger
}

func NewUploadService(storage ObjectGateway, images ImageStore, maxSize int64, recorder UploadRecorder, log logrus.FieldLogger) *UploadService {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &UploadService{
		storage:  storage,
		images:   images,
		maxSize:  maxSize,
		newKey:   newObjectKey,
		recorder: recorder,
		log:      log,
	}
}

func newObjectKey(ext string) string {
	id := uuid.New()
	return OriginalsPrefix + strings.ReplaceAll(id.String(), "-", "") + ext
}

// CreateUploadURL validates the request, signs a PUT URL for a fresh key and
// records the image for userID. The metadata row is written after signing;
// a failed write is returned and the signed URL is simply never handed out.
func (s *UploadService) CreateUploadURL(ctx context.Context, req UploadRequest, userID uint) (*UploadResponse, error) {
	if req.Size > s.maxSize {
		return nil, validationf("File too large")
	}
	if req.Size < 0 {
		return nil, validationf("Invalid file size")
	}
	ext := strings.ToLower(path.Ext(req.Filename))
	if !allowedExtensions[ext] || !allowedMIMETypes[req.ContentType] {
		return nil, validationf("Unsupported file type")
	}

	key := s.newKey(ext)
	signed, err := s.storage.PresignPut(ctx, key)
	if err != nil {
		return nil, err
	}

	image := &Image{
		UserID:      userID,
		ObjectKey:   key,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Size:        req.Size,
	}
	if err := s.images.CreateImage(ctx, image); err != nil {
		return nil, fmt.Errorf("record image %s: %w", key, err)
	}

	if s.recorder != nil {
		s.recorder.UploadURLIssued()
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "key": key, "size": req.Size}).Info("upload url issued")
	return &UploadResponse{PresignedURL: signed, ObjectKey: key}, nil
}

// ValidateObjectKey rejects keys that could escape the bucket namespace.
func ValidateObjectKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return validationf("Invalid key")
	}
	return nil
}

// GetDownloadURL signs a GET for any existing key. Possession of the key is
// the authorization; ownership is not checked.
func (s *UploadService) GetDownloadURL(ctx context.Context, key string, opts GetOptions) (*DownloadResponse, error) {
	if err := ValidateObjectKey(key); err != nil {
		return nil, err
	}
	signed, expiry, err := s.storage.PresignGet(ctx, key, opts)
	if err != nil {
		return nil, err
	}
	if s.recorder != nil {
		s.recorder.DownloadURLIssued()
	}
	return &DownloadResponse{
		URL:       signed,
		Key:       key,
		ExpiresIn: int(expiry / time.Second),
		Download:  opts.AsDownload,
	}, nil
}

// ListMyImages lists the caller's own images, newest first.
func (s *UploadService) ListMyImages(ctx context.Context, userID uint, page Page) ([]ImageView, error) {
	return s.list(ctx, ImageFilter{UserID: &userID, Page: page})
}

// ListUserImages lists one user's images without authenticating the caller.
func (s *UploadService) ListUserImages(ctx context.Context, targetUserID uint, page Page) ([]ImageView, error) {
	return s.list(ctx, ImageFilter{UserID: &targetUserID, Page: page})
}

// ListAllImages lists every user's images.
func (s *UploadService) ListAllImages(ctx context.Context, page Page) ([]ImageView, error) {
	return s.list(ctx, ImageFilter{Page: page})
}

func (s *UploadService) list(ctx context.Context, filter ImageFilter) ([]ImageView, error) {
	filter.Page = NewPage(filter.Page.Skip, filter.Page.Limit)
	images, err := s.images.ListImages(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	views := make([]ImageView, 0, len(images))
	for _, img := range images {
		signed, err := s.storage.PresignView(ctx, img.ObjectKey)
		if err != nil {
			return nil, err
		}
		views = append(views, ImageView{
			ID:          img.ID,
			UserID:      img.UserID,
			Key:         img.ObjectKey,
			Filename:    img.Filename,
			ContentType: img.ContentType,
			Size:        img.Size,
			URL:         signed,
			CreatedAt:   img.CreatedAt,
		})
	}
	return views, nil
}
