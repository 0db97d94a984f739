package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

var allowedDocumentFormats = []string{"jpg", "jpeg", "png", "pdf"}

// StoredDocument is where an uploaded verification document ended up.
type StoredDocument struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
	Format   string `json:"format"`
	Bytes    int    `json:"bytes"`
}

// DocumentStore keeps KYC and accreditation evidence files.
type DocumentStore interface {
	Upload(ctx context.Context, file *multipart.FileHeader, folder string) (*StoredDocument, error)
	Delete(ctx context.Context, publicID string) error
}

type CloudinaryStore struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryStore(cloudName, apiKey, apiSecret string) (*CloudinaryStore, error) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("cloudinary credentials not set")
	}
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	return &CloudinaryStore{cld: cld}, nil
}

// ValidateDocument rejects files the store will not accept before any upload.
func ValidateDocument(file *multipart.FileHeader, maxBytes int64) error {
	if file == nil {
		return BadRequest("No file uploaded")
	}
	if maxBytes > 0 && file.Size > maxBytes {
		return BadRequest("File size exceeds %dMB limit", maxBytes/(1024*1024))
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(file.Filename)), ".")
	for _, f := range allowedDocumentFormats {
		if ext == f {
			return nil
		}
	}
	return BadRequest("Invalid file type. Only JPG, PNG and PDF are allowed")
}

func (s *CloudinaryStore) Upload(ctx context.Context, file *multipart.FileHeader, folder string) (*StoredDocument, error) {
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	base := strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
	result, err := s.cld.Upload.Upload(ctx, src, uploader.UploadParams{
		Folder:         folder,
		PublicID:       fmt.Sprintf("%d_%s", time.Now().Unix(), base),
		ResourceType:   "auto",
		AllowedFormats: allowedDocumentFormats,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}
	return &StoredDocument{
		URL:      result.SecureURL,
		PublicID: result.PublicID,
		Format:   result.Format,
		Bytes:    result.Bytes,
	}, nil
}

func (s *CloudinaryStore) Delete(ctx context.Context, publicID string) error {
	if _, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID}); err != nil {
		return fmt.Errorf("failed to delete file from Cloudinary: %w", err)
	}
	return nil
}
