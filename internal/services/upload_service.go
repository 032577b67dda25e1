package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soltixdb/forecaster/internal/logging"
	"github.com/soltixdb/forecaster/internal/preprocess"
	"github.com/soltixdb/forecaster/internal/storage"
	"github.com/soltixdb/forecaster/internal/utils"
)

// Upload is the metadata.json document of an uploaded CSV.
type Upload struct {
	UploadID  string    `json:"uploadId"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"createdAt"`
	preprocess.Preview
}

// HasColumn reports whether the upload's header contains name.
func (u *Upload) HasColumn(name string) bool {
	for _, c := range u.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// UploadService stores CSV uploads and their previews.
type UploadService struct {
	logger *logging.Logger
	store  storage.Store
	now    func() time.Time
}

// NewUploadService creates a new UploadService
func NewUploadService(logger *logging.Logger, store storage.Store) *UploadService {
	if logger == nil {
		logger = logging.Global()
	}
	return &UploadService{
		logger: logger.With("component", "upload_service"),
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Upload stores r as a new upload and writes its preview.
func (s *UploadService) Upload(ctx context.Context, filename string, r io.Reader) (*Upload, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return nil, NewServiceError(CodeInvalidRequest, "Only CSV files are supported")
	}
	uploadID := uuid.NewString()

	path, err := s.store.SaveUpload(ctx, uploadID, r)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	preview, err := preprocess.Analyze(f)
	if err != nil {
		return nil, NewServiceErrorWithDetails(CodeInvalidRequest, "Uploaded file is not a readable CSV", map[string]interface{}{
			"error": err.Error(),
		})
	}

	upload := &Upload{
		UploadID:  uploadID,
		Filename:  filename,
		CreatedAt: s.now(),
		Preview:   *preview,
	}
	if err := s.store.WriteUploadMetadata(uploadID, upload); err != nil {
		return nil, fmt.Errorf("failed to store upload metadata: %w", err)
	}

	s.logger.Info("Upload stored",
		"upload_id", uploadID,
		"filename", filename,
		"columns", len(upload.Columns),
		"time_candidates", len(upload.TimeCandidates))
	return upload, nil
}

// Get returns the metadata of an upload.
func (s *UploadService) Get(_ context.Context, uploadID string) (*Upload, error) {
	if !utils.IsValidID(uploadID) {
		return nil, NewServiceError(CodeInvalidRequest, "Invalid upload id format")
	}
	var upload Upload
	if err := s.store.ReadUploadMetadata(uploadID, &upload); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewServiceError(CodeUploadNotFound, fmt.Sprintf("Upload not found: %s", uploadID))
		}
		return nil, err
	}
	return &upload, nil
}
