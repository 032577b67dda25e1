// Package storage keeps uploaded sources and per-job artifacts on the local
// filesystem:
//
//	<root>/uploads/<upload_id>/source.csv
//	<root>/uploads/<upload_id>/metadata.json
//	<root>/jobs/<job_id>/results.json | error.json | forecast.csv | forecast.png | model_<name>.bin
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/soltixdb/forecaster/internal/logging"
	"github.com/soltixdb/forecaster/internal/utils"
)

const (
	uploadsDir = "uploads"
	jobsDir    = "jobs"
)

// ErrNotFound is returned for a missing upload or artifact.
var ErrNotFound = errors.New("artifact not found")

// Store is the storage collaborator used by the services.
type Store interface {
	// SaveUpload stores an uploaded CSV and returns its path
	SaveUpload(ctx context.Context, uploadID string, r io.Reader) (string, error)
	// UploadPath returns the path of a stored upload
	UploadPath(uploadID string) (string, error)
	// WriteUploadMetadata stores the upload preview
	WriteUploadMetadata(uploadID string, v interface{}) error
	// ReadUploadMetadata loads the upload preview into v
	ReadUploadMetadata(uploadID string, v interface{}) error

	// WriteArtifact stores a job artifact atomically and returns its path
	WriteArtifact(jobID, name string, data []byte) (string, error)
	// WriteJSON stores v as an indented JSON artifact
	WriteJSON(jobID, name string, v interface{}) (string, error)
	// ReadJSON loads a JSON artifact into v
	ReadJSON(jobID, name string, v interface{}) error
	// ArtifactPath returns the path of an existing artifact
	ArtifactPath(jobID, name string) (string, error)
	// JobDir returns the artifact directory of a job, creating it if needed
	JobDir(jobID string) (string, error)
}

// LocalStore implements Store on a directory tree.
type LocalStore struct {
	root   string
	logger *logging.Logger
}

// NewLocalStore creates the directory layout under root.
func NewLocalStore(root string, logger *logging.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = logging.Global()
	}
	for _, dir := range []string{uploadsDir, jobsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}
	return &LocalStore{root: root, logger: logger}, nil
}

// Root returns the data directory.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) uploadDir(uploadID string) (string, error) {
	if !utils.IsValidID(uploadID) {
		return "", fmt.Errorf("invalid upload id %q", uploadID)
	}
	return utils.SafeJoin(s.root, uploadsDir, uploadID)
}

// SaveUpload streams r into uploads/<id>/source.csv.
func (s *LocalStore) SaveUpload(ctx context.Context, uploadID string, r io.Reader) (string, error) {
	dir, err := s.uploadDir(uploadID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	path := filepath.Join(dir, utils.SourceFile)
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	_, copyErr := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write upload: %w", errors.Join(copyErr, closeErr))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename upload: %w", err)
	}

	s.logger.Debug("Stored upload", "upload_id", uploadID, "path", path)
	return path, nil
}

// UploadPath returns the stored source.csv of an upload.
func (s *LocalStore) UploadPath(uploadID string) (string, error) {
	dir, err := s.uploadDir(uploadID)
	if err != nil {
		return "", err
	}
	return existing(filepath.Join(dir, utils.SourceFile))
}

// WriteUploadMetadata writes uploads/<id>/metadata.json.
func (s *LocalStore) WriteUploadMetadata(uploadID string, v interface{}) error {
	dir, err := s.uploadDir(uploadID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal upload metadata: %w", err)
	}
	_, err = writeAtomic(dir, utils.MetadataFile, data)
	return err
}

// ReadUploadMetadata reads uploads/<id>/metadata.json.
func (s *LocalStore) ReadUploadMetadata(uploadID string, v interface{}) error {
	dir, err := s.uploadDir(uploadID)
	if err != nil {
		return err
	}
	return readJSON(filepath.Join(dir, utils.MetadataFile), v)
}

// JobDir returns jobs/<id>, creating it.
func (s *LocalStore) JobDir(jobID string) (string, error) {
	if !utils.IsValidID(jobID) {
		return "", fmt.Errorf("invalid job id %q", jobID)
	}
	dir, err := utils.SafeJoin(s.root, jobsDir, jobID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create job directory: %w", err)
	}
	return dir, nil
}

// WriteArtifact writes jobs/<id>/<name> through a temp file and rename.
func (s *LocalStore) WriteArtifact(jobID, name string, data []byte) (string, error) {
	dir, err := s.JobDir(jobID)
	if err != nil {
		return "", err
	}
	return writeAtomic(dir, name, data)
}

// WriteJSON writes v as an indented JSON artifact.
func (s *LocalStore) WriteJSON(jobID, name string, v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return s.WriteArtifact(jobID, name, data)
}

// ReadJSON reads a JSON artifact.
func (s *LocalStore) ReadJSON(jobID, name string, v interface{}) error {
	path, err := s.artifactPath(jobID, name)
	if err != nil {
		return err
	}
	return readJSON(path, v)
}

// ArtifactPath returns the path of an artifact that exists.
func (s *LocalStore) ArtifactPath(jobID, name string) (string, error) {
	path, err := s.artifactPath(jobID, name)
	if err != nil {
		return "", err
	}
	return existing(path)
}

func (s *LocalStore) artifactPath(jobID, name string) (string, error) {
	if !utils.IsValidID(jobID) {
		return "", fmt.Errorf("invalid job id %q", jobID)
	}
	return utils.SafeJoin(s.root, jobsDir, jobID, name)
}

func writeAtomic(dir, name string, data []byte) (string, error) {
	path, err := utils.SafeJoin(dir, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename %s: %w", name, err)
	}
	return path, nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func existing(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return "", err
	}
	return path, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
