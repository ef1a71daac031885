package validator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/pdf-transcriber/pkg/logger"
)

// ErrInvalidDocument is wrapped by ValidationResult.Err.
var ErrInvalidDocument = errors.New("invalid document")

const DefaultMaxFileSize = 10 * 1024 * 1024

type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

type ValidatorConfig struct {
	MaxFileSize  int64
	AllowedTypes map[string][]string // extension -> accepted MIME types
}

type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
}

// Err returns nil for a valid result, otherwise ErrInvalidDocument wrapped
// with the collected messages.
func (r *ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
}

func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = &ValidatorConfig{}
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = DefaultMaxFileSize
	}
	if len(config.AllowedTypes) == 0 {
		config.AllowedTypes = map[string][]string{".pdf": {"application/pdf"}}
	}
	return &DocumentValidator{logger: log, config: config}
}

// MaxFileSize is the configured upload cap in bytes.
func (v *DocumentValidator) MaxFileSize() int64 { return v.config.MaxFileSize }

func (v *DocumentValidator) ValidateFile(file *multipart.FileHeader) (*ValidationResult, error) {
	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return v.validate(file.Filename, file.Size, f)
}

func (v *DocumentValidator) ValidateBytes(filename string, data []byte) *ValidationResult {
	// bytes.Reader reads never fail
	result, _ := v.validate(filename, int64(len(data)), bytes.NewReader(data))
	return result
}

func (v *DocumentValidator) ValidateFiles(files []*multipart.FileHeader) ([]*ValidationResult, error) {
	results := make([]*ValidationResult, len(files))
	var g errgroup.Group
	for i, file := range files {
		g.Go(func() error {
			result, err := v.ValidateFile(file)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (v *DocumentValidator) validate(filename string, size int64, r io.ReadSeeker) (*ValidationResult, error) {
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  filename,
			Size:      size,
			Extension: strings.ToLower(filepath.Ext(filename)),
		},
	}

	hash, err := calculateHash(r)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	result.FileInfo.Hash = hash

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file pointer: %w", err)
	}
	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to detect mime type: %w", err)
	}
	result.FileInfo.MimeType = mtype.String()

	result.add(v.basicErrors(result.FileInfo)...)
	result.add(v.mimeErrors(result.FileInfo, mtype)...)

	if !result.IsValid {
		v.logger.Debug("Document rejected",
			logger.String("filename", filename),
			logger.Any("errors", result.Errors),
		)
	}
	return result, nil
}

func (r *ValidationResult) add(errs ...ValidationError) {
	if len(errs) > 0 {
		r.IsValid = false
		r.Errors = append(r.Errors, errs...)
	}
}

func (v *DocumentValidator) basicErrors(info FileInfo) []ValidationError {
	var errs []ValidationError
	if info.Size == 0 {
		errs = append(errs, ValidationError{Code: "EMPTY_FILE", Message: "File is empty", Field: "size"})
	}
	if info.Size > v.config.MaxFileSize {
		errs = append(errs, ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}
	if _, ok := v.config.AllowedTypes[info.Extension]; !ok {
		errs = append(errs, ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("File type %q is not allowed", info.Extension),
			Field:   "extension",
		})
	}
	return errs
}

func (v *DocumentValidator) mimeErrors(info FileInfo, mtype *mimetype.MIME) []ValidationError {
	allowed, ok := v.config.AllowedTypes[info.Extension]
	if !ok || info.Size == 0 {
		return nil
	}
	for _, m := range allowed {
		if mtype.Is(m) {
			return nil
		}
	}
	return []ValidationError{{
		Code:    "INVALID_MIME_TYPE",
		Message: fmt.Sprintf("Content type %s does not match extension %s", info.MimeType, info.Extension),
		Field:   "mimeType",
	}}
}

func calculateHash(r io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
