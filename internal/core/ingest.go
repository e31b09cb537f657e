package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/fiscal/internal/fiscal"
	"github.com/JonMunkholm/fiscal/internal/logging"
	"github.com/JonMunkholm/fiscal/internal/store"
)

var pdfMagic = []byte("%PDF-")

// FileTooLargeError rejects an upload above the configured size limit.
type FileTooLargeError struct {
	Size  int64
	Limit int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file too large: %d bytes exceeds limit of %d", e.Size, e.Limit)
}

// ValidateUpload runs the checks that must pass before any decoding:
// an .xml name, non-empty content that is not a PDF, and the size limit
// (ignored when maxSize <= 0).
func ValidateUpload(fileName string, data []byte, maxSize int64) error {
	if !strings.EqualFold(filepath.Ext(fileName), ".xml") {
		return &fiscal.UnsupportedFileError{FileName: fileName, Reason: "only .xml files are accepted"}
	}
	if len(data) == 0 {
		return &fiscal.UnsupportedFileError{FileName: fileName, Reason: "file is empty"}
	}
	if bytes.HasPrefix(data, pdfMagic) {
		return &fiscal.UnsupportedFileError{FileName: fileName, Reason: "file is a PDF; upload the XML instead"}
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return &FileTooLargeError{Size: int64(len(data)), Limit: maxSize}
	}
	return nil
}

// IngestRequest is one uploaded XML file.
type IngestRequest struct {
	FileName string
	Data     []byte
	// CompanyID and UserID fall back to the configured defaults when zero.
	CompanyID int64
	UserID    int64
}

// IngestResult identifies the stored document.
type IngestResult struct {
	DocumentID int64
	SupplierID int64
	Kind       fiscal.DocumentKind
	AccessKey  string
	// Inserted is false when an existing access key was updated.
	Inserted bool
}

// Ingest validates, decodes and extracts an XML upload, then resolves the
// supplier and upserts the document in one transaction.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if err := ValidateUpload(req.FileName, req.Data, s.maxFileSize); err != nil {
		return nil, err
	}
	if req.CompanyID == 0 {
		req.CompanyID = s.defaultCompanyID
	}
	if req.UserID == 0 {
		req.UserID = s.defaultUserID
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.ingestTimeout)
	defer cancel()

	logger := logging.WithFields(ctx, append(requestFields(ctx),
		"file_name", req.FileName,
		"company_id", req.CompanyID,
		"size", len(req.Data),
	)...)
	start := time.Now()

	enc := s.detector.Detect(req.Data)
	text, err := fiscal.Decode(req.Data, enc)
	if err != nil {
		logger.Warn("xml decode failed", "encoding", string(enc), "error", err)
		return nil, err
	}

	doc, err := fiscal.Extract(text)
	if err != nil {
		logger.Warn("xml extraction failed", "encoding", string(enc), "error", err)
		return nil, err
	}

	result := &IngestResult{Kind: doc.Kind, AccessKey: doc.AccessKey}
	err = s.store.InTx(ctx, func(q store.Queries) error {
		supplierID, err := resolveSupplier(ctx, q, req.CompanyID, doc)
		if err != nil {
			return err
		}
		result.SupplierID = supplierID

		res, err := q.UpsertDocument(ctx, store.DocumentUpsert{
			CompanyID:  req.CompanyID,
			SupplierID: supplierID,
			CreatedBy:  req.UserID,
			Doc:        doc,
		})
		if err != nil {
			return fmt.Errorf("upsert document: %w", err)
		}
		result.Inserted = res.Inserted

		if res.ID != 0 {
			result.DocumentID = res.ID
			return nil
		}

		id, err := q.DocumentIDByAccessKey(ctx, doc.AccessKey)
		if errors.Is(err, store.ErrNotFound) {
			return &fiscal.DocumentIDResolutionError{AccessKey: doc.AccessKey}
		}
		if err != nil {
			return fmt.Errorf("resolve document id: %w", err)
		}
		result.DocumentID = id
		return nil
	})
	if err != nil {
		logger.Error("document persistence failed", "access_key", doc.AccessKey, "error", err)
		return nil, err
	}

	logger.Info("document ingested",
		"document_id", result.DocumentID,
		"supplier_id", result.SupplierID,
		"kind", string(result.Kind),
		"access_key", result.AccessKey,
		"inserted", result.Inserted,
		"encoding", string(enc),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// ExtractFile validates data as an upload named fileName, then decodes and
// extracts it with detector. Nothing is stored; fiscalctl extract runs it
// offline.
func ExtractFile(detector *fiscal.Detector, fileName string, data []byte, maxSize int64) (*fiscal.ExtractedDocument, fiscal.Encoding, error) {
	if err := ValidateUpload(fileName, data, maxSize); err != nil {
		return nil, "", err
	}
	enc := detector.Detect(data)
	text, err := fiscal.Decode(data, enc)
	if err != nil {
		return nil, enc, err
	}
	doc, err := fiscal.Extract(text)
	return doc, enc, err
}
