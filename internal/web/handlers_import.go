package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/JonMunkholm/fiscal/internal/core"
	"github.com/JonMunkholm/fiscal/internal/fiscal"
)

// multipartOverhead is allowed on top of the file size limit for the
// multipart envelope and the optional form fields.
const multipartOverhead = 1 << 20

// importResponse is the body of a successful import.
type importResponse struct {
	Success    bool                `json:"success"`
	DocumentID int64               `json:"documento_id"`
	Kind       fiscal.DocumentKind `json:"tipo_documento"`
	Message    string              `json:"message"`
}

// handleImportXML ingests one multipart "file" field. empresa_id and
// usuario_id are optional.
func (s *Server) handleImportXML(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, &core.FileTooLargeError{Size: tooLarge.Limit + 1, Limit: maxSize})
			return
		}
		respondError(w, r, &fiscal.ValidationError{Field: "file", Message: "invalid multipart form"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, &fiscal.ValidationError{Field: "file", Message: "no file provided"})
		return
	}
	defer file.Close()

	companyID, err := optionalID("empresa_id", r.FormValue("empresa_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	userID, err := optionalID("usuario_id", r.FormValue("usuario_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	// One byte past the limit is enough for the service to reject it.
	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.Ingest(ctx, core.IngestRequest{
		FileName:  header.Filename,
		Data:      data,
		CompanyID: companyID,
		UserID:    userID,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, importResponse{
		Success:    true,
		DocumentID: res.DocumentID,
		Kind:       res.Kind,
		Message:    "XML importado com sucesso",
	})
}
