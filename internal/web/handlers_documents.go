package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/fiscal/internal/fiscal"
	"github.com/JonMunkholm/fiscal/internal/store"
)

// documentDTO is the API view of a document. Amounts are JSON numbers and
// the raw XML is never included.
type documentDTO struct {
	ID           int64               `json:"id"`
	CompanyID    int64               `json:"empresa_id"`
	SupplierID   int64               `json:"fornecedor_id"`
	SupplierName string              `json:"fornecedor"`
	Kind         fiscal.DocumentKind `json:"tipo_documento"`
	Number       string              `json:"numero_documento"`
	Series       string              `json:"serie,omitempty"`
	AccessKey    string              `json:"chave_acesso,omitempty"`
	IssueDate    *string             `json:"data_emissao"`
	GrossAmount  float64             `json:"valor_total"`
	TaxAmount    float64             `json:"valor_impostos"`
	Status       fiscal.Status       `json:"status_processamento"`
	CreatedAt    string              `json:"created_at"`
	UpdatedAt    string              `json:"updated_at"`
}

func newDocumentDTO(d *fiscal.Document) documentDTO {
	dto := documentDTO{
		ID:           d.ID,
		CompanyID:    d.CompanyID,
		SupplierID:   d.SupplierID,
		SupplierName: d.SupplierName,
		Kind:         d.Kind,
		Number:       d.Number,
		Series:       d.Series,
		AccessKey:    d.AccessKey,
		GrossAmount:  d.GrossAmount.InexactFloat64(),
		TaxAmount:    d.TaxAmount.InexactFloat64(),
		Status:       d.Status,
		CreatedAt:    formatTime(d.CreatedAt),
		UpdatedAt:    formatTime(d.UpdatedAt),
	}
	if d.IssueDate != "" {
		date := d.IssueDate
		dto.IssueDate = &date
	}
	return dto
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

type listResponse struct {
	Total     int           `json:"total"`
	Documents []documentDTO `json:"documentos"`
}

// handleListDocuments lists documents matching the query filters, newest
// issue date first.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	f, err := parseDocumentFilter(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	docs, err := s.service.Documents(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]documentDTO, len(docs))
	for i := range docs {
		out[i] = newDocumentDTO(&docs[i])
	}
	writeJSON(w, r, http.StatusOK, listResponse{Total: len(out), Documents: out})
}

func parseDocumentFilter(r *http.Request) (store.DocumentFilter, error) {
	q := r.URL.Query()
	f := store.DocumentFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Status: strings.TrimSpace(q.Get("status")),
		Kind:   strings.TrimSpace(q.Get("tipo_documento")),
	}

	var err error
	if f.SupplierID, err = optionalID("fornecedor_id", q.Get("fornecedor_id")); err != nil {
		return f, err
	}
	if f.From, err = optionalDate("data_inicial", q.Get("data_inicial")); err != nil {
		return f, err
	}
	if f.To, err = optionalDate("data_final", q.Get("data_final")); err != nil {
		return f, err
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return f, &fiscal.ValidationError{Field: "limit", Message: "must be a positive integer"}
		}
		f.Limit = n
	}
	return f, nil
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	doc, err := s.service.Document(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newDocumentDTO(doc))
}
