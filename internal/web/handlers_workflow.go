package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/fiscal/internal/audit"
	"github.com/JonMunkholm/fiscal/internal/core"
	"github.com/JonMunkholm/fiscal/internal/fiscal"
)

type workflowInput struct {
	Comment string `json:"comentarios"`
	UserID  int64  `json:"usuario_id"`
}

type workflowResponse struct {
	Success       bool          `json:"success"`
	Message       string        `json:"message"`
	NewStatus     fiscal.Status `json:"novo_status"`
	AuditRecorded bool          `json:"auditoria_registrada"`
}

type historyResponse struct {
	Success    bool           `json:"sucesso"`
	DocumentID int64          `json:"documento_id"`
	Total      int            `json:"total_acoes"`
	History    []audit.Record `json:"historico"`
}

type workflowFunc func(context.Context, core.WorkflowRequest) (*core.WorkflowResult, error)

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.runWorkflow(w, r, s.service.Confirm, "Documento confirmado com sucesso")
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	s.runWorkflow(w, r, s.service.FlagForReview, "Documento marcado para revisão")
}

// runWorkflow parses the shared confirm/review input and applies action.
func (s *Server) runWorkflow(w http.ResponseWriter, r *http.Request, action workflowFunc, message string) {
	id, err := documentID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	in, err := parseWorkflowInput(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := action(ctx, core.WorkflowRequest{
		DocumentID: id,
		ActorID:    in.UserID,
		Comment:    in.Comment,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, workflowResponse{
		Success:       true,
		Message:       message,
		NewStatus:     res.NewStatus,
		AuditRecorded: res.AuditRecorded,
	})
}

// parseWorkflowInput accepts JSON, urlencoded or multipart bodies.
func parseWorkflowInput(w http.ResponseWriter, r *http.Request) (workflowInput, error) {
	var in workflowInput
	if isJSON(r) {
		if err := decodeJSON(w, r, &in); err != nil {
			return in, err
		}
		if in.UserID < 0 {
			return in, &fiscal.ValidationError{Field: "usuario_id", Message: "must be a positive integer"}
		}
		return in, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
	in.Comment = r.FormValue("comentarios")
	userID, err := optionalID("usuario_id", r.FormValue("usuario_id"))
	if err != nil {
		return in, err
	}
	in.UserID = userID
	return in, nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	records, err := s.service.History(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}

	writeJSON(w, r, http.StatusOK, historyResponse{
		Success:    true,
		DocumentID: id,
		Total:      len(records),
		History:    records,
	})
}
