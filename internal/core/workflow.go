package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/fiscal/internal/audit"
	"github.com/JonMunkholm/fiscal/internal/fiscal"
	"github.com/JonMunkholm/fiscal/internal/logging"
)

// WorkflowRequest is a confirm or review action on one document.
type WorkflowRequest struct {
	DocumentID int64
	// ActorID falls back to the configured default user when zero.
	ActorID int64
	Comment string
}

// WorkflowResult reports the status a document moved to.
type WorkflowResult struct {
	DocumentID int64
	NewStatus  fiscal.Status
	// AuditRecorded is false when no audit backend accepted the record.
	// The transition itself still happened.
	AuditRecorded bool
}

// Confirm provisions a pending or flagged document.
func (s *Service) Confirm(ctx context.Context, req WorkflowRequest) (*WorkflowResult, error) {
	return s.transition(ctx, fiscal.ActionConfirm, req)
}

// FlagForReview sends a document back for review.
func (s *Service) FlagForReview(ctx context.Context, req WorkflowRequest) (*WorkflowResult, error) {
	return s.transition(ctx, fiscal.ActionReview, req)
}

func (s *Service) transition(ctx context.Context, action fiscal.Action, req WorkflowRequest) (*WorkflowResult, error) {
	if err := fiscal.ValidateComment(req.Comment); err != nil {
		return nil, err
	}
	if req.ActorID == 0 {
		req.ActorID = s.defaultUserID
	}

	logger := logging.WithFields(ctx, append(requestFields(ctx),
		"document_id", req.DocumentID,
		"action", string(action),
		"actor_id", req.ActorID,
	)...)

	q := s.store.Queries()
	current, err := q.DocumentStatus(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("read document status: %w", err)
	}

	next, err := fiscal.NextStatus(action, current)
	if err != nil {
		return nil, &fiscal.InvalidTransitionError{DocumentID: req.DocumentID, Action: action, Current: current}
	}

	swapped, err := q.CompareAndSetStatus(ctx, req.DocumentID, current, next)
	if err != nil {
		return nil, fmt.Errorf("update document status: %w", err)
	}
	if !swapped {
		// Another request changed the status between the read and the write.
		fresh, err := q.DocumentStatus(ctx, req.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("re-read document status: %w", err)
		}
		logger.Warn("status changed concurrently", "expected", string(current), "found", string(fresh))
		return nil, &fiscal.InvalidTransitionError{DocumentID: req.DocumentID, Action: action, Current: fresh}
	}

	recorded := s.trail.Record(ctx, req.DocumentID, action, req.ActorID, req.Comment, next)
	logger.Info("document status changed",
		"from", string(current),
		"to", string(next),
		"audit_recorded", recorded,
	)

	return &WorkflowResult{
		DocumentID:    req.DocumentID,
		NewStatus:     next,
		AuditRecorded: recorded,
	}, nil
}

// History returns the merged audit trail of an existing document.
func (s *Service) History(ctx context.Context, documentID int64) ([]audit.Record, error) {
	if _, err := s.store.Queries().DocumentStatus(ctx, documentID); err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	records, err := s.trail.History(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("read audit history: %w", err)
	}
	return records, nil
}
