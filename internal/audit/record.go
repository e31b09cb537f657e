// Package audit records workflow actions on fiscal documents.
//
// Records go to a primary backend (Firestore) when one is configured and
// to an append-only local directory otherwise, or when the primary fails.
// Reads merge both so that nothing written during an outage is lost.
package audit

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/fiscal/internal/fiscal"
)

// Record is one audited workflow action. Records are never modified.
type Record struct {
	ID         string        `json:"id" firestore:"id" yaml:"id"`
	DocumentID int64         `json:"documento_id" firestore:"documento_id" yaml:"documento_id"`
	Action     fiscal.Action `json:"acao" firestore:"acao" yaml:"acao"`
	ActorID    int64         `json:"usuario_id" firestore:"usuario_id" yaml:"usuario_id"`
	Comment    string        `json:"comentarios" firestore:"comentarios" yaml:"comentarios"`
	NewStatus  fiscal.Status `json:"novo_status" firestore:"novo_status" yaml:"novo_status"`
	// RecordedAt is the local ISO-8601 wall time of the action.
	RecordedAt string `json:"data_hora" firestore:"data_hora" yaml:"data_hora"`
	// Timestamp is RecordedAt in Unix seconds, used for ordering.
	Timestamp int64 `json:"timestamp" firestore:"timestamp" yaml:"timestamp"`

	// ActorName is filled by Trail.History and never persisted.
	ActorName string `json:"usuario_nome,omitempty" firestore:"-" yaml:"usuario_nome,omitempty"`
}

// NewRecord stamps a record with a fresh id and the current time.
func NewRecord(documentID int64, action fiscal.Action, actorID int64, comment string, newStatus fiscal.Status, now time.Time) Record {
	return Record{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Action:     action,
		ActorID:    actorID,
		Comment:    comment,
		NewStatus:  newStatus,
		RecordedAt: now.Format("2006-01-02T15:04:05.000000"),
		Timestamp:  now.Unix(),
	}
}

// legacyRecord is the shape written by the previous system, which stored
// ids either as numbers or as strings and no record id at all.
type legacyRecord struct {
	DocumentID flexInt `json:"documento_id"`
	Action     string  `json:"acao"`
	ActorID    flexInt `json:"usuario_id"`
	Comment    string  `json:"comentarios"`
	NewStatus  string  `json:"novo_status"`
	RecordedAt string  `json:"data_hora"`
	Timestamp  flexInt `json:"timestamp"`
}

func (l legacyRecord) toRecord(documentID int64, index int) Record {
	docID := int64(l.DocumentID)
	if docID == 0 {
		docID = documentID
	}
	return Record{
		ID:         "legacy-" + strconv.FormatInt(documentID, 10) + "-" + strconv.Itoa(index),
		DocumentID: docID,
		Action:     fiscal.Action(l.Action),
		ActorID:    int64(l.ActorID),
		Comment:    l.Comment,
		NewStatus:  fiscal.Status(l.NewStatus),
		RecordedAt: l.RecordedAt,
		Timestamp:  int64(l.Timestamp),
	}
}

// flexInt accepts a JSON number (integer or float) or a numeric string.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexInt(int64(v))
	return nil
}
