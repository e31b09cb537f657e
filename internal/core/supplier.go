package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/fiscal/internal/fiscal"
	"github.com/JonMunkholm/fiscal/internal/store"
)

// resolveSupplier returns the id of the supplier identified by the
// document's tax id within companyID, creating it when missing. An
// existing supplier is never renamed. Suppliers created here are always
// legal entities, whatever tax id path the document used.
//
// A unique violation on create means a concurrent ingestion inserted the
// same supplier first; the lookup is retried exactly once.
func resolveSupplier(ctx context.Context, q store.Queries, companyID int64, doc *fiscal.ExtractedDocument) (int64, error) {
	id, err := q.FindSupplier(ctx, companyID, doc.SupplierTaxID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("find supplier: %w", err)
	}

	id, err = q.CreateSupplier(ctx, store.NewSupplier{
		CompanyID:  companyID,
		TaxID:      doc.SupplierTaxID,
		Name:       doc.SupplierName,
		PersonType: fiscal.PersonLegal,
	})
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, store.ErrUniqueViolation) {
		return 0, fmt.Errorf("create supplier: %w", err)
	}

	id, err = q.FindSupplier(ctx, companyID, doc.SupplierTaxID)
	if err != nil {
		return 0, fmt.Errorf("find supplier after concurrent create: %w", err)
	}
	return id, nil
}
