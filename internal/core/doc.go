// Package core provides the business logic for fiscal document ingestion
// and the approval workflow.
//
// This package is independent of any transport. It is used by the web
// handlers and by fiscalctl, and tests drive it against an in-memory
// SQLite store.
//
// # Architecture
//
// The package is organized around a single [Service]:
//
//   - Ingestion: [Service.Ingest] validates the upload, detects the
//     encoding, extracts the document with [fiscal.Extract] and persists the
//     supplier and document in one transaction.
//   - Workflow: [Service.Confirm] and [Service.FlagForReview] move a
//     document between statuses with a compare-and-set and emit an audit
//     record through the [audit.Trail].
//   - Queries: [Service.Document], [Service.Documents] and
//     [Service.History] read documents and their merged audit trail.
//
// # Ingestion Flow
//
//  1. [ValidateUpload] rejects non-XML names, PDF content and oversized files
//  2. An [IngestLimiter] slot is acquired (bounded concurrency)
//  3. The payload is decoded and extracted
//  4. The supplier is resolved or created, then the document is upserted
//     by access key; both steps share one transaction
//
// # Error Handling
//
// Domain errors are typed (see package fiscal). [MapError] turns any error
// into a [UserMessage] with a support code:
//
//   - ING001-ING009: Upload and extraction errors
//   - WF001-WF003: Workflow errors
//   - VAL001: Malformed request parameters
//   - AUTH001: Login errors
//   - DB001-DB007: Database errors
//   - RATE001-RATE002: Throttling
package core
