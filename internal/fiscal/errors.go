package fiscal

import (
	"fmt"
	"strings"
)

// Field names used in extraction errors and field tables.
const (
	FieldAccessKey     = "chave_acesso"
	FieldNumber        = "numero_documento"
	FieldSeries        = "serie"
	FieldIssueDate     = "data_emissao"
	FieldGrossAmount   = "valor_total"
	FieldTaxAmount     = "valor_impostos"
	FieldSupplierTaxID = "cnpj_fornecedor"
	FieldSupplierName  = "razao_fornecedor"
)

// UnsupportedFileError rejects an upload before any decoding is attempted.
type UnsupportedFileError struct {
	FileName string
	Reason   string
}

func (e *UnsupportedFileError) Error() string {
	return fmt.Sprintf("unsupported file %q: %s", e.FileName, e.Reason)
}

// DecodeError reports that the payload is not valid text in the chosen
// encoding. It is terminal: no second encoding is tried.
type DecodeError struct {
	Encoding Encoding
	Offset   int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: invalid %s byte sequence at offset %d", e.Encoding, e.Offset)
}

// MalformedXMLError wraps the underlying parser failure.
type MalformedXMLError struct {
	Err error
}

func (e *MalformedXMLError) Error() string {
	return "malformed xml: " + e.Err.Error()
}

func (e *MalformedXMLError) Unwrap() error { return e.Err }

// MissingRequiredFieldError names every mandatory field that could not be
// resolved from any candidate path.
type MissingRequiredFieldError struct {
	Kind   DocumentKind
	Fields []string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("missing required field(s) in %s document: %s", e.Kind, strings.Join(e.Fields, ", "))
}

// InvalidFieldFormatError reports a value that does not parse as the
// field's declared type.
type InvalidFieldFormatError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidFieldFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid format for %s (%q): %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid format for %s (%q)", e.Field, e.Value)
}

func (e *InvalidFieldFormatError) Unwrap() error { return e.Err }

// ValidationError rejects workflow input before any state is read.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// InvalidTransitionError reports an action attempted from a status that
// does not allow it.
type InvalidTransitionError struct {
	DocumentID int64
	Action     Action
	Current    Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("document %d cannot %s from status %s", e.DocumentID, e.Action, e.Current)
}

// DocumentIDResolutionError means an upsert reported success but no
// document id could be recovered, not even by access key.
type DocumentIDResolutionError struct {
	AccessKey string
}

func (e *DocumentIDResolutionError) Error() string {
	if e.AccessKey == "" {
		return "document id could not be resolved after upsert"
	}
	return fmt.Sprintf("document id could not be resolved after upsert (access key %s)", e.AccessKey)
}
