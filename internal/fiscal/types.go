// Package fiscal holds the domain model for fiscal documents and the pure
// parts of ingestion: encoding detection, schema classification, field
// extraction and the workflow transition rules.
//
// Nothing in this package touches storage or the network, so every piece
// can be exercised directly by tests and by the fiscalctl CLI.
package fiscal

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentKind identifies the schema family a document was extracted from.
type DocumentKind string

const (
	KindNFe   DocumentKind = "NF-e"
	KindNFSe  DocumentKind = "NFS-e"
	KindOther DocumentKind = "OUTROS"
)

// Status is the processing status stored in documentos_fiscais.
type Status string

const (
	StatusPending     Status = "PENDENTE"
	StatusReview      Status = "REVISAR"
	StatusProvisioned Status = "PROVISIONADO"
	StatusProcessed   Status = "PROCESSADO"
	StatusApproved    Status = "APROVADO"
	StatusPaid        Status = "PAGO"
)

// PersonType distinguishes legal entities (CNPJ) from individuals (CPF).
type PersonType string

const (
	PersonLegal      PersonType = "PJ"
	PersonIndividual PersonType = "PF"
)

// ExtractedDocument is the normalized record produced by ingestion before
// it is persisted.
type ExtractedDocument struct {
	Kind          DocumentKind    `json:"tipo_documento" yaml:"tipo_documento"`
	Number        string          `json:"numero_documento,omitempty" yaml:"numero_documento,omitempty"`
	Series        string          `json:"serie,omitempty" yaml:"serie,omitempty"`
	AccessKey     string          `json:"chave_acesso,omitempty" yaml:"chave_acesso,omitempty"`
	IssueDate     string          `json:"data_emissao,omitempty" yaml:"data_emissao,omitempty"`
	GrossAmount   decimal.Decimal `json:"valor_total" yaml:"valor_total"`
	TaxAmount     decimal.Decimal `json:"valor_impostos" yaml:"valor_impostos"`
	SupplierTaxID string          `json:"cnpj_fornecedor" yaml:"cnpj_fornecedor"`
	SupplierName  string          `json:"razao_fornecedor" yaml:"razao_fornecedor"`
	RawXML        string          `json:"-" yaml:"-"`
}

// Supplier is an issuing party, unique per (CompanyID, TaxID).
type Supplier struct {
	ID         int64      `json:"id"`
	CompanyID  int64      `json:"empresa_id"`
	TaxID      string     `json:"cnpj_cpf"`
	Name       string     `json:"razao_social"`
	PersonType PersonType `json:"tipo_pessoa"`
}

// Document is a persisted fiscal document.
type Document struct {
	ID           int64           `json:"id"`
	CompanyID    int64           `json:"empresa_id"`
	SupplierID   int64           `json:"fornecedor_id"`
	SupplierName string          `json:"fornecedor_nome,omitempty"`
	Kind         DocumentKind    `json:"tipo_documento"`
	Number       string          `json:"numero_documento"`
	Series       string          `json:"serie,omitempty"`
	AccessKey    string          `json:"chave_acesso,omitempty"`
	IssueDate    string          `json:"data_emissao,omitempty"`
	GrossAmount  decimal.Decimal `json:"valor_total"`
	TaxAmount    decimal.Decimal `json:"valor_impostos"`
	Status       Status          `json:"status_processamento"`
	CreatedBy    int64           `json:"usuario_criacao_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	RawXML       string          `json:"-"`
}
