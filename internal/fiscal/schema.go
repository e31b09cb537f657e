package fiscal

import "strings"

type valueKind int

const (
	kindText valueKind = iota
	kindDecimal
	kindDate
)

// fieldSpec maps one logical field to its ordered candidate paths. Paths
// are evaluated relative to the schema scope element.
type fieldSpec struct {
	name     string
	kind     valueKind
	paths    []string
	required bool
	// clean normalizes a raw value before type parsing.
	clean func(string) string
}

type schema struct {
	kind   DocumentKind
	fields []fieldSpec
}

var nfeSchema = schema{
	kind: KindNFe,
	fields: []fieldSpec{
		{name: FieldAccessKey, paths: []string{"@Id"}, clean: func(v string) string {
			return strings.TrimPrefix(v, "NFe")
		}},
		{name: FieldNumber, paths: []string{"ide/nNF"}},
		{name: FieldSeries, paths: []string{"ide/serie"}},
		{name: FieldIssueDate, kind: kindDate, paths: []string{"ide/dhEmi", "ide/dEmi"}},
		{name: FieldGrossAmount, kind: kindDecimal, paths: []string{"//ICMSTot/vNF"}},
		{name: FieldTaxAmount, kind: kindDecimal, paths: []string{"//ICMSTot/vTotTrib"}},
		{name: FieldSupplierTaxID, paths: []string{"emit/CNPJ", "emit/CPF"}, required: true},
		{name: FieldSupplierName, paths: []string{"emit/xNome"}, required: true},
	},
}

var nfseSchema = schema{
	kind: KindNFSe,
	fields: []fieldSpec{
		{name: FieldNumber, paths: []string{"//NumeroNFe", "//InfNfse/Numero"}},
		{name: FieldAccessKey, paths: []string{"//CodigoVerificacao"}},
		{name: FieldIssueDate, kind: kindDate, paths: []string{"//DataEmissaoNFe", "//DataEmissao"}},
		{name: FieldGrossAmount, kind: kindDecimal, paths: []string{"//ValorServicos"}},
		{name: FieldTaxAmount, kind: kindDecimal, paths: []string{"//ValorISS", "//ValorIss"}},
		{name: FieldSupplierName, paths: []string{"//RazaoSocialPrestador", "//PrestadorServico/RazaoSocial"}, required: true},
		{name: FieldSupplierTaxID, paths: []string{
			"//CPFCNPJPrestador/CNPJ",
			"//PrestadorServico/Cnpj",
			"//PrestadorServico//Cnpj",
			"//CPFCNPJPrestador/CPF",
		}, required: true},
	},
}

// Classify decides the schema of a parsed document and returns the element
// field lookups are scoped to.
func Classify(root *Element) (DocumentKind, *Element) {
	if root.Name.Local == "infNFe" {
		return KindNFe, root
	}
	if inf := root.FindFirst("//infNFe"); inf != nil {
		return KindNFe, inf
	}
	if nfe := root.FindFirst("//NFe"); nfe != nil {
		return KindNFSe, nfe
	}
	return KindNFSe, root
}

func schemaFor(kind DocumentKind) schema {
	if kind == KindNFe {
		return nfeSchema
	}
	return nfseSchema
}

// resolve returns the first non-empty value among the candidate paths.
func (f fieldSpec) resolve(scope *Element) (string, bool) {
	for _, p := range f.paths {
		for _, v := range scope.Values(p) {
			if f.clean != nil {
				v = f.clean(v)
			}
			if v != "" {
				return v, true
			}
		}
	}
	return "", false
}
