package fiscal

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// spNamespaceDecl is the default namespace of São Paulo municipal NFS-e
// files. It is removed once before parsing.
const spNamespaceDecl = `xmlns="http://www.prefeitura.sp.gov.br/nfe"`

const dateLayout = "2006-01-02"

var errNegative = errors.New("value must not be negative")

// Extract classifies decoded XML text and extracts a normalized document.
func Extract(text string) (*ExtractedDocument, error) {
	root, err := ParseTree(strings.Replace(text, spNamespaceDecl, "", 1))
	if err != nil {
		return nil, err
	}

	kind, scope := Classify(root)
	sch := schemaFor(kind)

	values := make(map[string]string, len(sch.fields))
	var missing []string
	for _, f := range sch.fields {
		v, ok := f.resolve(scope)
		if !ok {
			if f.required {
				missing = append(missing, f.name)
			}
			continue
		}
		values[f.name] = v
	}
	if len(missing) > 0 {
		return nil, &MissingRequiredFieldError{Kind: kind, Fields: orderRequired(missing)}
	}

	doc := &ExtractedDocument{
		Kind:          kind,
		Number:        values[FieldNumber],
		Series:        values[FieldSeries],
		AccessKey:     values[FieldAccessKey],
		SupplierTaxID: values[FieldSupplierTaxID],
		SupplierName:  values[FieldSupplierName],
		GrossAmount:   decimal.Zero,
		TaxAmount:     decimal.Zero,
		RawXML:        text,
	}

	for _, f := range sch.fields {
		v, ok := values[f.name]
		if !ok {
			continue
		}
		switch f.kind {
		case kindDecimal:
			d, err := parseAmount(f.name, v)
			if err != nil {
				return nil, err
			}
			if f.name == FieldGrossAmount {
				doc.GrossAmount = d
			} else {
				doc.TaxAmount = d
			}
		case kindDate:
			day, err := parseDate(f.name, v)
			if err != nil {
				return nil, err
			}
			doc.IssueDate = day
		}
	}

	return doc, nil
}

// orderRequired reports missing fields tax id first, whatever the order
// of the schema table.
func orderRequired(missing []string) []string {
	out := make([]string, 0, len(missing))
	for _, name := range []string{FieldSupplierTaxID, FieldSupplierName} {
		for _, m := range missing {
			if m == name {
				out = append(out, m)
			}
		}
	}
	return out
}

func parseAmount(field, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, &InvalidFieldFormatError{Field: field, Value: v, Err: err}
	}
	if d.IsNegative() {
		return decimal.Zero, &InvalidFieldFormatError{Field: field, Value: v, Err: errNegative}
	}
	return d, nil
}

// parseDate keeps the first ten characters of a timestamp without any
// timezone interpretation.
func parseDate(field, v string) (string, error) {
	day := v
	if r := []rune(v); len(r) > 10 {
		day = string(r[:10])
	}
	if _, err := time.Parse(dateLayout, day); err != nil {
		return "", &InvalidFieldFormatError{Field: field, Value: v, Err: err}
	}
	return day, nil
}
