package clean

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/cognicore/refine/pkg/refine/record"
)

var normForms = map[string]norm.Form{
	"NFC":  norm.NFC,
	"NFD":  norm.NFD,
	"NFKC": norm.NFKC,
	"NFKD": norm.NFKD,
}

// UnicodeNormalizer rewrites the text field into one Unicode normal form,
// so visually identical samples compare equal downstream.
type UnicodeNormalizer struct {
	name string
	form norm.Form
}

// NewUnicodeNormalizer creates a normalizer for the named form (NFC, NFD,
// NFKC or NFKD). An empty name selects NFC.
func NewUnicodeNormalizer(form string) (*UnicodeNormalizer, error) {
	name := strings.ToUpper(strings.TrimSpace(form))
	if name == "" {
		name = "NFC"
	}
	f, ok := normForms[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown unicode form %q", ErrConfig, form)
	}
	return &UnicodeNormalizer{name: name, form: f}, nil
}

// Name implements Step.
func (u *UnicodeNormalizer) Name() string { return "UnicodeNormalizer" }

// Process implements Step.
func (u *UnicodeNormalizer) Process(rec record.Record) (record.Record, bool) {
	if !record.Valid(rec) {
		return nil, false
	}
	if !rec.Has(record.FieldText) {
		return rec, true
	}
	return rec.Set(record.FieldText, u.form.String(record.Text(rec, ""))), true
}

// Config implements Step.
func (u *UnicodeNormalizer) Config() map[string]any {
	return map[string]any{"form": u.name}
}
