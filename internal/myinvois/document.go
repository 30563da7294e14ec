package myinvois

import "time"

// DocumentType is the authority's document type code.
type DocumentType string

const (
	TypeInvoice              DocumentType = "01"
	TypeCreditNote           DocumentType = "02"
	TypeDebitNote            DocumentType = "03"
	TypeSelfBilledInvoice    DocumentType = "11"
	TypeSelfBilledCreditNote DocumentType = "12"
	TypeSelfBilledDebitNote  DocumentType = "13"
)

// IsNote reports whether the type adjusts an original document and therefore
// requires a billing reference.
func (t DocumentType) IsNote() bool {
	switch t {
	case TypeCreditNote, TypeDebitNote, TypeSelfBilledCreditNote, TypeSelfBilledDebitNote:
		return true
	}
	return false
}

// Address is a party's postal address.
type Address struct {
	Lines       []string
	City        string
	State       string
	PostalCode  string
	CountryCode string // ISO 3166-1 alpha-3
}

// Party identifies the supplier or buyer of a document. MSIC and
// ActivityDesc are supplier-only.
type Party struct {
	Name         string
	TIN          string
	IDType       string // BRN, NRIC, PASSPORT, ARMY
	IDValue      string
	SSTNo        string
	MSIC         string
	ActivityDesc string
	Email        string
	Phone        string
	Address      Address
}

// Line is one invoice line. All monetary values are integer minor currency
// units; Quantity is in thousandths of a unit and TaxRate in basis points so
// that line arithmetic never touches floating point.
type Line struct {
	ClassificationCode string
	Description        string
	Quantity           int64 // thousandths of a unit
	UnitPrice          int64 // minor units per whole unit
	TaxType            string
	TaxRate            int64  // basis points: 6.00% == 600
	TariffCode         string // optional customs tariff code
}

// TotalExclTax is round(quantity * unitPrice) in minor units.
func (l Line) TotalExclTax() int64 {
	return roundDiv(l.Quantity*l.UnitPrice, 1000)
}

// TaxAmount is round(quantity * unitPrice * taxRate) in minor units, rounded
// once at the end so the result never drifts from the exact product.
func (l Line) TaxAmount() int64 {
	return roundDiv(l.Quantity*l.UnitPrice*l.TaxRate, 1000*10000)
}

// TotalInclTax is the line total including tax.
func (l Line) TotalInclTax() int64 {
	return l.TotalExclTax() + l.TaxAmount()
}

// roundDiv divides with round-half-up on the absolute value.
func roundDiv(numerator, denominator int64) int64 {
	if numerator >= 0 {
		return (numerator + denominator/2) / denominator
	}
	return -((-numerator + denominator/2) / denominator)
}

// Period is an optional billing period section.
type Period struct {
	Start       time.Time
	End         time.Time
	Description string
}

// ExchangeRate is the optional foreign-currency section; only present when
// the document currency is not MYR.
type ExchangeRate struct {
	SourceCurrency string
	Rate           string // decimal string as provided upstream
}

// Document is the pipeline's internal invoice representation, built from the
// ledger's invoice record and the configured supplier profile.
type Document struct {
	ID        string // local invoice number, becomes the authority codeNumber
	Type      DocumentType
	Currency  string
	IssueDate time.Time

	Supplier Party
	Buyer    Party
	Lines    []Line

	// Aggregate totals in minor units. TotalPayable must equal
	// Subtotal - Discount + TaxAmount.
	Subtotal     int64
	Discount     int64
	TaxAmount    int64
	TotalPayable int64

	PaymentMode string

	// Required when Type.IsNote().
	OriginalDocumentID string

	// Optional sections, omitted from the schema when nil/empty.
	BillingPeriod *Period
	FX            *ExchangeRate
}
