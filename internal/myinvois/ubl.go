package myinvois

import "encoding/json"

// UBL-JSON common namespaces. The document namespace depends on the root
// element and lives on SchemaDocument.
const (
	nsAggregate = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	nsBasic     = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"

	nsInvoice    = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	nsCreditNote = "urn:oasis:names:specification:ubl:schema:xsd:CreditNote-2"
	nsDebitNote  = "urn:oasis:names:specification:ubl:schema:xsd:DebitNote-2"
)

// Value wrappers for the UBL-JSON "_" text-node convention.

type Text struct {
	Value string `json:"_"`
}

type Code struct {
	Value         string `json:"_"`
	ListVersionID string `json:"listVersionID,omitempty"`
	Name          string `json:"name,omitempty"`
}

type Identifier struct {
	Value    string `json:"_"`
	SchemeID string `json:"schemeID,omitempty"`
	ListID   string `json:"listID,omitempty"`
}

type Amount struct {
	Value      string `json:"_"`
	CurrencyID string `json:"currencyID"`
}

type Quantity struct {
	Value    string `json:"_"`
	UnitCode string `json:"unitCode,omitempty"`
}

type Numeric struct {
	Value string `json:"_"`
}

type Indicator struct {
	Value bool `json:"_"`
}

func text(s string) []Text { return []Text{{Value: s}} }

// SchemaDocument is the mandated nested document. Root key and document
// namespace are selected per document type; the body is shared.
type SchemaDocument struct {
	DocumentNamespace string
	RootKey           string
	Body              DocumentBody
}

// MarshalJSON emits {"_D": ns, "_A": ns, "_B": ns, <rootKey>: [body]}.
func (d *SchemaDocument) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"_D":      d.DocumentNamespace,
		"_A":      nsAggregate,
		"_B":      nsBasic,
		d.RootKey: []DocumentBody{d.Body},
	})
}

// DocumentBody holds the ordered UBL sections. Optional sections carry
// omitempty so absence means omission, never a null element.
type DocumentBody struct {
	ID                      []Text             `json:"ID,omitempty"`
	IssueDate               []Text             `json:"IssueDate,omitempty"`
	IssueTime               []Text             `json:"IssueTime,omitempty"`
	InvoiceTypeCode         []Code             `json:"InvoiceTypeCode,omitempty"`
	DocumentCurrencyCode    []Text             `json:"DocumentCurrencyCode,omitempty"`
	InvoicePeriod           []InvoicePeriod    `json:"InvoicePeriod,omitempty"`
	BillingReference        []BillingReference `json:"BillingReference,omitempty"`
	TaxExchangeRate         []TaxExchangeRate  `json:"TaxExchangeRate,omitempty"`
	AccountingSupplierParty []PartyWrapper     `json:"AccountingSupplierParty,omitempty"`
	AccountingCustomerParty []PartyWrapper     `json:"AccountingCustomerParty,omitempty"`
	PaymentMeans            []PaymentMeans     `json:"PaymentMeans,omitempty"`
	AllowanceCharge         []AllowanceCharge  `json:"AllowanceCharge,omitempty"`
	TaxTotal                []TaxTotal         `json:"TaxTotal,omitempty"`
	LegalMonetaryTotal      []MonetaryTotal    `json:"LegalMonetaryTotal,omitempty"`
	InvoiceLine             []InvoiceLine      `json:"InvoiceLine,omitempty"`
}

type InvoicePeriod struct {
	StartDate   []Text `json:"StartDate,omitempty"`
	EndDate     []Text `json:"EndDate,omitempty"`
	Description []Text `json:"Description,omitempty"`
}

type BillingReference struct {
	InvoiceDocumentReference []DocumentReference `json:"InvoiceDocumentReference"`
}

type DocumentReference struct {
	ID   []Text `json:"ID"`
	UUID []Text `json:"UUID,omitempty"`
}

type TaxExchangeRate struct {
	SourceCurrencyCode []Text    `json:"SourceCurrencyCode"`
	TargetCurrencyCode []Text    `json:"TargetCurrencyCode"`
	CalculationRate    []Numeric `json:"CalculationRate"`
}

type PartyWrapper struct {
	Party []UBLParty `json:"Party"`
}

type UBLParty struct {
	IndustryClassificationCode []Code                `json:"IndustryClassificationCode,omitempty"`
	PartyIdentification        []PartyIdentification `json:"PartyIdentification,omitempty"`
	PostalAddress              []PostalAddress       `json:"PostalAddress,omitempty"`
	PartyLegalEntity           []PartyLegalEntity    `json:"PartyLegalEntity,omitempty"`
	Contact                    []Contact             `json:"Contact,omitempty"`
}

type PartyIdentification struct {
	ID []Identifier `json:"ID"`
}

type PostalAddress struct {
	CityName             []Text        `json:"CityName,omitempty"`
	PostalZone           []Text        `json:"PostalZone,omitempty"`
	CountrySubentityCode []Text        `json:"CountrySubentityCode,omitempty"`
	AddressLine          []AddressLine `json:"AddressLine,omitempty"`
	Country              []Country     `json:"Country,omitempty"`
}

type AddressLine struct {
	Line []Text `json:"Line"`
}

type Country struct {
	IdentificationCode []Identifier `json:"IdentificationCode"`
}

type PartyLegalEntity struct {
	RegistrationName []Text `json:"RegistrationName"`
}

type Contact struct {
	Telephone      []Text `json:"Telephone,omitempty"`
	ElectronicMail []Text `json:"ElectronicMail,omitempty"`
}

type PaymentMeans struct {
	PaymentMeansCode []Text `json:"PaymentMeansCode"`
}

type AllowanceCharge struct {
	ChargeIndicator       []Indicator `json:"ChargeIndicator"`
	AllowanceChargeReason []Text      `json:"AllowanceChargeReason,omitempty"`
	Amount                []Amount    `json:"Amount"`
}

type TaxTotal struct {
	TaxAmount   []Amount      `json:"TaxAmount"`
	TaxSubtotal []TaxSubtotal `json:"TaxSubtotal,omitempty"`
}

type TaxSubtotal struct {
	TaxableAmount []Amount      `json:"TaxableAmount"`
	TaxAmount     []Amount      `json:"TaxAmount"`
	TaxCategory   []TaxCategory `json:"TaxCategory"`
}

type TaxCategory struct {
	ID        []Text      `json:"ID"`
	Percent   []Numeric   `json:"Percent,omitempty"`
	TaxScheme []TaxScheme `json:"TaxScheme"`
}

type TaxScheme struct {
	ID []Identifier `json:"ID"`
}

type MonetaryTotal struct {
	LineExtensionAmount  []Amount `json:"LineExtensionAmount"`
	TaxExclusiveAmount   []Amount `json:"TaxExclusiveAmount"`
	TaxInclusiveAmount   []Amount `json:"TaxInclusiveAmount"`
	AllowanceTotalAmount []Amount `json:"AllowanceTotalAmount,omitempty"`
	PayableAmount        []Amount `json:"PayableAmount"`
}

type InvoiceLine struct {
	ID                  []Text     `json:"ID"`
	InvoicedQuantity    []Quantity `json:"InvoicedQuantity"`
	LineExtensionAmount []Amount   `json:"LineExtensionAmount"`
	TaxTotal            []TaxTotal `json:"TaxTotal,omitempty"`
	Item                []Item     `json:"Item"`
	Price               []Price    `json:"Price"`
}

type Item struct {
	Description             []Text                    `json:"Description"`
	CommodityClassification []CommodityClassification `json:"CommodityClassification,omitempty"`
}

type CommodityClassification struct {
	ItemClassificationCode []Identifier `json:"ItemClassificationCode"`
}

type Price struct {
	PriceAmount []Amount `json:"PriceAmount"`
}
