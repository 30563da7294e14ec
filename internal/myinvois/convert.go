package myinvois

import (
	"fmt"
	"strconv"
	"strings"
)

// Converter maps the internal Document to the mandated UBL-JSON schema. It is
// pure: no I/O, no clock, no mutation of its input.
type Converter struct{}

// Convert builds the schema document for the given internal document.
func (Converter) Convert(doc Document) *SchemaDocument {
	body := DocumentBody{
		ID:                   text(doc.ID),
		IssueDate:            text(doc.IssueDate.UTC().Format("2006-01-02")),
		IssueTime:            text(doc.IssueDate.UTC().Format("15:04:05Z")),
		InvoiceTypeCode:      []Code{{Value: string(doc.Type), ListVersionID: "1.0"}},
		DocumentCurrencyCode: text(doc.Currency),

		AccountingSupplierParty: []PartyWrapper{{Party: []UBLParty{convertParty(doc.Supplier, true)}}},
		AccountingCustomerParty: []PartyWrapper{{Party: []UBLParty{convertParty(doc.Buyer, false)}}},

		TaxTotal: []TaxTotal{{
			TaxAmount:   amount(doc.TaxAmount, doc.Currency),
			TaxSubtotal: convertTaxSubtotals(doc),
		}},
		LegalMonetaryTotal: []MonetaryTotal{convertMonetaryTotal(doc)},
		InvoiceLine:        convertLines(doc),
	}

	if doc.PaymentMode != "" {
		body.PaymentMeans = []PaymentMeans{{PaymentMeansCode: text(doc.PaymentMode)}}
	}
	if doc.Type.IsNote() && doc.OriginalDocumentID != "" {
		body.BillingReference = []BillingReference{{
			InvoiceDocumentReference: []DocumentReference{{ID: text(doc.OriginalDocumentID)}},
		}}
	}
	if doc.BillingPeriod != nil {
		period := InvoicePeriod{
			StartDate: text(doc.BillingPeriod.Start.UTC().Format("2006-01-02")),
			EndDate:   text(doc.BillingPeriod.End.UTC().Format("2006-01-02")),
		}
		if doc.BillingPeriod.Description != "" {
			period.Description = text(doc.BillingPeriod.Description)
		}
		body.InvoicePeriod = []InvoicePeriod{period}
	}
	if doc.FX != nil {
		body.TaxExchangeRate = []TaxExchangeRate{{
			SourceCurrencyCode: text(doc.FX.SourceCurrency),
			TargetCurrencyCode: text("MYR"),
			CalculationRate:    []Numeric{{Value: doc.FX.Rate}},
		}}
	}
	if doc.Discount > 0 {
		body.AllowanceCharge = []AllowanceCharge{{
			ChargeIndicator:       []Indicator{{Value: false}},
			AllowanceChargeReason: text("Discount"),
			Amount:                amount(doc.Discount, doc.Currency),
		}}
	}

	ns, rootKey := namespaceFor(doc.Type)
	return &SchemaDocument{DocumentNamespace: ns, RootKey: rootKey, Body: body}
}

func namespaceFor(t DocumentType) (namespace, rootKey string) {
	switch t {
	case TypeCreditNote, TypeSelfBilledCreditNote:
		return nsCreditNote, "CreditNote"
	case TypeDebitNote, TypeSelfBilledDebitNote:
		return nsDebitNote, "DebitNote"
	default:
		return nsInvoice, "Invoice"
	}
}

func convertParty(p Party, supplier bool) UBLParty {
	party := UBLParty{
		PartyLegalEntity: []PartyLegalEntity{{RegistrationName: text(p.Name)}},
	}

	ids := []PartyIdentification{
		{ID: []Identifier{{Value: p.TIN, SchemeID: "TIN"}}},
	}
	if p.IDValue != "" {
		ids = append(ids, PartyIdentification{ID: []Identifier{{Value: p.IDValue, SchemeID: p.IDType}}})
	}
	if p.SSTNo != "" {
		ids = append(ids, PartyIdentification{ID: []Identifier{{Value: p.SSTNo, SchemeID: "SST"}}})
	}
	party.PartyIdentification = ids

	if supplier && p.MSIC != "" {
		party.IndustryClassificationCode = []Code{{Value: p.MSIC, Name: p.ActivityDesc}}
	}

	address := PostalAddress{
		CityName:             text(p.Address.City),
		PostalZone:           text(p.Address.PostalCode),
		CountrySubentityCode: text(p.Address.State),
		Country: []Country{{
			IdentificationCode: []Identifier{{Value: p.Address.CountryCode, ListID: "ISO3166-1"}},
		}},
	}
	for _, line := range p.Address.Lines {
		if line != "" {
			address.AddressLine = append(address.AddressLine, AddressLine{Line: text(line)})
		}
	}
	party.PostalAddress = []PostalAddress{address}

	var contact Contact
	if p.Phone != "" {
		contact.Telephone = text(p.Phone)
	}
	if p.Email != "" {
		contact.ElectronicMail = text(p.Email)
	}
	if p.Phone != "" || p.Email != "" {
		party.Contact = []Contact{contact}
	}

	return party
}

func convertLines(doc Document) []InvoiceLine {
	lines := make([]InvoiceLine, 0, len(doc.Lines))
	for i, l := range doc.Lines {
		line := InvoiceLine{
			ID:                  text(strconv.Itoa(i + 1)),
			InvoicedQuantity:    []Quantity{{Value: FormatQuantity(l.Quantity), UnitCode: "C62"}},
			LineExtensionAmount: amount(l.TotalExclTax(), doc.Currency),
			TaxTotal: []TaxTotal{{
				TaxAmount: amount(l.TaxAmount(), doc.Currency),
				TaxSubtotal: []TaxSubtotal{{
					TaxableAmount: amount(l.TotalExclTax(), doc.Currency),
					TaxAmount:     amount(l.TaxAmount(), doc.Currency),
					TaxCategory: []TaxCategory{{
						ID:        text(l.TaxType),
						Percent:   []Numeric{{Value: FormatRate(l.TaxRate)}},
						TaxScheme: []TaxScheme{{ID: []Identifier{{Value: "OTH", SchemeID: "UN/ECE 5153"}}}},
					}},
				}},
			}},
			Item:  []Item{convertItem(l)},
			Price: []Price{{PriceAmount: amount(l.UnitPrice, doc.Currency)}},
		}
		lines = append(lines, line)
	}
	return lines
}

func convertItem(l Line) Item {
	item := Item{
		Description: text(l.Description),
		CommodityClassification: []CommodityClassification{
			{ItemClassificationCode: []Identifier{{Value: l.ClassificationCode, ListID: "CLASS"}}},
		},
	}
	if l.TariffCode != "" {
		item.CommodityClassification = append(item.CommodityClassification, CommodityClassification{
			ItemClassificationCode: []Identifier{{Value: l.TariffCode, ListID: "PTC"}},
		})
	}
	return item
}

func convertTaxSubtotals(doc Document) []TaxSubtotal {
	// Group line tax by tax type so each category appears once.
	type bucket struct {
		taxable int64
		tax     int64
		rate    int64
	}
	var order []string
	buckets := map[string]*bucket{}
	for _, l := range doc.Lines {
		b, ok := buckets[l.TaxType]
		if !ok {
			b = &bucket{rate: l.TaxRate}
			buckets[l.TaxType] = b
			order = append(order, l.TaxType)
		}
		b.taxable += l.TotalExclTax()
		b.tax += l.TaxAmount()
	}

	subtotals := make([]TaxSubtotal, 0, len(order))
	for _, taxType := range order {
		b := buckets[taxType]
		subtotals = append(subtotals, TaxSubtotal{
			TaxableAmount: amount(b.taxable, doc.Currency),
			TaxAmount:     amount(b.tax, doc.Currency),
			TaxCategory: []TaxCategory{{
				ID:        text(taxType),
				Percent:   []Numeric{{Value: FormatRate(b.rate)}},
				TaxScheme: []TaxScheme{{ID: []Identifier{{Value: "OTH", SchemeID: "UN/ECE 5153"}}}},
			}},
		})
	}
	return subtotals
}

func convertMonetaryTotal(doc Document) MonetaryTotal {
	total := MonetaryTotal{
		LineExtensionAmount: amount(doc.Subtotal, doc.Currency),
		TaxExclusiveAmount:  amount(doc.Subtotal-doc.Discount, doc.Currency),
		TaxInclusiveAmount:  amount(doc.Subtotal-doc.Discount+doc.TaxAmount, doc.Currency),
		PayableAmount:       amount(doc.TotalPayable, doc.Currency),
	}
	if doc.Discount > 0 {
		total.AllowanceTotalAmount = amount(doc.Discount, doc.Currency)
	}
	return total
}

func amount(minor int64, currency string) []Amount {
	return []Amount{{Value: FormatAmount(minor), CurrencyID: currency}}
}

// FormatAmount renders integer minor units as a decimal string with two
// places, e.g. 123456 -> "1234.56".
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// FormatQuantity renders thousandths of a unit with trailing zeros trimmed,
// e.g. 2000 -> "2", 2500 -> "2.5".
func FormatQuantity(milli int64) string {
	sign := ""
	if milli < 0 {
		sign = "-"
		milli = -milli
	}
	s := fmt.Sprintf("%d.%03d", milli/1000, milli%1000)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	return sign + s
}

// FormatRate renders basis points as a percentage, e.g. 600 -> "6", 625 -> "6.25".
func FormatRate(basisPoints int64) string {
	s := fmt.Sprintf("%d.%02d", basisPoints/100, basisPoints%100)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	return s
}

// ValidationResult reports missing mandatory sections, one error per section.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Validate checks presence of every mandatory top-level section. It does not
// re-check cross-field arithmetic; the converter owns that by construction.
func (Converter) Validate(sd *SchemaDocument) ValidationResult {
	var errs []string

	body := sd.Body
	if len(body.ID) == 0 || body.ID[0].Value == "" {
		errs = append(errs, "missing document ID")
	}
	if len(body.IssueDate) == 0 || body.IssueDate[0].Value == "" {
		errs = append(errs, "missing issue date")
	}
	if len(body.IssueTime) == 0 || body.IssueTime[0].Value == "" {
		errs = append(errs, "missing issue time")
	}
	if len(body.InvoiceTypeCode) == 0 || body.InvoiceTypeCode[0].Value == "" {
		errs = append(errs, "missing document type code")
	}
	if len(body.DocumentCurrencyCode) == 0 || body.DocumentCurrencyCode[0].Value == "" {
		errs = append(errs, "missing currency code")
	}
	if len(body.AccountingSupplierParty) == 0 || len(body.AccountingSupplierParty[0].Party) == 0 {
		errs = append(errs, "missing supplier party")
	}
	if len(body.AccountingCustomerParty) == 0 || len(body.AccountingCustomerParty[0].Party) == 0 {
		errs = append(errs, "missing buyer party")
	}
	if len(body.TaxTotal) == 0 {
		errs = append(errs, "missing tax total")
	}
	if len(body.LegalMonetaryTotal) == 0 {
		errs = append(errs, "missing monetary total")
	}
	if len(body.InvoiceLine) == 0 {
		errs = append(errs, "missing invoice lines")
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
