package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Local invoice lifecycle (ledger side).
const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusSent      = "sent"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
)

// E-invoice submission lifecycle, mirrored from the tax authority.
const (
	EInvoiceStatusNone      = "none"
	EInvoiceStatusPending   = "pending"
	EInvoiceStatusSubmitted = "submitted"
	EInvoiceStatusValid     = "valid"
	EInvoiceStatusInvalid   = "invalid"
	EInvoiceStatusCancelled = "cancelled"
	EInvoiceStatusRejected  = "rejected"
)

// Authority document type codes.
const (
	DocTypeInvoice              = "01"
	DocTypeCreditNote           = "02"
	DocTypeDebitNote            = "03"
	DocTypeSelfBilledInvoice    = "11"
	DocTypeSelfBilledCreditNote = "12"
	DocTypeSelfBilledDebitNote  = "13"
)

// Invoice represents a locally recorded invoice, credit note or debit note.
// The EInvoice* fields mirror the authority-side submission record and are the
// single source of truth for UI and agent consumers.
type Invoice struct {
	ID           uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	InvoiceNo    string        `gorm:"type:varchar(30);uniqueIndex;not null" json:"invoice_no"`
	CustomerID   uuid.UUID     `gorm:"type:uuid;not null;index" json:"customer_id"`
	Customer     *Customer     `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Status       string        `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	DocumentType string        `gorm:"type:varchar(2);not null;default:'01'" json:"document_type"`
	Currency     string        `gorm:"type:varchar(3);not null;default:'MYR'" json:"currency"`
	PaymentMode  string        `gorm:"type:varchar(2)" json:"payment_mode"`
	IssueDate    time.Time     `gorm:"not null" json:"issue_date"`
	Items        []InvoiceItem `gorm:"foreignKey:InvoiceID" json:"items,omitempty"`

	Subtotal    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"subtotal"`
	Discount    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"discount"`
	TaxAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"tax_amount"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total_amount"`

	// Required for credit/debit notes: the invoice being adjusted.
	OriginalInvoiceNo string `gorm:"type:varchar(30)" json:"original_invoice_no,omitempty"`

	EInvoiceStatus string     `gorm:"type:varchar(20);not null;default:'none';index" json:"einvoice_status"`
	EInvoiceUUID   string     `gorm:"type:varchar(64);index" json:"einvoice_uuid,omitempty"`
	EInvoiceLongID string     `gorm:"type:varchar(128)" json:"einvoice_long_id,omitempty"`
	SubmissionUID  string     `gorm:"type:varchar(64)" json:"submission_uid,omitempty"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	ValidatedAt    *time.Time `json:"validated_at,omitempty"`
	EInvoiceError  string     `gorm:"type:text" json:"einvoice_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InvoiceItem is a single invoice line. Quantities and unit prices are kept as
// decimals on the ledger side; the pipeline converts them to integer minor
// currency units before any arithmetic.
type InvoiceItem struct {
	ID                 uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	InvoiceID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	ClassificationCode string          `gorm:"type:varchar(10);not null" json:"classification_code"`
	Description        string          `gorm:"type:varchar(300);not null" json:"description"`
	Quantity           decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	UnitPrice          decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"unit_price"`
	TaxType            string          `gorm:"type:varchar(2);not null;default:'06'" json:"tax_type"`
	TaxRate            decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"tax_rate"`
	CreatedAt          time.Time       `json:"created_at"`
}

// IsNote reports whether the invoice adjusts another document and therefore
// must carry OriginalInvoiceNo.
func (i *Invoice) IsNote() bool {
	switch i.DocumentType {
	case DocTypeCreditNote, DocTypeDebitNote, DocTypeSelfBilledCreditNote, DocTypeSelfBilledDebitNote:
		return true
	}
	return false
}
