package service

import (
	"context"
	"fmt"
	"time"

	"einvoice/internal/logger"
	"einvoice/internal/model"
	"einvoice/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type CreateInvoiceItemRequest struct {
	ClassificationCode string          `json:"classification_code" binding:"required"`
	Description        string          `json:"description" binding:"required"`
	Quantity           decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice          decimal.Decimal `json:"unit_price" binding:"required"`
	TaxType            string          `json:"tax_type"`
	TaxRate            decimal.Decimal `json:"tax_rate"`
}

type CreateInvoiceRequest struct {
	InvoiceNo         string                     `json:"invoice_no" binding:"required"`
	CustomerID        string                     `json:"customer_id" binding:"required"`
	Status            string                     `json:"status" binding:"omitempty,oneof=draft sent"`
	DocumentType      string                     `json:"document_type" binding:"omitempty,oneof=01 02 03 11 12 13"`
	Currency          string                     `json:"currency"`
	PaymentMode       string                     `json:"payment_mode"`
	IssueDate         time.Time                  `json:"issue_date" binding:"required"`
	OriginalInvoiceNo string                     `json:"original_invoice_no"`
	Discount          decimal.Decimal            `json:"discount"`
	Items             []CreateInvoiceItemRequest `json:"items" binding:"required,min=1,dive"`
}

// --- Interface ---

type InvoiceService interface {
	// CreateInvoice records a ledger invoice with totals computed from its
	// lines. The document enters the e-invoice pipeline separately, once its
	// local status is sent.
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*model.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*model.Invoice, error)
	ListCustomers(ctx context.Context, page, limit int) ([]model.Customer, int64, error)
}

type invoiceService struct {
	invoiceRepo  repository.InvoiceRepository
	customerRepo repository.CustomerRepository
	log          zerolog.Logger
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	customerRepo repository.CustomerRepository,
) InvoiceService {
	return &invoiceService{
		invoiceRepo:  invoiceRepo,
		customerRepo: customerRepo,
		log:          logger.WithComponent("invoice-service"),
	}
}

// --- Implementation ---

func (s *invoiceService) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*model.Invoice, error) {
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("invalid customer id: %w", err)
	}
	if _, err := s.customerRepo.FindByID(ctx, customerID); err != nil {
		return nil, fmt.Errorf("customer not found: %w", err)
	}
	if existing, err := s.invoiceRepo.FindByInvoiceNo(ctx, req.InvoiceNo); err == nil && existing != nil {
		return nil, fmt.Errorf("invoice number %s already exists", req.InvoiceNo)
	}

	invoice := &model.Invoice{
		InvoiceNo:         req.InvoiceNo,
		CustomerID:        customerID,
		Status:            req.Status,
		DocumentType:      req.DocumentType,
		Currency:          req.Currency,
		PaymentMode:       req.PaymentMode,
		IssueDate:         req.IssueDate,
		OriginalInvoiceNo: req.OriginalInvoiceNo,
		Discount:          req.Discount,
		EInvoiceStatus:    model.EInvoiceStatusNone,
	}
	if invoice.Status == "" {
		invoice.Status = model.InvoiceStatusDraft
	}
	if invoice.DocumentType == "" {
		invoice.DocumentType = model.DocTypeInvoice
	}
	if invoice.Currency == "" {
		invoice.Currency = "MYR"
	}
	if invoice.IsNote() && invoice.OriginalInvoiceNo == "" {
		return nil, fmt.Errorf("credit/debit notes require the original invoice number")
	}

	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, item := range req.Items {
		taxType := item.TaxType
		if taxType == "" {
			taxType = "06" // not applicable
		}
		lineTotal := item.Quantity.Mul(item.UnitPrice)
		subtotal = subtotal.Add(lineTotal)
		tax = tax.Add(lineTotal.Mul(item.TaxRate).Div(decimal.NewFromInt(100)))

		invoice.Items = append(invoice.Items, model.InvoiceItem{
			ClassificationCode: item.ClassificationCode,
			Description:        item.Description,
			Quantity:           item.Quantity,
			UnitPrice:          item.UnitPrice,
			TaxType:            taxType,
			TaxRate:            item.TaxRate,
		})
	}
	invoice.Subtotal = subtotal.Round(2)
	invoice.TaxAmount = tax.Round(2)
	invoice.TotalAmount = invoice.Subtotal.Sub(invoice.Discount).Add(invoice.TaxAmount).Round(2)

	if err := s.invoiceRepo.Create(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	s.log.Info().
		Str("invoice_no", invoice.InvoiceNo).
		Str("total", invoice.TotalAmount.String()).
		Msg("invoice created")
	return invoice, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	invoiceID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid invoice id: %w", err)
	}
	invoice, err := s.invoiceRepo.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("invoice not found: %w", err)
	}
	return invoice, nil
}

func (s *invoiceService) ListCustomers(ctx context.Context, page, limit int) ([]model.Customer, int64, error) {
	return s.customerRepo.List(ctx, page, limit)
}
