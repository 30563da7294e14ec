package repository

import (
	"context"
	"time"

	"einvoice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EInvoiceStatusUpdate carries the submission-record fields mirrored onto the
// invoice row after a pipeline transition. Nil pointers leave the stored value
// untouched.
type EInvoiceStatusUpdate struct {
	Status        string
	UUID          *string
	LongID        *string
	SubmissionUID *string
	SubmittedAt   *time.Time
	ValidatedAt   *time.Time
	Error         *string
}

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *model.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	FindByInvoiceNo(ctx context.Context, invoiceNo string) (*model.Invoice, error)
	List(ctx context.Context, status string, page, limit int) ([]model.Invoice, int64, error)
	// FindEligibleForSubmission returns sent invoices that have never entered
	// the e-invoice pipeline, with customer and items preloaded.
	FindEligibleForSubmission(ctx context.Context) ([]model.Invoice, error)
	// FindPendingStatusSync returns invoices whose authority-side status is
	// still non-terminal and that have a document uuid to poll with.
	FindPendingStatusSync(ctx context.Context) ([]model.Invoice, error)
	UpdateEInvoiceStatus(ctx context.Context, id uuid.UUID, update EInvoiceStatusUpdate) error
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Create(invoice).Error
}

func (r *invoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).Preload("Customer").Preload("Items").First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) FindByInvoiceNo(ctx context.Context, invoiceNo string) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).Preload("Customer").Preload("Items").First(&invoice, "invoice_no = ?", invoiceNo).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) List(ctx context.Context, status string, page, limit int) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.Invoice{})
	if status != "" {
		query = query.Where("einvoice_status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	fetchQuery := db.Preload("Customer")
	if status != "" {
		fetchQuery = fetchQuery.Where("einvoice_status = ?", status)
	}
	if err := fetchQuery.Order("created_at desc").Offset(offset).Limit(limit).Find(&invoices).Error; err != nil {
		return nil, 0, err
	}

	return invoices, total, nil
}

func (r *invoiceRepository) FindEligibleForSubmission(ctx context.Context) ([]model.Invoice, error) {
	var invoices []model.Invoice
	err := GetDB(ctx, r.db).
		Preload("Customer").
		Preload("Items").
		Where("status = ? AND einvoice_status = ?", model.InvoiceStatusSent, model.EInvoiceStatusNone).
		Order("issue_date asc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *invoiceRepository) FindPendingStatusSync(ctx context.Context) ([]model.Invoice, error) {
	var invoices []model.Invoice
	err := GetDB(ctx, r.db).
		Where("einvoice_status IN ? AND einvoice_uuid <> ''",
			[]string{model.EInvoiceStatusPending, model.EInvoiceStatusSubmitted}).
		Order("submitted_at asc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *invoiceRepository) UpdateEInvoiceStatus(ctx context.Context, id uuid.UUID, update EInvoiceStatusUpdate) error {
	fields := map[string]interface{}{
		"einvoice_status": update.Status,
	}
	if update.UUID != nil {
		fields["einvoice_uuid"] = *update.UUID
	}
	if update.LongID != nil {
		fields["einvoice_long_id"] = *update.LongID
	}
	if update.SubmissionUID != nil {
		fields["submission_uid"] = *update.SubmissionUID
	}
	if update.SubmittedAt != nil {
		fields["submitted_at"] = *update.SubmittedAt
	}
	if update.ValidatedAt != nil {
		fields["validated_at"] = *update.ValidatedAt
	}
	if update.Error != nil {
		fields["einvoice_error"] = *update.Error
	}

	return GetDB(ctx, r.db).Model(&model.Invoice{}).Where("id = ?", id).Updates(fields).Error
}
