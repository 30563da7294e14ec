package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"einvoice/internal/logger"
	"einvoice/internal/model"
	"einvoice/internal/myinvois"
	"einvoice/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Documents can be cancelled up to this long after validation.
const cancellationWindow = 72 * time.Hour

// StatusEvent is pushed to websocket clients on every e-invoice transition.
type StatusEvent struct {
	Type      string `json:"type"`
	InvoiceID string `json:"invoice_id"`
	InvoiceNo string `json:"invoice_no"`
	Status    string `json:"status"`
	UUID      string `json:"uuid,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Broadcaster fans a status event out to connected UI clients.
type Broadcaster interface {
	BroadcastJSON(v interface{})
}

// --- DTOs ---

type SubmissionOutcome struct {
	InvoiceID string `json:"invoice_id"`
	InvoiceNo string `json:"invoice_no"`
	Status    string `json:"status"`
	UUID      string `json:"uuid,omitempty"`
	Error     string `json:"error,omitempty"`
}

type BatchResult struct {
	Processed  int                 `json:"processed"`
	Successful int                 `json:"successful"`
	Failed     int                 `json:"failed"`
	Results    []SubmissionOutcome `json:"results"`
}

type CertificateHealthResponse struct {
	Level   string                    `json:"level"`
	Message string                    `json:"message"`
	Info    *myinvois.CertificateInfo `json:"certificate,omitempty"`
}

// --- Interface ---

type EInvoiceService interface {
	// RunAutoSubmit submits every eligible invoice sequentially, honoring the
	// configured inter-item delay. One invoice's failure never aborts the run.
	RunAutoSubmit(ctx context.Context) (BatchResult, error)
	SubmitInvoice(ctx context.Context, id string) (SubmissionOutcome, error)
	CancelDocument(ctx context.Context, id string, reason, actor string) error
	RejectDocument(ctx context.Context, id string, reason, actor string) error
	RefreshStatus(ctx context.Context, id string) (string, error)
	RecentDocuments(ctx context.Context, page int) ([]myinvois.DocumentStatus, error)
	SubmissionStatus(ctx context.Context, submissionUID string) (*myinvois.SubmissionStatus, error)
	SearchDocuments(ctx context.Context, filter myinvois.SearchFilter) ([]myinvois.DocumentStatus, error)
	ListInvoices(ctx context.Context, status string, page, limit int) ([]model.Invoice, int64, error)
	AuditTrail(ctx context.Context, page, limit int) ([]model.AuditLog, int64, error)
	CertificateHealth() CertificateHealthResponse
}

type einvoiceService struct {
	invoiceRepo repository.InvoiceRepository
	auditRepo   repository.AuditRepository
	pipeline    *Pipeline
	events      Broadcaster
	submitDelay time.Duration
	maxRetries  int
	now         func() time.Time
	sleep       func(time.Duration)
	log         zerolog.Logger
}

func NewEInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	auditRepo repository.AuditRepository,
	pipeline *Pipeline,
	events Broadcaster,
	submitDelay time.Duration,
) EInvoiceService {
	return &einvoiceService{
		invoiceRepo: invoiceRepo,
		auditRepo:   auditRepo,
		pipeline:    pipeline,
		events:      events,
		submitDelay: submitDelay,
		maxRetries:  3,
		now:         time.Now,
		sleep:       time.Sleep,
		log:         logger.WithComponent("einvoice-service"),
	}
}

// --- Implementation ---

func (s *einvoiceService) RunAutoSubmit(ctx context.Context) (BatchResult, error) {
	var result BatchResult

	if !s.pipeline.AutoSubmitEnabled() {
		return result, fmt.Errorf("auto-submit is disabled in settings")
	}
	if _, err := s.pipeline.Client(); err != nil {
		return result, err
	}

	invoices, err := s.invoiceRepo.FindEligibleForSubmission(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to select invoices: %w", err)
	}

	for i, invoice := range invoices {
		// Sequential on purpose: the authority rate-limits per taxpayer, so
		// batch items are spaced out instead of fanned out.
		if i > 0 && s.submitDelay > 0 {
			s.sleep(s.submitDelay)
		}
		invoice := invoice
		outcome := s.submitOne(ctx, &invoice, "auto-submit")
		result.Processed++
		if outcome.Error == "" {
			result.Successful++
		} else {
			result.Failed++
		}
		result.Results = append(result.Results, outcome)
	}

	s.log.Info().
		Int("processed", result.Processed).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("auto-submit batch finished")
	return result, nil
}

func (s *einvoiceService) SubmitInvoice(ctx context.Context, id string) (SubmissionOutcome, error) {
	invoice, err := s.loadInvoice(ctx, id)
	if err != nil {
		return SubmissionOutcome{}, err
	}
	if invoice.EInvoiceStatus != model.EInvoiceStatusNone {
		return SubmissionOutcome{}, fmt.Errorf("invoice %s already has e-invoice status %s", invoice.InvoiceNo, invoice.EInvoiceStatus)
	}
	if _, err := s.pipeline.Client(); err != nil {
		return SubmissionOutcome{}, err
	}
	return s.submitOne(ctx, invoice, "api"), nil
}

// submitOne drives one invoice through pending -> submitted/invalid/none.
// Failures are folded into the outcome, not returned, so a batch keeps going.
func (s *einvoiceService) submitOne(ctx context.Context, invoice *model.Invoice, actor string) SubmissionOutcome {
	outcome := SubmissionOutcome{
		InvoiceID: invoice.ID.String(),
		InvoiceNo: invoice.InvoiceNo,
	}

	// Idempotency guard: if a uuid was already recorded, the authority has
	// accepted this document and a resubmission would duplicate it.
	if invoice.EInvoiceUUID != "" {
		outcome.Status = invoice.EInvoiceStatus
		outcome.UUID = invoice.EInvoiceUUID
		return outcome
	}

	supplier := s.pipeline.Supplier()
	if problems := validateReadiness(invoice, supplier); len(problems) > 0 {
		summary := "not ready for submission: " + strings.Join(problems, "; ")
		s.transition(ctx, invoice, model.EInvoiceStatusInvalid, repository.EInvoiceStatusUpdate{
			Status: model.EInvoiceStatusInvalid,
			Error:  &summary,
		}, actor, model.ActionSubmitEInvoice)
		outcome.Status = model.EInvoiceStatusInvalid
		outcome.Error = summary
		return outcome
	}

	// Mark pending before any network traffic so a crash mid-flight leaves an
	// observable trace instead of a silently stuck "none".
	if err := s.invoiceRepo.UpdateEInvoiceStatus(ctx, invoice.ID, repository.EInvoiceStatusUpdate{
		Status: model.EInvoiceStatusPending,
	}); err != nil {
		outcome.Status = invoice.EInvoiceStatus
		outcome.Error = "failed to mark invoice pending: " + err.Error()
		return outcome
	}
	invoice.EInvoiceStatus = model.EInvoiceStatusPending

	client, err := s.pipeline.Client()
	if err != nil {
		return s.failSubmission(ctx, invoice, actor, outcome, err)
	}

	doc := buildDocument(invoice, supplier)
	receipt, err := client.SubmitWithRetry(ctx, doc, s.maxRetries)
	if err != nil {
		return s.failSubmission(ctx, invoice, actor, outcome, err)
	}

	submittedAt := s.now()
	empty := ""
	s.transition(ctx, invoice, model.EInvoiceStatusSubmitted, repository.EInvoiceStatusUpdate{
		Status:        model.EInvoiceStatusSubmitted,
		UUID:          &receipt.UUID,
		SubmissionUID: &receipt.SubmissionUID,
		SubmittedAt:   &submittedAt,
		Error:         &empty,
	}, actor, model.ActionSubmitEInvoice)

	if !receipt.Signed {
		s.log.Warn().Str("invoice_no", invoice.InvoiceNo).Msg("document submitted hash-only, no signing certificate configured")
	}

	outcome.Status = model.EInvoiceStatusSubmitted
	outcome.UUID = receipt.UUID
	return outcome
}

// failSubmission maps a submission failure onto the invoice row. Permanent
// failures become invalid; transient ones roll back to none so the next run
// can retry.
func (s *einvoiceService) failSubmission(ctx context.Context, invoice *model.Invoice, actor string, outcome SubmissionOutcome, err error) SubmissionOutcome {
	submissionErr := myinvois.AsError(err)
	message := submissionErr.Error()

	status := model.EInvoiceStatusNone
	switch submissionErr.Kind {
	case myinvois.KindValidation, myinvois.KindAPI, myinvois.KindSigning:
		status = model.EInvoiceStatusInvalid
	}

	s.transition(ctx, invoice, status, repository.EInvoiceStatusUpdate{
		Status: status,
		Error:  &message,
	}, actor, model.ActionSubmitEInvoice)

	outcome.Status = status
	outcome.Error = message
	return outcome
}

func (s *einvoiceService) CancelDocument(ctx context.Context, id string, reason, actor string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("a cancellation reason is required")
	}

	invoice, err := s.loadInvoice(ctx, id)
	if err != nil {
		return err
	}
	if invoice.EInvoiceStatus != model.EInvoiceStatusValid {
		return fmt.Errorf("only valid documents can be cancelled, current status is %s", invoice.EInvoiceStatus)
	}
	if invoice.ValidatedAt == nil || s.now().Sub(*invoice.ValidatedAt) > cancellationWindow {
		return fmt.Errorf("the 72-hour cancellation window has passed")
	}

	client, err := s.pipeline.Client()
	if err != nil {
		return err
	}
	if err := client.CancelDocument(ctx, invoice.EInvoiceUUID, reason); err != nil {
		return fmt.Errorf("cancellation rejected by the authority: %w", err)
	}

	s.transition(ctx, invoice, model.EInvoiceStatusCancelled, repository.EInvoiceStatusUpdate{
		Status: model.EInvoiceStatusCancelled,
		Error:  &reason,
	}, actor, model.ActionCancelEInvoice)
	return nil
}

func (s *einvoiceService) RejectDocument(ctx context.Context, id string, reason, actor string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("a rejection reason is required")
	}

	invoice, err := s.loadInvoice(ctx, id)
	if err != nil {
		return err
	}
	if invoice.EInvoiceStatus != model.EInvoiceStatusValid {
		return fmt.Errorf("only valid documents can be rejected, current status is %s", invoice.EInvoiceStatus)
	}

	client, err := s.pipeline.Client()
	if err != nil {
		return err
	}
	if err := client.RejectDocument(ctx, invoice.EInvoiceUUID, reason); err != nil {
		return fmt.Errorf("rejection failed: %w", err)
	}

	s.transition(ctx, invoice, model.EInvoiceStatusRejected, repository.EInvoiceStatusUpdate{
		Status: model.EInvoiceStatusRejected,
		Error:  &reason,
	}, actor, model.ActionRejectEInvoice)
	return nil
}

func (s *einvoiceService) RefreshStatus(ctx context.Context, id string) (string, error) {
	invoice, err := s.loadInvoice(ctx, id)
	if err != nil {
		return "", err
	}
	if invoice.EInvoiceUUID == "" {
		return invoice.EInvoiceStatus, nil
	}

	client, err := s.pipeline.Client()
	if err != nil {
		return "", err
	}
	status, err := client.GetDocumentStatus(ctx, invoice.EInvoiceUUID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch document status: %w", err)
	}

	mapped, recognized := mapAuthorityStatus(status.Status)
	if !recognized {
		s.log.Warn().
			Str("invoice_no", invoice.InvoiceNo).
			Str("authority_status", status.Status).
			Msg("unrecognized authority status, keeping document as submitted")
	}
	if mapped == invoice.EInvoiceStatus {
		return mapped, nil
	}

	update := statusUpdateFor(mapped, status, s.now())
	s.transition(ctx, invoice, mapped, update, "api", model.ActionEInvoiceStatusChange)
	return mapped, nil
}

func (s *einvoiceService) RecentDocuments(ctx context.Context, page int) ([]myinvois.DocumentStatus, error) {
	client, err := s.pipeline.Client()
	if err != nil {
		return nil, err
	}
	return client.GetRecentDocuments(ctx, page)
}

func (s *einvoiceService) SubmissionStatus(ctx context.Context, submissionUID string) (*myinvois.SubmissionStatus, error) {
	client, err := s.pipeline.Client()
	if err != nil {
		return nil, err
	}
	return client.GetSubmissionStatus(ctx, submissionUID)
}

func (s *einvoiceService) SearchDocuments(ctx context.Context, filter myinvois.SearchFilter) ([]myinvois.DocumentStatus, error) {
	client, err := s.pipeline.Client()
	if err != nil {
		return nil, err
	}
	return client.SearchDocuments(ctx, filter)
}

func (s *einvoiceService) ListInvoices(ctx context.Context, status string, page, limit int) ([]model.Invoice, int64, error) {
	return s.invoiceRepo.List(ctx, status, page, limit)
}

func (s *einvoiceService) AuditTrail(ctx context.Context, page, limit int) ([]model.AuditLog, int64, error) {
	return s.auditRepo.List(ctx, page, limit)
}

func (s *einvoiceService) CertificateHealth() CertificateHealthResponse {
	level, message := s.pipeline.CertificateHealth()
	return CertificateHealthResponse{
		Level:   string(level),
		Message: message,
		Info:    s.pipeline.CertificateInfo(),
	}
}

// --- Helpers ---

func (s *einvoiceService) loadInvoice(ctx context.Context, id string) (*model.Invoice, error) {
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

// transition persists the status update, writes an audit entry and notifies
// websocket clients. Audit/broadcast failures are logged, never propagated.
func (s *einvoiceService) transition(ctx context.Context, invoice *model.Invoice, newStatus string, update repository.EInvoiceStatusUpdate, actor, action string) {
	if err := s.invoiceRepo.UpdateEInvoiceStatus(ctx, invoice.ID, update); err != nil {
		s.log.Error().Err(err).Str("invoice_no", invoice.InvoiceNo).Msg("failed to persist e-invoice status")
		return
	}

	details, _ := json.Marshal(map[string]string{
		"from": invoice.EInvoiceStatus,
		"to":   newStatus,
	})
	if err := s.auditRepo.Log(ctx, &model.AuditLog{
		Actor:      actor,
		Action:     action,
		EntityID:   invoice.InvoiceNo,
		EntityName: "invoice",
		Details:    string(details),
	}); err != nil {
		s.log.Error().Err(err).Str("invoice_no", invoice.InvoiceNo).Msg("failed to write audit entry")
	}

	if s.events != nil {
		event := StatusEvent{
			Type:      "einvoice_status",
			InvoiceID: invoice.ID.String(),
			InvoiceNo: invoice.InvoiceNo,
			Status:    newStatus,
		}
		if update.UUID != nil {
			event.UUID = *update.UUID
		}
		if update.Error != nil {
			event.Error = *update.Error
		}
		s.events.BroadcastJSON(event)
	}

	invoice.EInvoiceStatus = newStatus
}

// validateReadiness checks business completeness before any conversion:
// identifiers, classification and address fields the authority will reject
// without. Returns one problem string per missing field.
func validateReadiness(invoice *model.Invoice, supplier myinvois.Party) []string {
	var problems []string

	if supplier.TIN == "" {
		problems = append(problems, "supplier TIN is not configured")
	}
	if supplier.MSIC == "" {
		problems = append(problems, "supplier MSIC code is not configured")
	}
	if supplier.Address.City == "" || supplier.Address.State == "" || supplier.Address.CountryCode == "" {
		problems = append(problems, "supplier address is incomplete")
	}

	if invoice.Customer == nil {
		problems = append(problems, "invoice has no customer")
	} else {
		if invoice.Customer.TIN == "" {
			problems = append(problems, "customer TIN is missing")
		}
		if invoice.Customer.City == "" || invoice.Customer.State == "" || invoice.Customer.CountryCode == "" {
			problems = append(problems, "customer address is incomplete")
		}
	}

	if len(invoice.Items) == 0 {
		problems = append(problems, "invoice has no line items")
	}
	for _, item := range invoice.Items {
		if item.ClassificationCode == "" {
			problems = append(problems, "line item \""+item.Description+"\" has no classification code")
		}
	}

	if invoice.IsNote() && invoice.OriginalInvoiceNo == "" {
		problems = append(problems, "credit/debit note is missing the original invoice reference")
	}

	return problems
}

// buildDocument maps the ledger's invoice row to the pipeline document,
// converting decimals to the integer minor-unit representation.
func buildDocument(invoice *model.Invoice, supplier myinvois.Party) myinvois.Document {
	lines := make([]myinvois.Line, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		lines = append(lines, myinvois.Line{
			ClassificationCode: item.ClassificationCode,
			Description:        item.Description,
			Quantity:           item.Quantity.Shift(3).Round(0).IntPart(),
			UnitPrice:          item.UnitPrice.Shift(2).Round(0).IntPart(),
			TaxType:            item.TaxType,
			TaxRate:            item.TaxRate.Shift(2).Round(0).IntPart(),
		})
	}

	var buyer myinvois.Party
	if invoice.Customer != nil {
		customer := invoice.Customer
		buyer = myinvois.Party{
			Name:    customer.Name,
			TIN:     customer.TIN,
			IDType:  customer.IDType,
			IDValue: customer.IDValue,
			SSTNo:   customer.SSTNo,
			Email:   customer.Email,
			Phone:   customer.Phone,
			Address: myinvois.Address{
				Lines:       []string{customer.AddressLine1, customer.AddressLine2},
				City:        customer.City,
				State:       customer.State,
				PostalCode:  customer.PostalCode,
				CountryCode: customer.CountryCode,
			},
		}
	}

	doc := myinvois.Document{
		ID:                 invoice.InvoiceNo,
		Type:               myinvois.DocumentType(invoice.DocumentType),
		Currency:           invoice.Currency,
		IssueDate:          invoice.IssueDate,
		Supplier:           supplier,
		Buyer:              buyer,
		Lines:              lines,
		Subtotal:           invoice.Subtotal.Shift(2).Round(0).IntPart(),
		Discount:           invoice.Discount.Shift(2).Round(0).IntPart(),
		TaxAmount:          invoice.TaxAmount.Shift(2).Round(0).IntPart(),
		TotalPayable:       invoice.TotalAmount.Shift(2).Round(0).IntPart(),
		PaymentMode:        invoice.PaymentMode,
		OriginalDocumentID: invoice.OriginalInvoiceNo,
	}
	return doc
}

// statusUpdateFor builds the row update for a mapped authority status.
func statusUpdateFor(mapped string, status *myinvois.DocumentStatus, now time.Time) repository.EInvoiceStatusUpdate {
	update := repository.EInvoiceStatusUpdate{Status: mapped}
	if status.LongID != "" {
		update.LongID = &status.LongID
	}
	switch mapped {
	case model.EInvoiceStatusValid:
		validatedAt := now
		if parsed, err := time.Parse(time.RFC3339, status.DateTimeValidated); err == nil {
			validatedAt = parsed
		}
		update.ValidatedAt = &validatedAt
	case model.EInvoiceStatusInvalid, model.EInvoiceStatusRejected:
		reason := status.DocumentStatusReason
		if reason == "" {
			reason = "document marked " + mapped + " by the tax authority"
		}
		update.Error = &reason
	}
	return update
}
