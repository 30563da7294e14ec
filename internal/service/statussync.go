package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"einvoice/internal/logger"
	"einvoice/internal/model"
	"einvoice/internal/repository"

	"github.com/rs/zerolog"
)

// authorityStatusMap translates the authority's status strings, matched
// case-insensitively, to the internal lifecycle.
var authorityStatusMap = map[string]string{
	"valid":     model.EInvoiceStatusValid,
	"invalid":   model.EInvoiceStatusInvalid,
	"cancelled": model.EInvoiceStatusCancelled,
	"rejected":  model.EInvoiceStatusRejected,
	"submitted": model.EInvoiceStatusSubmitted,
	"pending":   model.EInvoiceStatusSubmitted,
}

// mapAuthorityStatus maps an authority status string to the internal enum.
// Unrecognized strings map to submitted; the second return lets callers log
// that the default was used.
func mapAuthorityStatus(status string) (string, bool) {
	if mapped, ok := authorityStatusMap[strings.ToLower(strings.TrimSpace(status))]; ok {
		return mapped, true
	}
	return model.EInvoiceStatusSubmitted, false
}

// StatusSync periodically reconciles externally-pending documents against the
// authority's reported status. Only one polling loop is ever active.
type StatusSync struct {
	invoiceRepo repository.InvoiceRepository
	auditRepo   repository.AuditRepository
	pipeline    *Pipeline
	events      Broadcaster
	pollDelay   time.Duration // spacing between per-document status calls
	now         func() time.Time
	sleep       func(time.Duration)
	log         zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewStatusSync(
	invoiceRepo repository.InvoiceRepository,
	auditRepo repository.AuditRepository,
	pipeline *Pipeline,
	events Broadcaster,
	pollDelay time.Duration,
) *StatusSync {
	return &StatusSync{
		invoiceRepo: invoiceRepo,
		auditRepo:   auditRepo,
		pipeline:    pipeline,
		events:      events,
		pollDelay:   pollDelay,
		now:         time.Now,
		sleep:       time.Sleep,
		log:         logger.WithComponent("status-sync"),
	}
}

// Start launches the polling loop. A second call while a loop is running is
// a no-op. The first reconciliation runs immediately, not after the first
// interval tick.
func (s *StatusSync) Start(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.log.Warn().Msg("status sync polling already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done

	go func() {
		defer close(done)

		s.runOnce(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	s.log.Info().Dur("interval", interval).Msg("status sync polling started")
}

// Stop terminates the polling loop and waits for the current run to finish.
func (s *StatusSync) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info().Msg("status sync polling stopped")
}

func (s *StatusSync) runOnce(ctx context.Context) {
	updated, checked, err := s.RunOnce(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("status sync run failed")
		return
	}
	if checked > 0 {
		s.log.Info().Int("checked", checked).Int("updated", updated).Msg("status sync run finished")
	}
}

// RunOnce reconciles every externally-pending document once. Documents are
// polled sequentially with the configured delay; one document's failure does
// not abort the rest.
func (s *StatusSync) RunOnce(ctx context.Context) (updated, checked int, err error) {
	client, err := s.pipeline.Client()
	if err != nil {
		// Not configured yet; nothing to reconcile.
		return 0, 0, nil
	}

	invoices, err := s.invoiceRepo.FindPendingStatusSync(ctx)
	if err != nil {
		return 0, 0, err
	}

	for i, invoice := range invoices {
		if ctx.Err() != nil {
			return updated, checked, ctx.Err()
		}
		if i > 0 && s.pollDelay > 0 {
			s.sleep(s.pollDelay)
		}
		checked++

		status, err := client.GetDocumentStatus(ctx, invoice.EInvoiceUUID)
		if err != nil {
			s.log.Warn().Err(err).Str("invoice_no", invoice.InvoiceNo).Msg("failed to fetch document status")
			continue
		}

		mapped, recognized := mapAuthorityStatus(status.Status)
		if !recognized {
			s.log.Warn().
				Str("invoice_no", invoice.InvoiceNo).
				Str("authority_status", status.Status).
				Msg("unrecognized authority status, defaulting to submitted")
		}
		if mapped == invoice.EInvoiceStatus {
			continue
		}

		update := statusUpdateFor(mapped, status, s.now())
		if err := s.invoiceRepo.UpdateEInvoiceStatus(ctx, invoice.ID, update); err != nil {
			s.log.Error().Err(err).Str("invoice_no", invoice.InvoiceNo).Msg("failed to persist synced status")
			continue
		}
		updated++

		s.audit(ctx, &invoice, mapped)
		if s.events != nil {
			event := StatusEvent{
				Type:      "einvoice_status",
				InvoiceID: invoice.ID.String(),
				InvoiceNo: invoice.InvoiceNo,
				Status:    mapped,
				UUID:      invoice.EInvoiceUUID,
			}
			if update.Error != nil {
				event.Error = *update.Error
			}
			s.events.BroadcastJSON(event)
		}
	}

	return updated, checked, nil
}

func (s *StatusSync) audit(ctx context.Context, invoice *model.Invoice, newStatus string) {
	entry := &model.AuditLog{
		Actor:      "status-sync",
		Action:     model.ActionEInvoiceStatusChange,
		EntityID:   invoice.InvoiceNo,
		EntityName: "invoice",
		Details:    `{"from":"` + invoice.EInvoiceStatus + `","to":"` + newStatus + `"}`,
	}
	if err := s.auditRepo.Log(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("invoice_no", invoice.InvoiceNo).Msg("failed to write audit entry")
	}
}
