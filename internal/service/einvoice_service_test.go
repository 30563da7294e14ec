package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"einvoice/internal/model"
	"einvoice/internal/myinvois"
	"einvoice/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- fakes ---

var errNotFound = errors.New("record not found")

type fakeInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*model.Invoice
	eligible []model.Invoice
	pending  []model.Invoice
	updates  []repository.EInvoiceStatusUpdate
}

func newFakeInvoiceRepo(invoices ...*model.Invoice) *fakeInvoiceRepo {
	repo := &fakeInvoiceRepo{invoices: map[uuid.UUID]*model.Invoice{}}
	for _, inv := range invoices {
		repo.invoices[inv.ID] = inv
	}
	return repo
}

func (r *fakeInvoiceRepo) Create(ctx context.Context, invoice *model.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices[invoice.ID] = invoice
	return nil
}

func (r *fakeInvoiceRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	invoice, ok := r.invoices[id]
	if !ok {
		return nil, errNotFound
	}
	copied := *invoice
	return &copied, nil
}

func (r *fakeInvoiceRepo) FindByInvoiceNo(ctx context.Context, invoiceNo string) (*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, invoice := range r.invoices {
		if invoice.InvoiceNo == invoiceNo {
			copied := *invoice
			return &copied, nil
		}
	}
	return nil, errNotFound
}

func (r *fakeInvoiceRepo) List(ctx context.Context, status string, page, limit int) ([]model.Invoice, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Invoice
	for _, invoice := range r.invoices {
		if status == "" || invoice.EInvoiceStatus == status {
			out = append(out, *invoice)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeInvoiceRepo) FindEligibleForSubmission(ctx context.Context) ([]model.Invoice, error) {
	return r.eligible, nil
}

func (r *fakeInvoiceRepo) FindPendingStatusSync(ctx context.Context) ([]model.Invoice, error) {
	return r.pending, nil
}

func (r *fakeInvoiceRepo) UpdateEInvoiceStatus(ctx context.Context, id uuid.UUID, update repository.EInvoiceStatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
	invoice, ok := r.invoices[id]
	if !ok {
		return nil
	}
	invoice.EInvoiceStatus = update.Status
	if update.UUID != nil {
		invoice.EInvoiceUUID = *update.UUID
	}
	if update.LongID != nil {
		invoice.EInvoiceLongID = *update.LongID
	}
	if update.SubmissionUID != nil {
		invoice.SubmissionUID = *update.SubmissionUID
	}
	if update.SubmittedAt != nil {
		invoice.SubmittedAt = update.SubmittedAt
	}
	if update.ValidatedAt != nil {
		invoice.ValidatedAt = update.ValidatedAt
	}
	if update.Error != nil {
		invoice.EInvoiceError = *update.Error
	}
	return nil
}

func (r *fakeInvoiceRepo) statusUpdates() []repository.EInvoiceStatusUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]repository.EInvoiceStatusUpdate(nil), r.updates...)
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []model.AuditLog
}

func (r *fakeAuditRepo) Log(ctx context.Context, entry *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeAuditRepo) List(ctx context.Context, page, limit int) ([]model.AuditLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.AuditLog(nil), r.entries...), int64(len(r.entries)), nil
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []interface{}
}

func (b *fakeBroadcaster) BroadcastJSON(v interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, v)
}

func (b *fakeBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// --- fixtures ---

func testSupplier() myinvois.Party {
	return myinvois.Party{
		Name:         "Supplier Sdn Bhd",
		TIN:          "C1234567890",
		IDType:       "BRN",
		IDValue:      "201901234567",
		MSIC:         "62010",
		ActivityDesc: "Computer programming activities",
		Address: myinvois.Address{
			Lines:       []string{"Lot 1, Jalan Teknologi"},
			City:        "Cyberjaya",
			State:       "10",
			CountryCode: "MYS",
		},
	}
}

func testInvoice() *model.Invoice {
	customerID := uuid.New()
	return &model.Invoice{
		ID:           uuid.New(),
		InvoiceNo:    "INV-0001",
		CustomerID:   customerID,
		Status:       model.InvoiceStatusSent,
		DocumentType: model.DocTypeInvoice,
		Currency:     "MYR",
		PaymentMode:  "01",
		IssueDate:    time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC),
		Customer: &model.Customer{
			ID:           customerID,
			Name:         "Buyer Enterprise",
			TIN:          "C0987654321",
			IDType:       model.IDTypeBRN,
			IDValue:      "202005554443",
			AddressLine1: "8 Jalan Ampang",
			City:         "Kuala Lumpur",
			State:        "14",
			PostalCode:   "50450",
			CountryCode:  "MYS",
		},
		Items: []model.InvoiceItem{{
			ClassificationCode: "022",
			Description:        "Consulting services",
			Quantity:           decimal.NewFromInt(2),
			UnitPrice:          decimal.NewFromFloat(100),
			TaxType:            "01",
			TaxRate:            decimal.NewFromFloat(6),
		}},
		Subtotal:       decimal.NewFromFloat(200),
		TaxAmount:      decimal.NewFromFloat(12),
		TotalAmount:    decimal.NewFromFloat(212),
		EInvoiceStatus: model.EInvoiceStatusNone,
	}
}

// newAuthorityServer serves /connect/token itself and delegates everything
// else to handler.
func newAuthorityServer(handler http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/connect/token" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`))
			return
		}
		handler(w, r)
	}))
}

func acceptingServer(uuidValue string) *httptest.Server {
	return newAuthorityServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"submissionUid":"SUB-1","acceptedDocuments":[{"uuid":"` + uuidValue + `"}]}`))
	})
}

func newTestPipeline(serverURL string, autoSubmit bool) *Pipeline {
	tokens := myinvois.NewTokenManager(myinvois.TokenConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		Environment:  "sandbox",
		BaseURL:      serverURL,
	})
	client := myinvois.NewClient(myinvois.ClientConfig{
		Environment:    "sandbox",
		BaseURL:        serverURL,
		Timeout:        5 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
	}, tokens, nil)

	p := NewPipeline()
	p.tokens = tokens
	p.client = client
	p.supplier = testSupplier()
	p.autoSubmit = autoSubmit
	return p
}

func newTestService(repo *fakeInvoiceRepo, audit *fakeAuditRepo, pipeline *Pipeline, events Broadcaster) *einvoiceService {
	svc := NewEInvoiceService(repo, audit, pipeline, events, 0).(*einvoiceService)
	svc.sleep = func(time.Duration) {}
	return svc
}

// --- tests ---

func TestSubmitInvoiceSuccess(t *testing.T) {
	server := acceptingServer("DOC-UUID-1")
	defer server.Close()

	invoice := testInvoice()
	repo := newFakeInvoiceRepo(invoice)
	audit := &fakeAuditRepo{}
	events := &fakeBroadcaster{}
	svc := newTestService(repo, audit, newTestPipeline(server.URL, false), events)

	outcome, err := svc.SubmitInvoice(context.Background(), invoice.ID.String())
	if err != nil {
		t.Fatalf("SubmitInvoice: %v", err)
	}
	if outcome.Status != model.EInvoiceStatusSubmitted || outcome.UUID != "DOC-UUID-1" {
		t.Errorf("outcome = %+v", outcome)
	}

	updates := repo.statusUpdates()
	if len(updates) != 2 {
		t.Fatalf("updates = %d, want pending then submitted", len(updates))
	}
	if updates[0].Status != model.EInvoiceStatusPending {
		t.Errorf("first update status = %q, want pending before any network call", updates[0].Status)
	}
	final := updates[1]
	if final.Status != model.EInvoiceStatusSubmitted || final.UUID == nil || *final.UUID != "DOC-UUID-1" {
		t.Errorf("final update = %+v", final)
	}
	if final.SubmittedAt == nil || final.SubmissionUID == nil || *final.SubmissionUID != "SUB-1" {
		t.Errorf("final update missing submission record: %+v", final)
	}
	if final.Error == nil || *final.Error != "" {
		t.Error("previous error not cleared on success")
	}

	stored := repo.invoices[invoice.ID]
	if stored.EInvoiceStatus != model.EInvoiceStatusSubmitted || stored.EInvoiceUUID != "DOC-UUID-1" {
		t.Errorf("stored invoice = status %q uuid %q", stored.EInvoiceStatus, stored.EInvoiceUUID)
	}

	if len(audit.entries) != 1 || audit.entries[0].Action != model.ActionSubmitEInvoice {
		t.Errorf("audit entries = %+v", audit.entries)
	}
	if events.count() != 1 {
		t.Errorf("broadcast %d events, want 1", events.count())
	}
}

func TestSubmitInvoiceRequiresStatusNone(t *testing.T) {
	server := acceptingServer("DOC-UUID-1")
	defer server.Close()

	invoice := testInvoice()
	invoice.EInvoiceStatus = model.EInvoiceStatusSubmitted
	repo := newFakeInvoiceRepo(invoice)
	svc := newTestService(repo, &fakeAuditRepo{}, newTestPipeline(server.URL, false), nil)

	if _, err := svc.SubmitInvoice(context.Background(), invoice.ID.String()); err == nil {
		t.Fatal("expected an error for an invoice already in the pipeline")
	}
	if len(repo.statusUpdates()) != 0 {
		t.Error("status must not change on a refused submission")
	}
}

func TestSubmitInvoiceInvalidID(t *testing.T) {
	svc := newTestService(newFakeInvoiceRepo(), &fakeAuditRepo{}, NewPipeline(), nil)
	if _, err := svc.SubmitInvoice(context.Background(), "not-a-uuid"); err == nil {
		t.Fatal("expected an error for a malformed id")
	}
}

func TestSubmitSkipsInvoiceWithRecordedUUID(t *testing.T) {
	var calls int32
	server := newAuthorityServer(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	defer server.Close()

	invoice := testInvoice()
	invoice.EInvoiceStatus = model.EInvoiceStatusSubmitted
	invoice.EInvoiceUUID = "EXISTING-UUID"
	repo := newFakeInvoiceRepo(invoice)
	svc := newTestService(repo, &fakeAuditRepo{}, newTestPipeline(server.URL, true), nil)

	outcome := svc.submitOne(context.Background(), invoice, "auto-submit")
	if outcome.UUID != "EXISTING-UUID" || outcome.Status != model.EInvoiceStatusSubmitted {
		t.Errorf("outcome = %+v", outcome)
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("authority hit %d times, a recorded uuid must never be resubmitted", got)
	}
	if len(repo.statusUpdates()) != 0 {
		t.Error("no status update expected for a skipped invoice")
	}
}

func TestSubmitNotReadyMarksInvalid(t *testing.T) {
	var calls int32
	server := newAuthorityServer(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	defer server.Close()

	invoice := testInvoice()
	invoice.Customer.TIN = ""
	repo := newFakeInvoiceRepo(invoice)
	svc := newTestService(repo, &fakeAuditRepo{}, newTestPipeline(server.URL, false), nil)

	outcome, err := svc.SubmitInvoice(context.Background(), invoice.ID.String())
	if err != nil {
		t.Fatalf("SubmitInvoice: %v", err)
	}
	if outcome.Status != model.EInvoiceStatusInvalid {
		t.Errorf("status = %q, want invalid", outcome.Status)
	}
	if !strings.Contains(outcome.Error, "customer TIN") {
		t.Errorf("error = %q, want the missing field named", outcome.Error)
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("authority hit %d times, readiness failures must not reach the network", got)
	}
}

func TestSubmitAPIRejectionMarksInvalid(t *testing.T) {
	server := newAuthorityServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"submissionUid":"SUB-9","rejectedDocuments":[{"invoiceCodeNumber":"INV-0001","error":{"code":"CF321","message":"TIN mismatch"}}]}`))
	})
	defer server.Close()

	invoice := testInvoice()
	repo := newFakeInvoiceRepo(invoice)
	svc := newTestService(repo, &fakeAuditRepo{}, newTestPipeline(server.URL, false), nil)

	outcome, err := svc.SubmitInvoice(context.Background(), invoice.ID.String())
	if err != nil {
		t.Fatalf("SubmitInvoice: %v", err)
	}
	if outcome.Status != model.EInvoiceStatusInvalid {
		t.Errorf("status = %q, business rejections are permanent", outcome.Status)
	}
	if repo.invoices[invoice.ID].EInvoiceError == "" {
		t.Error("rejection reason not stored on the invoice")
	}
}

func TestSubmitTransientFailureRollsBackToNone(t *testing.T) {
	var attempts int32
	server := newAuthorityServer(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		hj := w.(http.Hijacker)
		conn, _, err := hj.Hijack()
		if err != nil {
			return
		}
		conn.Close()
	})
	defer server.Close()

	invoice := testInvoice()
	repo := newFakeInvoiceRepo(invoice)
	svc := newTestService(repo, &fakeAuditRepo{}, newTestPipeline(server.URL, false), nil)

	outcome, err := svc.SubmitInvoice(context.Background(), invoice.ID.String())
	if err != nil {
		t.Fatalf("SubmitInvoice: %v", err)
	}
	if outcome.Status != model.EInvoiceStatusNone {
		t.Errorf("status = %q, transient failures must roll back to none for retry", outcome.Status)
	}
	if outcome.Error == "" {
		t.Error("outcome should carry the transport error")
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want all retries used", got)
	}
	if repo.invoices[invoice.ID].EInvoiceStatus != model.EInvoiceStatusNone {
		t.Errorf("stored status = %q", repo.invoices[invoice.ID].EInvoiceStatus)
	}
}

func TestRunAutoSubmitBatch(t *testing.T) {
	server := acceptingServer("DOC-UUID-BATCH")
	defer server.Close()

	first := testInvoice()
	second := testInvoice()
	second.ID = uuid.New()
	second.InvoiceNo = "INV-0002"
	second.Customer.TIN = "" // fails readiness

	repo := newFakeInvoiceRepo(first, second)
	repo.eligible = []model.Invoice{*first, *second}

	svc := newTestService(repo, &fakeAuditRepo{}, newTestPipeline(server.URL, true), nil)
	svc.submitDelay = time.Second

	var slept []time.Duration
	svc.sleep = func(d time.Duration) { slept = append(slept, d) }

	result, err := svc.RunAutoSubmit(context.Background())
	if err != nil {
		t.Fatalf("RunAutoSubmit: %v", err)
	}
	if result.Processed != 2 || result.Successful != 1 || result.Failed != 1 {
		t.Errorf("result = %+v", result)
	}
	if len(result.Results) != 2 {
		t.Fatalf("results = %d", len(result.Results))
	}
	if result.Results[0].Status != model.EInvoiceStatusSubmitted {
		t.Errorf("first outcome = %+v", result.Results[0])
	}
	if result.Results[1].Status != model.EInvoiceStatusInvalid {
		t.Errorf("second outcome = %+v", result.Results[1])
	}

	// Spaced once, between the two items, with the configured delay.
	if len(slept) != 1 || slept[0] != time.Second {
		t.Errorf("sleeps = %v", slept)
	}
}

func TestRunAutoSubmitDisabled(t *testing.T) {
	server := acceptingServer("DOC-UUID-1")
	defer server.Close()

	svc := newTestService(newFakeInvoiceRepo(), &fakeAuditRepo{}, newTestPipeline(server.URL, false), nil)
	if _, err := svc.RunAutoSubmit(context.Background()); err == nil {
		t.Fatal("expected an error while auto-submit is disabled")
	}
}

func TestRunAutoSubmitUnconfiguredPipeline(t *testing.T) {
	pipeline := NewPipeline()
	pipeline.autoSubmit = true

	svc := newTestService(newFakeInvoiceRepo(), &fakeAuditRepo{}, pipeline, nil)
	if _, err := svc.RunAutoSubmit(context.Background()); err == nil {
		t.Fatal("expected an error for an unconfigured pipeline")
	}
}

func TestCancelDocument(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-24 * time.Hour)
	tooOld := now.Add(-73 * time.Hour)

	tests := []struct {
		name    string
		status  string
		valAt   *time.Time
		reason  string
		wantErr string
	}{
		{"success inside window", model.EInvoiceStatusValid, &recent, "wrong buyer", ""},
		{"window passed", model.EInvoiceStatusValid, &tooOld, "wrong buyer", "72-hour"},
		{"never validated", model.EInvoiceStatusValid, nil, "wrong buyer", "72-hour"},
		{"not valid yet", model.EInvoiceStatusSubmitted, &recent, "wrong buyer", "only valid documents"},
		{"missing reason", model.EInvoiceStatusValid, &recent, "  ", "reason is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newAuthorityServer(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			defer server.Close()

			invoice := testInvoice()
			invoice.EInvoiceStatus = tt.status
			invoice.EInvoiceUUID = "DOC-UUID-1"
			invoice.ValidatedAt = tt.valAt
			repo := newFakeInvoiceRepo(invoice)
			audit := &fakeAuditRepo{}
			svc := newTestService(repo, audit, newTestPipeline(server.URL, false), nil)
			svc.now = func() time.Time { return now }

			err := svc.CancelDocument(context.Background(), invoice.ID.String(), tt.reason, "tester")
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("CancelDocument: %v", err)
				}
				if repo.invoices[invoice.ID].EInvoiceStatus != model.EInvoiceStatusCancelled {
					t.Errorf("stored status = %q", repo.invoices[invoice.ID].EInvoiceStatus)
				}
				if len(audit.entries) != 1 || audit.entries[0].Action != model.ActionCancelEInvoice {
					t.Errorf("audit entries = %+v", audit.entries)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.wantErr)
			}
			if repo.invoices[invoice.ID].EInvoiceStatus != tt.status {
				t.Error("status changed on a refused cancellation")
			}
		})
	}
}

func TestRejectDocument(t *testing.T) {
	server := newAuthorityServer(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer server.Close()

	invoice := testInvoice()
	invoice.EInvoiceStatus = model.EInvoiceStatusValid
	invoice.EInvoiceUUID = "DOC-UUID-1"
	repo := newFakeInvoiceRepo(invoice)
	audit := &fakeAuditRepo{}
	svc := newTestService(repo, audit, newTestPipeline(server.URL, false), nil)

	if err := svc.RejectDocument(context.Background(), invoice.ID.String(), "incorrect amount", "tester"); err != nil {
		t.Fatalf("RejectDocument: %v", err)
	}
	if repo.invoices[invoice.ID].EInvoiceStatus != model.EInvoiceStatusRejected {
		t.Errorf("stored status = %q", repo.invoices[invoice.ID].EInvoiceStatus)
	}
	if len(audit.entries) != 1 || audit.entries[0].Action != model.ActionRejectEInvoice {
		t.Errorf("audit entries = %+v", audit.entries)
	}

	// Rejection is only meaningful for validated documents.
	submitted := testInvoice()
	submitted.ID = uuid.New()
	submitted.EInvoiceStatus = model.EInvoiceStatusSubmitted
	repo.invoices[submitted.ID] = submitted
	if err := svc.RejectDocument(context.Background(), submitted.ID.String(), "reason", "tester"); err == nil {
		t.Fatal("expected an error for a non-valid document")
	}
}

func TestRefreshStatusTransitionsToValid(t *testing.T) {
	server := newAuthorityServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"uuid":"DOC-UUID-1","status":"Valid","longId":"LONG-1","dateTimeValidated":"2026-03-16T08:00:00Z"}`))
	})
	defer server.Close()

	invoice := testInvoice()
	invoice.EInvoiceStatus = model.EInvoiceStatusSubmitted
	invoice.EInvoiceUUID = "DOC-UUID-1"
	repo := newFakeInvoiceRepo(invoice)
	audit := &fakeAuditRepo{}
	svc := newTestService(repo, audit, newTestPipeline(server.URL, false), nil)

	status, err := svc.RefreshStatus(context.Background(), invoice.ID.String())
	if err != nil {
		t.Fatalf("RefreshStatus: %v", err)
	}
	if status != model.EInvoiceStatusValid {
		t.Errorf("status = %q", status)
	}

	stored := repo.invoices[invoice.ID]
	if stored.ValidatedAt == nil || !stored.ValidatedAt.Equal(time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("validated at = %v, want the authority's timestamp", stored.ValidatedAt)
	}
	if stored.EInvoiceLongID != "LONG-1" {
		t.Errorf("long id = %q", stored.EInvoiceLongID)
	}
	if len(audit.entries) != 1 || audit.entries[0].Action != model.ActionEInvoiceStatusChange {
		t.Errorf("audit entries = %+v", audit.entries)
	}
}

func TestRefreshStatusNoChange(t *testing.T) {
	server := newAuthorityServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"uuid":"DOC-UUID-1","status":"Submitted"}`))
	})
	defer server.Close()

	invoice := testInvoice()
	invoice.EInvoiceStatus = model.EInvoiceStatusSubmitted
	invoice.EInvoiceUUID = "DOC-UUID-1"
	repo := newFakeInvoiceRepo(invoice)
	svc := newTestService(repo, &fakeAuditRepo{}, newTestPipeline(server.URL, false), nil)

	status, err := svc.RefreshStatus(context.Background(), invoice.ID.String())
	if err != nil {
		t.Fatalf("RefreshStatus: %v", err)
	}
	if status != model.EInvoiceStatusSubmitted {
		t.Errorf("status = %q", status)
	}
	if len(repo.statusUpdates()) != 0 {
		t.Error("no update expected when the status is unchanged")
	}
}

func TestRefreshStatusWithoutDocument(t *testing.T) {
	invoice := testInvoice()
	repo := newFakeInvoiceRepo(invoice)
	svc := newTestService(repo, &fakeAuditRepo{}, NewPipeline(), nil)

	// No uuid recorded yet: the local status answers without a network call,
	// even on an unconfigured pipeline.
	status, err := svc.RefreshStatus(context.Background(), invoice.ID.String())
	if err != nil {
		t.Fatalf("RefreshStatus: %v", err)
	}
	if status != model.EInvoiceStatusNone {
		t.Errorf("status = %q", status)
	}
}

func TestNoteRequiresOriginalReference(t *testing.T) {
	server := acceptingServer("DOC-UUID-1")
	defer server.Close()

	invoice := testInvoice()
	invoice.DocumentType = model.DocTypeCreditNote
	repo := newFakeInvoiceRepo(invoice)
	svc := newTestService(repo, &fakeAuditRepo{}, newTestPipeline(server.URL, false), nil)

	outcome, err := svc.SubmitInvoice(context.Background(), invoice.ID.String())
	if err != nil {
		t.Fatalf("SubmitInvoice: %v", err)
	}
	if outcome.Status != model.EInvoiceStatusInvalid || !strings.Contains(outcome.Error, "original invoice") {
		t.Errorf("outcome = %+v", outcome)
	}
}
