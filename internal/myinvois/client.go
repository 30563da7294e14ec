package myinvois

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"einvoice/internal/logger"
)

// ClientConfig controls timeouts and retry policy for authority calls.
// BaseURL overrides the environment-derived authority URL when set.
type ClientConfig struct {
	Environment    string
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int           // total attempts for SubmitWithRetry
	RetryBaseDelay time.Duration // first backoff delay
	RetryMaxDelay  time.Duration // backoff cap
}

// DefaultClientConfig returns the config used unless overridden.
func DefaultClientConfig(environment string) ClientConfig {
	return ClientConfig{
		Environment:    environment,
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  30 * time.Second,
	}
}

// Client performs authenticated document operations against the authority
// API. A nil signer puts the client in hash-only mode.
type Client struct {
	cfg        ClientConfig
	baseURL    string
	httpClient *http.Client
	tokens     *TokenManager
	signer     *Signer
	converter  Converter
	sleep      func(time.Duration)
	log        zerolog.Logger
}

// NewClient wires a submission client. tokens is required; signer may be nil.
func NewClient(cfg ClientConfig, tokens *TokenManager, signer *Signer) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseURL(cfg.Environment)
	}
	return &Client{
		cfg:        cfg,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
		signer:     signer,
		sleep:      time.Sleep,
		log:        logger.WithComponent("submission-client"),
	}
}

// Signed reports whether documents are signed or submitted hash-only.
func (c *Client) Signed() bool { return c.signer != nil }

// Signer exposes the configured signer for certificate health reporting.
// Nil in hash-only mode.
func (c *Client) Signer() *Signer { return c.signer }

// SubmissionReceipt is the successful outcome of a document submission.
type SubmissionReceipt struct {
	UUID          string
	SubmissionUID string
	Signed        bool // false when the document went out hash-only
}

// Submit converts, validates, signs and submits one document. A validation
// failure returns without any network call.
func (c *Client) Submit(ctx context.Context, doc Document) (*SubmissionReceipt, error) {
	sd := c.converter.Convert(doc)
	if result := c.converter.Validate(sd); !result.Valid {
		return nil, newValidationError(result.Errors)
	}

	payload, err := json.Marshal(sd)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: "serialize document", Err: err}
	}

	var sig SignResult
	if c.signer != nil {
		sig, err = c.signer.Sign(payload)
		if err != nil {
			return nil, err
		}
	} else {
		sig = HashDocument(payload)
	}

	reqBody := submissionRequest{
		Documents: []submissionDocument{{
			Format:       "JSON",
			DocumentHash: sig.Hash,
			CodeNumber:   doc.ID,
			Document:     base64.StdEncoding.EncodeToString(payload),
		}},
	}

	var resp submissionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1.0/documentsubmissions", reqBody, &resp); err != nil {
		return nil, err
	}

	switch {
	case len(resp.AcceptedDocuments) > 0:
		return &SubmissionReceipt{
			UUID:          resp.AcceptedDocuments[0].UUID,
			SubmissionUID: resp.SubmissionUID,
			Signed:        sig.Signed,
		}, nil
	case len(resp.RejectedDocuments) > 0:
		rejected := resp.RejectedDocuments[0]
		return nil, &Error{
			Kind:    KindAPI,
			Code:    rejected.Error.Code,
			Message: rejected.Error.Message,
			Details: rejected.Error.Details,
		}
	default:
		return nil, &Error{Kind: KindUnknown, Code: "UNKNOWN", Message: "submission response listed the document as neither accepted nor rejected"}
	}
}

// SubmitWithRetry retries Submit on transport-class failures with capped
// exponential backoff. Validation failures and business rejections return on
// the first attempt.
func (c *Client) SubmitWithRetry(ctx context.Context, doc Document, maxRetries int) (*SubmissionReceipt, error) {
	if maxRetries <= 0 {
		maxRetries = c.cfg.MaxRetries
	}

	var lastErr error
	delay := c.cfg.RetryBaseDelay
	for attempt := 1; attempt <= maxRetries; attempt++ {
		receipt, err := c.Submit(ctx, doc)
		if err == nil {
			return receipt, nil
		}
		lastErr = err
		if !AsError(err).Retryable() || attempt == maxRetries {
			return nil, err
		}

		c.log.Warn().
			Str("code_number", doc.ID).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Err(err).
			Msg("submission failed, retrying")

		c.sleep(delay)
		if ctx.Err() != nil {
			return nil, classifyTransport("submit", ctx.Err())
		}
		delay *= 2
		if delay > c.cfg.RetryMaxDelay {
			delay = c.cfg.RetryMaxDelay
		}
	}
	return nil, lastErr
}

// DocumentStatus is the authority's view of one submitted document.
type DocumentStatus struct {
	UUID                 string `json:"uuid"`
	SubmissionUID        string `json:"submissionUid"`
	LongID               string `json:"longId"`
	InternalID           string `json:"internalId"`
	Status               string `json:"status"`
	DateTimeValidated    string `json:"dateTimeValidated"`
	DocumentStatusReason string `json:"documentStatusReason"`
}

// GetDocumentStatus fetches the validation status of a single document.
func (c *Client) GetDocumentStatus(ctx context.Context, uuid string) (*DocumentStatus, error) {
	var status DocumentStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1.0/documents/"+url.PathEscape(uuid)+"/details", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SubmissionStatus summarizes a whole submission batch.
type SubmissionStatus struct {
	SubmissionUID   string           `json:"submissionUid"`
	OverallStatus   string           `json:"overallStatus"`
	DocumentSummary []DocumentStatus `json:"documentSummary"`
}

// GetSubmissionStatus fetches the processing state of a submission batch.
func (c *Client) GetSubmissionStatus(ctx context.Context, submissionUID string) (*SubmissionStatus, error) {
	var status SubmissionStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1.0/documentsubmissions/"+url.PathEscape(submissionUID), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CancelDocument cancels a validated document. The authority enforces the
// 72-hour window; the orchestrator checks it first to fail fast.
func (c *Client) CancelDocument(ctx context.Context, uuid, reason string) error {
	return c.updateDocumentState(ctx, uuid, "cancelled", reason)
}

// RejectDocument requests buyer-side rejection of a validated document.
func (c *Client) RejectDocument(ctx context.Context, uuid, reason string) error {
	return c.updateDocumentState(ctx, uuid, "rejected", reason)
}

func (c *Client) updateDocumentState(ctx context.Context, uuid, status, reason string) error {
	body := map[string]string{"status": status, "reason": reason}
	return c.doJSON(ctx, http.MethodPut, "/api/v1.0/documents/state/"+url.PathEscape(uuid)+"/state", body, nil)
}

// SearchFilter narrows a document search. Zero values are omitted from the
// query.
type SearchFilter struct {
	UUID          string
	SubmissionUID string
	InternalID    string
	DateFrom      time.Time
	DateTo        time.Time
	Status        string
	DocumentType  string
	PageNo        int
	PageSize      int
}

// SearchDocuments queries the authority's document store.
func (c *Client) SearchDocuments(ctx context.Context, filter SearchFilter) ([]DocumentStatus, error) {
	query := url.Values{}
	if filter.UUID != "" {
		query.Set("uuid", filter.UUID)
	}
	if filter.SubmissionUID != "" {
		query.Set("submissionUid", filter.SubmissionUID)
	}
	if filter.InternalID != "" {
		query.Set("internalId", filter.InternalID)
	}
	if !filter.DateFrom.IsZero() {
		query.Set("submissionDateFrom", filter.DateFrom.UTC().Format(time.RFC3339))
	}
	if !filter.DateTo.IsZero() {
		query.Set("submissionDateTo", filter.DateTo.UTC().Format(time.RFC3339))
	}
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}
	if filter.DocumentType != "" {
		query.Set("documentType", filter.DocumentType)
	}
	if filter.PageNo > 0 {
		query.Set("pageNo", strconv.Itoa(filter.PageNo))
	}
	if filter.PageSize > 0 {
		query.Set("pageSize", strconv.Itoa(filter.PageSize))
	}

	var resp struct {
		Result []DocumentStatus `json:"result"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1.0/documents/search?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// GetRecentDocuments lists recently submitted documents, newest first.
func (c *Client) GetRecentDocuments(ctx context.Context, page int) ([]DocumentStatus, error) {
	if page <= 0 {
		page = 1
	}
	var resp struct {
		Result []DocumentStatus `json:"result"`
	}
	path := "/api/v1.0/documents/recent?pageNo=" + strconv.Itoa(page) + "&pageSize=50"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// --- wire types ---

type submissionRequest struct {
	Documents []submissionDocument `json:"documents"`
}

type submissionDocument struct {
	Format       string `json:"format"`
	DocumentHash string `json:"documentHash"`
	CodeNumber   string `json:"codeNumber"`
	Document     string `json:"document"`
}

type submissionResponse struct {
	SubmissionUID     string `json:"submissionUid"`
	AcceptedDocuments []struct {
		UUID              string `json:"uuid"`
		InvoiceCodeNumber string `json:"invoiceCodeNumber"`
	} `json:"acceptedDocuments"`
	RejectedDocuments []struct {
		InvoiceCodeNumber string   `json:"invoiceCodeNumber"`
		Error             apiError `json:"error"`
	} `json:"rejectedDocuments"`
}

type apiError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

type apiErrorEnvelope struct {
	Error apiError `json:"error"`
}

// doJSON issues one authenticated request with the per-call timeout. A 401
// forces a token refresh and retries the call once; any further auth failure
// surfaces as a token error.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	resp, body, err := c.roundTrip(ctx, method, path, in, token)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		token, err = c.tokens.ForceRefresh(ctx)
		if err != nil {
			return err
		}
		resp, body, err = c.roundTrip(ctx, method, path, in, token)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return newTokenError(http.StatusUnauthorized, "authentication rejected after forced refresh")
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiErrorFromResponse(resp.StatusCode, body)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindUnknown, StatusCode: resp.StatusCode, Message: "malformed response body", Err: err}
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in interface{}, token string) (*http.Response, []byte, error) {
	var reqBody io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return nil, nil, &Error{Kind: KindUnknown, Message: "encode request body", Err: err}
		}
		reqBody = bytes.NewReader(encoded)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, &Error{Kind: KindUnknown, Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, classifyTransport(fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, nil, classifyTransport("read response", err)
	}
	return resp, body, nil
}

func apiErrorFromResponse(statusCode int, body []byte) *Error {
	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		return &Error{
			Kind:       KindAPI,
			Code:       envelope.Error.Code,
			Message:    envelope.Error.Message,
			StatusCode: statusCode,
			Details:    envelope.Error.Details,
		}
	}
	return &Error{
		Kind:       KindAPI,
		Code:       strconv.Itoa(statusCode),
		Message:    strings.TrimSpace(string(body)),
		StatusCode: statusCode,
	}
}
