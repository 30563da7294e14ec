package handler

import (
	"net/http"
	"strconv"
	"time"

	"einvoice/internal/middleware"
	"einvoice/internal/myinvois"
	"einvoice/internal/service"
	"einvoice/pkg/pagination"
	"einvoice/pkg/response"

	"github.com/gin-gonic/gin"
)

type EInvoiceHandler struct {
	einvoiceService service.EInvoiceService
}

func NewEInvoiceHandler(einvoiceService service.EInvoiceService) *EInvoiceHandler {
	return &EInvoiceHandler{einvoiceService: einvoiceService}
}

func (h *EInvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	einvoice := router.Group("/api/einvoice")
	{
		einvoice.POST("/run", middleware.RequirePermission("einvoice.submit"), h.RunAutoSubmit)
		einvoice.POST("/invoices/:id/submit", middleware.RequirePermission("einvoice.submit"), h.SubmitInvoice)
		einvoice.POST("/invoices/:id/cancel", middleware.RequirePermission("einvoice.submit"), h.CancelDocument)
		einvoice.POST("/invoices/:id/reject", middleware.RequirePermission("einvoice.submit"), h.RejectDocument)
		einvoice.GET("/invoices/:id/status", middleware.RequirePermission("einvoice.read"), h.RefreshStatus)
		einvoice.GET("/invoices", middleware.RequirePermission("einvoice.read"), h.ListInvoices)
		einvoice.GET("/audit", middleware.RequirePermission("einvoice.read"), h.AuditTrail)
		einvoice.GET("/submissions/:uid", middleware.RequirePermission("einvoice.read"), h.SubmissionStatus)
		einvoice.GET("/documents/recent", middleware.RequirePermission("einvoice.read"), h.RecentDocuments)
		einvoice.GET("/documents/search", middleware.RequirePermission("einvoice.read"), h.SearchDocuments)
		einvoice.GET("/certificate", middleware.RequirePermission("einvoice.read"), h.CertificateHealth)
	}
}

type stateChangeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RunAutoSubmit triggers an auto-submit batch over all eligible invoices
// @Summary      Run auto-submit batch
// @Description  Submits every sent invoice without an e-invoice to the tax authority
// @Tags         einvoice
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.BatchResult}
// @Failure      400  {object}  response.Response
// @Router       /api/einvoice/run [post]
func (h *EInvoiceHandler) RunAutoSubmit(c *gin.Context) {
	result, err := h.einvoiceService.RunAutoSubmit(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// SubmitInvoice submits a single invoice to the tax authority
// @Summary      Submit invoice
// @Description  Converts, signs and submits one invoice as an e-invoice
// @Tags         einvoice
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.SubmissionOutcome}
// @Failure      400  {object}  response.Response
// @Router       /api/einvoice/invoices/{id}/submit [post]
func (h *EInvoiceHandler) SubmitInvoice(c *gin.Context) {
	outcome, err := h.einvoiceService.SubmitInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, outcome))
}

// CancelDocument cancels a validated e-invoice within the 72-hour window
// @Summary      Cancel e-invoice
// @Description  Cancels a validated document; only allowed within 72 hours of validation
// @Tags         einvoice
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string              true  "Invoice ID"
// @Param        payload  body      stateChangeRequest  true  "Cancellation reason"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Router       /api/einvoice/invoices/{id}/cancel [post]
func (h *EInvoiceHandler) CancelDocument(c *gin.Context) {
	var req stateChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	if err := h.einvoiceService.CancelDocument(c.Request.Context(), c.Param("id"), req.Reason, actorFromContext(c)); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"status": "cancelled"}))
}

// RejectDocument requests buyer-side rejection of a validated e-invoice
// @Summary      Reject e-invoice
// @Description  Requests rejection of a validated document with a mandatory reason
// @Tags         einvoice
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string              true  "Invoice ID"
// @Param        payload  body      stateChangeRequest  true  "Rejection reason"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Router       /api/einvoice/invoices/{id}/reject [post]
func (h *EInvoiceHandler) RejectDocument(c *gin.Context) {
	var req stateChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	if err := h.einvoiceService.RejectDocument(c.Request.Context(), c.Param("id"), req.Reason, actorFromContext(c)); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"status": "rejected"}))
}

// RefreshStatus re-fetches the document status from the authority
// @Summary      Refresh e-invoice status
// @Description  Polls the authority for the document's current status and stores any change
// @Tags         einvoice
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=object}
// @Failure      400  {object}  response.Response
// @Router       /api/einvoice/invoices/{id}/status [get]
func (h *EInvoiceHandler) RefreshStatus(c *gin.Context) {
	status, err := h.einvoiceService.RefreshStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"status": status}))
}

// ListInvoices lists local invoices filtered by e-invoice status
// @Summary      List invoices
// @Description  Lists invoices with their e-invoice state, optionally filtered by status
// @Tags         einvoice
// @Security     BearerAuth
// @Produce      json
// @Param        status  query     string  false  "E-invoice status filter"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Page size (default 20, max 100)"
// @Success      200     {object}  response.Response{data=object}
// @Failure      500     {object}  response.Response
// @Router       /api/einvoice/invoices [get]
func (h *EInvoiceHandler) ListInvoices(c *gin.Context) {
	params := pagination.Parse(c)

	invoices, total, err := h.einvoiceService.ListInvoices(c.Request.Context(), c.Query("status"), params.Page, params.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{
		"invoices": invoices,
		"total":    total,
		"page":     params.Page,
		"limit":    params.Limit,
	}))
}

// AuditTrail lists e-invoice audit log entries
// @Summary      Audit trail
// @Description  Lists recorded e-invoice actions, newest first
// @Tags         einvoice
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Page size (default 20, max 100)"
// @Success      200    {object}  response.Response{data=object}
// @Failure      500    {object}  response.Response
// @Router       /api/einvoice/audit [get]
func (h *EInvoiceHandler) AuditTrail(c *gin.Context) {
	params := pagination.Parse(c)

	entries, total, err := h.einvoiceService.AuditTrail(c.Request.Context(), params.Page, params.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{
		"entries": entries,
		"total":   total,
		"page":    params.Page,
		"limit":   params.Limit,
	}))
}

// SubmissionStatus fetches the processing state of a submission batch
// @Summary      Submission status
// @Description  Returns the authority's processing state for a submission batch and its documents
// @Tags         einvoice
// @Security     BearerAuth
// @Produce      json
// @Param        uid  path      string  true  "Submission UID"
// @Success      200  {object}  response.Response{data=myinvois.SubmissionStatus}
// @Failure      500  {object}  response.Response
// @Router       /api/einvoice/submissions/{uid} [get]
func (h *EInvoiceHandler) SubmissionStatus(c *gin.Context) {
	status, err := h.einvoiceService.SubmissionStatus(c.Request.Context(), c.Param("uid"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, status))
}

// RecentDocuments lists recently submitted documents from the authority
// @Summary      Recent documents
// @Description  Lists recently submitted documents as reported by the tax authority
// @Tags         einvoice
// @Security     BearerAuth
// @Produce      json
// @Param        page  query     int  false  "Page number (default 1)"
// @Success      200   {object}  response.Response{data=[]myinvois.DocumentStatus}
// @Failure      500   {object}  response.Response
// @Router       /api/einvoice/documents/recent [get]
func (h *EInvoiceHandler) RecentDocuments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

	docs, err := h.einvoiceService.RecentDocuments(c.Request.Context(), page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, docs))
}

// SearchDocuments searches the authority's document store
// @Summary      Search documents
// @Description  Searches submitted documents by uuid, status, type or submission date range
// @Tags         einvoice
// @Security     BearerAuth
// @Produce      json
// @Param        uuid       query     string  false  "Document UUID"
// @Param        status     query     string  false  "Authority status"
// @Param        type       query     string  false  "Document type code"
// @Param        date_from  query     string  false  "Submission date from (RFC3339)"
// @Param        date_to    query     string  false  "Submission date to (RFC3339)"
// @Param        page       query     int     false  "Page number"
// @Success      200        {object}  response.Response{data=[]myinvois.DocumentStatus}
// @Failure      500        {object}  response.Response
// @Router       /api/einvoice/documents/search [get]
func (h *EInvoiceHandler) SearchDocuments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	filter := myinvois.SearchFilter{
		UUID:         c.Query("uuid"),
		Status:       c.Query("status"),
		DocumentType: c.Query("type"),
		PageNo:       page,
	}
	if from := c.Query("date_from"); from != "" {
		if parsed, err := time.Parse(time.RFC3339, from); err == nil {
			filter.DateFrom = parsed
		}
	}
	if to := c.Query("date_to"); to != "" {
		if parsed, err := time.Parse(time.RFC3339, to); err == nil {
			filter.DateTo = parsed
		}
	}

	docs, err := h.einvoiceService.SearchDocuments(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, docs))
}

// CertificateHealth reports the signing certificate state
// @Summary      Certificate health
// @Description  Returns the signing certificate details and a derived health level
// @Tags         einvoice
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.CertificateHealthResponse}
// @Router       /api/einvoice/certificate [get]
func (h *EInvoiceHandler) CertificateHealth(c *gin.Context) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, h.einvoiceService.CertificateHealth()))
}

// actorFromContext resolves the audit actor from the authenticated user.
func actorFromContext(c *gin.Context) string {
	if userID, ok := c.Get("userID"); ok {
		if s, ok := userID.(string); ok && s != "" {
			return s
		}
	}
	return "api"
}
