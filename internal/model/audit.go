package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionSubmitEInvoice         = "SUBMIT_EINVOICE"
	ActionEInvoiceStatusChange   = "EINVOICE_STATUS_CHANGE"
	ActionCancelEInvoice         = "CANCEL_EINVOICE"
	ActionRejectEInvoice         = "REJECT_EINVOICE"
	ActionUpdateEInvoiceSettings = "UPDATE_EINVOICE_SETTINGS"
)

// AuditLog records every e-invoice state transition: who (or which background
// job) did what to which document, and when.
type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Actor      string    `gorm:"type:varchar(100);not null;default:'system'" json:"actor"` // API user ID or a job name like "auto-submit"
	Action     string    `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string    `gorm:"type:varchar(50);index" json:"entity_id"`        // invoice number or document uuid
	EntityName string    `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string    `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the transition
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}
