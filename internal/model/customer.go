package model

import (
	"time"

	"github.com/google/uuid"
)

// Buyer identification document types accepted by the authority.
const (
	IDTypeBRN      = "BRN"
	IDTypeNRIC     = "NRIC"
	IDTypePassport = "PASSPORT"
	IDTypeArmy     = "ARMY"
)

// Customer is the ledger's customer record. The pipeline derives the e-invoice
// buyer party from it at submission time.
type Customer struct {
	ID      uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name    string    `gorm:"type:varchar(255);not null" json:"name"`
	TIN     string    `gorm:"type:varchar(20)" json:"tin"`
	IDType  string    `gorm:"type:varchar(10);default:'BRN'" json:"id_type"`
	IDValue string    `gorm:"type:varchar(30)" json:"id_value"`
	SSTNo   string    `gorm:"type:varchar(35)" json:"sst_no,omitempty"`

	Email string `gorm:"type:varchar(255)" json:"email"`
	Phone string `gorm:"type:varchar(30)" json:"phone"`

	AddressLine1 string `gorm:"type:varchar(150)" json:"address_line1"`
	AddressLine2 string `gorm:"type:varchar(150)" json:"address_line2,omitempty"`
	City         string `gorm:"type:varchar(50)" json:"city"`
	State        string `gorm:"type:varchar(10)" json:"state"`
	PostalCode   string `gorm:"type:varchar(10)" json:"postal_code"`
	CountryCode  string `gorm:"type:varchar(3);default:'MYS'" json:"country_code"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
