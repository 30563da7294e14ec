package model

import (
	"time"

	"github.com/google/uuid"
)

// API environments.
const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"
)

// Settings is the single e-invoice configuration row: authority credentials,
// signing certificate location, the auto-submit switch and the supplier
// profile stamped onto every outgoing document. Updating it rebuilds the
// token manager and signer, see service.Pipeline.
type Settings struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`

	ClientID     string `gorm:"type:varchar(100)" json:"client_id"`
	ClientSecret string `gorm:"type:varchar(100)" json:"-"`
	Environment  string `gorm:"type:varchar(10);not null;default:'sandbox'" json:"environment"`

	CertificatePath     string `gorm:"type:varchar(255)" json:"certificate_path"`
	CertificatePassword string `gorm:"type:varchar(100)" json:"-"`

	AutoSubmit bool `gorm:"not null;default:false" json:"auto_submit"`

	SupplierName         string `gorm:"type:varchar(255)" json:"supplier_name"`
	SupplierTIN          string `gorm:"type:varchar(20)" json:"supplier_tin"`
	SupplierIDType       string `gorm:"type:varchar(10);default:'BRN'" json:"supplier_id_type"`
	SupplierIDValue      string `gorm:"type:varchar(30)" json:"supplier_id_value"`
	SupplierSSTNo        string `gorm:"type:varchar(35)" json:"supplier_sst_no,omitempty"`
	SupplierMSIC         string `gorm:"type:varchar(5)" json:"supplier_msic"`
	SupplierActivityDesc string `gorm:"type:varchar(300)" json:"supplier_activity_desc"`
	SupplierEmail        string `gorm:"type:varchar(255)" json:"supplier_email"`
	SupplierPhone        string `gorm:"type:varchar(30)" json:"supplier_phone"`
	SupplierAddressLine1 string `gorm:"type:varchar(150)" json:"supplier_address_line1"`
	SupplierAddressLine2 string `gorm:"type:varchar(150)" json:"supplier_address_line2,omitempty"`
	SupplierCity         string `gorm:"type:varchar(50)" json:"supplier_city"`
	SupplierState        string `gorm:"type:varchar(10)" json:"supplier_state"`
	SupplierPostalCode   string `gorm:"type:varchar(10)" json:"supplier_postal_code"`
	SupplierCountryCode  string `gorm:"type:varchar(3);default:'MYS'" json:"supplier_country_code"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
