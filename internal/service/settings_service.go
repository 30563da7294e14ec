package service

import (
	"context"
	"fmt"

	"einvoice/internal/logger"
	"einvoice/internal/model"
	"einvoice/internal/repository"

	"github.com/rs/zerolog"
)

// --- DTOs ---

// UpdateSettingsRequest carries a full or partial settings update. Secret
// fields are write-only: empty strings leave the stored value unchanged.
type UpdateSettingsRequest struct {
	ClientID     *string `json:"client_id"`
	ClientSecret *string `json:"client_secret"`
	Environment  *string `json:"environment" binding:"omitempty,oneof=sandbox production"`

	CertificatePath     *string `json:"certificate_path"`
	CertificatePassword *string `json:"certificate_password"`

	AutoSubmit *bool `json:"auto_submit"`

	SupplierName         *string `json:"supplier_name"`
	SupplierTIN          *string `json:"supplier_tin"`
	SupplierIDType       *string `json:"supplier_id_type" binding:"omitempty,oneof=BRN NRIC PASSPORT ARMY"`
	SupplierIDValue      *string `json:"supplier_id_value"`
	SupplierSSTNo        *string `json:"supplier_sst_no"`
	SupplierMSIC         *string `json:"supplier_msic"`
	SupplierActivityDesc *string `json:"supplier_activity_desc"`
	SupplierEmail        *string `json:"supplier_email"`
	SupplierPhone        *string `json:"supplier_phone"`
	SupplierAddressLine1 *string `json:"supplier_address_line1"`
	SupplierAddressLine2 *string `json:"supplier_address_line2"`
	SupplierCity         *string `json:"supplier_city"`
	SupplierState        *string `json:"supplier_state"`
	SupplierPostalCode   *string `json:"supplier_postal_code"`
	SupplierCountryCode  *string `json:"supplier_country_code"`
}

// SettingsResponse exposes settings with secrets masked.
type SettingsResponse struct {
	ClientID        string `json:"client_id"`
	HasClientSecret bool   `json:"has_client_secret"`
	Environment     string `json:"environment"`
	CertificatePath string `json:"certificate_path"`
	HasCertificate  bool   `json:"has_certificate"`
	AutoSubmit      bool   `json:"auto_submit"`

	SupplierName         string `json:"supplier_name"`
	SupplierTIN          string `json:"supplier_tin"`
	SupplierIDType       string `json:"supplier_id_type"`
	SupplierIDValue      string `json:"supplier_id_value"`
	SupplierSSTNo        string `json:"supplier_sst_no,omitempty"`
	SupplierMSIC         string `json:"supplier_msic"`
	SupplierActivityDesc string `json:"supplier_activity_desc"`
	SupplierEmail        string `json:"supplier_email"`
	SupplierPhone        string `json:"supplier_phone"`
	SupplierAddressLine1 string `json:"supplier_address_line1"`
	SupplierAddressLine2 string `json:"supplier_address_line2,omitempty"`
	SupplierCity         string `json:"supplier_city"`
	SupplierState        string `json:"supplier_state"`
	SupplierPostalCode   string `json:"supplier_postal_code"`
	SupplierCountryCode  string `json:"supplier_country_code"`
}

// --- Interface ---

type SettingsService interface {
	GetSettings(ctx context.Context) (SettingsResponse, error)
	// UpdateSettings persists the change and atomically rebuilds the pipeline
	// components (token manager, signer, client) from the new configuration.
	UpdateSettings(ctx context.Context, req UpdateSettingsRequest, actor string) (SettingsResponse, error)
}

type settingsService struct {
	settingsRepo repository.SettingsRepository
	auditRepo    repository.AuditRepository
	pipeline     *Pipeline
	log          zerolog.Logger
}

func NewSettingsService(
	settingsRepo repository.SettingsRepository,
	auditRepo repository.AuditRepository,
	pipeline *Pipeline,
) SettingsService {
	return &settingsService{
		settingsRepo: settingsRepo,
		auditRepo:    auditRepo,
		pipeline:     pipeline,
		log:          logger.WithComponent("settings-service"),
	}
}

// --- Implementation ---

func (s *settingsService) GetSettings(ctx context.Context) (SettingsResponse, error) {
	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return SettingsResponse{}, fmt.Errorf("failed to load settings: %w", err)
	}
	return toSettingsResponse(settings), nil
}

func (s *settingsService) UpdateSettings(ctx context.Context, req UpdateSettingsRequest, actor string) (SettingsResponse, error) {
	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return SettingsResponse{}, fmt.Errorf("failed to load settings: %w", err)
	}

	applySettingsUpdate(settings, req)

	// Validate the new configuration (including keystore load) before
	// persisting, so a bad certificate path can't brick the pipeline.
	if err := s.pipeline.Reconfigure(settings); err != nil {
		return SettingsResponse{}, err
	}

	if err := s.settingsRepo.Update(ctx, settings); err != nil {
		return SettingsResponse{}, fmt.Errorf("failed to save settings: %w", err)
	}

	if err := s.auditRepo.Log(ctx, &model.AuditLog{
		Actor:    actor,
		Action:   model.ActionUpdateEInvoiceSettings,
		EntityID: settings.ID.String(),
		Details:  `{"environment":"` + settings.Environment + `"}`,
	}); err != nil {
		s.log.Error().Err(err).Msg("failed to write audit entry")
	}

	return toSettingsResponse(settings), nil
}

func applySettingsUpdate(settings *model.Settings, req UpdateSettingsRequest) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}

	setString(&settings.ClientID, req.ClientID)
	setString(&settings.Environment, req.Environment)
	setString(&settings.CertificatePath, req.CertificatePath)
	setString(&settings.SupplierName, req.SupplierName)
	setString(&settings.SupplierTIN, req.SupplierTIN)
	setString(&settings.SupplierIDType, req.SupplierIDType)
	setString(&settings.SupplierIDValue, req.SupplierIDValue)
	setString(&settings.SupplierSSTNo, req.SupplierSSTNo)
	setString(&settings.SupplierMSIC, req.SupplierMSIC)
	setString(&settings.SupplierActivityDesc, req.SupplierActivityDesc)
	setString(&settings.SupplierEmail, req.SupplierEmail)
	setString(&settings.SupplierPhone, req.SupplierPhone)
	setString(&settings.SupplierAddressLine1, req.SupplierAddressLine1)
	setString(&settings.SupplierAddressLine2, req.SupplierAddressLine2)
	setString(&settings.SupplierCity, req.SupplierCity)
	setString(&settings.SupplierState, req.SupplierState)
	setString(&settings.SupplierPostalCode, req.SupplierPostalCode)
	setString(&settings.SupplierCountryCode, req.SupplierCountryCode)

	// Secrets: empty string means "keep the stored value".
	if req.ClientSecret != nil && *req.ClientSecret != "" {
		settings.ClientSecret = *req.ClientSecret
	}
	if req.CertificatePassword != nil && *req.CertificatePassword != "" {
		settings.CertificatePassword = *req.CertificatePassword
	}
	if req.AutoSubmit != nil {
		settings.AutoSubmit = *req.AutoSubmit
	}
}

func toSettingsResponse(s *model.Settings) SettingsResponse {
	return SettingsResponse{
		ClientID:        s.ClientID,
		HasClientSecret: s.ClientSecret != "",
		Environment:     s.Environment,
		CertificatePath: s.CertificatePath,
		HasCertificate:  s.CertificatePath != "",
		AutoSubmit:      s.AutoSubmit,

		SupplierName:         s.SupplierName,
		SupplierTIN:          s.SupplierTIN,
		SupplierIDType:       s.SupplierIDType,
		SupplierIDValue:      s.SupplierIDValue,
		SupplierSSTNo:        s.SupplierSSTNo,
		SupplierMSIC:         s.SupplierMSIC,
		SupplierActivityDesc: s.SupplierActivityDesc,
		SupplierEmail:        s.SupplierEmail,
		SupplierPhone:        s.SupplierPhone,
		SupplierAddressLine1: s.SupplierAddressLine1,
		SupplierAddressLine2: s.SupplierAddressLine2,
		SupplierCity:         s.SupplierCity,
		SupplierState:        s.SupplierState,
		SupplierPostalCode:   s.SupplierPostalCode,
		SupplierCountryCode:  s.SupplierCountryCode,
	}
}
