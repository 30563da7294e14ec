package service

import (
	"fmt"
	"sync"
	"time"

	"einvoice/internal/logger"
	"einvoice/internal/model"
	"einvoice/internal/myinvois"

	"github.com/rs/zerolog"
)

// Pipeline owns the reconfigurable submission components: token manager,
// signer and client, all scoped to the currently configured credentials and
// environment. A settings change swaps every component atomically so no
// caller ever mixes old credentials with a new environment.
type Pipeline struct {
	mu          sync.RWMutex
	client      *myinvois.Client
	tokens      *myinvois.TokenManager
	signer      *myinvois.Signer
	supplier    myinvois.Party
	autoSubmit  bool
	environment string
	log         zerolog.Logger
}

func NewPipeline() *Pipeline {
	return &Pipeline{log: logger.WithComponent("einvoice-pipeline")}
}

// Reconfigure rebuilds the pipeline from settings. A keystore that fails to
// load aborts the reconfiguration; the previous components stay in place.
func (p *Pipeline) Reconfigure(settings *model.Settings) error {
	var signer *myinvois.Signer
	if settings.CertificatePath != "" {
		loaded, err := myinvois.LoadPKCS12(settings.CertificatePath, settings.CertificatePassword)
		if err != nil {
			return fmt.Errorf("load signing keystore: %w", err)
		}
		signer = loaded
	}

	tokens := myinvois.NewTokenManager(myinvois.TokenConfig{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		Environment:  settings.Environment,
		Timeout:      30 * time.Second,
	})
	client := myinvois.NewClient(myinvois.DefaultClientConfig(settings.Environment), tokens, signer)

	p.mu.Lock()
	p.tokens = tokens
	p.signer = signer
	p.client = client
	p.supplier = supplierFromSettings(settings)
	p.autoSubmit = settings.AutoSubmit
	p.environment = settings.Environment
	p.mu.Unlock()

	p.log.Info().
		Str("environment", settings.Environment).
		Bool("auto_submit", settings.AutoSubmit).
		Bool("signing", signer != nil).
		Msg("pipeline reconfigured")
	return nil
}

// Client returns the current submission client, or an error when credentials
// have never been configured.
func (p *Pipeline) Client() (*myinvois.Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.client == nil {
		return nil, fmt.Errorf("e-invoice pipeline is not configured")
	}
	return p.client, nil
}

// Supplier returns the supplier profile stamped onto outgoing documents.
func (p *Pipeline) Supplier() myinvois.Party {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.supplier
}

// AutoSubmitEnabled reports the configured auto-submit switch.
func (p *Pipeline) AutoSubmitEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.autoSubmit
}

// CertificateHealth grades the current signing certificate.
func (p *Pipeline) CertificateHealth() (myinvois.HealthLevel, string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return myinvois.CertificateHealth(p.signer)
}

// CertificateInfo returns certificate details, or nil in hash-only mode.
func (p *Pipeline) CertificateInfo() *myinvois.CertificateInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.signer == nil {
		return nil
	}
	info := p.signer.CertificateInfo()
	return &info
}

func supplierFromSettings(s *model.Settings) myinvois.Party {
	return myinvois.Party{
		Name:         s.SupplierName,
		TIN:          s.SupplierTIN,
		IDType:       s.SupplierIDType,
		IDValue:      s.SupplierIDValue,
		SSTNo:        s.SupplierSSTNo,
		MSIC:         s.SupplierMSIC,
		ActivityDesc: s.SupplierActivityDesc,
		Email:        s.SupplierEmail,
		Phone:        s.SupplierPhone,
		Address: myinvois.Address{
			Lines:       []string{s.SupplierAddressLine1, s.SupplierAddressLine2},
			City:        s.SupplierCity,
			State:       s.SupplierState,
			PostalCode:  s.SupplierPostalCode,
			CountryCode: s.SupplierCountryCode,
		},
	}
}
