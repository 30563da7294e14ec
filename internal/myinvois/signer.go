package myinvois

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/pkcs12"
)

// Number of days under which a certificate is considered about to expire.
const certExpiryWarnDays = 30

// SignResult carries the content hash and, when a keystore is configured, a
// signature over it. Signed distinguishes hash-only mode (non-production
// testing) from a real signature without making it an error.
type SignResult struct {
	Hash      string // hex-encoded SHA-256 of the canonical document
	Signature string // base64 RSA signature over the hash; empty in hash-only mode
	Signed    bool
}

// HashDocument computes the canonical content hash without signing. This is
// the hash-only fallback used when no keystore is configured.
func HashDocument(payload []byte) SignResult {
	sum := sha256.Sum256(payload)
	return SignResult{Hash: hex.EncodeToString(sum[:])}
}

// Signer signs canonical documents with the key pair loaded from a PKCS#12
// keystore.
type Signer struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey
	now  func() time.Time
}

// NewSigner builds a signer from an already-parsed certificate and key.
func NewSigner(cert *x509.Certificate, key *rsa.PrivateKey) *Signer {
	return &Signer{cert: cert, key: key, now: time.Now}
}

// LoadPKCS12 reads a keystore file and decodes it with the given password.
func LoadPKCS12(path, password string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newSigningError("read keystore "+path, err)
	}
	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, newSigningError("decode keystore", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, newSigningError(fmt.Sprintf("unsupported private key type %T, need RSA", key), nil)
	}
	return NewSigner(cert, rsaKey), nil
}

// Sign hashes the canonical payload and signs the hash.
func (s *Signer) Sign(payload []byte) (SignResult, error) {
	sum := sha256.Sum256(payload)
	signature, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, sum[:])
	if err != nil {
		return SignResult{}, newSigningError("sign document", err)
	}
	return SignResult{
		Hash:      hex.EncodeToString(sum[:]),
		Signature: base64.StdEncoding.EncodeToString(signature),
		Signed:    true,
	}, nil
}

// Valid reports whether the certificate is inside its validity window.
func (s *Signer) Valid() bool {
	now := s.now()
	return !now.Before(s.cert.NotBefore) && !now.After(s.cert.NotAfter)
}

// DaysUntilExpiry returns whole days until the certificate expires; negative
// once expired.
func (s *Signer) DaysUntilExpiry() int {
	return int(s.cert.NotAfter.Sub(s.now()).Hours() / 24)
}

// CertificateInfo describes the loaded signing certificate.
type CertificateInfo struct {
	Subject      string    `json:"subject"`
	Issuer       string    `json:"issuer"`
	SerialNumber string    `json:"serial_number"`
	NotBefore    time.Time `json:"not_before"`
	NotAfter     time.Time `json:"not_after"`
	Expired      bool      `json:"expired"`
	ExpiringSoon bool      `json:"expiring_soon"`
}

// CertificateInfo reports the certificate's identity and derived expiry flags.
func (s *Signer) CertificateInfo() CertificateInfo {
	days := s.DaysUntilExpiry()
	return CertificateInfo{
		Subject:      s.cert.Subject.String(),
		Issuer:       s.cert.Issuer.String(),
		SerialNumber: s.cert.SerialNumber.String(),
		NotBefore:    s.cert.NotBefore,
		NotAfter:     s.cert.NotAfter,
		Expired:      days < 0 || !s.Valid(),
		ExpiringSoon: days >= 0 && days <= certExpiryWarnDays,
	}
}

// HealthLevel grades certificate state for the health endpoint.
type HealthLevel string

const (
	HealthError   HealthLevel = "error"
	HealthWarning HealthLevel = "warning"
	HealthInfo    HealthLevel = "info"
	HealthOK      HealthLevel = "healthy"
)

// CertificateHealth derives a health level from the signer's certificate.
// A nil signer means hash-only mode, reported as info rather than an error.
func CertificateHealth(s *Signer) (HealthLevel, string) {
	if s == nil {
		return HealthInfo, "no signing certificate configured, documents are submitted hash-only"
	}
	if !s.Valid() {
		return HealthError, "signing certificate is expired or not yet valid"
	}
	days := s.DaysUntilExpiry()
	switch {
	case days <= certExpiryWarnDays:
		return HealthWarning, fmt.Sprintf("signing certificate expires in %d days", days)
	case days <= 2*certExpiryWarnDays:
		return HealthInfo, fmt.Sprintf("signing certificate expires in %d days", days)
	default:
		return HealthOK, fmt.Sprintf("signing certificate valid for %d more days", days)
	}
}
