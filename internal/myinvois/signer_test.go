package myinvois

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"testing"
	"time"
)

// newTestSigner builds a signer around a freshly generated self-signed
// certificate valid for the given window around now.
func newTestSigner(t *testing.T, notBefore, notAfter time.Time) *Signer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "Test Supplier Sdn Bhd"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return NewSigner(cert, key)
}

func TestSignProducesVerifiableSignature(t *testing.T) {
	now := time.Now()
	signer := newTestSigner(t, now.Add(-time.Hour), now.Add(365*24*time.Hour))

	payload := []byte(`{"Invoice":[{"ID":[{"_":"INV-0001"}]}]}`)
	result, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !result.Signed {
		t.Error("Signed = false for keystore-backed signing")
	}

	sum := sha256.Sum256(payload)
	if result.Hash != hex.EncodeToString(sum[:]) {
		t.Errorf("hash mismatch: %s", result.Hash)
	}

	signature, err := base64.StdEncoding.DecodeString(result.Signature)
	if err != nil {
		t.Fatalf("signature is not valid base64: %v", err)
	}
	pub := signer.cert.PublicKey.(*rsa.PublicKey)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, sum[:], signature); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}
}

func TestSignIsDeterministicOverContent(t *testing.T) {
	now := time.Now()
	signer := newTestSigner(t, now.Add(-time.Hour), now.Add(24*time.Hour))

	payload := []byte(`{"amount":"100.00"}`)
	first, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	second, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if first.Hash != second.Hash {
		t.Errorf("same content hashed differently: %s vs %s", first.Hash, second.Hash)
	}

	// PKCS#1 v1.5 signatures are deterministic as well.
	if first.Signature != second.Signature {
		t.Error("same content signed differently")
	}

	changed, err := signer.Sign([]byte(`{"amount":"100.01"}`))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if changed.Hash == first.Hash {
		t.Error("different content produced the same hash")
	}
}

func TestHashDocumentFallback(t *testing.T) {
	payload := []byte(`{"Invoice":[]}`)
	result := HashDocument(payload)

	if result.Signed {
		t.Error("hash-only mode must report Signed = false")
	}
	if result.Signature != "" {
		t.Errorf("hash-only mode produced a signature: %q", result.Signature)
	}
	sum := sha256.Sum256(payload)
	if result.Hash != hex.EncodeToString(sum[:]) {
		t.Errorf("hash mismatch: %s", result.Hash)
	}
}

func TestCertificateValidityWindow(t *testing.T) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	signer := newTestSigner(t, base, base.Add(90*24*time.Hour))

	tests := []struct {
		name      string
		now       time.Time
		wantValid bool
	}{
		{"before window", base.Add(-time.Hour), false},
		{"inside window", base.Add(24 * time.Hour), true},
		{"after expiry", base.Add(91 * 24 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer.now = func() time.Time { return tt.now }
			if got := signer.Valid(); got != tt.wantValid {
				t.Errorf("Valid() = %v, want %v", got, tt.wantValid)
			}
		})
	}
}

func TestCertificateHealthLevels(t *testing.T) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	signer := newTestSigner(t, base.Add(-365*24*time.Hour), base.Add(365*24*time.Hour))

	tests := []struct {
		name string
		now  time.Time
		want HealthLevel
	}{
		{"plenty of time", base, HealthOK},
		{"inside info window", base.Add(320 * 24 * time.Hour), HealthInfo},
		{"expiring soon", base.Add(340 * 24 * time.Hour), HealthWarning},
		{"expired", base.Add(400 * 24 * time.Hour), HealthError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer.now = func() time.Time { return tt.now }
			level, message := CertificateHealth(signer)
			if level != tt.want {
				t.Errorf("level = %v (%s), want %v", level, message, tt.want)
			}
		})
	}
}

func TestCertificateHealthNilSigner(t *testing.T) {
	level, message := CertificateHealth(nil)
	if level != HealthInfo {
		t.Errorf("level = %v, want %v", level, HealthInfo)
	}
	if message == "" {
		t.Error("expected an explanatory message for hash-only mode")
	}
}

func TestCertificateInfoFlags(t *testing.T) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	signer := newTestSigner(t, base.Add(-time.Hour), base.Add(20*24*time.Hour))
	signer.now = func() time.Time { return base }

	info := signer.CertificateInfo()
	if info.Expired {
		t.Error("certificate reported expired inside its window")
	}
	if !info.ExpiringSoon {
		t.Error("certificate 20 days from expiry not flagged as expiring soon")
	}
	if info.Subject == "" || info.SerialNumber != "42" {
		t.Errorf("unexpected identity: subject=%q serial=%s", info.Subject, info.SerialNumber)
	}
}

func TestLoadPKCS12MissingFile(t *testing.T) {
	_, err := LoadPKCS12("/nonexistent/keystore.p12", "secret")
	if err == nil {
		t.Fatal("expected an error for a missing keystore")
	}
	if AsError(err).Kind != KindSigning {
		t.Errorf("error kind = %v, want %v", AsError(err).Kind, KindSigning)
	}
}
