package diag

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeCert(t *testing.T, dir string, notAfter time.Time) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "librefollow"},
		DNSNames:     []string{"glucose.local"},
		NotBefore:    notAfter.Add(-365 * 24 * time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "client.cert.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCertificateMonitorScan(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	certPath := writeCert(t, dir, now.Add(10*24*time.Hour))

	cm := NewCertificateMonitor(certPath, filepath.Join(dir, "missing-ca.pem"))
	cm.now = func() time.Time { return now }

	if err := cm.Scan(); err == nil {
		t.Fatal("expected error for missing CA file")
	}
	certs := cm.Certificates()
	if len(certs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(certs))
	}
	client := certs[0]
	if client.Purpose != "client" || client.DaysUntilExpiry != 10 || !client.ExpiryWarning {
		t.Fatalf("unexpected client cert info %+v", client)
	}
	if len(client.SANs) != 1 || client.SANs[0] != "DNS:glucose.local" {
		t.Fatalf("sans = %v", client.SANs)
	}
	if certs[1].Purpose != "ca" || certs[1].Error == "" {
		t.Fatalf("expected CA error entry, got %+v", certs[1])
	}
	if len(cm.Expiring()) != 1 {
		t.Fatalf("expected one expiring certificate")
	}
}

func TestCertificateMonitorEmpty(t *testing.T) {
	if !NewCertificateMonitor("", "").Empty() {
		t.Fatal("monitor without paths must be empty")
	}
	var cm *CertificateMonitor
	if !cm.Empty() {
		t.Fatal("nil monitor must be empty")
	}
}
