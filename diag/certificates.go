package diag

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// ExpiryWarningDays marks certificates that expire soon.
const ExpiryWarningDays = 30

// CertificateInfo is the parsed metadata of one PEM certificate.
type CertificateInfo struct {
	Path            string    `json:"path"`
	Purpose         string    `json:"purpose"` // client or ca
	Subject         string    `json:"subject,omitempty"`
	Issuer          string    `json:"issuer,omitempty"`
	ValidFrom       time.Time `json:"valid_from,omitzero"`
	ValidUntil      time.Time `json:"valid_until,omitzero"`
	DaysUntilExpiry int       `json:"days_until_expiry"`
	SANs            []string  `json:"sans,omitempty"`
	IsExpired       bool      `json:"is_expired"`
	ExpiryWarning   bool      `json:"expiry_warning"`
	Error           string    `json:"error,omitempty"`
}

// CertificateMonitor watches the TLS material used for the upstream
// connection. Paths are rescanned on every Scan.
type CertificateMonitor struct {
	paths map[string]string // purpose -> path
	now   func() time.Time

	mu    sync.RWMutex
	certs []CertificateInfo
}

// NewCertificateMonitor monitors the given client certificate and CA paths.
// Empty paths are skipped.
func NewCertificateMonitor(certPath, caPath string) *CertificateMonitor {
	paths := make(map[string]string)
	if certPath != "" {
		paths["client"] = certPath
	}
	if caPath != "" {
		paths["ca"] = caPath
	}
	return &CertificateMonitor{paths: paths, now: time.Now}
}

// Empty reports whether there is nothing to monitor.
func (cm *CertificateMonitor) Empty() bool {
	return cm == nil || len(cm.paths) == 0
}

// Scan re-reads every certificate. Unreadable files are reported with Error
// set and make Scan return the first failure.
func (cm *CertificateMonitor) Scan() error {
	now := cm.now()
	var certs []CertificateInfo
	var firstErr error

	for purpose, path := range cm.paths {
		info, err := parseCertificateFile(path, now)
		if err != nil {
			info = CertificateInfo{Path: path, Error: err.Error()}
			if firstErr == nil {
				firstErr = fmt.Errorf("%s certificate %s: %w", purpose, path, err)
			}
		}
		info.Purpose = purpose
		certs = append(certs, info)
	}
	sort.Slice(certs, func(i, j int) bool { return certs[i].Purpose > certs[j].Purpose })

	cm.mu.Lock()
	cm.certs = certs
	cm.mu.Unlock()
	return firstErr
}

// Certificates returns the result of the last Scan.
func (cm *CertificateMonitor) Certificates() []CertificateInfo {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return append([]CertificateInfo(nil), cm.certs...)
}

// Expiring returns certificates that are expired or within the warning window.
func (cm *CertificateMonitor) Expiring() []CertificateInfo {
	var out []CertificateInfo
	for _, c := range cm.Certificates() {
		if c.IsExpired || c.ExpiryWarning {
			out = append(out, c)
		}
	}
	return out
}

func parseCertificateFile(path string, now time.Time) (CertificateInfo, error) {
	certPEM, err := os.ReadFile(path)
	if err != nil {
		return CertificateInfo{}, err
	}

	// For a chain the first certificate is reported.
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return CertificateInfo{}, fmt.Errorf("no PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return CertificateInfo{}, err
	}

	days := int(cert.NotAfter.Sub(now).Hours() / 24)
	expired := now.After(cert.NotAfter)

	var sans []string
	for _, dns := range cert.DNSNames {
		sans = append(sans, "DNS:"+dns)
	}
	for _, ip := range cert.IPAddresses {
		sans = append(sans, "IP:"+ip.String())
	}

	return CertificateInfo{
		Path:            path,
		Subject:         cert.Subject.String(),
		Issuer:          cert.Issuer.String(),
		ValidFrom:       cert.NotBefore,
		ValidUntil:      cert.NotAfter,
		DaysUntilExpiry: days,
		SANs:            sans,
		IsExpired:       expired,
		ExpiryWarning:   !expired && days <= ExpiryWarningDays,
	}, nil
}
