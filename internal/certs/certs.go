// Package certs keeps a self-signed certificate on disk for serving the
// HTTP surface over TLS without an external CA.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	certName = "server.crt"
	keyName  = "server.key"

	// DefaultValidity is how long a generated certificate is valid.
	DefaultValidity = 365 * 24 * time.Hour
	// renewBefore regenerates certificates that expire within this window.
	renewBefore = 7 * 24 * time.Hour
)

// Manager hands out the certificate used by the server.
type Manager interface {
	GetOrCreateCertificate() (tls.Certificate, error)
}

// FileManager stores a certificate and its key as PEM files in a directory.
type FileManager struct {
	now      func() time.Time
	logger   *slog.Logger
	certFile string
	keyFile  string
	dir      string
	hosts    []string
	validity time.Duration
}

// Option configures a FileManager.
type Option func(*FileManager)

// WithHosts sets the DNS names and IP addresses the certificate covers.
func WithHosts(hosts ...string) Option {
	return func(m *FileManager) {
		if len(hosts) > 0 {
			m.hosts = hosts
		}
	}
}

// WithValidity overrides DefaultValidity.
func WithValidity(d time.Duration) Option {
	return func(m *FileManager) {
		if d > 0 {
			m.validity = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *FileManager) { m.now = now }
}

// WithLogger sets the logger used when a certificate is (re)generated.
func WithLogger(logger *slog.Logger) Option {
	return func(m *FileManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewFileManager creates a FileManager rooted at dir. By default the
// certificate covers localhost and the loopback addresses.
func NewFileManager(dir string, opts ...Option) *FileManager {
	m := &FileManager{
		dir:      dir,
		certFile: filepath.Join(dir, certName),
		keyFile:  filepath.Join(dir, keyName),
		hosts:    []string{"localhost", "127.0.0.1", "::1"},
		validity: DefaultValidity,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CertFile returns the path of the PEM certificate.
func (m *FileManager) CertFile() string { return m.certFile }

// GetOrCreateCertificate loads the stored certificate, generating a new one
// when it is missing, unreadable, expiring or no longer covers the hosts.
func (m *FileManager) GetOrCreateCertificate() (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(m.certFile, m.keyFile)
	switch {
	case err == nil:
		verr := m.verify(cert)
		if verr == nil {
			return cert, nil
		}
		m.logger.Info("Regenerating TLS certificate", "reason", verr)
	case errors.Is(err, os.ErrNotExist):
	default:
		m.logger.Warn("Stored TLS certificate unreadable, regenerating", "error", err)
	}
	return m.generate()
}

// TLSConfig returns a server TLS configuration backed by the certificate.
func (m *FileManager) TLSConfig() (*tls.Config, error) {
	cert, err := m.GetOrCreateCertificate()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}

func (m *FileManager) verify(cert tls.Certificate) error {
	if len(cert.Certificate) == 0 {
		return errors.New("no certificate in chain")
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	now := m.now()
	if now.Before(leaf.NotBefore) {
		return errors.New("certificate not yet valid")
	}
	if now.Add(renewBefore).After(leaf.NotAfter) {
		return fmt.Errorf("certificate expires %s", leaf.NotAfter.Format(time.DateOnly))
	}
	for _, h := range m.hosts {
		if err := leaf.VerifyHostname(h); err != nil {
			return fmt.Errorf("certificate does not cover %s", h)
		}
	}
	return nil
}

func (m *FileManager) generate() (tls.Certificate, error) {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to create certificate directory: %w", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := m.now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"tierkeeper"}, CommonName: m.hosts[0]},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(m.validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range m.hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to encode key: %w", err)
	}

	if err := writePEM(m.certFile, "CERTIFICATE", der); err != nil {
		return tls.Certificate{}, err
	}
	if err := writePEM(m.keyFile, "PRIVATE KEY", keyDER); err != nil {
		return tls.Certificate{}, err
	}
	m.logger.Info("Generated TLS certificate", "path", m.certFile, "hosts", m.hosts, "expires", template.NotAfter)

	return tls.LoadX509KeyPair(m.certFile, m.keyFile)
}

func writePEM(path, blockType string, der []byte) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
