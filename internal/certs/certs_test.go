package certs

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(t *testing.T, cert tls.Certificate) *x509.Certificate {
	t.Helper()
	require.Len(t, cert.Certificate, 1)
	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	return parsed
}

func TestFileManager_GetOrCreateCertificate(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		setup         func(t *testing.T, dir string)
		check         func(t *testing.T, dir string, cert *x509.Certificate)
		name          string
		errorContains string
		hosts         []string
		wantErr       bool
	}{
		{
			name: "generates when missing",
			check: func(t *testing.T, _ string, cert *x509.Certificate) {
				t.Helper()
				assert.Equal(t, []string{"tierkeeper"}, cert.Subject.Organization)
				assert.Contains(t, cert.DNSNames, "localhost")
				assert.NoError(t, cert.VerifyHostname("127.0.0.1"))
				assert.Equal(t, base.Add(DefaultValidity), cert.NotAfter)
			},
		},
		{
			name: "reuses a valid certificate",
			setup: func(t *testing.T, dir string) {
				t.Helper()
				_, err := NewFileManager(dir, WithClock(func() time.Time { return base }), WithLogger(common.DiscardLogger())).GetOrCreateCertificate()
				require.NoError(t, err)
			},
			check: func(t *testing.T, dir string, cert *x509.Certificate) {
				t.Helper()
				stored, err := tls.LoadX509KeyPair(filepath.Join(dir, certName), filepath.Join(dir, keyName))
				require.NoError(t, err)
				assert.Equal(t, stored.Certificate[0], cert.Raw)
			},
		},
		{
			name: "replaces unreadable files",
			setup: func(t *testing.T, dir string) {
				t.Helper()
				require.NoError(t, os.MkdirAll(dir, 0o700))
				require.NoError(t, os.WriteFile(filepath.Join(dir, certName), []byte("garbage"), 0o600))
				require.NoError(t, os.WriteFile(filepath.Join(dir, keyName), []byte("garbage"), 0o600))
			},
			check: func(t *testing.T, _ string, cert *x509.Certificate) {
				t.Helper()
				assert.Contains(t, cert.DNSNames, "localhost")
			},
		},
		{
			name:  "covers custom hosts",
			hosts: []string{"tierkeeper.internal", "10.0.0.7"},
			check: func(t *testing.T, _ string, cert *x509.Certificate) {
				t.Helper()
				assert.Equal(t, []string{"tierkeeper.internal"}, cert.DNSNames)
				require.Len(t, cert.IPAddresses, 1)
				assert.True(t, cert.IPAddresses[0].Equal(net.ParseIP("10.0.0.7")))
				assert.Equal(t, "tierkeeper.internal", cert.Subject.CommonName)
			},
		},
		{
			name: "directory path is a file",
			setup: func(t *testing.T, dir string) {
				t.Helper()
				require.NoError(t, os.WriteFile(dir, []byte("not a directory"), 0o600))
			},
			wantErr:       true,
			errorContains: "failed to create certificate directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "certs")
			if tt.setup != nil {
				tt.setup(t, dir)
			}

			m := NewFileManager(dir,
				WithHosts(tt.hosts...),
				WithClock(func() time.Time { return base }),
				WithLogger(common.DiscardLogger()))
			cert, err := m.GetOrCreateCertificate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				return
			}
			require.NoError(t, err)
			tt.check(t, dir, leaf(t, cert))

			for _, name := range []string{certName, keyName} {
				info, err := os.Stat(filepath.Join(dir, name))
				require.NoError(t, err)
				assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), name)
			}
		})
	}
}

func TestFileManager_RegeneratesBeforeExpiry(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	m := NewFileManager(dir, WithValidity(30*24*time.Hour), WithClock(clock), WithLogger(common.DiscardLogger()))

	first, err := m.GetOrCreateCertificate()
	require.NoError(t, err)

	now = now.Add(20 * 24 * time.Hour)
	same, err := m.GetOrCreateCertificate()
	require.NoError(t, err)
	assert.Equal(t, first.Certificate[0], same.Certificate[0])

	// inside the renewal window
	now = now.Add(5 * 24 * time.Hour)
	renewed, err := m.GetOrCreateCertificate()
	require.NoError(t, err)
	assert.NotEqual(t, first.Certificate[0], renewed.Certificate[0])
	assert.Equal(t, now.Add(30*24*time.Hour), leaf(t, renewed).NotAfter)
}

func TestFileManager_RegeneratesForNewHosts(t *testing.T) {
	dir := t.TempDir()
	_, err := NewFileManager(dir, WithLogger(common.DiscardLogger())).GetOrCreateCertificate()
	require.NoError(t, err)

	cert, err := NewFileManager(dir, WithHosts("catalog.local"), WithLogger(common.DiscardLogger())).GetOrCreateCertificate()
	require.NoError(t, err)
	assert.Equal(t, []string{"catalog.local"}, leaf(t, cert).DNSNames)
}

func TestFileManager_TLSConfig(t *testing.T) {
	m := NewFileManager(t.TempDir(), WithLogger(common.DiscardLogger()))
	cfg, err := m.TLSConfig()
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	require.Len(t, cfg.Certificates, 1)

	pool := x509.NewCertPool()
	pemBytes, err := os.ReadFile(m.CertFile())
	require.NoError(t, err)
	require.True(t, pool.AppendCertsFromPEM(pemBytes))
	_, err = leaf(t, cfg.Certificates[0]).Verify(x509.VerifyOptions{DNSName: "localhost", Roots: pool})
	assert.NoError(t, err)
}
