// Package tls picks the server certificate source: ACME via autocert, files
// on disk, or a cached self-signed certificate for development.
package tls

import (
	"crypto/tls"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/acme/autocert"

	"balloon-service/internal/config"
	"balloon-service/internal/util"
)

type Manager struct {
	cfg      config.ServerConfig
	autoCert *autocert.Manager

	mu       sync.Mutex
	fileCert *tls.Certificate
	selfCert *tls.Certificate
}

func NewManager(cfg config.ServerConfig) (*Manager, error) {
	m := &Manager{cfg: cfg}

	if cfg.EnableTLS && cfg.AutoCert {
		if err := os.MkdirAll(cfg.AutoCertDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create autocert directory: %w", err)
		}
		m.autoCert = &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.Domain),
			Cache:      autocert.DirCache(cfg.AutoCertDir),
			Email:      cfg.Email,
		}
		util.Info("AutoCert configured",
			util.String("domain", cfg.Domain),
			util.String("cache_dir", cfg.AutoCertDir))
	}
	return m, nil
}

func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		cert, err := m.autoCert.GetCertificate(hello)
		if err == nil {
			return cert, nil
		}
		util.Warn("AutoCert failed, falling back", util.String("server_name", hello.ServerName), util.ErrorField(err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.CertFile != "" && m.cfg.KeyFile != "" {
		if m.fileCert == nil {
			cert, err := tls.LoadX509KeyPair(m.cfg.CertFile, m.cfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load certificate: %w", err)
			}
			m.fileCert = &cert
		}
		return m.fileCert, nil
	}

	if m.selfCert == nil {
		hosts := []string{m.cfg.Domain, "localhost", "127.0.0.1", "::1"}
		cert, err := NewDevCertGenerator(m.cfg.AutoCertDir).GenerateCert(hosts)
		if err != nil {
			return nil, err
		}
		m.selfCert = &cert
	}
	return m.selfCert, nil
}

func (m *Manager) TLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}
}

// AutocertManager is nil unless autocert is enabled.
func (m *Manager) AutocertManager() *autocert.Manager {
	return m.autoCert
}
