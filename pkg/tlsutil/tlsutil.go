// Package tlsutil builds crypto/tls configurations for the upstream REST client
// and the gateway listener.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/c360/recordcache/errors"
)

// ClientConfig configures outbound TLS. The system CA pool is always trusted;
// CAFiles are added to it. CertFile and KeyFile enable mutual TLS.
type ClientConfig struct {
	CAFiles            []string `json:"ca_files,omitempty" yaml:"ca_files,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
	MinVersion         string   `json:"min_version,omitempty" yaml:"min_version,omitempty"`
	CertFile           string   `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile            string   `json:"key_file,omitempty" yaml:"key_file,omitempty"`
}

// ServerConfig configures the gateway listener. ClientCAFiles enable client
// certificate verification.
type ServerConfig struct {
	Enabled           bool     `json:"enabled" yaml:"enabled"`
	CertFile          string   `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile           string   `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	MinVersion        string   `json:"min_version,omitempty" yaml:"min_version,omitempty"`
	ClientCAFiles     []string `json:"client_ca_files,omitempty" yaml:"client_ca_files,omitempty"`
	RequireClientCert bool     `json:"require_client_cert,omitempty" yaml:"require_client_cert,omitempty"`
	AllowedClientCNs  []string `json:"allowed_client_cns,omitempty" yaml:"allowed_client_cns,omitempty"`
}

// LoadClientTLSConfig creates a tls.Config for outbound connections.
func LoadClientTLSConfig(cfg ClientConfig) (*tls.Config, error) {
	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}
	if err := appendPEMFiles(rootCAs, cfg.CAFiles, "LoadClientTLSConfig"); err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		MinVersion:         parseTLSVersion(cfg.MinVersion),
		RootCAs:            rootCAs,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec
	}

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

// LoadServerTLSConfig creates a tls.Config for the gateway. Returns nil when TLS is disabled.
func LoadServerTLSConfig(cfg ServerConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadServerTLSConfig", "load certificate")
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   parseTLSVersion(cfg.MinVersion),
	}

	if len(cfg.ClientCAFiles) == 0 {
		return tlsConfig, nil
	}

	clientCAs := x509.NewCertPool()
	if err := appendPEMFiles(clientCAs, cfg.ClientCAFiles, "LoadServerTLSConfig"); err != nil {
		return nil, err
	}
	tlsConfig.ClientCAs = clientCAs
	tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	if cfg.RequireClientCert {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}
	if len(cfg.AllowedClientCNs) > 0 {
		allowed := cfg.AllowedClientCNs
		tlsConfig.VerifyPeerCertificate = func(_ [][]byte, chains [][]*x509.Certificate) error {
			return verifyAllowedClientCN(chains, allowed)
		}
	}
	return tlsConfig, nil
}

func appendPEMFiles(pool *x509.CertPool, files []string, op string) error {
	for _, file := range files {
		pemData, err := os.ReadFile(file)
		if err != nil {
			return errors.WrapFatal(err, "tlsutil", op, fmt.Sprintf("read CA file %s", file))
		}
		if !pool.AppendCertsFromPEM(pemData) {
			return errors.WrapFatal(errors.ErrInvalidConfig, "tlsutil", op,
				fmt.Sprintf("parse CA certificate from %s", file))
		}
	}
	return nil
}

// verifyAllowedClientCN checks the leaf certificate CN against a whitelist.
func verifyAllowedClientCN(chains [][]*x509.Certificate, allowedCNs []string) error {
	if len(chains) == 0 || len(chains[0]) == 0 {
		return fmt.Errorf("no verified certificate chains")
	}
	cn := chains[0][0].Subject.CommonName
	for _, allowed := range allowedCNs {
		if cn == allowed {
			return nil
		}
	}
	return fmt.Errorf("client certificate CN '%s' not in allowed list", cn)
}

// parseTLSVersion maps "1.2" and "1.3" to crypto/tls constants; anything else is TLS 1.2.
func parseTLSVersion(version string) uint16 {
	if version == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}
