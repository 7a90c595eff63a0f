package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TemporalTLS assembles the client TLS configuration for the Temporal
// connection. With no client certificate configured it returns nil and the
// dial stays plaintext. A CA bundle and server name override the system
// trust store when set.
func (c *Config) TemporalTLS() (*tls.Config, error) {
	if c.TemporalTLSCert == "" && c.TemporalTLSKey == "" {
		return nil, nil
	}

	keyPair, err := tls.LoadX509KeyPair(c.TemporalTLSCert, c.TemporalTLSKey)
	if err != nil {
		return nil, fmt.Errorf("load temporal client keypair: %w", err)
	}

	out := &tls.Config{
		Certificates: []tls.Certificate{keyPair},
		ServerName:   c.TemporalTLSServerName,
	}

	if c.TemporalTLSCACert != "" {
		caPEM, err := os.ReadFile(c.TemporalTLSCACert)
		if err != nil {
			return nil, fmt.Errorf("read temporal CA bundle: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no certificates parsed from temporal CA bundle %s", c.TemporalTLSCACert)
		}
		out.RootCAs = caPool
	}

	return out, nil
}
