package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"os"
)

// LoadTlsConfig builds the client TLS configuration from configured credential
// paths. Returns nil when no TLS material is configured, in which case the
// connection runs in plaintext.
func LoadTlsConfig(c *Config) (*tls.Config, error) {
	if c.TlsCertFile == "" && c.TlsCaFile == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		ServerName: c.ServerName,
	}

	if c.TlsCertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TlsCertFile, c.TlsKeyFile)
		if err != nil {
			err = fmt.Errorf("%s: failed to load client certificate cert=%s key=%s, err=%s", c.LogPrefix, c.TlsCertFile, c.TlsKeyFile, err.Error())
			log.Printf("%s", err.Error())
			return nil, err
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if c.TlsCaFile != "" {
		pem, err := os.ReadFile(c.TlsCaFile)
		if err != nil {
			err = fmt.Errorf("%s: failed to read ca file=%s, err=%s", c.LogPrefix, c.TlsCaFile, err.Error())
			log.Printf("%s", err.Error())
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			err = fmt.Errorf("%s: no certificates parsed from ca file=%s", c.LogPrefix, c.TlsCaFile)
			log.Printf("%s", err.Error())
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}
