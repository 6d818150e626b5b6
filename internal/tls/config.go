package tls

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config selects how the dev server obtains its certificate.
// CertFile/KeyFile win over Dir; Dir is expected to hold tls.crt and tls.key,
// generated on first use when AutoGenerate is set.
type Config struct {
	Enabled      bool    `mapstructure:"enabled"`
	CertFile     string  `mapstructure:"cert_file"`
	KeyFile      string  `mapstructure:"key_file"`
	Dir          string  `mapstructure:"dir"`
	AutoGenerate bool    `mapstructure:"auto_generate"`
	MinVersion   string  `mapstructure:"min_version"`
	MaxVersion   string  `mapstructure:"max_version"`
	AutoGen      AutoGen `mapstructure:"auto_gen"`
}

// AutoGen parameterizes self-signed certificate generation.
type AutoGen struct {
	CommonName   string   `mapstructure:"common_name"`
	Organization string   `mapstructure:"organization"`
	DNSNames     []string `mapstructure:"dns_names"`
	IPAddresses  []string `mapstructure:"ip_addresses"`
	ValidDays    int      `mapstructure:"valid_days"`
}

// Validate reports configurations that can never produce a certificate.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("tls: cert_file and key_file must be set together")
	}
	if c.CertFile == "" && c.Dir == "" {
		return fmt.Errorf("tls: enabled but neither cert_file/key_file nor dir is set")
	}
	for _, v := range []string{c.MinVersion, c.MaxVersion} {
		if _, ok := parseTLSVersion(v); !ok && v != "" && v != "default" {
			return fmt.Errorf("tls: unknown version %q", v)
		}
	}
	return nil
}

// Development returns a config that keeps a self-signed localhost
// certificate under certDir.
func Development(certDir string) Config {
	return Config{
		Enabled:      true,
		Dir:          certDir,
		AutoGenerate: true,
		AutoGen: AutoGen{
			CommonName: "localhost",
			DNSNames:   []string{"localhost"},
			ValidDays:  365,
		},
	}
}

// CreateDevTLS prepares baseDir/tls and returns a Development config for it.
func CreateDevTLS(baseDir string) (Config, error) {
	certDir := filepath.Join(baseDir, "tls")
	if err := os.MkdirAll(certDir, 0o750); err != nil {
		return Config{}, fmt.Errorf("failed to create TLS directory: %w", err)
	}
	return Development(certDir), nil
}
