package transport

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"

	"github.com/vyrodovalexey/vaultpki/internal/pkierr"
)

// LoadTrustAnchors reads every regular file in dir and parses the PEM
// certificates it contains. An empty dir yields an empty set.
func LoadTrustAnchors(dir string) ([]*x509.Certificate, error) {
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, pkierr.ConfigurationFailed("unable to read CA certificates from "+dir, err)
	}

	var anchors []*x509.Certificate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		data, err := os.ReadFile(path) // #nosec G304 -- CA directory from trusted config
		if err != nil {
			return nil, pkierr.ConfigurationFailed("unable to read CA certificate "+path, err)
		}

		certs, err := ParsePEMCertificates(data)
		if err != nil {
			return nil, pkierr.CertificateMalformed(path, err)
		}
		anchors = append(anchors, certs...)
	}

	return anchors, nil
}

// ParsePEMCertificates parses all CERTIFICATE blocks in pemData.
// Other block types are skipped; at least one certificate is required.
func ParsePEMCertificates(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate

	for len(pemData) > 0 {
		var block *pem.Block
		block, pemData = pem.Decode(pemData)
		if block == nil {
			break
		}

		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, pkierr.CertificateMalformed("failed to parse certificate", err)
		}

		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, pkierr.CertificateMalformed("no certificates found in PEM data", nil)
	}

	return certs, nil
}
