package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vyrodovalexey/vaultpki/internal/pkierr"
)

// StaticCAFile is the file LoadStaticGetter reads the intermediate CA from.
const StaticCAFile = "ca.pem"

// StaticGetter is an in-memory CertificateGetter for tests and offline use.
type StaticGetter struct {
	ca    string
	certs map[string]string
}

var _ CertificateGetter = (*StaticGetter)(nil)

// NewStaticGetter returns a getter serving ca and certs keyed by serial.
func NewStaticGetter(ca string, certs map[string]string) *StaticGetter {
	copied := make(map[string]string, len(certs))
	for serial, pem := range certs {
		copied[serial] = pem
	}
	return &StaticGetter{ca: ca, certs: copied}
}

// LoadStaticGetter reads <serial>.pem files and ca.pem from dir.
func LoadStaticGetter(dir string) (*StaticGetter, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, pkierr.ConfigurationFailed("unable to read static certificates", err)
	}

	var ca string
	certs := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".pem" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, pkierr.ConfigurationFailed("unable to read "+name, err)
		}
		if name == StaticCAFile {
			ca = string(data)
			continue
		}
		certs[strings.TrimSuffix(name, ".pem")] = string(data)
	}
	return &StaticGetter{ca: ca, certs: certs}, nil
}

// CertificateList returns the known serials in sorted order.
func (s *StaticGetter) CertificateList(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	serials := make([]string, 0, len(s.certs))
	for serial := range s.certs {
		serials = append(serials, serial)
	}
	sort.Strings(serials)
	return serials, nil
}

// CertificateBySerialAsPEM returns the stored PEM for serial.
func (s *StaticGetter) CertificateBySerialAsPEM(ctx context.Context, serial string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", contextError(err)
	}
	if err := validateSerial(serial); err != nil {
		return "", err
	}
	pem, ok := s.certs[serial]
	if !ok {
		return "", pkierr.VaultOtherError(fmt.Sprintf("certificate %s not found", serial), nil)
	}
	return pem, nil
}

// IMCertificateAsPEM returns the stored intermediate CA.
func (s *StaticGetter) IMCertificateAsPEM(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", contextError(err)
	}
	if s.ca == "" {
		return "", pkierr.VaultOtherError("im-ca certificate not found", nil)
	}
	return s.ca, nil
}
