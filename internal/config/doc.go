// Package config loads the client configuration.
//
// Values come from three layers, later ones winning: built-in defaults, a
// YAML file, and environment variables (VAULT_ADDR, VAULT_TOKEN, PKI_REALM,
// PKI_CA_CERTIFICATES_DIR, TLS_CA_CERTIFICATES_DIR and a few others). The
// file may reference the environment with ${VAR} or ${VAR:-default}.
//
//	vault:
//	  address: https://vault.example:8200
//	  token: ${VAULT_TOKEN}
//	  realm: pki_int
//	  requestTimeout: 30s
//	tls:
//	  trustAnchorsDir: /etc/vaultpki/anchors
package config
