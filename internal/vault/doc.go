// Package vault talks to the HashiCorp Vault PKI secrets engine.
//
// Every request goes through an Executor. A 2xx response is returned to the
// caller, 3xx and 4xx responses fail immediately, and anything else triggers a
// single probe of sys/health. A redirect reported by the probe is fatal; every
// other diagnosis is logged and the request is retried after a fixed pause.
//
// Gateway exposes the three PKI reads on top of the executor:
//
//	serials, err := gw.CertificateList(ctx)
//	pem, err := gw.CertificateBySerialAsPEM(ctx, serials[0])
//	ca, err := gw.IMCertificateAsPEM(ctx)
//
// StaticGetter serves the same interface from memory.
package vault
