// Package transport builds the HTTP client used to talk to Vault.
//
// The client dials with a short connect timeout, discovers forward proxies
// from HTTP_PROXY, HTTPS_PROXY and NO_PROXY (and their lowercase forms), and
// can trust additional CA certificates for TLS-terminating proxies:
//
//	anchors, err := transport.LoadTrustAnchors("/etc/pki/proxy-ca")
//	if err != nil {
//	    return err
//	}
//	client, err := transport.Build(anchors,
//	    transport.WithRequestTimeout(30*time.Second),
//	    transport.WithConnectTimeout(20*time.Second),
//	    transport.WithLogger(logger),
//	)
//
// Supplying anchors without any proxy configured is a configuration error.
package transport
