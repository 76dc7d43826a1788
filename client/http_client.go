package client

import (
	"net/http"
	"time"
)

var transport *http.Transport

func init() {
	// Shared by the object storage client
	transport = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,              // Maximum number of idle connections
		MaxIdleConnsPerHost: 10,               // Maximum idle connections per host
		IdleConnTimeout:     90 * time.Second, // How long to keep idle connections
		TLSHandshakeTimeout: 10 * time.Second, // TLS handshake timeout
		DisableCompression:  true,             // archives are already compressed
		ForceAttemptHTTP2:   true,             // Enable HTTP/2
	}
}

// GetTransport returns the tuned HTTP transport
func GetTransport() *http.Transport {
	return transport
}
