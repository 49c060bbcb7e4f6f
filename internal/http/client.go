// Package http builds the shared HTTP clients used for API calls and for
// raw chunk/part transfers, including proxy support and the fixed-schedule
// retry executor the transfer strategies run their attempts under.
package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/shelfdrop/shelfdrop-cli/internal/config"
	"github.com/shelfdrop/shelfdrop-cli/internal/constants"
)

// CreateTransferClient creates an HTTP client optimized for moving file
// bytes: large connection pool, disabled compression, HTTP/2 where the path
// allows it, and no overall timeout (each chunk/part sets its own deadline
// via context).
//
// The cfg parameter provides proxy configuration. If cfg is nil, proxy
// settings come from the environment (HTTP_PROXY, HTTPS_PROXY, NO_PROXY).
func CreateTransferClient(cfg *config.Config) (*nethttp.Client, error) {
	var baseClient *nethttp.Client
	var err error

	if cfg != nil {
		baseClient, err = ConfigureHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
	} else {
		baseClient = &nethttp.Client{}
	}

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		// Transport is wrapped (NTLM negotiator); pool tuning is not
		// reachable, so just clear the overall timeout for long transfers.
		baseClient.Timeout = 0
		return baseClient, nil
	}

	// Connection pooling sized for the five-file admission limit plus
	// per-file part parallelism.
	tr.MaxIdleConns = 128
	tr.MaxIdleConnsPerHost = 64
	tr.MaxConnsPerHost = 64
	tr.IdleConnTimeout = constants.HTTPIdleConnTimeout

	tr.TLSHandshakeTimeout = constants.HTTPTLSHandshakeTimeout
	tr.ExpectContinueTimeout = constants.HTTPExpectContinueTimeout

	// File payloads are usually already compressed.
	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true

	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	// Proxies often mishandle HTTP/2 multiplexing mid-transfer; fall back to
	// HTTP/1.1 whenever a proxy is in the path unless forced.
	if proxyActive(cfg) && os.Getenv("FORCE_HTTP2") != "true" {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	baseClient.Transport = tr
	baseClient.Timeout = 0
	return baseClient, nil
}

func proxyActive(cfg *config.Config) bool {
	if cfg != nil {
		switch cfg.ProxyMode {
		case "no-proxy", "":
			return false
		case "system":
			// fall through to env check below
		default:
			return true
		}
	}
	return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
		os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
}
