package http

import (
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"golang.org/x/net/http/httpproxy"

	"github.com/shelfdrop/shelfdrop-cli/internal/config"
	"github.com/shelfdrop/shelfdrop-cli/internal/constants"
)

// ConfigureHTTPClient configures an HTTP client with proxy settings.
func ConfigureHTTPClient(cfg *config.Config) (*nethttp.Client, error) {
	transport := &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
	}

	switch strings.ToLower(cfg.ProxyMode) {
	case "no-proxy", "":
		transport.Proxy = nil

	case "system":
		transport.Proxy = nethttp.ProxyFromEnvironment

	case "ntlm":
		// Fall back to no-proxy if host is missing (incomplete saved config)
		// so the CLI still starts and the user can reconfigure.
		if cfg.ProxyHost == "" {
			transport.Proxy = nil
			return &nethttp.Client{
				Transport: transport,
				Timeout:   300 * time.Second,
			}, nil
		}

		proxyURL := buildProxyURL(cfg)
		transport.Proxy = proxyFuncWithBypass(proxyURL, cfg.NoProxy)

		return &nethttp.Client{
			Transport: ntlmssp.Negotiator{
				RoundTripper: transport,
			},
			Timeout: 300 * time.Second,
		}, nil

	case "basic":
		if cfg.ProxyHost == "" {
			transport.Proxy = nil
			return &nethttp.Client{
				Transport: transport,
				Timeout:   300 * time.Second,
			}, nil
		}

		proxyURL := buildProxyURL(cfg)
		transport.Proxy = proxyFuncWithBypass(proxyURL, cfg.NoProxy)

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", cfg.ProxyMode)
	}

	return &nethttp.Client{
		Transport: transport,
		Timeout:   300 * time.Second,
	}, nil
}

// buildProxyURL constructs a proxy URL from config.
func buildProxyURL(cfg *config.Config) *url.URL {
	host := cfg.ProxyHost
	port := cfg.ProxyPort
	if port == 0 {
		port = 8080
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}

	// Only embed credentials when both user AND password are present; an
	// empty password in the URL trips some proxies.
	if cfg.ProxyUser != "" && cfg.ProxyPassword != "" {
		proxyURL.User = url.UserPassword(cfg.ProxyUser, cfg.ProxyPassword)
	}

	return proxyURL
}

// proxyFuncWithBypass returns a proxy function that respects the NoProxy
// bypass list. With an empty bypass list it behaves identically to
// nethttp.ProxyURL; otherwise httpproxy matches hosts and CIDRs.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		return proxyFunc(req.URL)
	}
}

// NeedsProxyPassword returns true if the proxy configuration requires a
// password but one has not been provided. Used by the CLI to decide whether
// to prompt interactively.
func NeedsProxyPassword(cfg *config.Config) bool {
	mode := strings.ToLower(cfg.ProxyMode)
	if mode != "basic" && mode != "ntlm" {
		return false
	}
	return cfg.ProxyUser != "" && cfg.ProxyPassword == ""
}
