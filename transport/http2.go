// Package transport builds the HTTP client used to reach the glucose server.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/net/http2"
)

// Mode selects the HTTP protocol spoken to the server.
type Mode string

const (
	HTTP1 Mode = "http1" // net/http default transport, TLS or plain
	H2    Mode = "h2"    // HTTP/2 over TLS
	H2C   Mode = "h2c"   // HTTP/2 over cleartext (prior knowledge)
)

// ParseMode validates s. An empty string selects HTTP1.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return HTTP1, nil
	case HTTP1, H2, H2C:
		return m, nil
	default:
		return "", fmt.Errorf("unknown transport mode %q (want http1, h2 or h2c)", s)
	}
}

// Options configures BuildClient. Certificate paths are optional; CertPath and
// KeyPath must be given together to enable mTLS.
type Options struct {
	Mode     Mode
	Timeout  time.Duration
	CertPath string
	KeyPath  string
	CAPath   string
}

// BuildClient creates an *http.Client for the given options.
func BuildClient(opts Options) (*http.Client, error) {
	tlsConfig, err := buildTLSConfig(opts)
	if err != nil {
		return nil, err
	}

	var rt http.RoundTripper
	switch opts.Mode {
	case "", HTTP1:
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.TLSClientConfig = tlsConfig
		rt = base
	case H2:
		rt = &http2.Transport{
			TLSClientConfig: tlsConfig,
		}
	case H2C:
		rt = &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		}
	default:
		return nil, fmt.Errorf("unknown transport mode %q (want http1, h2 or h2c)", opts.Mode)
	}

	return &http.Client{
		Transport: rt,
		Timeout:   opts.Timeout,
	}, nil
}

func buildTLSConfig(opts Options) (*tls.Config, error) {
	if (opts.CertPath == "") != (opts.KeyPath == "") {
		return nil, fmt.Errorf("certPath and keyPath must be set together")
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if opts.CertPath != "" {
		clientCert, err := tls.LoadX509KeyPair(opts.CertPath, opts.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{clientCert}
	}

	if opts.CAPath != "" {
		caCert, err := os.ReadFile(opts.CAPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}
