package transport

import (
	"net/http"
	"testing"
	"time"

	"golang.org/x/net/http2"
)

func TestBuildClientModes(t *testing.T) {
	c, err := BuildClient(Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("default mode: %v", err)
	}
	if _, ok := c.Transport.(*http.Transport); !ok {
		t.Fatalf("expected *http.Transport, got %T", c.Transport)
	}
	if c.Timeout != 5*time.Second {
		t.Fatalf("timeout not applied: %s", c.Timeout)
	}

	c, err = BuildClient(Options{Mode: H2C})
	if err != nil {
		t.Fatalf("h2c: %v", err)
	}
	tr, ok := c.Transport.(*http2.Transport)
	if !ok || !tr.AllowHTTP {
		t.Fatalf("expected cleartext http2 transport, got %T", c.Transport)
	}

	if _, err := BuildClient(Options{Mode: H2}); err != nil {
		t.Fatalf("h2: %v", err)
	}
}

func TestBuildClientRejectsBadOptions(t *testing.T) {
	if _, err := BuildClient(Options{Mode: "quic"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if _, err := BuildClient(Options{CertPath: "/certs/client.cert.pem"}); err == nil {
		t.Fatal("expected error for cert without key")
	}
	if _, err := BuildClient(Options{CAPath: "/does/not/exist.pem"}); err == nil {
		t.Fatal("expected error for missing CA file")
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"", "http1", "h2", "h2c"} {
		if _, err := ParseMode(s); err != nil {
			t.Errorf("ParseMode(%q): %v", s, err)
		}
	}
	if m, _ := ParseMode(""); m != HTTP1 {
		t.Errorf("empty mode = %q, want http1", m)
	}
	if _, err := ParseMode("quic"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
