package checker

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/katieblackabee/upquack/internal/storage"
)

func TestHTTPCheckerAnyResponseIsUp(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"200 OK", 200},
		{"204 No Content", 204},
		{"404 Not Found", 404},
		{"500 Server Error", 500},
		{"503 Unavailable", 503},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			checker := NewHTTPChecker(HTTPCheckerConfig{Timeout: 5 * time.Second})
			rec := checker.Probe(context.Background(), server.URL)

			if rec.Status != storage.StatusUp {
				t.Fatalf("expected up, got %s (%s)", rec.Status, rec.ErrorMessage())
			}
			if rec.HTTPCode == nil || *rec.HTTPCode != tt.status {
				t.Errorf("expected code %d, got %v", tt.status, rec.HTTPCode)
			}
			if rec.LatencyMs == nil || *rec.LatencyMs < 0 {
				t.Errorf("expected non-negative latency, got %v", rec.LatencyMs)
			}
			if rec.Error != nil {
				t.Errorf("expected no error message, got %q", *rec.Error)
			}
		})
	}
}

func TestHTTPCheckerSendsHeadWithUserAgent(t *testing.T) {
	var method, ua string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		ua = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker(HTTPCheckerConfig{})
	checker.Probe(context.Background(), server.URL)

	if method != http.MethodHead {
		t.Errorf("expected HEAD, got %s", method)
	}
	if ua != DefaultUserAgent {
		t.Errorf("unexpected User-Agent: %s", ua)
	}

	custom := NewHTTPChecker(HTTPCheckerConfig{UserAgent: "probe/2"})
	custom.Probe(context.Background(), server.URL)
	if ua != "probe/2" {
		t.Errorf("expected custom User-Agent, got %s", ua)
	}
}

func TestHTTPCheckerLatency(t *testing.T) {
	delay := 100 * time.Millisecond
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker(HTTPCheckerConfig{Timeout: 5 * time.Second})
	rec := checker.Probe(context.Background(), server.URL)

	if rec.LatencyMs == nil {
		t.Fatalf("expected latency, got none (%s)", rec.ErrorMessage())
	}
	if *rec.LatencyMs < delay.Milliseconds() {
		t.Errorf("expected latency >= %dms, got %dms", delay.Milliseconds(), *rec.LatencyMs)
	}
}

func TestHTTPCheckerFollowsRedirects(t *testing.T) {
	redirects := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if redirects < 3 {
			redirects++
			http.Redirect(w, r, "/next", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker(HTTPCheckerConfig{Timeout: 5 * time.Second})
	rec := checker.Probe(context.Background(), server.URL)

	if rec.HTTPCode == nil || *rec.HTTPCode != 200 {
		t.Errorf("expected 200 after redirects, got %v", rec.HTTPCode)
	}
}

func TestHTTPCheckerStopsAfterTooManyRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	}))
	defer server.Close()

	checker := NewHTTPChecker(HTTPCheckerConfig{Timeout: 5 * time.Second})
	rec := checker.Probe(context.Background(), server.URL)

	if rec.Status != storage.StatusUp {
		t.Fatalf("expected up, got %s (%s)", rec.Status, rec.ErrorMessage())
	}
	if rec.HTTPCode == nil || *rec.HTTPCode != http.StatusFound {
		t.Errorf("expected the last redirect response, got %v", rec.HTTPCode)
	}
}

func TestHTTPCheckerConnectionRefusedIsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	checker := NewHTTPChecker(HTTPCheckerConfig{Timeout: 2 * time.Second})
	rec := checker.Probe(context.Background(), "http://"+addr)

	if rec.Status != storage.StatusDown {
		t.Fatalf("expected down, got %s (%s)", rec.Status, rec.ErrorMessage())
	}
	if rec.HTTPCode != nil || rec.LatencyMs != nil {
		t.Errorf("expected no code or latency, got %v / %v", rec.HTTPCode, rec.LatencyMs)
	}
	if rec.ErrorMessage() == "" {
		t.Error("expected an error message")
	}
}

func TestHTTPCheckerTimeoutIsDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	checker := NewHTTPChecker(HTTPCheckerConfig{Timeout: 100 * time.Millisecond})
	rec := checker.Probe(context.Background(), server.URL)

	if rec.Status != storage.StatusDown {
		t.Errorf("expected down, got %s (%s)", rec.Status, rec.ErrorMessage())
	}
}

func TestHTTPCheckerUntrustedCertificateIsError(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker(HTTPCheckerConfig{Timeout: 5 * time.Second})
	rec := checker.Probe(context.Background(), server.URL)

	if rec.Status != storage.StatusError {
		t.Fatalf("expected error, got %s (%s)", rec.Status, rec.ErrorMessage())
	}
	if rec.HTTPCode != nil {
		t.Errorf("expected no code, got %d", *rec.HTTPCode)
	}
}

func TestHTTPCheckerMalformedResponseIsError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				if _, err := http.ReadRequest(bufio.NewReader(conn)); err != nil {
					return
				}
				conn.Write([]byte("THIS IS NOT HTTP\r\n\r\n"))
			}()
		}
	}()

	checker := NewHTTPChecker(HTTPCheckerConfig{Timeout: 5 * time.Second})
	rec := checker.Probe(context.Background(), "http://"+ln.Addr().String())

	if rec.Status != storage.StatusError {
		t.Errorf("expected error, got %s (%s)", rec.Status, rec.ErrorMessage())
	}
}

func TestHTTPCheckerInvalidURLIsError(t *testing.T) {
	checker := NewHTTPChecker(HTTPCheckerConfig{})
	rec := checker.Probe(context.Background(), "http://[::1")

	if rec.Status != storage.StatusError {
		t.Errorf("expected error, got %s", rec.Status)
	}
}
