package checker

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/katieblackabee/upquack/internal/storage"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func wrapURL(err error) error {
	return &url.Error{Op: "Head", URL: "https://example.com", Err: err}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want storage.Status
	}{
		{"nil", nil, storage.StatusUp},
		{"deadline", wrapURL(context.DeadlineExceeded), storage.StatusDown},
		{"net timeout", wrapURL(&net.OpError{Op: "read", Net: "tcp", Err: timeoutError{}}), storage.StatusDown},
		{"dns", wrapURL(&net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}}), storage.StatusDown},
		{"refused", wrapURL(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}), storage.StatusDown},
		{"unreachable", wrapURL(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.EHOSTUNREACH}), storage.StatusDown},
		{"bare refused", fmt.Errorf("connect: %w", syscall.ECONNREFUSED), storage.StatusDown},
		{"reset", wrapURL(&net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}), storage.StatusError},
		{"certificate", wrapURL(&tlsVerifyError), storage.StatusError},
		{"unknown authority", wrapURL(x509.UnknownAuthorityError{}), storage.StatusError},
		{"malformed", wrapURL(errors.New(`net/http: HTTP/1.x transport connection broken: malformed HTTP response "junk"`)), storage.StatusError},
		{"canceled", wrapURL(context.Canceled), storage.StatusError},
		{"other", errors.New("something odd"), storage.StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

var tlsVerifyError = x509.HostnameError{Host: "example.com", Certificate: &x509.Certificate{}}

func TestFailureRecord(t *testing.T) {
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	rec := failure(at, wrapURL(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}))

	if rec.Status != storage.StatusDown {
		t.Errorf("expected down, got %s", rec.Status)
	}
	if !rec.CheckedAt.Equal(at) {
		t.Errorf("expected timestamp %v, got %v", at, rec.CheckedAt)
	}
	if rec.HTTPCode != nil || rec.LatencyMs != nil {
		t.Error("expected no code or latency")
	}
	if rec.ErrorMessage() == "" {
		t.Error("expected an error message")
	}
}
