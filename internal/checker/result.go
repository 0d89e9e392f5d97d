package checker

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/katieblackabee/upquack/internal/storage"
)

// Classify maps a failed request to a target status. Failures to reach the
// host at all (name resolution, dialing, timeouts) mean the target is down.
// Anything that goes wrong after a connection exists, such as a TLS
// handshake, a malformed response or a reset, is reported as an error.
func Classify(err error) storage.Status {
	if err == nil {
		return storage.StatusUp
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return storage.StatusDown
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return storage.StatusDown
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return storage.StatusDown
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return storage.StatusDown
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return storage.StatusDown
	}

	return storage.StatusError
}

func failure(at time.Time, err error) storage.CheckRecord {
	return storage.FailedRecord(at, Classify(err), err.Error())
}
