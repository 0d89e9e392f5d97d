package storage

import (
	"fmt"
	"time"
)

// Status is the last-known condition of a target.
type Status string

const (
	StatusUnknown Status = "unknown" // no check attempted yet
	StatusUp      Status = "up"
	StatusDown    Status = "down"  // could not connect or timed out
	StatusError   Status = "error" // connected, then failed at the TLS/HTTP level
)

func (s Status) Valid() bool {
	switch s {
	case StatusUnknown, StatusUp, StatusDown, StatusError:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

func (s *Status) UnmarshalText(text []byte) error {
	v := Status(text)
	if !v.Valid() {
		return fmt.Errorf("unknown status %q", text)
	}
	*s = v
	return nil
}

type Target struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	Status        Status    `json:"status"`
	LastHTTPCode  *int      `json:"last_http_code"`
	LastLatencyMs *int64    `json:"last_latency_ms"`
	CreatedAt     time.Time `json:"created_at"`
	History       History   `json:"history"`
}

// NewTarget returns a target that has never been checked.
func NewTarget(id, url string, createdAt time.Time) *Target {
	return &Target{
		ID:        id,
		URL:       url,
		Status:    StatusUnknown,
		CreatedAt: createdAt.UTC(),
	}
}

func (t *Target) IsUp() bool {
	return t.Status == StatusUp
}

func (t *Target) IsPending() bool {
	return t.Status == StatusUnknown || t.Status == ""
}

// Apply moves the target to the state described by rec. The latest record
// always wins; a failed check clears the last code and latency.
func (t *Target) Apply(rec CheckRecord) {
	t.Status = rec.Status
	t.LastHTTPCode = copyInt(rec.HTTPCode)
	t.LastLatencyMs = copyInt64(rec.LatencyMs)
	t.History.Push(rec)
}

// LastCheckedAt returns the timestamp of the newest record, or nil.
func (t *Target) LastCheckedAt() *time.Time {
	last, ok := t.History.Last()
	if !ok {
		return nil
	}
	ts := last.CheckedAt
	return &ts
}

// Clone returns a deep copy that shares no memory with t.
func (t *Target) Clone() Target {
	c := *t
	c.LastHTTPCode = copyInt(t.LastHTTPCode)
	c.LastLatencyMs = copyInt64(t.LastLatencyMs)
	c.History = t.History.Clone()
	return c
}

// CheckRecord is one entry of a target's history.
type CheckRecord struct {
	CheckedAt time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
	HTTPCode  *int      `json:"http_code"`
	LatencyMs *int64    `json:"latency_ms"`
	Error     *string   `json:"error"`
}

// ErrorMessage returns the recorded error or an empty string.
func (r CheckRecord) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

func (r CheckRecord) clone() CheckRecord {
	r.HTTPCode = copyInt(r.HTTPCode)
	r.LatencyMs = copyInt64(r.LatencyMs)
	if r.Error != nil {
		msg := *r.Error
		r.Error = &msg
	}
	return r
}

// UpRecord builds the record of a check that received a response.
func UpRecord(at time.Time, code int, latencyMs int64) CheckRecord {
	return CheckRecord{
		CheckedAt: at.UTC(),
		Status:    StatusUp,
		HTTPCode:  &code,
		LatencyMs: &latencyMs,
	}
}

// FailedRecord builds a down or error record. Neither carries a code or latency.
func FailedRecord(at time.Time, status Status, msg string) CheckRecord {
	return CheckRecord{
		CheckedAt: at.UTC(),
		Status:    status,
		Error:     &msg,
	}
}

type CheckStats struct {
	Checks        int     `json:"checks"`
	UptimePercent float64 `json:"uptime_percent"`
	AvgLatencyMs  int64   `json:"avg_latency_ms"`
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
