package storage

import (
	"encoding/json"
	"testing"
	"time"
)

var baseTime = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func upAt(i int) CheckRecord {
	return UpRecord(baseTime.Add(time.Duration(i)*time.Second), 200, int64(i))
}

func TestHistoryZeroValue(t *testing.T) {
	var h History

	if h.Len() != 0 {
		t.Errorf("expected empty history, got %d", h.Len())
	}
	if _, ok := h.Last(); ok {
		t.Error("expected no last record")
	}
	if got := h.Records(); len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}

func TestHistoryKeepsInsertionOrder(t *testing.T) {
	var h History
	for i := 0; i < 5; i++ {
		h.Push(upAt(i))
	}

	records := h.Records()
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}
	for i, rec := range records {
		if *rec.LatencyMs != int64(i) {
			t.Errorf("record %d: expected latency %d, got %d", i, i, *rec.LatencyMs)
		}
	}

	last, ok := h.Last()
	if !ok || *last.LatencyMs != 4 {
		t.Errorf("expected last latency 4, got %+v", last)
	}
}

func TestHistoryNeverExceedsCapacity(t *testing.T) {
	var h History
	for i := 0; i < 3*HistoryCapacity+7; i++ {
		h.Push(upAt(i))
		if h.Len() > HistoryCapacity {
			t.Fatalf("history grew to %d after %d pushes", h.Len(), i+1)
		}
	}
	if h.Len() != HistoryCapacity {
		t.Errorf("expected %d records, got %d", HistoryCapacity, h.Len())
	}
}

func TestHistoryEvictsOldestFirst(t *testing.T) {
	var h History
	for i := 0; i < HistoryCapacity; i++ {
		h.Push(upAt(i))
	}

	h.Push(FailedRecord(baseTime.Add(time.Hour), StatusDown, "dial tcp: connection refused"))

	if h.Len() != HistoryCapacity {
		t.Fatalf("expected %d records, got %d", HistoryCapacity, h.Len())
	}
	if first := h.At(0); *first.LatencyMs != 1 {
		t.Errorf("expected oldest remaining latency 1, got %d", *first.LatencyMs)
	}
	last, _ := h.Last()
	if last.Status != StatusDown || last.ErrorMessage() != "dial tcp: connection refused" {
		t.Errorf("unexpected newest record: %+v", last)
	}
}

func TestHistoryCloneIsIndependent(t *testing.T) {
	var h History
	h.Push(upAt(1))

	c := h.Clone()
	c.Push(upAt(2))
	*c.At(0).LatencyMs = 999

	if h.Len() != 1 {
		t.Errorf("expected original to keep 1 record, got %d", h.Len())
	}
	if *h.At(0).LatencyMs != 1 {
		t.Errorf("clone shares latency pointer with original")
	}
}

func TestHistoryStats(t *testing.T) {
	var h History
	h.Push(UpRecord(baseTime, 200, 100))
	h.Push(UpRecord(baseTime, 500, 300))
	h.Push(FailedRecord(baseTime, StatusDown, "timeout"))
	h.Push(FailedRecord(baseTime, StatusError, "tls: bad certificate"))

	stats := h.Stats()
	if stats.Checks != 4 {
		t.Errorf("expected 4 checks, got %d", stats.Checks)
	}
	if stats.UptimePercent != 50 {
		t.Errorf("expected 50%% uptime, got %v", stats.UptimePercent)
	}
	if stats.AvgLatencyMs != 200 {
		t.Errorf("expected avg latency 200, got %d", stats.AvgLatencyMs)
	}

	var empty History
	if s := empty.Stats(); s.Checks != 0 || s.UptimePercent != 0 {
		t.Errorf("unexpected stats for empty history: %+v", s)
	}
}

func TestHistoryJSONTrimsOversizedInput(t *testing.T) {
	records := make([]CheckRecord, HistoryCapacity+10)
	for i := range records {
		records[i] = upAt(i)
	}
	data, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if h.Len() != HistoryCapacity {
		t.Fatalf("expected %d records, got %d", HistoryCapacity, h.Len())
	}
	if *h.At(0).LatencyMs != 10 {
		t.Errorf("expected oldest kept latency 10, got %d", *h.At(0).LatencyMs)
	}
}

func TestEmptyHistoryMarshalsAsArray(t *testing.T) {
	data, err := json.Marshal(History{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("expected [], got %s", data)
	}
}
