package storage

import (
	"encoding/json"
)

// HistoryCapacity is the number of check records kept per target.
const HistoryCapacity = 100

// History is a fixed-capacity ring of check records, oldest first.
// The zero value is an empty history ready for use.
type History struct {
	buf  []CheckRecord
	head int // index of the oldest record
	size int
}

// Push appends rec, evicting the oldest record when the ring is full.
func (h *History) Push(rec CheckRecord) {
	if h.buf == nil {
		h.buf = make([]CheckRecord, HistoryCapacity)
	}
	if h.size < HistoryCapacity {
		h.buf[(h.head+h.size)%HistoryCapacity] = rec
		h.size++
		return
	}
	h.buf[h.head] = rec
	h.head = (h.head + 1) % HistoryCapacity
}

func (h *History) Len() int {
	return h.size
}

// At returns the i-th record counting from the oldest.
func (h *History) At(i int) CheckRecord {
	if i < 0 || i >= h.size {
		panic("storage: history index out of range")
	}
	return h.buf[(h.head+i)%HistoryCapacity]
}

func (h *History) Last() (CheckRecord, bool) {
	if h.size == 0 {
		return CheckRecord{}, false
	}
	return h.At(h.size - 1), true
}

// Records returns a copy of the history, oldest first.
func (h *History) Records() []CheckRecord {
	out := make([]CheckRecord, h.size)
	for i := range out {
		out[i] = h.At(i).clone()
	}
	return out
}

func (h *History) Clone() History {
	var c History
	for i := 0; i < h.size; i++ {
		c.Push(h.At(i).clone())
	}
	return c
}

// Stats summarizes the records currently held.
func (h *History) Stats() CheckStats {
	var stats CheckStats
	var up int
	var latencyTotal, latencyCount int64

	for i := 0; i < h.size; i++ {
		rec := h.At(i)
		stats.Checks++
		if rec.Status == StatusUp {
			up++
		}
		if rec.LatencyMs != nil {
			latencyTotal += *rec.LatencyMs
			latencyCount++
		}
	}

	if stats.Checks > 0 {
		stats.UptimePercent = 100 * float64(up) / float64(stats.Checks)
	}
	if latencyCount > 0 {
		stats.AvgLatencyMs = latencyTotal / latencyCount
	}
	return stats
}

func (h History) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Records())
}

// UnmarshalJSON replays records through Push, so a file holding more than
// HistoryCapacity entries keeps only the newest ones.
func (h *History) UnmarshalJSON(data []byte) error {
	var records []CheckRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	*h = History{}
	for _, rec := range records {
		h.Push(rec)
	}
	return nil
}
