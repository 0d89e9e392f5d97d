package console

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/katieblackabee/upquack/internal/storage"
)

const (
	shortIDLen   = 8
	sparklineLen = 24
)

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}

func renderTargets(out io.Writer, targets []storage.Target, now time.Time) {
	if len(targets) == 0 {
		fmt.Fprintln(out, `no targets, use "add <url>" to start monitoring`)
		return
	}

	w := newTable(out)
	fmt.Fprintln(w, "ID\tSTATUS\tCODE\tLATENCY\tUPTIME\tCHECKED\tRECENT\tURL")

	allUp := true
	for i := range targets {
		t := &targets[i]
		if !t.IsUp() && !t.IsPending() {
			allUp = false
		}

		stats := t.History.Stats()
		uptime := "-"
		if stats.Checks > 0 {
			uptime = fmt.Sprintf("%.1f%%", stats.UptimePercent)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(t.ID),
			t.Status,
			formatCode(t.LastHTTPCode),
			formatLatency(t.LastLatencyMs),
			uptime,
			formatChecked(t.LastCheckedAt(), now),
			sparkline(&t.History),
			t.URL,
		)
	}
	w.Flush()

	if allUp {
		fmt.Fprintf(out, "%d targets, all operational\n", len(targets))
	} else {
		fmt.Fprintf(out, "%d targets, some not operational\n", len(targets))
	}
}

// renderHistory prints the newest record first.
func renderHistory(out io.Writer, records []storage.CheckRecord, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintln(out, "no checks yet")
		return
	}

	w := newTable(out)
	fmt.Fprintln(w, "CHECKED\tSTATUS\tCODE\tLATENCY\tERROR")
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			formatChecked(&rec.CheckedAt, now),
			rec.Status,
			formatCode(rec.HTTPCode),
			formatLatency(rec.LatencyMs),
			rec.ErrorMessage(),
		)
	}
	w.Flush()
}

func formatCode(code *int) string {
	if code == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *code)
}

func formatLatency(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return fmt.Sprintf("%dms", *ms)
}

func formatChecked(at *time.Time, now time.Time) string {
	if at == nil {
		return "never"
	}
	return humanize.RelTime(*at, now, "ago", "from now")
}

// sparkline shows the most recent checks oldest to newest: + up, - down,
// ! error.
func sparkline(h *storage.History) string {
	start := 0
	if h.Len() > sparklineLen {
		start = h.Len() - sparklineLen
	}

	var b strings.Builder
	for i := start; i < h.Len(); i++ {
		switch h.At(i).Status {
		case storage.StatusUp:
			b.WriteByte('+')
		case storage.StatusDown:
			b.WriteByte('-')
		default:
			b.WriteByte('!')
		}
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}
