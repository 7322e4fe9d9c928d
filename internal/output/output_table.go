package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/olekukonko/tablewriter"
	"github.com/tkjaer/rawping/internal/shared"
)

// TableOutput collects summaries and renders one table of all sessions on
// Close, in the order the sessions finished.
type TableOutput struct {
	mu        sync.Mutex
	w         io.Writer
	summaries []*shared.Summary
}

func NewTableOutput(w io.Writer) *TableOutput {
	return &TableOutput{w: w}
}

func (t *TableOutput) Line(shared.SessionInfo, string) {}

func (t *TableOutput) Probe(shared.SessionInfo, shared.ProbeResult) {}

func (t *TableOutput) Finish(s *shared.Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summaries = append(t.summaries, s)
}

func (t *TableOutput) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.summaries) == 0 {
		return nil
	}

	table := tablewriter.NewWriter(t.w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetBorder(true)
	table.SetHeader([]string{
		"Destination", "Address",
		"Sent", "Received", "Loss\n(%)",
		"RTT Min\n(ms)", "RTT Avg\n(ms)", "RTT Max\n(ms)",
	})
	for _, s := range t.summaries {
		table.Append(tableRow(s))
	}
	table.Render()
	return nil
}

func tableRow(s *shared.Summary) []string {
	addr := s.DestinationIP
	if addr == "" {
		addr = "-"
	}
	return []string{
		s.Destination,
		addr,
		fmt.Sprintf("%d", s.Sent),
		fmt.Sprintf("%d", s.Received),
		fmt.Sprintf("%.1f", s.LossPct),
		optMs(s.MinRTT),
		optMs(s.AvgRTT),
		optMs(s.MaxRTT),
	}
}

func optMs(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *v)
}
