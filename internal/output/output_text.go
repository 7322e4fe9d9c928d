package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/tkjaer/rawping/internal/shared"
)

// TextOutput prints the ping-style lines.
type TextOutput struct {
	mu       sync.Mutex
	w        io.Writer
	quiet    bool                // Only the start line and the statistics
	buffered bool                // Hold each session's lines until it finishes
	pending  map[uint16][]string // Buffered lines by session identifier
}

// NewTextOutput writes to w. Use buffered when several sessions run at once
// so their lines do not interleave.
func NewTextOutput(w io.Writer, quiet, buffered bool) *TextOutput {
	return &TextOutput{
		w:        w,
		quiet:    quiet,
		buffered: buffered,
		pending:  make(map[uint16][]string),
	}
}

func (t *TextOutput) Line(info shared.SessionInfo, line string) {
	if t.quiet {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.buffered {
		t.pending[info.Identifier] = append(t.pending[info.Identifier], line)
		return
	}
	fmt.Fprintln(t.w, line)
}

func (t *TextOutput) Probe(shared.SessionInfo, shared.ProbeResult) {
	// No-op, the rendered line arrives through Line
}

func (t *TextOutput) Finish(s *shared.Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()

	lines := t.pending[s.Identifier]
	delete(t.pending, s.Identifier)
	if t.quiet {
		lines = withoutProbeLines(s)
	}
	for _, l := range lines {
		fmt.Fprintln(t.w, l)
	}
}

// withoutProbeLines drops the per-probe lines from a summary's output.
func withoutProbeLines(s *shared.Summary) []string {
	probe := make(map[string]struct{}, len(s.Probes))
	for _, p := range s.Probes {
		probe[p.Line] = struct{}{}
	}
	out := make([]string, 0, len(s.Output))
	for _, l := range s.Output {
		if _, ok := probe[l]; !ok {
			out = append(out, l)
		}
	}
	return out
}

func (t *TextOutput) Close() error { return nil }
