package output

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/tkjaer/rawping/internal/shared"
)

// JSONOutput writes one summary object per session, as JSON lines, to a
// file or stdout.
type JSONOutput struct {
	mu       sync.Mutex
	file     *os.File
	enc      *json.Encoder
	toStdout bool
}

func NewJSONOutput(filename string) (*JSONOutput, error) {
	if filename == "" {
		return &JSONOutput{
			file:     os.Stdout,
			enc:      json.NewEncoder(os.Stdout),
			toStdout: true,
		}, nil
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &JSONOutput{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

func (j *JSONOutput) Line(shared.SessionInfo, string) {
	// No-op, only the summary is written
}

func (j *JSONOutput) Probe(shared.SessionInfo, shared.ProbeResult) {
	// No-op, probes are part of the summary
}

func (j *JSONOutput) Finish(s *shared.Summary) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(s)
}

func (j *JSONOutput) Close() error {
	if j.toStdout {
		return nil
	}
	return j.file.Close()
}
