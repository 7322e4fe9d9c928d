package output

import (
	"errors"
	"testing"

	"github.com/tkjaer/rawping/internal/shared"
)

// mockOutput is a mock implementation of Output for testing
type mockOutput struct {
	lines      []string
	probes     []shared.ProbeResult
	finished   []*shared.Summary
	closeCalls int
	closeErr   error
}

func (m *mockOutput) Line(_ shared.SessionInfo, line string) {
	m.lines = append(m.lines, line)
}

func (m *mockOutput) Probe(_ shared.SessionInfo, r shared.ProbeResult) {
	m.probes = append(m.probes, r)
}

func (m *mockOutput) Finish(s *shared.Summary) {
	m.finished = append(m.finished, s)
}

func (m *mockOutput) Close() error {
	m.closeCalls++
	return m.closeErr
}

func TestOutputManager_Register(t *testing.T) {
	om := &OutputManager{}
	om.Register(&mockOutput{})
	if len(om.outputs) != 1 {
		t.Errorf("Register() outputs count = %d, want 1", len(om.outputs))
	}
	om.Register(&mockOutput{})
	if len(om.outputs) != 2 {
		t.Errorf("Register() outputs count = %d, want 2", len(om.outputs))
	}
}

func TestOutputManager_FanOut(t *testing.T) {
	om := &OutputManager{}
	mock1 := &mockOutput{}
	mock2 := &mockOutput{}
	om.Register(mock1)
	om.Register(mock2)

	info := shared.SessionInfo{Destination: "192.0.2.1", Identifier: 7}
	om.Line(info, "PING 192.0.2.1 (192.0.2.1): 55 data bytes")
	om.Probe(info, shared.ProbeResult{Seq: 0, Outcome: shared.OutcomeTimeout})
	sum := &shared.Summary{SessionInfo: info}
	om.Finish(sum)

	for i, m := range []*mockOutput{mock1, mock2} {
		if len(m.lines) != 1 || m.lines[0] != "PING 192.0.2.1 (192.0.2.1): 55 data bytes" {
			t.Errorf("output %d lines = %q", i, m.lines)
		}
		if len(m.probes) != 1 || m.probes[0].Outcome != shared.OutcomeTimeout {
			t.Errorf("output %d probes = %+v", i, m.probes)
		}
		if len(m.finished) != 1 || m.finished[0] != sum {
			t.Errorf("output %d did not receive the summary", i)
		}
	}
}

func TestOutputManager_Close(t *testing.T) {
	om := &OutputManager{}
	mock1 := &mockOutput{closeErr: errors.New("disk full")}
	mock2 := &mockOutput{}
	om.Register(mock1)
	om.Register(mock2)

	err := om.Close()
	if err == nil || err.Error() != "disk full" {
		t.Errorf("Close() error = %v, want disk full", err)
	}
	if mock1.closeCalls != 1 || mock2.closeCalls != 1 {
		t.Errorf("Close() calls = %d, %d; want 1, 1", mock1.closeCalls, mock2.closeCalls)
	}
}

func TestOutputManager_Empty(t *testing.T) {
	om := &OutputManager{}

	// Should not panic with no outputs
	om.Line(shared.SessionInfo{}, "x")
	om.Probe(shared.SessionInfo{}, shared.ProbeResult{})
	om.Finish(&shared.Summary{})
	if err := om.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
