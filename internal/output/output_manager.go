package output

import (
	"errors"

	"github.com/tkjaer/rawping/internal/shared"
)

// Output receives the event stream of every session in a run.
// Implementations must be safe for concurrent use.
type Output interface {
	Line(info shared.SessionInfo, line string)
	Probe(info shared.SessionInfo, r shared.ProbeResult)
	Finish(s *shared.Summary)
	Close() error
}

// OutputManager fans events out to the registered outputs. Register all
// outputs before the first session starts.
type OutputManager struct {
	outputs []Output
}

func (om *OutputManager) Register(o Output) {
	om.outputs = append(om.outputs, o)
}

func (om *OutputManager) Line(info shared.SessionInfo, line string) {
	for _, o := range om.outputs {
		o.Line(info, line)
	}
}

func (om *OutputManager) Probe(info shared.SessionInfo, r shared.ProbeResult) {
	for _, o := range om.outputs {
		o.Probe(info, r)
	}
}

func (om *OutputManager) Finish(s *shared.Summary) {
	for _, o := range om.outputs {
		o.Finish(s)
	}
}

// Close closes every output and returns the joined errors.
func (om *OutputManager) Close() error {
	var errs []error
	for _, o := range om.outputs {
		if err := o.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
