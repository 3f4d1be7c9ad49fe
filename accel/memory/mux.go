package memory

import "github.com/sarchlab/nnaccel/sim/naming"

// FeatureMux routes the feature read stream either to the feature store or
// to the feedback tap of the result store. Returned data is steered by the
// selection that was in effect when the read was issued, so changing the
// selection never mixes sources within a transfer.
type FeatureMux struct {
	naming.NamedBase

	primary  Port
	feedback Port

	useFeedback bool
	delayed     bool
}

// NewFeatureMux creates a mux selecting primary until SetFeedback is called.
func NewFeatureMux(name string, primary, feedback Port) *FeatureMux {
	return &FeatureMux{
		NamedBase: naming.MakeNamedBase(name),
		primary:   primary,
		feedback:  feedback,
	}
}

// SetFeedback selects the feedback tap for reads issued from now on.
func (m *FeatureMux) SetFeedback(on bool) {
	m.useFeedback = on
}

// Feedback tells if reads currently go to the feedback tap.
func (m *FeatureMux) Feedback() bool {
	return m.useFeedback
}

func (m *FeatureMux) selected(feedback bool) Port {
	if feedback {
		return m.feedback
	}

	return m.primary
}

// Read issues a read on the selected source.
func (m *FeatureMux) Read(addr int) {
	m.selected(m.useFeedback).Read(addr)
}

// Data returns the word read on the previous tick.
func (m *FeatureMux) Data() uint32 {
	return m.selected(m.delayed).Data()
}

// Commit latches the selection for the data returned next tick. The sources
// are committed by their owner.
func (m *FeatureMux) Commit() {
	m.delayed = m.useFeedback
}
