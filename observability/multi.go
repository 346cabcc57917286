package observability

import "context"

// MultiSink fans each event out to every wrapped sink in order.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink composes sinks; nil entries are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiSink{sinks: out}
}

// Emit forwards the event to all sinks.
func (m *MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m.sinks {
		s.Emit(ctx, ev)
	}
}
