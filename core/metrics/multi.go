package metrics

// MultiSink fans every event out to each wrapped sink. Optional recorder
// calls are forwarded only to sinks that implement them. The first error is
// returned, after all sinks have been tried.
type MultiSink struct {
	sinks []MetricsSink
}

// NewMultiSink wraps the given sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) RecordMatch(ev MatchEvent) error {
	var first error
	for _, s := range m.sinks {
		if err := s.RecordMatch(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiSink) RecordRun(ev RunEvent) error {
	var first error
	for _, s := range m.sinks {
		if r, ok := s.(RunRecorder); ok {
			if err := r.RecordRun(ev); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func (m *MultiSink) RecordCandidates(ev CandidateEvent) error {
	var first error
	for _, s := range m.sinks {
		if r, ok := s.(CandidateRecorder); ok {
			if err := r.RecordCandidates(ev); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func (m *MultiSink) RecordHub(ev HubEvent) error {
	var first error
	for _, s := range m.sinks {
		if r, ok := s.(HubRecorder); ok {
			if err := r.RecordHub(ev); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func (m *MultiSink) RecordFleetSize(size int) error {
	var first error
	for _, s := range m.sinks {
		if r, ok := s.(FleetSizeRecorder); ok {
			if err := r.RecordFleetSize(size); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
