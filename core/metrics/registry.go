package metrics

import "github.com/haulnet/relay/core/registry"

var sinks = registry.New[MetricsSink]()

// RegisterSink adds a metrics sink builder under the given type name.
// Backends register themselves from init in infra/metrics.
func RegisterSink(name string, b registry.Builder[MetricsSink]) error {
	return sinks.Register(name, b)
}

// BuildSink constructs the configured sink set. Zero components yields a
// NopSink, several are fanned out through a MultiSink.
func BuildSink(comps []registry.Component) (MetricsSink, error) {
	switch len(comps) {
	case 0:
		return NopSink{}, nil
	case 1:
		return sinks.Build(comps[0])
	}
	built := make([]MetricsSink, len(comps))
	for i, c := range comps {
		s, err := sinks.Build(c)
		if err != nil {
			return nil, err
		}
		built[i] = s
	}
	return NewMultiSink(built...), nil
}
