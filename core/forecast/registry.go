package forecast

import "github.com/haulnet/relay/core/registry"

var forecasters = registry.New[Forecaster]()

// RegisterForecaster adds a forecaster builder under the given type name.
func RegisterForecaster(name string, b registry.Builder[Forecaster]) error {
	return forecasters.Register(name, b)
}

// Build constructs the configured forecaster. An empty type selects the
// history-based implementation.
func Build(c registry.Component) (Forecaster, error) {
	if c.Type == "" {
		c.Type = "history"
	}
	return forecasters.Build(c)
}

func init() {
	_ = RegisterForecaster("history", func(conf map[string]any) (Forecaster, error) {
		var cfg Config
		if err := registry.Decode(conf, &cfg); err != nil {
			return nil, err
		}
		return NewHistoryForecaster(cfg), nil
	})
	_ = RegisterForecaster("static", func(map[string]any) (Forecaster, error) {
		return StaticForecaster{}, nil
	})
}
