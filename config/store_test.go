package config

import "testing"

func TestStoreSwapNotifiesSubscribers(t *testing.T) {
	first := &Config{}
	first.SetDefaults()
	s := NewStore(first)

	if s.Current() != first {
		t.Fatalf("current config is not the seeded one")
	}

	var got *Config
	s.OnChange(func(c *Config) { got = c })

	next := &Config{}
	next.SetDefaults()
	next.API.Addr = ":9999"
	s.Swap(next)

	if s.Current() != next {
		t.Fatalf("swap did not replace the live config")
	}
	if got == nil || got.API.Addr != ":9999" {
		t.Errorf("subscriber not notified with the new config: %+v", got)
	}
}
