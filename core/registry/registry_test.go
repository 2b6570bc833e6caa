package registry

import (
	"strings"
	"testing"
)

func TestRegisterAndBuild(t *testing.T) {
	r := New[string]()
	if err := r.Register("echo", func(conf map[string]any) (string, error) {
		v, _ := conf["value"].(string)
		return v, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := r.Build(Component{Type: "echo", Conf: map[string]any{"value": "hi"}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got != "hi" {
		t.Errorf("built %q, want hi", got)
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := New[int]()
	b := func(map[string]any) (int, error) { return 1, nil }
	if err := r.Register("one", b); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("one", b); err == nil {
		t.Fatalf("duplicate registration accepted")
	}
	if err := r.Register("nil", nil); err == nil {
		t.Fatalf("nil builder accepted")
	}
}

func TestBuildUnknownListsKnown(t *testing.T) {
	r := New[int]()
	_ = r.Register("a", func(map[string]any) (int, error) { return 0, nil })
	_ = r.Register("b", func(map[string]any) (int, error) { return 0, nil })

	_, err := r.Build(Component{Type: "zzz"})
	if err == nil {
		t.Fatalf("unknown type accepted")
	}
	if !strings.Contains(err.Error(), "a") || !strings.Contains(err.Error(), "b") {
		t.Errorf("error does not list known types: %v", err)
	}
}

func TestDecodeUsesJSONTags(t *testing.T) {
	type conf struct {
		BucketMinutes int     `json:"bucket_minutes"`
		WideFactor    float64 `json:"wide_factor"`
	}
	var out conf
	err := Decode(map[string]any{"bucket_minutes": 30, "wide_factor": 2.5}, &out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.BucketMinutes != 30 || out.WideFactor != 2.5 {
		t.Errorf("decoded %+v", out)
	}
}
