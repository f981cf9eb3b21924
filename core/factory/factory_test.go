package factory

import (
	"errors"
	"testing"
	"time"
)

type sample struct {
	A       int
	Timeout time.Duration
}

type sampleConf struct {
	A       int           `json:"a"`
	Timeout time.Duration `json:"timeout"`
	Tags    []string      `json:"tags"`
}

func newSample(conf map[string]any) (*sample, error) {
	var c sampleConf
	if err := Decode(conf, &c); err != nil {
		return nil, err
	}
	return &sample{A: c.A, Timeout: c.Timeout}, nil
}

// Test registry registration and instantiation using Decode.
func TestRegistry_Create(t *testing.T) {
	reg := NewRegistry[*sample]()
	if err := reg.Register("s", newSample); err != nil {
		t.Fatalf("register: %v", err)
	}
	inst, err := reg.Create(ModuleConfig{Type: "s", Conf: map[string]any{"a": 3, "timeout": "1500ms"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inst.A != 3 {
		t.Fatalf("expected 3 got %d", inst.A)
	}
	if inst.Timeout != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s got %v", inst.Timeout)
	}
}

// Test duplicate registration, unknown types and factory failures.
func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry[*sample]()
	if err := reg.Register("x", newSample); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("x", newSample); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := reg.Register("y", nil); err == nil {
		t.Fatal("expected nil factory error")
	}
	if _, err := reg.Create(ModuleConfig{Type: "y"}); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if _, err := reg.Create(ModuleConfig{Type: "x", Conf: map[string]any{"bogus": 1}}); err == nil {
		t.Fatal("expected unused key error")
	}
	if got := reg.Types(); len(got) != 1 || got[0] != "x" {
		t.Fatalf("unexpected types %v", got)
	}
}

func TestDecode_CommaSeparatedSlice(t *testing.T) {
	var c sampleConf
	if err := Decode(map[string]any{"tags": "a,b"}, &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(c.Tags) != 2 || c.Tags[1] != "b" {
		t.Fatalf("unexpected tags %v", c.Tags)
	}
}
