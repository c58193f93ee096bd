package probe

import (
	"math"
	"testing"
)

func TestNewKnownKinds(t *testing.T) {
	for _, kind := range []string{"load", "loadvec", "mem", "cpu", "random"} {
		if _, err := New(kind); err != nil {
			t.Errorf("New(%q): %v", kind, err)
		}
	}
	if _, err := New("bogus"); err == nil {
		t.Error("New(bogus): expected error")
	}
}

func TestLoadAverages(t *testing.T) {
	d, err := LoadAverages()
	if err != nil {
		t.Skipf("no /proc/loadavg: %v", err)
	}
	vs := d.Values()
	if len(vs) != 3 {
		t.Fatalf("got %d values, want 3", len(vs))
	}
	for i, v := range vs {
		if v < 0 || math.IsNaN(v) {
			t.Errorf("load[%d] = %v", i, v)
		}
	}
}

func TestMemoryAvailable(t *testing.T) {
	d, err := MemoryAvailable()
	if err != nil {
		t.Skipf("no /proc/meminfo: %v", err)
	}
	if !d.IsScalar() || d.Value() <= 0 {
		t.Errorf("available memory = %v GB", d.Value())
	}
}

func TestCPUUtilizationBounds(t *testing.T) {
	p := NewCPUUtilization()
	for i := 0; i < 2; i++ {
		d, err := p()
		if err != nil {
			t.Skipf("no /proc/stat: %v", err)
		}
		if v := d.Value(); v < 0 || v > 100 {
			t.Errorf("tick %d: utilization = %v, want [0, 100]", i, v)
		}
	}
}

func TestRandomWalkIsBoundedPerStep(t *testing.T) {
	p := NewRandomWalk(10)
	prev := 10.0
	for i := 0; i < 100; i++ {
		d, err := p()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		v := d.Value()
		if math.Abs(v-prev) > 0.5 {
			t.Fatalf("step %d moved %v, want at most 0.5", i, math.Abs(v-prev))
		}
		prev = v
	}
}
