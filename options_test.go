package qsim

import (
	"testing"

	"github.com/gogpu/qsim/backend/cpu"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.maxQubits != MaxQubits {
		t.Errorf("maxQubits = %d, want %d", o.maxQubits, MaxQubits)
	}
	if !o.interning {
		t.Error("interning should be enabled by default")
	}
	if o.device != nil || o.workers != 0 || o.memoryMB != 0 {
		t.Errorf("unexpected defaults: %+v", o)
	}
}

func TestEngineOptions(t *testing.T) {
	dev := cpu.New(cpu.Config{})
	defer dev.Close()

	tests := []struct {
		name  string
		opts  []EngineOption
		check func(o engineOptions) bool
	}{
		{"device", []EngineOption{WithDevice(dev)}, func(o engineOptions) bool { return o.device == dev }},
		{"max qubits", []EngineOption{WithMaxQubits(10)}, func(o engineOptions) bool { return o.maxQubits == 10 }},
		{"max qubits too high", []EngineOption{WithMaxQubits(MaxQubits + 1)}, func(o engineOptions) bool { return o.maxQubits == MaxQubits }},
		{"workers", []EngineOption{WithWorkers(3)}, func(o engineOptions) bool { return o.workers == 3 }},
		{"memory", []EngineOption{WithMemoryBudgetMB(64)}, func(o engineOptions) bool { return o.memoryMB == 64 }},
		{"interning off", []EngineOption{WithInterning(false)}, func(o engineOptions) bool { return !o.interning }},
		{"last wins", []EngineOption{WithWorkers(1), WithWorkers(5)}, func(o engineOptions) bool { return o.workers == 5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaultOptions()
			for _, opt := range tt.opts {
				opt(&o)
			}
			if !tt.check(o) {
				t.Errorf("options = %+v", o)
			}
		})
	}
}

func TestEngineMemoryBudget(t *testing.T) {
	e := newTestEngine(t, WithMemoryBudgetMB(32))
	dev, ok := e.Device().(*cpu.Device)
	if !ok {
		t.Fatalf("engine device is %T, want *cpu.Device", e.Device())
	}
	if got := dev.MemoryStats().TotalBytes; got != 32<<20 {
		t.Errorf("budget = %d bytes, want %d", got, 32<<20)
	}
}
