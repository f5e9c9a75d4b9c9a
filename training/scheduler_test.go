package training

import (
	"math"
	"testing"
)

func TestStepLRScheduler(t *testing.T) {
	scheduler := NewStepLRScheduler(50, 0.33)
	baseLR := 0.1

	tests := []struct {
		epoch      int
		expectedLR float64
	}{
		{0, 0.1},
		{49, 0.1},
		{50, 0.033},
		{99, 0.033},
		{100, 0.01089},
		{150, 0.0035937},
	}

	for _, tt := range tests {
		lr := scheduler.GetLR(tt.epoch, baseLR)
		if math.Abs(lr-tt.expectedLR) > 1e-9 {
			t.Errorf("Epoch %d: expected LR %f, got %f", tt.epoch, tt.expectedLR, lr)
		}
	}
}

func TestStepLRSchedulerDefaults(t *testing.T) {
	scheduler := NewStepLRScheduler(0, 0)
	if scheduler.StepSize != 50 {
		t.Errorf("Expected default step size 50, got %d", scheduler.StepSize)
	}
	if scheduler.Gamma != 0.33 {
		t.Errorf("Expected default gamma 0.33, got %f", scheduler.Gamma)
	}
}

func TestExpWarmupRamp(t *testing.T) {
	w, err := NewWarmupScheduler(WarmupExp, 0.01)
	if err != nil {
		t.Fatalf("Failed to create warmup scheduler: %v", err)
	}
	baseLR := 0.1

	// Multiplicative ramp from the initial rate.
	tests := []struct {
		epoch      int
		expectedLR float64
	}{
		{0, 0.01},
		{1, 0.0105},
		{2, 0.011025},
		{10, 0.01 * math.Pow(1.05, 10)},
	}
	for _, tt := range tests {
		lr := w.GetLR(tt.epoch, baseLR)
		if math.Abs(lr-tt.expectedLR) > 1e-9 {
			t.Errorf("Epoch %d: expected LR %f, got %f", tt.epoch, tt.expectedLR, lr)
		}
	}

	// The ramp is capped at the base rate.
	if lr := w.GetLR(1000, baseLR); lr != baseLR {
		t.Errorf("Expected ramp capped at %f, got %f", baseLR, lr)
	}

	// ln(10)/ln(1.05) ≈ 47.19, truncated.
	if span := w.Span(baseLR); span != 47 {
		t.Errorf("Expected exp warmup span 47, got %d", span)
	}
}

func TestLinearWarmupRamp(t *testing.T) {
	w, err := NewWarmupScheduler(WarmupLinear, 0.01)
	if err != nil {
		t.Fatalf("Failed to create warmup scheduler: %v", err)
	}
	baseLR := 0.1

	rate := 0.09 / 50
	for _, epoch := range []int{0, 1, 10, 25} {
		expected := 0.01 + rate*float64(epoch)
		lr := w.GetLR(epoch, baseLR)
		if math.Abs(lr-expected) > 1e-12 {
			t.Errorf("Epoch %d: expected LR %f, got %f", epoch, expected, lr)
		}
	}

	if lr := w.GetLR(100, baseLR); lr != baseLR {
		t.Errorf("Expected ramp capped at %f, got %f", baseLR, lr)
	}
	if span := w.Span(baseLR); span != 50 {
		t.Errorf("Expected linear warmup span 50, got %d", span)
	}
}

func TestConstantWarmup(t *testing.T) {
	w, err := NewWarmupScheduler(WarmupConstant, 0.01)
	if err != nil {
		t.Fatalf("Failed to create warmup scheduler: %v", err)
	}
	for _, epoch := range []int{0, 10, 49} {
		if lr := w.GetLR(epoch, 0.1); lr != 0.01 {
			t.Errorf("Epoch %d: expected held LR 0.01, got %f", epoch, lr)
		}
	}
	if span := w.Span(0.1); span != 50 {
		t.Errorf("Expected constant warmup span 50, got %d", span)
	}
}

func TestNoWarmup(t *testing.T) {
	w, err := NewWarmupScheduler(WarmupNone, 0.01)
	if err != nil {
		t.Fatalf("Failed to create warmup scheduler: %v", err)
	}
	if lr := w.GetLR(0, 0.1); lr != 0.1 {
		t.Errorf("Expected base LR immediately, got %f", lr)
	}
	if span := w.Span(0.1); span != 1 {
		t.Errorf("Expected span 1 for no warmup, got %d", span)
	}
}

func TestWarmupRejectsNonPositiveInitLR(t *testing.T) {
	if _, err := NewWarmupScheduler(WarmupExp, 0); err == nil {
		t.Error("Expected error for zero initial learning rate")
	}
	if _, err := NewWarmupScheduler(WarmupExp, -0.01); err == nil {
		t.Error("Expected error for negative initial learning rate")
	}
}

func TestParseWarmupKind(t *testing.T) {
	for _, name := range []string{"none", "constant", "linear", "exp"} {
		kind, err := ParseWarmupKind(name)
		if err != nil {
			t.Errorf("ParseWarmupKind(%q) failed: %v", name, err)
		}
		if string(kind) != name {
			t.Errorf("ParseWarmupKind(%q) = %q", name, kind)
		}
	}
	if _, err := ParseWarmupKind("cosine"); err == nil {
		t.Error("Expected error for unknown warmup scheme")
	}
}

func TestSequentialSchedulerHandover(t *testing.T) {
	warmup, err := NewWarmupScheduler(WarmupConstant, 0.01)
	if err != nil {
		t.Fatalf("Failed to create warmup scheduler: %v", err)
	}
	decay := NewStepLRScheduler(50, 0.33)
	seq, err := NewSequentialScheduler(warmup, decay, 50)
	if err != nil {
		t.Fatalf("Failed to create sequential scheduler: %v", err)
	}
	baseLR := 0.1

	// Before the milestone the warmup holds the floor.
	if lr := seq.GetLR(0, baseLR); lr != 0.01 {
		t.Errorf("Epoch 0: expected warmup LR 0.01, got %f", lr)
	}
	if lr := seq.GetLR(49, baseLR); lr != 0.01 {
		t.Errorf("Epoch 49: expected warmup LR 0.01, got %f", lr)
	}

	// After the milestone the decay schedule restarts from epoch zero.
	if lr := seq.GetLR(50, baseLR); lr != baseLR {
		t.Errorf("Epoch 50: expected base LR %f, got %f", baseLR, lr)
	}
	if lr := seq.GetLR(99, baseLR); lr != baseLR {
		t.Errorf("Epoch 99: expected base LR %f, got %f", baseLR, lr)
	}
	expected := baseLR * 0.33
	if lr := seq.GetLR(100, baseLR); math.Abs(lr-expected) > 1e-12 {
		t.Errorf("Epoch 100: expected decayed LR %f, got %f", expected, lr)
	}
}

func TestSequentialSchedulerValidation(t *testing.T) {
	decay := NewStepLRScheduler(50, 0.33)
	if _, err := NewSequentialScheduler(nil, decay, 10); err == nil {
		t.Error("Expected error for nil first scheduler")
	}
	if _, err := NewSequentialScheduler(decay, nil, 10); err == nil {
		t.Error("Expected error for nil second scheduler")
	}
	if _, err := NewSequentialScheduler(decay, decay, -1); err == nil {
		t.Error("Expected error for negative milestone")
	}
}

func TestSchedulerNames(t *testing.T) {
	w, _ := NewWarmupScheduler(WarmupExp, 0.01)
	seq, _ := NewSequentialScheduler(w, NewStepLRScheduler(50, 0.33), 47)
	if got := seq.GetName(); got != "Sequential(Warmup(exp), StepLR)" {
		t.Errorf("Unexpected sequential name: %s", got)
	}
	if got := (&NoOpScheduler{}).GetName(); got != "ConstantLR" {
		t.Errorf("Unexpected no-op name: %s", got)
	}
}
