package main

import (
	"strings"
	"testing"
	"time"
)

func TestRunDirNameDistinctAcrossSeeds(t *testing.T) {
	o := options{
		model:     "fc-tanh",
		epochs:    310,
		batchSize: 512,
		lr:        0.1,
		initLR:    0.01,
	}
	now := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)

	seen := make(map[string]int64)
	for seed := int64(1); seed <= 5; seed++ {
		name := runDirName(o, seed, now)
		if prev, ok := seen[name]; ok {
			t.Fatalf("seeds %d and %d collide on %q", prev, seed, name)
		}
		seen[name] = seed
	}
}

func TestRunDirNameSegments(t *testing.T) {
	o := options{
		model:     "fc-relu",
		epochs:    50,
		batchSize: 128,
		lr:        0.05,
		initLR:    0.005,
	}
	now := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)

	got := runDirName(o, 7, now)
	want := "fc-relu-ep50-bs128-lr0.05-init-lr0.005-seed7-03-14-09-26"
	if got != want {
		t.Fatalf("runDirName = %q, want %q", got, want)
	}
	if strings.Contains(got, "init-scale") {
		t.Fatalf("runDirName %q uses the init-scale label for the warmup start rate", got)
	}
}
