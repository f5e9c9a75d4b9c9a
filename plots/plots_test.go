package plots

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tsawler/go-basis/training"
)

func testPayload(scale string) training.PlotData {
	return training.PlotData{
		PlotType:  training.TrainingCurves,
		Title:     "Training Curves - test",
		ModelName: "test",
		Series: []training.SeriesData{
			{
				Name: "loss",
				Data: []training.DataPoint{{X: 1, Y: 0.9}, {X: 2, Y: 0.5}, {X: 3, Y: 0.3}},
			},
			{
				Name: "accuracy",
				Data: []training.DataPoint{{X: 1, Y: 0.4}, {X: 2, Y: 0.7}, {X: 3, Y: 0.85}},
			},
		},
		Config: training.PlotConfig{
			XAxisLabel: "Epoch",
			YAxisLabel: "Value",
			XAxisScale: "linear",
			YAxisScale: scale,
			ShowLegend: true,
		},
	}
}

func TestRenderWritesAllFormats(t *testing.T) {
	base := filepath.Join(t.TempDir(), "curves")
	if err := Render(testPayload("linear"), base); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	for _, format := range Formats {
		path := base + "." + format
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("Expected %s to exist: %v", path, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", path)
		}
	}
}

func TestRenderLogScale(t *testing.T) {
	base := filepath.Join(t.TempDir(), "lr")
	if err := Render(testPayload("log"), base); err != nil {
		t.Fatalf("Render with log scale failed: %v", err)
	}
}

func TestRenderAll(t *testing.T) {
	dir := t.TempDir()
	payloads := map[string]training.PlotData{
		filepath.Join(dir, "a"): testPayload("linear"),
		filepath.Join(dir, "b"): testPayload("linear"),
	}
	if err := RenderAll(payloads); err != nil {
		t.Fatalf("RenderAll failed: %v", err)
	}
	for base := range payloads {
		if _, err := os.Stat(base + ".png"); err != nil {
			t.Errorf("Missing output for %s: %v", base, err)
		}
	}
}
