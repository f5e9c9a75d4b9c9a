package datasets

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeCIFARFixture(t *testing.T, root string, perBatch int) {
	t.Helper()

	write := func(name string, n, offset int) {
		data := make([]byte, 0, n*cifarRecord)
		for i := 0; i < n; i++ {
			record := make([]byte, cifarRecord)
			record[0] = byte((offset + i) % 10)
			for j := 1; j < cifarRecord; j++ {
				record[j] = byte((offset + i + j) % 256)
			}
			data = append(data, record...)
		}
		if err := os.WriteFile(filepath.Join(root, name), data, 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	for i := 1; i <= 5; i++ {
		write(fmt.Sprintf("data_batch_%d.bin", i), perBatch, i*perBatch)
	}
	write("test_batch.bin", perBatch, 0)
}

func TestLoadCIFAR10(t *testing.T) {
	root := t.TempDir()
	writeCIFARFixture(t, root, 4)

	train, val, err := loadCIFAR10(Config{Root: root, BatchSize: 8, Seed: 1})
	if err != nil {
		t.Fatalf("loadCIFAR10 failed: %v", err)
	}

	if train.NumExamples() != 20 || train.NumFeatures() != cifarDim || train.NumClasses() != 10 {
		t.Errorf("Train split: %d examples, %d features, %d classes",
			train.NumExamples(), train.NumFeatures(), train.NumClasses())
	}
	if val.NumExamples() != 4 {
		t.Errorf("Val split has %d examples", val.NumExamples())
	}

	batch, labels, err := val.NextBatch()
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	// Test batch records start at offset 0: labels 0..3 in order.
	for i, l := range labels {
		if l != i%10 {
			t.Errorf("Label %d is %d", i, l)
		}
	}

	// First pixel of record 0 is byte value 1 (j=1), channel 0.
	want := (1.0/255.0 - cifarMean[0]) / cifarStd[0]
	if math.Abs(batch.At(0, 0)-want) > 1e-12 {
		t.Errorf("Pixel normalization off: got %f, want %f", batch.At(0, 0), want)
	}
}

func TestLoadCIFAR10WithAugmentation(t *testing.T) {
	root := t.TempDir()
	writeCIFARFixture(t, root, 3)

	train, val, err := loadCIFAR10(Config{Root: root, BatchSize: 15, Seed: 2, Augment: true})
	if err != nil {
		t.Fatalf("loadCIFAR10 failed: %v", err)
	}

	// Augmentation must not disturb the validation split: two passes over
	// val serve identical data.
	b1, _, err := val.NextBatch()
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	val.Reset()
	b2, _, err := val.NextBatch()
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	r, c := b1.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if b1.At(i, j) != b2.At(i, j) {
				t.Fatal("Validation data changed between passes")
			}
		}
	}

	// Training batches still have the right shape under augmentation.
	batch, labels, err := train.NextBatch()
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	br, bc := batch.Dims()
	if br != 15 || bc != cifarDim {
		t.Errorf("Train batch is %dx%d", br, bc)
	}
	if len(labels) != 15 {
		t.Errorf("Train batch has %d labels", len(labels))
	}
}

func TestLoadCIFAR10MissingFiles(t *testing.T) {
	if _, _, err := loadCIFAR10(Config{Root: t.TempDir(), BatchSize: 8, Seed: 1}); err == nil {
		t.Error("Expected error for missing batch files")
	}
}
