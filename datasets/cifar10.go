package datasets

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

const (
	cifarChannels = 3
	cifarSize     = 32
	cifarDim      = cifarChannels * cifarSize * cifarSize
	cifarRecord   = 1 + cifarDim
	cifarCropPad  = 4
)

// Per-channel statistics of the CIFAR-10 training set.
var (
	cifarMean = [cifarChannels]float64{0.4914, 0.4822, 0.4465}
	cifarStd  = [cifarChannels]float64{0.2471, 0.2435, 0.2616}
)

// readCIFARBatch parses one binary batch file: records of one label byte
// followed by 3072 CHW pixel bytes.
func readCIFARBatch(path string, images []float64, labels []int) ([]float64, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %v", path, err)
	}
	defer f.Close()

	record := make([]byte, cifarRecord)
	for {
		if _, err := io.ReadFull(f, record); err != nil {
			if err == io.EOF {
				return images, labels, nil
			}
			return nil, nil, fmt.Errorf("read %s: %v", path, err)
		}

		labels = append(labels, int(record[0]))
		for i, b := range record[1:] {
			c := i / (cifarSize * cifarSize)
			images = append(images, (float64(b)/255.0-cifarMean[c])/cifarStd[c])
		}
	}
}

func loadCIFAR10(cfg Config) (Loader, Loader, error) {
	var trainData []float64
	var trainLabels []int
	for i := 1; i <= 5; i++ {
		var err error
		trainData, trainLabels, err = readCIFARBatch(
			filepath.Join(cfg.Root, fmt.Sprintf("data_batch_%d.bin", i)), trainData, trainLabels)
		if err != nil {
			return nil, nil, fmt.Errorf("load cifar10: %v", err)
		}
	}
	if len(trainLabels) == 0 {
		return nil, nil, fmt.Errorf("load cifar10: no training records in %s", cfg.Root)
	}

	testData, testLabels, err := readCIFARBatch(filepath.Join(cfg.Root, "test_batch.bin"), nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("load cifar10: %v", err)
	}
	if len(testLabels) == 0 {
		return nil, nil, fmt.Errorf("load cifar10: no test records in %s", cfg.Root)
	}

	var augment AugmentFunc
	if cfg.Augment {
		augment = cropFlipAugment(cifarChannels, cifarSize, cifarSize, cifarCropPad,
			rand.New(rand.NewSource(cfg.Seed)))
	}

	train, err := newDenseLoader(
		mat.NewDense(len(trainLabels), cifarDim, trainData), trainLabels, 10,
		cfg.BatchSize, true, cfg.Seed, augment)
	if err != nil {
		return nil, nil, err
	}

	val, err := newDenseLoader(
		mat.NewDense(len(testLabels), cifarDim, testData), testLabels, 10,
		cfg.BatchSize, false, cfg.Seed, nil)
	if err != nil {
		return nil, nil, err
	}
	return train, val, nil
}

func init() {
	mustRegister(Provider{ID: "cifar10", Load: loadCIFAR10})
}
