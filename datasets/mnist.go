package datasets

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

const (
	idxImagesMagic = 2051
	idxLabelsMagic = 2049

	mnistMean = 0.1307
	mnistStd  = 0.3081
)

// openIDX opens an IDX file, transparently decompressing when only the
// gzipped variant is present.
func openIDX(root, name string) (io.ReadCloser, error) {
	plain := filepath.Join(root, name)
	if f, err := os.Open(plain); err == nil {
		return f, nil
	}

	f, err := os.Open(plain + ".gz")
	if err != nil {
		return nil, fmt.Errorf("dataset file %s not found in %s (plain or .gz)", name, root)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s.gz: %v", name, err)
	}
	return &gzipFile{gz: gz, file: f}, nil
}

type gzipFile struct {
	gz   *gzip.Reader
	file *os.File
}

func (g *gzipFile) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipFile) Close() error {
	g.gz.Close()
	return g.file.Close()
}

// readIDXImages parses an IDX image file into flattened rows of raw bytes.
func readIDXImages(root, name string) (data []byte, count, rows, cols int, err error) {
	r, err := openIDX(root, name)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	defer r.Close()

	var header [4]uint32
	for i := range header {
		if err := binary.Read(r, binary.BigEndian, &header[i]); err != nil {
			return nil, 0, 0, 0, fmt.Errorf("read %s header: %v", name, err)
		}
	}
	if header[0] != idxImagesMagic {
		return nil, 0, 0, 0, fmt.Errorf("%s: bad magic %d, expected %d", name, header[0], idxImagesMagic)
	}

	count, rows, cols = int(header[1]), int(header[2]), int(header[3])
	data = make([]byte, count*rows*cols)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, 0, 0, 0, fmt.Errorf("read %s pixels: %v", name, err)
	}
	return data, count, rows, cols, nil
}

// readIDXLabels parses an IDX label file.
func readIDXLabels(root, name string) ([]int, error) {
	r, err := openIDX(root, name)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var header [2]uint32
	for i := range header {
		if err := binary.Read(r, binary.BigEndian, &header[i]); err != nil {
			return nil, fmt.Errorf("read %s header: %v", name, err)
		}
	}
	if header[0] != idxLabelsMagic {
		return nil, fmt.Errorf("%s: bad magic %d, expected %d", name, header[0], idxLabelsMagic)
	}

	raw := make([]byte, header[1])
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("read %s labels: %v", name, err)
	}

	labels := make([]int, len(raw))
	for i, b := range raw {
		labels[i] = int(b)
	}
	return labels, nil
}

// mnistMatrix normalizes raw pixel bytes into a flattened example matrix.
func mnistMatrix(raw []byte, count, dim int) *mat.Dense {
	data := make([]float64, count*dim)
	for i, b := range raw {
		data[i] = (float64(b)/255.0 - mnistMean) / mnistStd
	}
	return mat.NewDense(count, dim, data)
}

func loadMNIST(cfg Config) (Loader, Loader, error) {
	trainRaw, trainN, rows, cols, err := readIDXImages(cfg.Root, "train-images-idx3-ubyte")
	if err != nil {
		return nil, nil, fmt.Errorf("load mnist: %v", err)
	}
	trainLabels, err := readIDXLabels(cfg.Root, "train-labels-idx1-ubyte")
	if err != nil {
		return nil, nil, fmt.Errorf("load mnist: %v", err)
	}
	if len(trainLabels) != trainN {
		return nil, nil, fmt.Errorf("load mnist: %d train images but %d labels", trainN, len(trainLabels))
	}

	testRaw, testN, _, _, err := readIDXImages(cfg.Root, "t10k-images-idx3-ubyte")
	if err != nil {
		return nil, nil, fmt.Errorf("load mnist: %v", err)
	}
	testLabels, err := readIDXLabels(cfg.Root, "t10k-labels-idx1-ubyte")
	if err != nil {
		return nil, nil, fmt.Errorf("load mnist: %v", err)
	}
	if len(testLabels) != testN {
		return nil, nil, fmt.Errorf("load mnist: %d test images but %d labels", testN, len(testLabels))
	}

	dim := rows * cols

	train, err := newDenseLoader(mnistMatrix(trainRaw, trainN, dim), trainLabels, 10,
		cfg.BatchSize, true, cfg.Seed, nil)
	if err != nil {
		return nil, nil, err
	}

	// Validation is never shuffled: its order fixes the example axis shared
	// by the output history and the captured feature matrix.
	val, err := newDenseLoader(mnistMatrix(testRaw, testN, dim), testLabels, 10,
		cfg.BatchSize, false, cfg.Seed, nil)
	if err != nil {
		return nil, nil, err
	}
	return train, val, nil
}

func init() {
	mustRegister(Provider{ID: "mnist", Load: loadMNIST})
}
