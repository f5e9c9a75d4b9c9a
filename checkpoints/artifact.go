package checkpoints

import (
	"fmt"
	"math"
	"os"
	"time"

	"gonum.org/v1/gonum/mat"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tsawler/go-basis/tensor"
)

// Field numbers from artifact.proto.
const (
	tensorRowsField   = 1
	tensorColsField   = 2
	tensorValuesField = 3

	seriesNameField   = 1
	seriesValuesField = 2

	coeffDirectionField = 1
	coeffValuesField    = 2

	artifactModelField          = 1
	artifactDatasetField        = 2
	artifactEpochsField         = 3
	artifactSeedField           = 4
	artifactFeaturesField       = 5
	artifactClassifierField     = 6
	artifactSingularValuesField = 7
	artifactCoefficientsField   = 8
	artifactMetricsField        = 9
	artifactCreatedField        = 10
	artifactOutputsField        = 11
)

// Tensor is a dense row-major float64 matrix in artifact form.
type Tensor struct {
	Rows   int
	Cols   int
	Values []float64
}

// MetricSeries is one named per-epoch scalar history.
type MetricSeries struct {
	Name   string
	Values []float64
}

// CoefficientSeries holds the per-epoch alignment coefficients of one
// singular direction. Directions are numbered from 1.
type CoefficientSeries struct {
	Direction int
	Values    []float64
}

// RunArtifact packs everything a completed run produced.
type RunArtifact struct {
	Model   string
	Dataset string
	Epochs  int
	Seed    int64

	Features   *Tensor
	Classifier *Tensor

	// Outputs holds one snapshot per recorded epoch, the pre-training
	// snapshot first, so a saved run can be re-analyzed without retraining.
	Outputs []*Tensor

	SingularValues []float64
	Coefficients   []CoefficientSeries
	Metrics        []MetricSeries

	Created time.Time
}

// TensorFromDense converts a gonum matrix into artifact form.
func TensorFromDense(m *mat.Dense) *Tensor {
	if m == nil {
		return nil
	}
	r, c := m.Dims()
	values := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		values = append(values, m.RawRowView(i)...)
	}
	return &Tensor{Rows: r, Cols: c, Values: values}
}

// Dense converts an artifact tensor back into a gonum matrix.
func (t *Tensor) Dense() (*mat.Dense, error) {
	if t.Rows <= 0 || t.Cols <= 0 {
		return nil, fmt.Errorf("tensor has invalid shape %dx%d", t.Rows, t.Cols)
	}
	if len(t.Values) != t.Rows*t.Cols {
		return nil, fmt.Errorf("tensor shape %dx%d does not match %d values", t.Rows, t.Cols, len(t.Values))
	}
	data := make([]float64, len(t.Values))
	copy(data, t.Values)
	return mat.NewDense(t.Rows, t.Cols, data), nil
}

// OutputHistory rebuilds the per-epoch snapshot stack from the artifact so
// a saved run can be fed back into the analyzer.
func (a *RunArtifact) OutputHistory() (*tensor.OutputHistory, error) {
	if len(a.Outputs) == 0 {
		return nil, fmt.Errorf("artifact has no output snapshots")
	}

	first, err := a.Outputs[0].Dense()
	if err != nil {
		return nil, err
	}
	rows, cols := first.Dims()
	hist, err := tensor.NewOutputHistory(rows, cols)
	if err != nil {
		return nil, err
	}
	if err := hist.Append(first); err != nil {
		return nil, err
	}

	for _, t := range a.Outputs[1:] {
		snapshot, err := t.Dense()
		if err != nil {
			return nil, err
		}
		if err := hist.Append(snapshot); err != nil {
			return nil, err
		}
	}
	return hist, nil
}

func appendPackedDoubles(b []byte, num protowire.Number, values []float64) []byte {
	if len(values) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(8*len(values)))
	for _, v := range values {
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	}
	return b
}

func consumePackedDoubles(v []byte) ([]float64, error) {
	if len(v)%8 != 0 {
		return nil, fmt.Errorf("packed double field has %d bytes", len(v))
	}
	out := make([]float64, 0, len(v)/8)
	for len(v) > 0 {
		bits, n := protowire.ConsumeFixed64(v)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		out = append(out, math.Float64frombits(bits))
		v = v[n:]
	}
	return out, nil
}

func appendTensor(b []byte, num protowire.Number, t *Tensor) []byte {
	if t == nil {
		return b
	}
	var msg []byte
	msg = protowire.AppendTag(msg, tensorRowsField, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(t.Rows))
	msg = protowire.AppendTag(msg, tensorColsField, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(t.Cols))
	msg = appendPackedDoubles(msg, tensorValuesField, t.Values)

	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func parseTensor(msg []byte) (*Tensor, error) {
	t := &Tensor{}
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		msg = msg[n:]

		switch {
		case num == tensorRowsField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(msg)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			t.Rows = int(v)
			msg = msg[n:]
		case num == tensorColsField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(msg)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			t.Cols = int(v)
			msg = msg[n:]
		case num == tensorValuesField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(msg)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			values, err := consumePackedDoubles(v)
			if err != nil {
				return nil, err
			}
			t.Values = values
			msg = msg[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			msg = msg[n:]
		}
	}
	return t, nil
}

func appendSeries(b []byte, num protowire.Number, name string, values []float64) []byte {
	var msg []byte
	msg = protowire.AppendTag(msg, seriesNameField, protowire.BytesType)
	msg = protowire.AppendString(msg, name)
	msg = appendPackedDoubles(msg, seriesValuesField, values)

	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func parseSeries(msg []byte) (MetricSeries, error) {
	var s MetricSeries
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return s, protowire.ParseError(n)
		}
		msg = msg[n:]

		switch {
		case num == seriesNameField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(msg)
			if n < 0 {
				return s, protowire.ParseError(n)
			}
			s.Name = v
			msg = msg[n:]
		case num == seriesValuesField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(msg)
			if n < 0 {
				return s, protowire.ParseError(n)
			}
			values, err := consumePackedDoubles(v)
			if err != nil {
				return s, err
			}
			s.Values = values
			msg = msg[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				return s, protowire.ParseError(n)
			}
			msg = msg[n:]
		}
	}
	return s, nil
}

func appendCoefficients(b []byte, num protowire.Number, cs CoefficientSeries) []byte {
	var msg []byte
	msg = protowire.AppendTag(msg, coeffDirectionField, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(cs.Direction))
	msg = appendPackedDoubles(msg, coeffValuesField, cs.Values)

	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func parseCoefficients(msg []byte) (CoefficientSeries, error) {
	var cs CoefficientSeries
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return cs, protowire.ParseError(n)
		}
		msg = msg[n:]

		switch {
		case num == coeffDirectionField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(msg)
			if n < 0 {
				return cs, protowire.ParseError(n)
			}
			cs.Direction = int(v)
			msg = msg[n:]
		case num == coeffValuesField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(msg)
			if n < 0 {
				return cs, protowire.ParseError(n)
			}
			values, err := consumePackedDoubles(v)
			if err != nil {
				return cs, err
			}
			cs.Values = values
			msg = msg[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				return cs, protowire.ParseError(n)
			}
			msg = msg[n:]
		}
	}
	return cs, nil
}

// Marshal serializes the artifact to the protobuf wire format described by
// artifact.proto.
func (a *RunArtifact) Marshal() ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("marshal: nil artifact")
	}

	var b []byte
	if a.Model != "" {
		b = protowire.AppendTag(b, artifactModelField, protowire.BytesType)
		b = protowire.AppendString(b, a.Model)
	}
	if a.Dataset != "" {
		b = protowire.AppendTag(b, artifactDatasetField, protowire.BytesType)
		b = protowire.AppendString(b, a.Dataset)
	}
	if a.Epochs != 0 {
		b = protowire.AppendTag(b, artifactEpochsField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.Epochs))
	}
	if a.Seed != 0 {
		b = protowire.AppendTag(b, artifactSeedField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.Seed))
	}
	b = appendTensor(b, artifactFeaturesField, a.Features)
	b = appendTensor(b, artifactClassifierField, a.Classifier)
	for _, t := range a.Outputs {
		b = appendTensor(b, artifactOutputsField, t)
	}
	b = appendPackedDoubles(b, artifactSingularValuesField, a.SingularValues)
	for _, cs := range a.Coefficients {
		b = appendCoefficients(b, artifactCoefficientsField, cs)
	}
	for _, s := range a.Metrics {
		b = appendSeries(b, artifactMetricsField, s.Name, s.Values)
	}
	if !a.Created.IsZero() {
		b = protowire.AppendTag(b, artifactCreatedField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.Created.Unix()))
	}
	return b, nil
}

// UnmarshalRunArtifact parses an artifact from the wire format.
func UnmarshalRunArtifact(data []byte) (*RunArtifact, error) {
	a := &RunArtifact{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == artifactModelField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			a.Model = v
			data = data[n:]
		case num == artifactDatasetField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			a.Dataset = v
			data = data[n:]
		case num == artifactEpochsField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			a.Epochs = int(v)
			data = data[n:]
		case num == artifactSeedField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			a.Seed = int64(v)
			data = data[n:]
		case num == artifactFeaturesField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			t, err := parseTensor(v)
			if err != nil {
				return nil, err
			}
			a.Features = t
			data = data[n:]
		case num == artifactClassifierField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			t, err := parseTensor(v)
			if err != nil {
				return nil, err
			}
			a.Classifier = t
			data = data[n:]
		case num == artifactOutputsField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			t, err := parseTensor(v)
			if err != nil {
				return nil, err
			}
			a.Outputs = append(a.Outputs, t)
			data = data[n:]
		case num == artifactSingularValuesField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			values, err := consumePackedDoubles(v)
			if err != nil {
				return nil, err
			}
			a.SingularValues = values
			data = data[n:]
		case num == artifactCoefficientsField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			cs, err := parseCoefficients(v)
			if err != nil {
				return nil, err
			}
			a.Coefficients = append(a.Coefficients, cs)
			data = data[n:]
		case num == artifactMetricsField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			s, err := parseSeries(v)
			if err != nil {
				return nil, err
			}
			a.Metrics = append(a.Metrics, s)
			data = data[n:]
		case num == artifactCreatedField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			a.Created = time.Unix(int64(v), 0).UTC()
			data = data[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return a, nil
}

// SaveRunArtifact writes the artifact to disk. The Created timestamp is set
// when empty.
func SaveRunArtifact(a *RunArtifact, path string) error {
	if a != nil && a.Created.IsZero() {
		a.Created = time.Now().UTC()
	}
	data, err := a.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run artifact: %v", err)
	}
	return nil
}

// LoadRunArtifact reads an artifact from disk.
func LoadRunArtifact(path string) (*RunArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run artifact: %v", err)
	}
	return UnmarshalRunArtifact(data)
}
