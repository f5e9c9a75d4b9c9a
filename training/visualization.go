package training

import (
	"fmt"
	"time"

	"github.com/tsawler/go-basis/basis"
)

// PlotType identifies the kind of figure a payload describes.
type PlotType string

const (
	TrainingCurves       PlotType = "training_curves"
	LearningRateSchedule PlotType = "learning_rate_schedule"
	CoefficientTraces    PlotType = "coefficient_traces"
	GradientNormTrace    PlotType = "gradient_norm_trace"
)

// PlotData is the payload handed to the rendering layer. One payload
// describes one figure.
type PlotData struct {
	PlotType  PlotType  `json:"plot_type"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	ModelName string    `json:"model_name"`

	Series []SeriesData `json:"series"`

	Config PlotConfig `json:"config"`
}

// SeriesData is a single named line in a figure.
type SeriesData struct {
	Name string      `json:"name"`
	Data []DataPoint `json:"data"`
}

// DataPoint is one (x, y) sample of a series.
type DataPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlotConfig carries axis labels and scales for a figure.
type PlotConfig struct {
	XAxisLabel string `json:"x_axis_label"`
	YAxisLabel string `json:"y_axis_label"`
	XAxisScale string `json:"x_axis_scale"` // "linear" or "log"
	YAxisScale string `json:"y_axis_scale"`
	ShowLegend bool   `json:"show_legend"`
}

// Collector accumulates per-epoch metrics during a run and turns them into
// plot payloads afterwards.
type Collector struct {
	modelName string

	trainingLoss       []float64
	trainingAccuracy   []float64
	validationAccuracy []float64
	learningRates      []float64
	gradNorms          []float64
}

// NewCollector creates an empty metrics collector for the named model.
func NewCollector(modelName string) *Collector {
	return &Collector{modelName: modelName}
}

// RecordEpoch appends one epoch's scalar metrics.
func (c *Collector) RecordEpoch(trainLoss, trainAcc, valAcc, lr float64) {
	c.trainingLoss = append(c.trainingLoss, trainLoss)
	c.trainingAccuracy = append(c.trainingAccuracy, trainAcc)
	c.validationAccuracy = append(c.validationAccuracy, valAcc)
	c.learningRates = append(c.learningRates, lr)
}

// RecordGradNorm appends one epoch's squared gradient norm.
func (c *Collector) RecordGradNorm(norm float64) {
	c.gradNorms = append(c.gradNorms, norm)
}

// RecordRun ingests a completed run result in one call.
func (c *Collector) RecordRun(result *RunResult) {
	for i, loss := range result.TrainLoss {
		valAcc := 0.0
		if i+1 < len(result.ValAccuracy) {
			valAcc = result.ValAccuracy[i+1]
		}
		c.RecordEpoch(loss, result.TrainAccuracy[i], valAcc, result.LearningRates[i])
	}
	for _, g := range result.GradNorms {
		c.RecordGradNorm(g)
	}
}

func lineSeries(name string, values []float64) SeriesData {
	s := SeriesData{Name: name, Data: make([]DataPoint, len(values))}
	for i, v := range values {
		s.Data[i] = DataPoint{X: float64(i + 1), Y: v}
	}
	return s
}

// GenerateTrainingCurvesPlot builds the loss and accuracy figure.
func (c *Collector) GenerateTrainingCurvesPlot() PlotData {
	return PlotData{
		PlotType:  TrainingCurves,
		Title:     fmt.Sprintf("Training Curves - %s", c.modelName),
		Timestamp: time.Now(),
		ModelName: c.modelName,
		Series: []SeriesData{
			lineSeries("Training Loss", c.trainingLoss),
			lineSeries("Training Accuracy", c.trainingAccuracy),
			lineSeries("Validation Accuracy", c.validationAccuracy),
		},
		Config: PlotConfig{
			XAxisLabel: "Epoch",
			YAxisLabel: "Loss / Accuracy",
			XAxisScale: "linear",
			YAxisScale: "linear",
			ShowLegend: true,
		},
	}
}

// GenerateLearningRatePlot builds the learning rate schedule figure.
func (c *Collector) GenerateLearningRatePlot() PlotData {
	return PlotData{
		PlotType:  LearningRateSchedule,
		Title:     fmt.Sprintf("Learning Rate Schedule - %s", c.modelName),
		Timestamp: time.Now(),
		ModelName: c.modelName,
		Series:    []SeriesData{lineSeries("Learning Rate", c.learningRates)},
		Config: PlotConfig{
			XAxisLabel: "Epoch",
			YAxisLabel: "Learning Rate",
			XAxisScale: "linear",
			YAxisScale: "log",
			ShowLegend: false,
		},
	}
}

// GenerateGradientNormPlot builds the squared-gradient-norm figure. Returns
// a zero-series payload when the diagnostic was not collected.
func (c *Collector) GenerateGradientNormPlot() PlotData {
	var series []SeriesData
	if len(c.gradNorms) > 0 {
		series = []SeriesData{lineSeries("Squared Gradient Norm", c.gradNorms)}
	}
	return PlotData{
		PlotType:  GradientNormTrace,
		Title:     fmt.Sprintf("Gradient Norm - %s", c.modelName),
		Timestamp: time.Now(),
		ModelName: c.modelName,
		Series:    series,
		Config: PlotConfig{
			XAxisLabel: "Epoch",
			YAxisLabel: "Squared Gradient Norm",
			XAxisScale: "linear",
			YAxisScale: "log",
			ShowLegend: false,
		},
	}
}

// GenerateCoefficientPlot builds the alignment coefficient figure for the
// first topK directions of an analysis result. Epochs on the x axis start
// at zero so the pre-training snapshot is visible.
func (c *Collector) GenerateCoefficientPlot(result *basis.Result, topK int) PlotData {
	var series []SeriesData
	for dir := 1; dir <= topK; dir++ {
		coeffs, ok := result.Coefficients[dir]
		if !ok {
			continue
		}
		s := SeriesData{Name: fmt.Sprintf("direction %d", dir), Data: make([]DataPoint, len(coeffs))}
		for e, v := range coeffs {
			s.Data[e] = DataPoint{X: float64(e), Y: v}
		}
		series = append(series, s)
	}
	return PlotData{
		PlotType:  CoefficientTraces,
		Title:     fmt.Sprintf("Basis Alignment Coefficients (top %d) - %s", topK, c.modelName),
		Timestamp: time.Now(),
		ModelName: c.modelName,
		Series:    series,
		Config: PlotConfig{
			XAxisLabel: "Epoch",
			YAxisLabel: "Coefficient",
			XAxisScale: "linear",
			YAxisScale: "linear",
			ShowLegend: topK <= 8,
		},
	}
}
