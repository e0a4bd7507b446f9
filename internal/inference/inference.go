// Package inference classifies scan images. The model itself runs
// elsewhere; providers here only ship the image and interpret the
// returned probability vector.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// LabelUncertain replaces the predicted label when confidence is below
// the configured threshold.
const LabelUncertain = "Uncertain"

var DefaultLabels = []string{"Normal", "Pneumonia"}

var (
	// ErrInvalidInput marks failures caused by the image itself.
	ErrInvalidInput = errors.New("invalid scan image")
	// ErrEmptyPrediction is returned when the model produced no scores.
	ErrEmptyPrediction = errors.New("model returned empty predictions")
)

type Prediction struct {
	Label          string             `json:"label"`
	Confidence     float64            `json:"confidence"`
	ClassIndex     int                `json:"class_index"`
	AllPredictions map[string]float64 `json:"all_predictions"`
	ThresholdUsed  float64            `json:"threshold_used"`
	ModelInputSize string             `json:"model_input_size,omitempty"`
}

type Classifier interface {
	Classify(ctx context.Context, imagePath string) (*Prediction, error)
}

type Config struct {
	Provider    string // "http" or "gemini"
	URL         string
	Labels      []string
	Threshold   float64
	GeminiKey   string
	GeminiModel string
}

// ConfigFromEnv reads INFERENCE_PROVIDER, INFERENCE_URL,
// CLASS_LABELS_PATH, CONFIDENCE_THRESHOLD, GEMINI_API_KEY and GEMINI_MODEL.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Provider:    os.Getenv("INFERENCE_PROVIDER"),
		URL:         os.Getenv("INFERENCE_URL"),
		Labels:      DefaultLabels,
		Threshold:   0.75,
		GeminiKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel: os.Getenv("GEMINI_MODEL"),
	}
	if cfg.Provider == "" {
		cfg.Provider = "http"
	}
	if cfg.URL == "" {
		cfg.URL = "http://localhost:8501/predict"
	}
	if cfg.GeminiModel == "" {
		cfg.GeminiModel = "gemini-1.5-flash"
	}

	if v := os.Getenv("CONFIDENCE_THRESHOLD"); v != "" {
		th, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid CONFIDENCE_THRESHOLD %q: %w", v, err)
		}
		cfg.Threshold = th
	}

	if path := os.Getenv("CLASS_LABELS_PATH"); path != "" {
		labels, err := LoadLabels(path)
		if err != nil {
			return cfg, err
		}
		cfg.Labels = labels
	}

	return cfg, nil
}

// LoadLabels reads a JSON array of class names.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("class labels file not found at %s: %w", path, err)
	}
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("parse class labels %s: %w", path, err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("class labels file %s is empty", path)
	}
	return labels, nil
}

// New builds the classifier named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Classifier, error) {
	switch cfg.Provider {
	case "http":
		return NewHTTPClassifier(cfg.URL, cfg.Labels, cfg.Threshold), nil
	case "gemini":
		return NewGeminiClassifier(ctx, cfg.GeminiKey, cfg.GeminiModel, cfg.Labels, cfg.Threshold)
	default:
		return nil, fmt.Errorf("unknown inference provider: %s", cfg.Provider)
	}
}

// Interpret turns a probability vector into a Prediction: argmax picks
// the class, its score is the confidence, and scores under threshold are
// reported as LabelUncertain.
func Interpret(scores []float64, labels []string, threshold float64) (*Prediction, error) {
	if len(scores) == 0 {
		return nil, ErrEmptyPrediction
	}

	idx := 0
	for i, s := range scores {
		if s > scores[idx] {
			idx = i
		}
	}

	if idx >= len(labels) {
		return nil, fmt.Errorf("predicted class index %d exceeds class labels (%d)", idx, len(labels))
	}

	p := &Prediction{
		Label:          labels[idx],
		Confidence:     scores[idx],
		ClassIndex:     idx,
		AllPredictions: make(map[string]float64, len(labels)),
		ThresholdUsed:  threshold,
	}
	if p.Confidence < threshold {
		p.Label = LabelUncertain
	}
	for i, l := range labels {
		if i < len(scores) {
			p.AllPredictions[l] = scores[i]
		}
	}

	return p, nil
}
