package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClassifier asks a Gemini vision model for per-label
// probabilities.
type GeminiClassifier struct {
	client    *genai.Client
	model     string
	labels    []string
	threshold float64
}

func NewGeminiClassifier(ctx context.Context, apiKey, model string, labels []string, threshold float64) (*GeminiClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}

	return &GeminiClassifier{
		client:    client,
		model:     model,
		labels:    labels,
		threshold: threshold,
	}, nil
}

func (g *GeminiClassifier) Close() error {
	return g.client.Close()
}

func (g *GeminiClassifier) prompt() string {
	return fmt.Sprintf(`You are assisting a radiology triage queue. Classify the chest image into exactly one of these classes: %s.
Answer with a single JSON object mapping every class name to a probability between 0 and 1, probabilities summing to 1. No other text.`,
		strings.Join(g.labels, ", "))
}

func (g *GeminiClassifier) Classify(ctx context.Context, imagePath string) (*Prediction, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: image not found at %s", ErrInvalidInput, imagePath)
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(imagePath)), ".")
	if format == "jpg" {
		format = "jpeg"
	}

	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.ImageData(format, data), genai.Text(g.prompt()))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("empty content returned from Gemini")
	}

	txt, ok := candidate.Content.Parts[0].(genai.Text)
	if !ok {
		return nil, fmt.Errorf("unexpected response format from Gemini")
	}

	scores, err := parseScores(string(txt), g.labels)
	if err != nil {
		return nil, err
	}
	return Interpret(scores, g.labels, g.threshold)
}

// parseScores orders the label->probability object the model returned
// by labels. Missing labels score 0.
func parseScores(raw string, labels []string) ([]float64, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var byLabel map[string]float64
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &byLabel); err != nil {
		return nil, fmt.Errorf("failed to parse Gemini scores: %w", err)
	}

	lower := make(map[string]float64, len(byLabel))
	for k, v := range byLabel {
		lower[strings.ToLower(k)] = v
	}

	scores := make([]float64, len(labels))
	for i, l := range labels {
		scores[i] = lower[strings.ToLower(l)]
	}
	return scores, nil
}
