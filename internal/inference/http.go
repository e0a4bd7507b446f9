package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// HTTPClassifier posts the image to a model server that answers with
// {"predictions": [...], "input_size": "224x224x3"}.
type HTTPClassifier struct {
	httpClient *http.Client
	url        string
	labels     []string
	threshold  float64
}

func NewHTTPClassifier(url string, labels []string, threshold float64) *HTTPClassifier {
	return &HTTPClassifier{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		url:       url,
		labels:    labels,
		threshold: threshold,
	}
}

func (c *HTTPClassifier) Classify(ctx context.Context, imagePath string) (*Prediction, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: image not found at %s", ErrInvalidInput, imagePath)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, string(msg))
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(msg))
	}

	var result struct {
		Predictions []float64 `json:"predictions"`
		InputSize   string    `json:"input_size"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	p, err := Interpret(result.Predictions, c.labels, c.threshold)
	if err != nil {
		return nil, err
	}
	p.ModelInputSize = result.InputSize
	return p, nil
}
