package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Model maps a scaled window to a scaled next value.
type Model interface {
	Predict(ctx context.Context, window []float64) (float64, error)
}

// ModelFunc adapts a plain function to Model.
type ModelFunc func(ctx context.Context, window []float64) (float64, error)

func (f ModelFunc) Predict(ctx context.Context, window []float64) (float64, error) {
	return f(ctx, window)
}

// LinearModel is an autoregressive model: bias plus a weighted sum of the
// window. Read-only after load.
type LinearModel struct {
	Weights []float64 `yaml:"weights" json:"weights"`
	Bias    float64   `yaml:"bias" json:"bias"`
}

// LoadModel reads a YAML or JSON weights file and checks it matches the
// window size.
func LoadModel(path string, window int) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("model file not found: %s", path)
		}
		return nil, fmt.Errorf("read model: %w", err)
	}

	var m LinearModel
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	if len(m.Weights) != window {
		return nil, fmt.Errorf("model %s: expected %d weights, got %d", path, window, len(m.Weights))
	}
	return &m, nil
}

func (m *LinearModel) Predict(_ context.Context, window []float64) (float64, error) {
	if len(window) != len(m.Weights) {
		return 0, fmt.Errorf("linear model: window of %d, expected %d", len(window), len(m.Weights))
	}
	y := m.Bias
	for i, w := range m.Weights {
		y += w * window[i]
	}
	return y, nil
}

// RemoteModel delegates inference to an HTTP serving endpoint.
type RemoteModel struct {
	Client *http.Client
	URL    string
}

func NewRemoteModel(url string) *RemoteModel {
	return &RemoteModel{
		Client: &http.Client{Timeout: 15 * time.Second},
		URL:    strings.TrimRight(url, "/"),
	}
}

type predictRequest struct {
	Window []float64 `json:"window"`
}

type predictResponse struct {
	Prediction *float64 `json:"prediction"`
}

func (m *RemoteModel) Predict(ctx context.Context, window []float64) (float64, error) {
	body, err := json.Marshal(predictRequest{Window: window})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("model service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("model service: status %d: %s", resp.StatusCode, msg)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("model service decode: %w", err)
	}
	if out.Prediction == nil {
		return 0, fmt.Errorf("model service: response missing prediction")
	}
	return *out.Prediction, nil
}
