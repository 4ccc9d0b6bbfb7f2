package insightface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"face-search-go/config"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "insightface",
}

// DetectedFace is one face candidate as reported by the detector, in
// detector order. The embedding may be absent when the model failed to
// produce one for a candidate.
type DetectedFace struct {
	BBox       []float64 `json:"bbox"`      // [x1, y1, x2, y2] in pixels
	Landmarks  []float64 `json:"landmarks"` // flattened keypoints
	Confidence float64   `json:"confidence"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// APIClient communicates with an InsightFace-compatible detection service.
type APIClient struct {
	cfg        config.InsightFaceConfig
	httpClient *http.Client
}

type apiInfoResponse struct {
	Status    string   `json:"status"`
	Version   string   `json:"version"`
	Backend   string   `json:"backend"`
	Providers []string `json:"providers"`
}

type apiDetectResponse struct {
	Status      string         `json:"status"`
	FacesCount  int            `json:"faces_count"`
	Faces       []DetectedFace `json:"faces"`
	ProcessTime float64        `json:"process_time"`
}

// NewAPIClient creates a new InsightFace API client.
func NewAPIClient(cfg config.InsightFaceConfig) *APIClient {
	return &APIClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Ping checks whether the detection service is reachable and ready.
func (c *APIClient) Ping(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/info", c.cfg.URL), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to reach InsightFace service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("InsightFace service unavailable, status: %d", resp.StatusCode)
	}

	var info apiInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return false, fmt.Errorf("failed to decode info response: %w", err)
	}

	return info.Status == "ok", nil
}

// DetectFaces sends image bytes to the detection service and returns the
// face candidates in detector-reported order, embeddings included.
func (c *APIClient) DetectFaces(ctx context.Context, imageData []byte, filename string) ([]DetectedFace, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(imageData)); err != nil {
		return nil, fmt.Errorf("failed to copy image data: %w", err)
	}

	if err := writer.WriteField("threshold", fmt.Sprintf("%f", c.cfg.DetectionThreshold)); err != nil {
		return nil, fmt.Errorf("failed to write threshold field: %w", err)
	}
	if err := writer.WriteField("extract_embedding", "true"); err != nil {
		return nil, fmt.Errorf("failed to write extract_embedding field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/detect", c.cfg.URL), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detection request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp apiDetectResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode detect response: %w", err)
	}

	if apiResp.Status != "ok" {
		return nil, fmt.Errorf("API error: %s", apiResp.Status)
	}

	log.WithFields(logFields).Debugf("Detected %d face(s) in %s (%.3fs)",
		apiResp.FacesCount, filename, apiResp.ProcessTime)

	return apiResp.Faces, nil
}
