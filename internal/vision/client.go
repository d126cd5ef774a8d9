package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/atelier-lab/archmentor/internal/config"
)

// Analysis is the vision service's read of one uploaded image
type Analysis struct {
	ChatSummary        string         `json:"chat_summary"`
	Confidence         float64        `json:"confidence"`
	StructuredFindings map[string]any `json:"structured_findings"`
}

// Client talks to the external image-analysis service
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// New creates a vision client; nil means image analysis is not configured
func New(cfg config.VisionConfig, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		logger:     logger.With("component", "vision_client"),
	}
}

// AnalyzeImage uploads an image and returns its analysis. Failures are local
// to the caller; the turn continues text-only when analysis is unavailable.
func (c *Client) AnalyzeImage(ctx context.Context, path, projectContext string) (*Analysis, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if err := writer.WriteField("project_context", projectContext); err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("vision service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var analysis Analysis
	if err := json.NewDecoder(resp.Body).Decode(&analysis); err != nil {
		return nil, fmt.Errorf("failed to decode analysis response: %w", err)
	}
	if analysis.ChatSummary == "" {
		return nil, fmt.Errorf("vision service returned empty summary")
	}

	c.logger.Info("Image analyzed",
		"path", filepath.Base(path),
		"confidence", analysis.Confidence)
	return &analysis, nil
}
