package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/pkg/models"
)

// Client talks to the external image-generation service. Generation happens
// on phase transitions only; the caller gates calls with its transition
// dedup set.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	style      string
	logger     *slog.Logger
}

// New creates an image-generation client; nil means the feature is off
func New(cfg config.ImageGenConfig, apiKey string, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" || apiKey == "" {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	style := cfg.Style
	if style == "" {
		style = "concept_sketch"
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     apiKey,
		style:      style,
		logger:     logger.With("component", "imagegen_client"),
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style"`
}

type generateResponse struct {
	URL string `json:"url"`
}

// Generate produces an image for a phase transition
func (c *Client) Generate(ctx context.Context, phase models.Phase, prompt string) (*models.GeneratedImage, error) {
	payload, err := json.Marshal(generateRequest{Prompt: prompt, Style: c.style})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("image service returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode generation response: %w", err)
	}
	if parsed.URL == "" {
		return nil, fmt.Errorf("image service returned no URL")
	}

	c.logger.Info("Image generated", "phase", phase, "style", c.style)
	return &models.GeneratedImage{
		URL:    parsed.URL,
		Phase:  phase,
		Style:  c.style,
		Prompt: prompt,
	}, nil
}

// Download mirrors a generated image into the session's artifact directory
// and writes its metadata sidecar. Failures are logged by the caller; the
// image URL still reaches the UI.
func (c *Client) Download(ctx context.Context, img *models.GeneratedImage, sessionDir string) error {
	dir := filepath.Join(sessionDir, "generated_images")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}

	base := fmt.Sprintf("%s_%s_%s", time.Now().Format("20060102_150405"), img.Phase, img.Style)
	imagePath := filepath.Join(dir, base+".png")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("image download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	out, err := os.Create(imagePath)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write image file: %w", err)
	}

	meta, err := json.MarshalIndent(img, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal image metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, base+".metadata.json"), meta, 0o644); err != nil {
		return fmt.Errorf("failed to write image metadata: %w", err)
	}

	img.LocalPath = imagePath
	return nil
}

// TransitionPrompt builds the generation prompt for a phase transition
func TransitionPrompt(newPhase models.Phase, buildingType string) string {
	if buildingType == "" {
		buildingType = "a public building"
	}
	switch newPhase {
	case models.PhaseVisualization:
		return fmt.Sprintf("Conceptual massing sketch of %s, loose architectural drawing, exploring form and composition", buildingType)
	case models.PhaseMaterialization:
		return fmt.Sprintf("Detailed architectural visualization of %s, showing materials and structure, atmospheric render", buildingType)
	default:
		return fmt.Sprintf("Early ideation collage for %s, abstract architectural concept imagery", buildingType)
	}
}
