package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/internal/telemetry"
)

const maxUploadRetries = 3

// Mirror copies session artifacts to the remote research store. Uploads are
// append-only blob puts; a failed mirror never affects the turn loop.
type Mirror struct {
	httpClient *http.Client
	baseURL    string
	token      string
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewMirror creates the artifact mirror; nil means remote export is off
func NewMirror(cfg config.ExportConfig, token string, logger *slog.Logger) *Mirror {
	if cfg.RemoteBaseURL == "" || token == "" {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Mirror{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.RemoteBaseURL,
		token:      token,
		retryDelay: time.Second,
		logger:     logger.With("component", "export_mirror"),
	}
}

// Upload puts one local file at the remote path, retrying transient failures
func (m *Mirror) Upload(ctx context.Context, localPath, remotePath string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxUploadRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * m.retryDelay):
			}
		}
		remote, err := m.put(ctx, localPath, remotePath)
		if err == nil {
			return remote, nil
		}
		lastErr = err
		m.logger.Warn("Upload attempt failed",
			"file", filepath.Base(localPath),
			"attempt", attempt+1,
			"error", err)
	}
	return "", fmt.Errorf("upload failed after %d attempts: %w", maxUploadRetries, lastErr)
}

func (m *Mirror) put(ctx context.Context, localPath, remotePath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	target := m.baseURL + "/" + remotePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, f)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = info.Size()

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("remote store returned status %d: %s", resp.StatusCode, string(body))
	}
	return remotePath, nil
}

// MirrorSession uploads every artifact of one session. With showProgress a
// terminal progress bar tracks the files.
func (m *Mirror) MirrorSession(ctx context.Context, recorder *telemetry.Recorder, sessionID string, showProgress bool) error {
	manifest, err := recorder.ExportForAnalysis(sessionID)
	if err != nil {
		return err
	}

	files := append([]string{}, manifest.CSVPaths...)
	files = append(files, manifest.JSONPaths...)
	if len(files) == 0 {
		return fmt.Errorf("session %s has no artifacts to mirror", sessionID)
	}

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription(fmt.Sprintf("Mirroring %s", sessionID)),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	failed := 0
	for _, localPath := range files {
		remotePath := path.Join(sessionID, filepath.Base(localPath))
		if _, err := m.Upload(ctx, localPath, remotePath); err != nil {
			failed++
			m.logger.Error("Failed to mirror artifact",
				"file", filepath.Base(localPath),
				"error", err)
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d artifacts failed to mirror", failed, len(files))
	}
	m.logger.Info("Session mirrored", "session_id", sessionID, "files", len(files))
	return nil
}
