package imagegen

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/generate" {
			var req generateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if req.Prompt == "" || req.Style == "" {
				t.Errorf("request = %+v", req)
			}
			io.WriteString(w, `{"url": "https://cdn.example.org/images/1.png"}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	c := New(config.ImageGenConfig{BaseURL: server.URL, Style: "concept_sketch", TimeoutSeconds: 5}, "key", testLogger())
	img, err := c.Generate(context.Background(), models.PhaseVisualization, "massing sketch of a community center")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if img.Phase != models.PhaseVisualization || img.Style != "concept_sketch" || img.URL == "" {
		t.Errorf("image = %+v", img)
	}
}

func TestGenerateEmptyURLIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"url": ""}`)
	}))
	defer server.Close()

	c := New(config.ImageGenConfig{BaseURL: server.URL, TimeoutSeconds: 5}, "key", testLogger())
	if _, err := c.Generate(context.Background(), models.PhaseVisualization, "p"); err == nil {
		t.Fatal("empty url should be an error")
	}
}

func TestDownloadWritesImageAndMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png-bytes"))
	}))
	defer server.Close()

	c := New(config.ImageGenConfig{BaseURL: server.URL, Style: "concept_sketch", TimeoutSeconds: 5}, "key", testLogger())
	img := &models.GeneratedImage{URL: server.URL + "/images/1.png", Phase: models.PhaseVisualization, Style: "concept_sketch", Prompt: "p"}

	dir := t.TempDir()
	if err := c.Download(context.Background(), img, dir); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if img.LocalPath == "" {
		t.Fatal("LocalPath not set")
	}
	if _, err := os.Stat(img.LocalPath); err != nil {
		t.Errorf("image file missing: %v", err)
	}
	meta := strings.TrimSuffix(img.LocalPath, ".png") + ".metadata.json"
	if _, err := os.Stat(meta); err != nil {
		t.Errorf("metadata file missing: %v", err)
	}
	if filepath.Dir(img.LocalPath) != filepath.Join(dir, "generated_images") {
		t.Errorf("image written to %s", img.LocalPath)
	}
}

func TestTransitionPrompt(t *testing.T) {
	p := TransitionPrompt(models.PhaseVisualization, "community center")
	if !strings.Contains(p, "community center") {
		t.Errorf("prompt = %q", p)
	}
	if TransitionPrompt(models.PhaseMaterialization, "") == "" {
		t.Error("empty building type should still produce a prompt")
	}
}
