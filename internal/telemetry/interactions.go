package telemetry

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/atelier-lab/archmentor/internal/session"
	"github.com/atelier-lab/archmentor/pkg/models"
)

// InteractionRecord is one row of the per-turn research log
type InteractionRecord struct {
	Timestamp      time.Time
	SessionID      string
	TurnIndex      int
	Arm            models.Arm
	Path           models.RoutingPath
	ThreadType     models.ThreadType
	AgentsUsed     []string
	ResponseType   string
	CognitiveFlags []string
	Sources        []string
	ElapsedMS      int64
}

// DesignMove is one graded curriculum step
type DesignMove struct {
	Timestamp time.Time
	SessionID string
	TurnIndex int
	Phase     models.Phase
	Step      string
	Score     float64
	Passed    bool
	Heuristic bool
}

// Recorder appends research artifacts under <dataDir>/<session_id>/. Write
// failures degrade to the logger and stderr; they never reach the turn loop.
type Recorder struct {
	dataDir string
	logger  *slog.Logger
}

// NewRecorder creates the interaction recorder
func NewRecorder(dataDir string, logger *slog.Logger) *Recorder {
	return &Recorder{
		dataDir: dataDir,
		logger:  logger.With("component", "interaction_recorder"),
	}
}

// SessionDir returns the artifact directory for a session, creating it
func (r *Recorder) SessionDir(sessionID string) string {
	dir := filepath.Join(r.dataDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.degrade("create session dir", err)
	}
	return dir
}

var interactionHeader = []string{
	"timestamp", "session_id", "turn_index", "arm", "path", "thread_type",
	"agents_used", "response_type", "cognitive_flags", "sources", "elapsed_ms",
}

// LogInteraction appends one row to interactions_<id>.csv
func (r *Recorder) LogInteraction(rec InteractionRecord) {
	row := []string{
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.SessionID,
		strconv.Itoa(rec.TurnIndex),
		string(rec.Arm),
		string(rec.Path),
		string(rec.ThreadType),
		strings.Join(rec.AgentsUsed, ";"),
		rec.ResponseType,
		strings.Join(rec.CognitiveFlags, ";"),
		strings.Join(rec.Sources, ";"),
		strconv.FormatInt(rec.ElapsedMS, 10),
	}
	path := filepath.Join(r.SessionDir(rec.SessionID), fmt.Sprintf("interactions_%s.csv", rec.SessionID))
	r.appendCSV(path, interactionHeader, row)
}

var designMoveHeader = []string{
	"timestamp", "session_id", "turn_index", "phase", "step", "score", "passed", "heuristic",
}

// LogDesignMove appends one row to design_moves_<id>.csv
func (r *Recorder) LogDesignMove(mv DesignMove) {
	row := []string{
		mv.Timestamp.UTC().Format(time.RFC3339),
		mv.SessionID,
		strconv.Itoa(mv.TurnIndex),
		string(mv.Phase),
		mv.Step,
		strconv.FormatFloat(mv.Score, 'f', 2, 64),
		strconv.FormatBool(mv.Passed),
		strconv.FormatBool(mv.Heuristic),
	}
	path := filepath.Join(r.SessionDir(mv.SessionID), fmt.Sprintf("design_moves_%s.csv", mv.SessionID))
	r.appendCSV(path, designMoveHeader, row)
}

// FlushSession writes the session summary and full transcript JSON. Called
// on reset and at shutdown.
func (r *Recorder) FlushSession(sess *session.Session) {
	dir := r.SessionDir(sess.ID())

	summary, err := json.MarshalIndent(sess.Summary(), "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(dir, fmt.Sprintf("session_summary_%s.json", sess.ID())), summary, 0o644)
	}
	if err != nil {
		r.degrade("write session summary", err)
	}

	full, err := json.MarshalIndent(sess.Turns(), "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(dir, fmt.Sprintf("full_log_%s.json", sess.ID())), full, 0o644)
	}
	if err != nil {
		r.degrade("write full log", err)
	}
}

// ExportManifest lists a session's artifact files for the exporter
type ExportManifest struct {
	CSVPaths  []string `json:"csv_paths"`
	JSONPaths []string `json:"json_paths"`
}

// ExportForAnalysis returns the paths of a session's artifacts
func (r *Recorder) ExportForAnalysis(sessionID string) (*ExportManifest, error) {
	dir := filepath.Join(r.dataDir, sessionID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("no artifacts for session %s: %w", sessionID, err)
	}

	manifest := &ExportManifest{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		switch filepath.Ext(entry.Name()) {
		case ".csv":
			manifest.CSVPaths = append(manifest.CSVPaths, path)
		case ".json":
			manifest.JSONPaths = append(manifest.JSONPaths, path)
		}
	}
	return manifest, nil
}

func (r *Recorder) appendCSV(path string, header, row []string) {
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		r.degrade("open csv", err)
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(header); err != nil {
			r.degrade("write csv header", err)
			return
		}
	}
	if err := w.Write(row); err != nil {
		r.degrade("write csv row", err)
		return
	}
	w.Flush()
	if err := w.Error(); err != nil {
		r.degrade("flush csv", err)
	}
}

func (r *Recorder) degrade(op string, err error) {
	r.logger.Error("Interaction logging failed", "op", op, "error", err)
	fmt.Fprintf(os.Stderr, "telemetry: %s: %v\n", op, err)
}
