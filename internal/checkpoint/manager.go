package checkpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/atelier-lab/archmentor/internal/session"
)

const checkpointFilename = "checkpoint.json"

// Manager persists session snapshots so a process restart does not lose a
// participant's run. Per-turn saves go through an async writer; shutdown and
// phase boundaries save synchronously.
type Manager struct {
	dataDir  string
	interval int // save every N turns per session
	logger   *slog.Logger

	mu       sync.Mutex
	counters map[string]int // turns since last save, by session id

	writeChan   chan *session.Snapshot
	writeWg     sync.WaitGroup
	stopWriter  chan struct{}
	closeOnce   sync.Once
	writeMu     sync.Mutex // serializes disk writes
	writerError error
	errorMu     sync.Mutex
}

// NewManager creates a checkpoint manager writing under dataDir. An interval
// of n saves every nth turn; values below 1 save every turn.
func NewManager(dataDir string, interval int, logger *slog.Logger) *Manager {
	if interval < 1 {
		interval = 1
	}
	m := &Manager{
		dataDir:    dataDir,
		interval:   interval,
		logger:     logger.With("component", "checkpoint"),
		counters:   make(map[string]int),
		writeChan:  make(chan *session.Snapshot, 10),
		stopWriter: make(chan struct{}),
	}
	m.startAsyncWriter()
	return m
}

func (m *Manager) startAsyncWriter() {
	m.writeWg.Add(1)
	go func() {
		defer m.writeWg.Done()
		for {
			select {
			case snap := <-m.writeChan:
				if err := m.writeToDisk(snap); err != nil {
					m.errorMu.Lock()
					m.writerError = err
					m.errorMu.Unlock()
					m.logger.Error("Failed to write checkpoint", "session_id", snap.ID, "error", err)
				}
			case <-m.stopWriter:
				// Drain remaining writes before stopping.
				for len(m.writeChan) > 0 {
					snap := <-m.writeChan
					if err := m.writeToDisk(snap); err != nil {
						m.logger.Error("Failed to write checkpoint during shutdown", "error", err)
					}
				}
				return
			}
		}
	}()
}

// writeToDisk writes the snapshot atomically: temp file, then rename
func (m *Manager) writeToDisk(snap *session.Snapshot) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	dir := filepath.Join(m.dataDir, snap.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint dir: %w", err)
	}

	path := filepath.Join(dir, checkpointFilename)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp checkpoint: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename checkpoint: %w", err)
	}

	m.logger.Debug("Checkpoint saved", "session_id", snap.ID, "phase", snap.CurrentPhase)
	return nil
}

// Save queues a snapshot after a turn, honoring the per-session interval. The
// caller holds the session.
func (m *Manager) Save(sess *session.Session) {
	m.mu.Lock()
	m.counters[sess.ID()]++
	due := m.counters[sess.ID()] >= m.interval
	if due {
		m.counters[sess.ID()] = 0
	}
	m.mu.Unlock()
	if !due {
		return
	}

	snap := sess.Snapshot()
	select {
	case m.writeChan <- snap:
	default:
		// Buffer full; write synchronously rather than drop the snapshot.
		m.logger.Warn("Checkpoint write buffer full, writing synchronously", "session_id", snap.ID)
		if err := m.writeToDisk(snap); err != nil {
			m.logger.Error("Synchronous checkpoint write failed", "error", err)
		}
	}
}

// SaveSync writes a snapshot immediately. Used at phase boundaries and
// shutdown where losing the state would cost real participant data.
func (m *Manager) SaveSync(sess *session.Session) error {
	return m.writeToDisk(sess.Snapshot())
}

// Remove deletes a session's checkpoint, typically after a reset
func (m *Manager) Remove(sessionID string) {
	path := filepath.Join(m.dataDir, sessionID, checkpointFilename)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("Failed to remove checkpoint", "session_id", sessionID, "error", err)
	}
	m.mu.Lock()
	delete(m.counters, sessionID)
	m.mu.Unlock()
}

// LoadAll reads every session checkpoint under dataDir. Unreadable or corrupt
// files are skipped with a warning; a bad checkpoint must not block startup.
func LoadAll(dataDir string, logger *slog.Logger) []*session.Snapshot {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Cannot read checkpoint directory", "dir", dataDir, "error", err)
		}
		return nil
	}

	var snaps []*session.Snapshot
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dataDir, entry.Name(), checkpointFilename)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var snap session.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			logger.Warn("Skipping corrupt checkpoint", "path", path, "error", err)
			continue
		}
		snaps = append(snaps, &snap)
	}
	if len(snaps) > 0 {
		logger.Info("Checkpoints loaded", "count", len(snaps))
	}
	return snaps
}

// Close stops the async writer, drains pending writes, and reports the last
// write error if any occurred
func (m *Manager) Close() error {
	m.closeOnce.Do(func() { close(m.stopWriter) })
	m.writeWg.Wait()

	m.errorMu.Lock()
	defer m.errorMu.Unlock()
	return m.writerError
}
