package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/atelier-lab/archmentor/internal/agents"
	"github.com/atelier-lab/archmentor/internal/api"
	"github.com/atelier-lab/archmentor/internal/checkpoint"
	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/internal/export"
	"github.com/atelier-lab/archmentor/internal/gamify"
	"github.com/atelier-lab/archmentor/internal/imagegen"
	"github.com/atelier-lab/archmentor/internal/phase"
	"github.com/atelier-lab/archmentor/internal/router"
	"github.com/atelier-lab/archmentor/internal/search"
	"github.com/atelier-lab/archmentor/internal/server"
	"github.com/atelier-lab/archmentor/internal/session"
	"github.com/atelier-lab/archmentor/internal/tasks"
	"github.com/atelier-lab/archmentor/internal/telemetry"
	"github.com/atelier-lab/archmentor/internal/vision"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	envFile    string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "archmentor",
		Short: "ArchMentor - architectural design mentoring backend",
		Long: `ArchMentor is the conversation control plane for an interactive
architectural design mentor: session state, agent routing, phase
progression, gamified challenges, and research telemetry.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the mentoring backend: restores any checkpointed sessions,
serves the chat API, and flushes session artifacts on shutdown.`,
		RunE: runServe,
	}

	exportCmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Mirror a session's research artifacts to remote storage",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}

	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect recorded sessions",
	}
	sessionCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List checkpointed sessions",
		RunE:  runSessionList,
	})
	sessionCmd.AddCommand(&cobra.Command{
		Use:   "inspect <session-id>",
		Short: "Show a session's checkpointed state",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionInspect,
	})

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(sessionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads TOML config plus env secrets, falling back to built-in
// defaults when no config file exists
func loadConfig() (*config.Config, *config.Secrets, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load env file: %v\n", err)
		}
	}
	if _, err := os.Stat(configPath); err == nil {
		return config.Load(configPath)
	}
	return config.Default(), config.LoadSecrets(), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, secrets, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger, logFile, err := telemetry.SetupLogger(cfg.Session.DataDir, logLevel)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logFile.Close()

	logger.Info("Starting ArchMentor",
		"version", Version,
		"data_dir", cfg.Session.DataDir,
		"llm_enabled", secrets.HasLLM(),
		"search_enabled", secrets.HasSearch(),
		"imagegen_enabled", secrets.HasImageGen())

	store := session.NewStore(logger)
	for _, snap := range checkpoint.LoadAll(cfg.Session.DataDir, logger) {
		if !snap.Closed {
			store.Restore(snap)
		}
	}

	metrics := telemetry.NewCollector(logger)
	client := api.NewClient(secrets.LLMAPIKey, logger)
	client.SetRecorder(metrics.RecordLLMRequest)
	recorder := telemetry.NewRecorder(cfg.Session.DataDir, logger)

	var searcher agents.Searcher
	if sc := search.New(cfg.Search, secrets.SearchAPIKey, logger); sc != nil {
		searcher = sc
	}

	deps := router.Deps{
		Config:    cfg,
		Store:     store,
		Router:    router.NewRouter(router.NewClassifier(cfg, client, logger), logger),
		Engine:    phase.NewEngine(cfg, phase.NewGrader(cfg, client, logger), logger),
		TaskMgr:   tasks.NewManager(cfg, logger),
		Analysis:  agents.NewAnalysisAgent(cfg, client, logger),
		Socratic:  agents.NewSocraticAgent(cfg, client, logger),
		Expert:    agents.NewExpertAgent(cfg, client, searcher, logger),
		Cognitive: agents.NewCognitiveAgent(cfg, gamify.NewDecider(cfg, logger), gamify.NewGenerator(cfg, client, logger), logger),
		Completer: client,
		Recorder:  recorder,
		Metrics:   metrics,
		Logger:    logger,
	}
	if vc := vision.New(cfg.Vision, logger); vc != nil {
		deps.Vision = vc
	}
	if ic := imagegen.New(cfg.ImageGeneration, secrets.ImageAPIKey, logger); ic != nil {
		deps.ImageGen = ic
	}
	orch := router.NewOrchestrator(deps)

	checkpoints := checkpoint.NewManager(cfg.Session.DataDir, cfg.Session.CheckpointInterval, logger)
	srv := server.New(cfg, store, orch, recorder, checkpoints, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := srv.ListenAndServe(ctx)

	// Shutdown: every live session's artifacts and state land on disk.
	for _, sess := range store.All() {
		sess.Begin()
		recorder.FlushSession(sess)
		if err := checkpoints.SaveSync(sess); err != nil {
			logger.Error("Failed to checkpoint session at shutdown", "session_id", sess.ID(), "error", err)
		}
		sess.End()
	}
	if err := checkpoints.Close(); err != nil {
		logger.Error("Checkpoint writer reported an error", "error", err)
	}
	logger.Info("Shutdown complete", "sessions_flushed", len(store.All()))
	return serveErr
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, secrets, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	mirror := export.NewMirror(cfg.Export, secrets.StorageToken, logger)
	if mirror == nil {
		return fmt.Errorf("remote export is not configured: set export.remote_base_url and STORAGE_TOKEN")
	}

	recorder := telemetry.NewRecorder(cfg.Session.DataDir, logger)
	return mirror.MirrorSession(cmd.Context(), recorder, args[0], true)
}

func runSessionList(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	snaps := checkpoint.LoadAll(cfg.Session.DataDir, logger)
	if len(snaps) == 0 {
		fmt.Println("No checkpointed sessions found.")
		return nil
	}

	fmt.Printf("%-38s %-12s %-8s %-16s %6s  %s\n", "SESSION", "PARTICIPANT", "ARM", "PHASE", "TURNS", "SAVED")
	for _, snap := range snaps {
		fmt.Printf("%-38s %-12s %-8s %-16s %6d  %s\n",
			snap.ID, snap.ParticipantID, snap.Arm, snap.CurrentPhase,
			len(snap.Turns), snap.SavedAt.Format(time.RFC3339))
	}
	return nil
}

func runSessionInspect(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	path := filepath.Join(cfg.Session.DataDir, args[0], "checkpoint.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("no checkpoint for session %s: %w", args[0], err)
	}
	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("corrupt checkpoint: %w", err)
	}

	fmt.Printf("Session:      %s\n", snap.ID)
	fmt.Printf("Participant:  %s\n", snap.ParticipantID)
	fmt.Printf("Arm:          %s\n", snap.Arm)
	fmt.Printf("Created:      %s\n", snap.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Saved:        %s\n", snap.SavedAt.Format(time.RFC3339))
	fmt.Printf("Phase:        %s\n", snap.CurrentPhase)
	fmt.Printf("Turns:        %d\n", len(snap.Turns))
	fmt.Printf("Games played: %d\n", snap.GamesPlayed)
	if snap.BuildingType != "" {
		fmt.Printf("Project type: %s\n", snap.BuildingType)
	}
	for phaseName, prog := range snap.Progress {
		fmt.Printf("  %-16s %5.1f%%  steps: %v\n", phaseName, prog.CompletionPercent, prog.CompletedSteps)
	}
	if len(snap.FiredTasks) > 0 {
		fmt.Printf("Tasks fired:  %v\n", snap.FiredTasks)
	}
	return nil
}
