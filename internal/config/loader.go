package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Load reads and parses the configuration file and environment variables
func Load(configPath string) (*Config, *Secrets, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, LoadSecrets(), nil
}

// Default returns a configuration usable without a config file. The serve
// command falls back to it when no file is present so a bare deployment with
// just env vars still starts.
func Default() *Config {
	cfg := &Config{
		Models: map[string]ModelConfig{
			"chat": {
				BaseURL:   "https://api.openai.com/v1",
				ModelName: "gpt-4o-mini",
			},
		},
	}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.ShutdownSeconds == 0 {
		cfg.Server.ShutdownSeconds = 15
	}

	if cfg.Models == nil {
		cfg.Models = map[string]ModelConfig{}
	}
	for name, mc := range cfg.Models {
		if mc.Temperature == 0 {
			mc.Temperature = 0.7
		}
		if mc.TopP == 0 {
			mc.TopP = 1.0
		}
		if mc.MaxOutputTokens == 0 {
			mc.MaxOutputTokens = 2048
		}
		if mc.RateLimitPerMinute == 0 {
			mc.RateLimitPerMinute = 60
		}
		if mc.TimeoutSeconds == 0 {
			mc.TimeoutSeconds = 45
		}
		if mc.MaxRetries == 0 {
			mc.MaxRetries = 2
		}
		cfg.Models[name] = mc
	}

	if cfg.Session.DataDir == "" {
		cfg.Session.DataDir = "thesis_data"
	}
	if cfg.Session.RecentContextTurns == 0 {
		cfg.Session.RecentContextTurns = 6
	}
	if cfg.Session.MaxImageBundles == 0 {
		cfg.Session.MaxImageBundles = 2
	}
	if cfg.Session.CheckpointInterval == 0 {
		cfg.Session.CheckpointInterval = 1
	}

	if cfg.Grading.PassThreshold == 0 {
		cfg.Grading.PassThreshold = 3.0
	}
	if cfg.Grading.BonusThreshold == 0 {
		cfg.Grading.BonusThreshold = 4.0
	}

	if cfg.Gamification.MinTurnsBetweenGames == 0 {
		cfg.Gamification.MinTurnsBetweenGames = DefaultGameCadence
	}

	if cfg.Vision.TimeoutSeconds == 0 {
		cfg.Vision.TimeoutSeconds = 60
	}
	if cfg.ImageGeneration.TimeoutSeconds == 0 {
		cfg.ImageGeneration.TimeoutSeconds = 120
	}
	if cfg.ImageGeneration.Style == "" {
		cfg.ImageGeneration.Style = "concept_sketch"
	}
	if cfg.Search.TimeoutSeconds == 0 {
		cfg.Search.TimeoutSeconds = 20
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 3
	}
	if cfg.Export.TimeoutSeconds == 0 {
		cfg.Export.TimeoutSeconds = 300
	}

	if cfg.PromptTemplates.MetaClassifier == "" {
		cfg.PromptTemplates.MetaClassifier = DefaultMetaClassifierTemplate()
	}
	if cfg.PromptTemplates.GradeRubric == "" {
		cfg.PromptTemplates.GradeRubric = DefaultGradeRubricTemplate()
	}
	if cfg.PromptTemplates.SocraticQuestion == "" {
		cfg.PromptTemplates.SocraticQuestion = DefaultSocraticTemplate()
	}
	if cfg.PromptTemplates.DirectAnswer == "" {
		cfg.PromptTemplates.DirectAnswer = DefaultDirectAnswerTemplate()
	}
	if cfg.PromptTemplates.AnalysisSummary == "" {
		cfg.PromptTemplates.AnalysisSummary = DefaultAnalysisTemplate()
	}
}
