package config

import (
	"fmt"
	"os"
	"strings"
)

// Config represents the complete application configuration
type Config struct {
	Server          ServerConfig           `toml:"server"`
	Models          map[string]ModelConfig `toml:"models"`
	Session         SessionConfig          `toml:"session"`
	Grading         GradingConfig          `toml:"grading"`
	Gamification    GamificationConfig     `toml:"gamification"`
	Tasks           TasksConfig            `toml:"tasks"`
	Vision          VisionConfig           `toml:"vision"`
	ImageGeneration ImageGenConfig         `toml:"image_generation"`
	Search          SearchConfig           `toml:"search"`
	Export          ExportConfig           `toml:"export"`
	PromptTemplates PromptTemplates        `toml:"prompt_templates"`
}

// ServerConfig holds the HTTP surface settings
type ServerConfig struct {
	Port            string `toml:"port"`
	FrontendOrigin  string `toml:"frontend_origin"`
	ShutdownSeconds int    `toml:"shutdown_seconds"`
}

// ModelConfig represents configuration for a single model endpoint.
// The "chat" role is required; "classifier", "grader" and "content" fall back
// to it when absent so a single endpoint can serve the whole pipeline.
type ModelConfig struct {
	BaseURL            string  `toml:"base_url"`
	ModelName          string  `toml:"model_name"`
	Temperature        float64 `toml:"temperature"`
	TopP               float64 `toml:"top_p"`
	MaxOutputTokens    int     `toml:"max_output_tokens"`
	RateLimitPerMinute int     `toml:"rate_limit_per_minute"`
	TimeoutSeconds     int     `toml:"timeout_seconds"`
	MaxRetries         int     `toml:"max_retries"`
	UseJSONMode        bool    `toml:"use_json_mode"` // request response_format=json_object for payloads
}

// SessionConfig holds per-session behavior settings
type SessionConfig struct {
	DataDir            string `toml:"data_dir"`             // root of thesis_data/<session_id>/ trees
	RecentContextTurns int    `toml:"recent_context_turns"` // k for get_recent_context
	MaxImageBundles    int    `toml:"max_image_bundles"`    // vision analysis re-bundling cap per image
	CheckpointInterval int    `toml:"checkpoint_interval"`  // save session state every N turns
}

// GradingConfig holds rubric grading thresholds
type GradingConfig struct {
	PassThreshold  float64 `toml:"pass_threshold"`  // per-step pass score, 0-5 scale
	BonusThreshold float64 `toml:"bonus_threshold"` // average score earning the completion bonus
}

// GamificationConfig controls challenge cadence
type GamificationConfig struct {
	Disabled             bool `toml:"disabled"`
	MinTurnsBetweenGames int  `toml:"min_turns_between_games"`
}

// Enabled reports whether gamified challenges may replace prose replies.
func (g GamificationConfig) Enabled() bool { return !g.Disabled }

// TasksConfig controls task trigger policy
type TasksConfig struct {
	// DeferPhaseEntryTasks delays the 0%-band task of a phase until the first
	// within-phase interaction. The default (false) fires it at the moment of
	// transition into the phase; session bootstrap counts as entering
	// ideation. Named in the negative so the TOML zero value is the pinned
	// policy.
	DeferPhaseEntryTasks bool `toml:"defer_phase_entry_tasks"`
}

// FireOnPhaseEntry reports whether 0%-band tasks fire on phase entry.
func (t TasksConfig) FireOnPhaseEntry() bool { return !t.DeferPhaseEntryTasks }

// VisionConfig holds the external image-analysis service settings
type VisionConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ImageGenConfig holds the external image-generation service settings
type ImageGenConfig struct {
	BaseURL        string `toml:"base_url"`
	Style          string `toml:"style"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// SearchConfig holds the external project-example search settings
type SearchConfig struct {
	BaseURL        string `toml:"base_url"`
	MaxResults     int    `toml:"max_results"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ExportConfig holds the remote mirror settings for session artifacts
type ExportConfig struct {
	RemoteBaseURL  string `toml:"remote_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// PromptTemplates holds the customizable LLM prompt templates
type PromptTemplates struct {
	MetaClassifier   string `toml:"meta_classifier"`
	GradeRubric      string `toml:"grade_rubric"`
	SocraticQuestion string `toml:"socratic_question"`
	DirectAnswer     string `toml:"direct_answer"`
	AnalysisSummary  string `toml:"analysis_summary"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	chat, ok := c.Models["chat"]
	if !ok {
		return fmt.Errorf("models.chat is required")
	}
	if err := validateModelConfig("chat", chat); err != nil {
		return err
	}
	for name, mc := range c.Models {
		if name == "chat" {
			continue
		}
		if err := validateModelConfig(name, mc); err != nil {
			return err
		}
	}

	if c.Session.RecentContextTurns < 1 {
		return fmt.Errorf("session.recent_context_turns must be at least 1 (got %d)", c.Session.RecentContextTurns)
	}
	if c.Session.MaxImageBundles < 1 {
		return fmt.Errorf("session.max_image_bundles must be at least 1 (got %d)", c.Session.MaxImageBundles)
	}
	if c.Grading.PassThreshold < 0 || c.Grading.PassThreshold > 5 {
		return fmt.Errorf("grading.pass_threshold must be between 0 and 5 (got %.1f)", c.Grading.PassThreshold)
	}
	if c.Grading.BonusThreshold < 0 || c.Grading.BonusThreshold > 5 {
		return fmt.Errorf("grading.bonus_threshold must be between 0 and 5 (got %.1f)", c.Grading.BonusThreshold)
	}
	if c.Gamification.MinTurnsBetweenGames < 1 {
		return fmt.Errorf("gamification.min_turns_between_games must be at least 1 (got %d)", c.Gamification.MinTurnsBetweenGames)
	}
	if c.PromptTemplates.GradeRubric == "" {
		return fmt.Errorf("prompt_templates.grade_rubric is required")
	}
	if c.PromptTemplates.MetaClassifier == "" {
		return fmt.Errorf("prompt_templates.meta_classifier is required")
	}
	return nil
}

func validateModelConfig(name string, mc ModelConfig) error {
	if mc.BaseURL == "" {
		return fmt.Errorf("models.%s.base_url is required", name)
	}
	if mc.ModelName == "" {
		return fmt.Errorf("models.%s.model_name is required", name)
	}
	if mc.Temperature < 0 || mc.Temperature > 2 {
		return fmt.Errorf("models.%s.temperature must be between 0 and 2", name)
	}
	if mc.TopP < 0 || mc.TopP > 1 {
		return fmt.Errorf("models.%s.top_p must be between 0 and 1", name)
	}
	if mc.MaxOutputTokens < 1 {
		return fmt.Errorf("models.%s.max_output_tokens must be at least 1", name)
	}
	if mc.RateLimitPerMinute < 1 {
		return fmt.Errorf("models.%s.rate_limit_per_minute must be at least 1", name)
	}
	return nil
}

// Model returns the model configuration for a pipeline role, falling back to
// the chat model when the role is not configured separately.
func (c *Config) Model(role string) ModelConfig {
	if mc, ok := c.Models[role]; ok {
		return mc
	}
	return c.Models["chat"]
}

// Secrets holds sensitive credentials loaded from environment variables.
// A missing secret turns the corresponding feature off; it never crashes.
type Secrets struct {
	LLMAPIKey    string
	SearchAPIKey string
	ImageAPIKey  string
	StorageToken string
	TelemetryKey string
}

// LoadSecrets loads credentials from environment variables
func LoadSecrets() *Secrets {
	return &Secrets{
		LLMAPIKey:    firstEnv("LLM_API_KEY", "OPENAI_API_KEY", "API_KEY"),
		SearchAPIKey: os.Getenv("SEARCH_API_KEY"),
		ImageAPIKey:  os.Getenv("IMAGE_API_KEY"),
		StorageToken: os.Getenv("STORAGE_TOKEN"),
		TelemetryKey: os.Getenv("TELEMETRY_KEY"),
	}
}

// HasLLM reports whether LLM-backed features can be enabled
func (s *Secrets) HasLLM() bool { return strings.TrimSpace(s.LLMAPIKey) != "" }

// HasSearch reports whether the web example search can be enabled
func (s *Secrets) HasSearch() bool { return strings.TrimSpace(s.SearchAPIKey) != "" }

// HasImageGen reports whether phase-transition image generation can be enabled
func (s *Secrets) HasImageGen() bool { return strings.TrimSpace(s.ImageAPIKey) != "" }

// HasStorage reports whether remote export can be enabled
func (s *Secrets) HasStorage() bool { return strings.TrimSpace(s.StorageToken) != "" }

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
