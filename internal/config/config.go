// Package config handles Ember configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/ember/config.yaml, /etc/ember/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ember", "config.yaml"))
	}

	paths = append(paths, "/etc/ember/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Ember configuration.
type Config struct {
	Listen       ListenConfig     `yaml:"listen"`
	Models       ModelsConfig     `yaml:"models"`
	Anthropic    AnthropicConfig  `yaml:"anthropic"`
	Embeddings   EmbeddingsConfig `yaml:"embeddings"`
	MQTT         MQTTConfig       `yaml:"mqtt"`
	Safety       SafetyConfig     `yaml:"safety"`
	Autonomy     AutonomyConfig   `yaml:"autonomy"`
	Proactive    ProactiveConfig  `yaml:"proactive"`
	DataDir      string           `yaml:"data_dir"`
	WorkspaceDir string           `yaml:"workspace_dir"`
	Timezone     string           `yaml:"timezone"`
	PersonaName  string           `yaml:"persona_name"`
	RequireLLM   bool             `yaml:"require_llm"`
	LogLevel     string           `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`    // Default: 8489
}

// ModelsConfig defines model selection settings.
type ModelsConfig struct {
	Default    string `yaml:"default"`    // Chat model (e.g., qwen3:8b)
	Background string `yaml:"background"` // Cheaper model for autonomous work
	Vision     string `yaml:"vision"`     // Multimodal model for scene analysis
	OllamaURL  string `yaml:"ollama_url"` // Default: http://localhost:11434
}

// AnthropicConfig defines the optional frontier fallback provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// EmbeddingsConfig defines vector memory embedding settings.
type EmbeddingsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`   // Embedding model name (e.g., nomic-embed-text)
	BaseURL string `yaml:"baseurl"` // Ollama URL (defaults to models.ollama_url)
}

// MQTTConfig defines the multimodal ingest bridge connection. Vision
// and voice-tone collaborators publish scene descriptions and tone
// events to the configured topics.
type MQTTConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BrokerURL  string `yaml:"broker_url"` // e.g., tcp://localhost:1883
	ClientID   string `yaml:"client_id"`
	SceneTopic string `yaml:"scene_topic"` // default ember/vision/scene
	ToneTopic  string `yaml:"tone_topic"`  // default ember/voice/tone
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
}

// SafetyConfig defines the command gate.
type SafetyConfig struct {
	Enabled           bool     `yaml:"enabled"`
	PaidAPIHosts      []string `yaml:"paid_api_hosts"`      // hostnames that cost money to hit
	DefaultTimeoutSec int      `yaml:"default_timeout_sec"` // default 30
	MaxAuditEntries   int      `yaml:"max_audit_entries"`   // default 1000
}

// AutonomyConfig defines the background life loop cadence.
type AutonomyConfig struct {
	Enabled       bool   `yaml:"enabled"`
	CyclePeriod   string `yaml:"cycle_period"`   // default 5m
	IdleThreshold string `yaml:"idle_threshold"` // default 2m of user silence
	MaxHistory    int    `yaml:"max_history"`    // activity records kept, default 1000
}

// ProactiveConfig defines proactive thought generation bounds.
type ProactiveConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MinInterval string `yaml:"min_interval"` // default 3m
	MaxInterval string `yaml:"max_interval"` // default 10m
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables so secrets can live outside the file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with all defaults applied and no
// file on disk. Used by tests and the fresh-start path.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8489
	}
	if c.Models.OllamaURL == "" {
		c.Models.OllamaURL = "http://localhost:11434"
	}
	if c.Models.Default == "" {
		c.Models.Default = "qwen3:8b"
	}
	if c.Models.Background == "" {
		c.Models.Background = c.Models.Default
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "nomic-embed-text"
	}
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = c.Models.OllamaURL
	}
	if c.MQTT.SceneTopic == "" {
		c.MQTT.SceneTopic = "ember/vision/scene"
	}
	if c.MQTT.ToneTopic == "" {
		c.MQTT.ToneTopic = "ember/voice/tone"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "ember"
	}
	if c.Safety.DefaultTimeoutSec == 0 {
		c.Safety.DefaultTimeoutSec = 30
	}
	if c.Safety.MaxAuditEntries == 0 {
		c.Safety.MaxAuditEntries = 1000
	}
	if c.Autonomy.CyclePeriod == "" {
		c.Autonomy.CyclePeriod = "5m"
	}
	if c.Autonomy.IdleThreshold == "" {
		c.Autonomy.IdleThreshold = "2m"
	}
	if c.Autonomy.MaxHistory == 0 {
		c.Autonomy.MaxHistory = 1000
	}
	if c.Proactive.MinInterval == "" {
		c.Proactive.MinInterval = "3m"
	}
	if c.Proactive.MaxInterval == "" {
		c.Proactive.MaxInterval = "10m"
	}
	if c.PersonaName == "" {
		c.PersonaName = "Ember"
	}
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	for _, d := range []struct{ name, val string }{
		{"autonomy.cycle_period", c.Autonomy.CyclePeriod},
		{"autonomy.idle_threshold", c.Autonomy.IdleThreshold},
		{"proactive.min_interval", c.Proactive.MinInterval},
		{"proactive.max_interval", c.Proactive.MaxInterval},
	} {
		if err := validDuration(d.val); err != nil {
			return fmt.Errorf("%s %q: %w", d.name, d.val, err)
		}
	}
	return nil
}

func validDuration(s string) error {
	if s == "" {
		return nil
	}
	_, err := time.ParseDuration(s)
	return err
}

// Duration parses a config duration string, returning fallback when the
// string is empty or malformed. Validation has already rejected bad
// values by the time wiring code calls this, so the fallback path only
// fires for optional fields.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
