package assistant

import (
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/Mercy2112/ai-voice-assistant/pkg/accumulator"
	"github.com/Mercy2112/ai-voice-assistant/pkg/configutil"
	"github.com/Mercy2112/ai-voice-assistant/pkg/pipeline"
)

type Config struct {
	Environment   string               `mapstructure:"environment"`
	LogLevel      string               `mapstructure:"log_level"`
	LogFormat     string               `mapstructure:"log_format"`
	Server        ServerConfig         `mapstructure:"server"`
	Transports    VendorConfig         `mapstructure:"transports"`
	Vendors       VendorsConfig        `mapstructure:"vendors"`
	Agent         pipeline.AgentConfig `mapstructure:"agent"`
	Accumulator   accumulator.Config   `mapstructure:"accumulator"`
	Pipeline      pipeline.Config      `mapstructure:"pipeline"`
	Resilience    ResilienceConfig     `mapstructure:"resilience"`
	Storage       StorageConfig        `mapstructure:"storage"`
	Observability ObservabilityConfig  `mapstructure:"observability"`
	Privacy       PrivacyConfig        `mapstructure:"privacy"`
}

type ServerConfig struct {
	Addr              string `mapstructure:"addr"`
	ShutdownTimeoutMs int    `mapstructure:"shutdown_timeout_ms"`
}

// VendorConfig selects a provider by name and carries its raw settings.
type VendorConfig struct {
	Provider string              `mapstructure:"provider"`
	Settings configutil.Settings `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
	TTS VendorConfig `mapstructure:"tts"`
	LLM VendorConfig `mapstructure:"llm"`
}

// ResilienceConfig tunes the rate-limit breakers and completion retries
// wrapped around every provider.
type ResilienceConfig struct {
	BreakerThreshold  int `mapstructure:"breaker_threshold"`
	BreakerCooldownMs int `mapstructure:"breaker_cooldown_ms"`
	LLMRetries        int `mapstructure:"llm_retries"`
	RetryBaseMs       int `mapstructure:"retry_base_ms"`
}

type StorageConfig struct {
	// Path of the sqlite call archive; empty disables archiving.
	Path    string `mapstructure:"path"`
	Retries int    `mapstructure:"retries"`
}

type ObservabilityConfig struct {
	ArtifactsDir  string  `mapstructure:"artifacts_dir"`
	RetentionDays int     `mapstructure:"retention_days"`
	EventBuffer   int     `mapstructure:"event_buffer"`
	SampleRate    float64 `mapstructure:"sample_rate"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout_ms", 30000)
	v.SetDefault("transports.provider", "twilio")
	v.SetDefault("agent.persona", "You are a friendly, concise phone assistant. Keep every reply to one or two short sentences.")
	v.SetDefault("agent.objective", "Help the caller with their request.")
	v.SetDefault("agent.greeting", "Hello, please hold while I connect you.")
	v.SetDefault("accumulator.min_utterance_ms", 400)
	v.SetDefault("accumulator.trailing_silence_ms", 700)
	v.SetDefault("accumulator.max_utterance_ms", 15000)
	v.SetDefault("accumulator.silence_threshold", 500)
	v.SetDefault("pipeline.transcribe_timeout_ms", 10000)
	v.SetDefault("pipeline.complete_timeout_ms", 15000)
	v.SetDefault("pipeline.synthesize_timeout_ms", 15000)
	v.SetDefault("pipeline.emit_timeout_ms", 30000)
	v.SetDefault("pipeline.min_transcript_chars", 2)
	v.SetDefault("pipeline.max_frame_bytes", 160)
	v.SetDefault("pipeline.temperature", 0.4)
	v.SetDefault("pipeline.max_tokens", 200)
	v.SetDefault("pipeline.text.max_reply_chars", 420)
	v.SetDefault("pipeline.text.max_reply_sentences", 3)
	v.SetDefault("resilience.breaker_threshold", 3)
	v.SetDefault("resilience.breaker_cooldown_ms", 30000)
	v.SetDefault("resilience.llm_retries", 2)
	v.SetDefault("resilience.retry_base_ms", 200)
	v.SetDefault("storage.retries", 2)
	v.SetDefault("observability.event_buffer", 2048)
	v.SetDefault("observability.sample_rate", 1.0)
	v.SetDefault("privacy.redact_pii", true)
	return v
}

func LoadConfig(path string) (Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	expandEnvStrings(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Transports.Provider) == "" {
		return fmt.Errorf("transports.provider is required")
	}
	for name, vc := range map[string]VendorConfig{"stt": c.Vendors.STT, "tts": c.Vendors.TTS, "llm": c.Vendors.LLM} {
		if strings.TrimSpace(vc.Provider) == "" {
			return fmt.Errorf("vendors.%s.provider is required", name)
		}
	}
	if c.Accumulator.MaxUtteranceMs > 0 && c.Accumulator.MinUtteranceMs > c.Accumulator.MaxUtteranceMs {
		return fmt.Errorf("accumulator.min_utterance_ms exceeds max_utterance_ms")
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Transports.Settings = configutil.ExpandEnv(cfg.Transports.Settings)
	cfg.Vendors.STT.Settings = configutil.ExpandEnv(cfg.Vendors.STT.Settings)
	cfg.Vendors.TTS.Settings = configutil.ExpandEnv(cfg.Vendors.TTS.Settings)
	cfg.Vendors.LLM.Settings = configutil.ExpandEnv(cfg.Vendors.LLM.Settings)
}

// expandValue expands env references in every settable string field.
func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	switch v.Kind() {
	case reflect.Pointer:
		if !v.IsNil() {
			expandValue(v.Elem())
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}

// AgentSource serves the agent section and swaps it when the config file
// changes on disk. Calls already in progress keep the agent they started
// with.
type AgentSource struct {
	mu    sync.RWMutex
	agent pipeline.AgentConfig
}

func NewAgentSource(agent pipeline.AgentConfig) *AgentSource {
	return &AgentSource{agent: agent}
}

func (s *AgentSource) Get() pipeline.AgentConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agent
}

func (s *AgentSource) Set(agent pipeline.AgentConfig) {
	s.mu.Lock()
	s.agent = agent
	s.mu.Unlock()
}

// Watch reloads path on every write and publishes its agent section.
// Invalid edits are logged and ignored.
func (s *AgentSource) Watch(path string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	v.OnConfigChange(func(ev fsnotify.Event) {
		if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			log.Warn("config_reload_failed", "file", ev.Name, "error", err)
			return
		}
		s.Set(cfg.Agent)
		log.Info("agent_reloaded", "file", ev.Name, "objective", cfg.Agent.Objective)
	})
	v.WatchConfig()
	return nil
}
