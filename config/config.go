// Package config resolves the process configuration: compiled defaults,
// then an optional YAML settings file, then environment variables, then the
// machine-written runtime override file (runtime_config.json). The runtime
// layer is the one mutated through POST /config; updating it persists
// best-effort and triggers an orchestrator rebind.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deskagent/deskagent/logging"
)

const appName = "DeskAgent"

// RuntimeConfig is the mutable slice of configuration exposed over HTTP.
// Mutation rebinds the completion provider and restarts the scheduler while
// history persists across the restart.
type RuntimeConfig struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url"`
	DocumentsDir string `json:"documents_dir"`
}

// RuntimeUpdate carries a partial update; nil fields are left untouched so
// absence is distinguishable from an explicit empty string.
type RuntimeUpdate struct {
	Provider     *string `json:"provider"`
	Model        *string `json:"model"`
	APIKey       *string `json:"api_key"`
	BaseURL      *string `json:"base_url"`
	DocumentsDir *string `json:"documents_dir"`
}

// fileConfig is the YAML settings file shape. Durations are strings parsed
// with time.ParseDuration.
type fileConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	DataDir            string        `yaml:"data_dir"`
	AgentName          string        `yaml:"agent_name"`
	FollowupDelay      string        `yaml:"followup_delay"`
	LLMTimeout         string        `yaml:"llm_timeout"`
	EventQueueCapacity int           `yaml:"event_queue_capacity"`
	Runtime            RuntimeConfig `yaml:"runtime"`
}

// Settings is the fully resolved process configuration.
type Settings struct {
	Host      string
	Port      int
	AgentName string

	DataDir            string
	TemplatesDir       string
	PromptOverridesDir string
	HistoryFile        string
	RuntimeConfigFile  string

	FollowupDelay      time.Duration
	LLMTimeout         time.Duration
	EventQueueCapacity int

	Runtime RuntimeConfig

	logger logging.Logger
}

// Options holds overrides passed to Load().
type Options struct {
	Logger logging.Logger
}

// Load resolves Settings from the optional YAML file at path plus the
// environment and the runtime override file. A missing settings file is not
// an error; a malformed one is.
func Load(path string, optFns ...func(o *Options)) (*Settings, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Settings{
		Host:               "127.0.0.1",
		Port:               8765,
		AgentName:          appName,
		DataDir:            defaultDataDir(),
		FollowupDelay:      0,
		LLMTimeout:         120 * time.Second,
		EventQueueCapacity: 256,
		Runtime: RuntimeConfig{
			Provider: "openai",
			Model:    "deepseek-ai/DeepSeek-V3.2",
			BaseURL:  "https://api.siliconflow.cn/v1",
		},
		logger: opts.Logger,
	}

	if path != "" {
		if err := s.applyFile(path); err != nil {
			return nil, err
		}
	}
	s.applyEnv()
	s.resolvePaths()
	s.applyRuntimeOverrides(s.loadRuntimeOverrides())
	return s, nil
}

func (s *Settings) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read settings file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse settings file: %w", err)
	}
	if fc.Host != "" {
		s.Host = fc.Host
	}
	if fc.Port != 0 {
		s.Port = fc.Port
	}
	if fc.DataDir != "" {
		s.DataDir = fc.DataDir
	}
	if fc.AgentName != "" {
		s.AgentName = fc.AgentName
	}
	if fc.EventQueueCapacity > 0 {
		s.EventQueueCapacity = fc.EventQueueCapacity
	}
	if fc.FollowupDelay != "" {
		if d, err := time.ParseDuration(fc.FollowupDelay); err == nil {
			s.FollowupDelay = d
		} else {
			s.logger.Warn("invalid followup_delay in settings file", "value", fc.FollowupDelay)
		}
	}
	if fc.LLMTimeout != "" {
		if d, err := time.ParseDuration(fc.LLMTimeout); err == nil {
			s.LLMTimeout = d
		} else {
			s.logger.Warn("invalid llm_timeout in settings file", "value", fc.LLMTimeout)
		}
	}
	mergeRuntime(&s.Runtime, fc.Runtime)
	return nil
}

func mergeRuntime(dst *RuntimeConfig, src RuntimeConfig) {
	if src.Provider != "" {
		dst.Provider = src.Provider
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.APIKey != "" {
		dst.APIKey = src.APIKey
	}
	if src.BaseURL != "" {
		dst.BaseURL = src.BaseURL
	}
	if src.DocumentsDir != "" {
		dst.DocumentsDir = src.DocumentsDir
	}
}

func (s *Settings) applyEnv() {
	setFromEnv := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setFromEnv("DESKAGENT_DATA_DIR", &s.DataDir)
	setFromEnv("DESKAGENT_PROVIDER", &s.Runtime.Provider)
	setFromEnv("DESKAGENT_MODEL", &s.Runtime.Model)
	setFromEnv("DESKAGENT_API_KEY", &s.Runtime.APIKey)
	setFromEnv("DESKAGENT_BASE_URL", &s.Runtime.BaseURL)
	setFromEnv("DESKAGENT_DOCUMENTS_DIR", &s.Runtime.DocumentsDir)
}

func (s *Settings) resolvePaths() {
	s.TemplatesDir = filepath.Join(s.DataDir, "templates")
	s.PromptOverridesDir = filepath.Join(s.DataDir, "prompts")
	s.HistoryFile = filepath.Join(s.DataDir, "conversation_history.json")
	s.RuntimeConfigFile = filepath.Join(s.DataDir, "runtime_config.json")
	if s.Runtime.DocumentsDir == "" {
		s.Runtime.DocumentsDir = s.DefaultDocumentsDir()
	}
}

// DefaultDocumentsDir is where context documents live unless overridden.
func (s *Settings) DefaultDocumentsDir() string {
	return filepath.Join(s.DataDir, "documents")
}

// loadRuntimeOverrides reads the persisted runtime override file. Absent or
// corrupt files yield an empty update.
func (s *Settings) loadRuntimeOverrides() RuntimeUpdate {
	var u RuntimeUpdate
	data, err := os.ReadFile(s.RuntimeConfigFile)
	if err != nil {
		return u
	}
	if err := json.Unmarshal(data, &u); err != nil {
		s.logger.Warn("runtime config file corrupt, ignoring", "path", s.RuntimeConfigFile, "error", err)
		return RuntimeUpdate{}
	}
	return u
}

// applyRuntimeOverrides merges the non-nil fields of u into the live runtime
// config. An explicit empty documents_dir resets to the default location.
func (s *Settings) applyRuntimeOverrides(u RuntimeUpdate) {
	if u.Provider != nil && *u.Provider != "" {
		s.Runtime.Provider = *u.Provider
	}
	if u.Model != nil && *u.Model != "" {
		s.Runtime.Model = *u.Model
	}
	if u.APIKey != nil {
		s.Runtime.APIKey = *u.APIKey
	}
	if u.BaseURL != nil && *u.BaseURL != "" {
		s.Runtime.BaseURL = *u.BaseURL
	}
	if u.DocumentsDir != nil {
		if *u.DocumentsDir != "" {
			s.Runtime.DocumentsDir = *u.DocumentsDir
		} else {
			s.Runtime.DocumentsDir = s.DefaultDocumentsDir()
		}
	}
}

// UpdateRuntime merges u into the persisted override file and the live
// runtime config, returning the result. Persistence is best-effort: a write
// failure is logged and the in-memory update still applies.
func (s *Settings) UpdateRuntime(u RuntimeUpdate) RuntimeConfig {
	stored := s.loadRuntimeOverrides()
	if u.Provider != nil {
		stored.Provider = u.Provider
	}
	if u.Model != nil {
		stored.Model = u.Model
	}
	if u.APIKey != nil {
		stored.APIKey = u.APIKey
	}
	if u.BaseURL != nil {
		stored.BaseURL = u.BaseURL
	}
	if u.DocumentsDir != nil {
		stored.DocumentsDir = u.DocumentsDir
	}
	s.saveRuntimeOverrides(stored)
	s.applyRuntimeOverrides(u)
	return s.Runtime
}

func (s *Settings) saveRuntimeOverrides(u RuntimeUpdate) {
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		s.logger.Warn("runtime config marshal failed", "error", err)
		return
	}
	if err := os.MkdirAll(s.DataDir, 0o755); err != nil {
		s.logger.Warn("runtime config save failed", "path", s.RuntimeConfigFile, "error", err)
		return
	}
	if err := os.WriteFile(s.RuntimeConfigFile, data, 0o644); err != nil {
		s.logger.Warn("runtime config save failed", "path", s.RuntimeConfigFile, "error", err)
	}
}

// defaultDataDir resolves the per-user data directory for the current OS.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = os.Getenv("LOCALAPPDATA")
		}
		if base == "" {
			base = home
		}
		return filepath.Join(base, appName)
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, appName)
	}
}
