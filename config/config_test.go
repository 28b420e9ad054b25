package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DESKAGENT_DATA_DIR", t.TempDir())

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", s.Host)
	assert.Equal(t, 8765, s.Port)
	assert.Equal(t, "openai", s.Runtime.Provider)
	assert.Equal(t, s.DefaultDocumentsDir(), s.Runtime.DocumentsDir)
	assert.Equal(t, 120*time.Second, s.LLMTimeout)
}

func TestLoad_SettingsFile(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("DESKAGENT_DATA_DIR", "")
	path := filepath.Join(t.TempDir(), "deskagent.yaml")
	content := `
host: 0.0.0.0
port: 9999
data_dir: ` + dataDir + `
followup_delay: 15m
llm_timeout: 30s
event_queue_capacity: 64
runtime:
  provider: anthropic
  model: claude-3-5-sonnet-20241022
  api_key: file-key
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", s.Host)
	assert.Equal(t, 9999, s.Port)
	assert.Equal(t, dataDir, s.DataDir)
	assert.Equal(t, 15*time.Minute, s.FollowupDelay)
	assert.Equal(t, 30*time.Second, s.LLMTimeout)
	assert.Equal(t, 64, s.EventQueueCapacity)
	assert.Equal(t, "anthropic", s.Runtime.Provider)
	assert.Equal(t, "file-key", s.Runtime.APIKey)
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	t.Setenv("DESKAGENT_DATA_DIR", t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.NoError(t, err)
}

func TestLoad_MalformedFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n\t- not yaml"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("DESKAGENT_DATA_DIR", t.TempDir())
	t.Setenv("DESKAGENT_MODEL", "env-model")
	t.Setenv("DESKAGENT_API_KEY", "env-key")

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-model", s.Runtime.Model)
	assert.Equal(t, "env-key", s.Runtime.APIKey)
}

func TestLoad_RuntimeOverridesApply(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("DESKAGENT_DATA_DIR", dataDir)

	stored := RuntimeUpdate{Model: strPtr("persisted-model")}
	data, err := json.Marshal(stored)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "runtime_config.json"), data, 0o644))

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "persisted-model", s.Runtime.Model)
}

func TestUpdateRuntime_MergesAndPersists(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("DESKAGENT_DATA_DIR", dataDir)

	s, err := Load("")
	require.NoError(t, err)

	got := s.UpdateRuntime(RuntimeUpdate{Model: strPtr("new-model"), APIKey: strPtr("k1")})
	assert.Equal(t, "new-model", got.Model)
	assert.Equal(t, "k1", got.APIKey)

	// second partial update keeps earlier override
	got = s.UpdateRuntime(RuntimeUpdate{APIKey: strPtr("k2")})
	assert.Equal(t, "new-model", got.Model)
	assert.Equal(t, "k2", got.APIKey)

	// a fresh load observes persisted overrides
	reloaded, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "new-model", reloaded.Runtime.Model)
	assert.Equal(t, "k2", reloaded.Runtime.APIKey)
}

func TestUpdateRuntime_EmptyDocumentsDirResets(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("DESKAGENT_DATA_DIR", dataDir)

	s, err := Load("")
	require.NoError(t, err)

	s.UpdateRuntime(RuntimeUpdate{DocumentsDir: strPtr("/somewhere/else")})
	assert.Equal(t, "/somewhere/else", s.Runtime.DocumentsDir)

	s.UpdateRuntime(RuntimeUpdate{DocumentsDir: strPtr("")})
	assert.Equal(t, s.DefaultDocumentsDir(), s.Runtime.DocumentsDir)
}

func TestLoad_CorruptRuntimeOverridesIgnored(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("DESKAGENT_DATA_DIR", dataDir)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "runtime_config.json"), []byte("{oops"), 0o644))

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "deepseek-ai/DeepSeek-V3.2", s.Runtime.Model)
}
