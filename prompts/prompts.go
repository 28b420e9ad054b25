// Package prompts loads the agent's prompt templates. Templates ship with
// the install (templates directory) and can be overridden per user through an
// overrides directory; an override file always wins over the shipped one.
// Writes through SaveOverride land in the overrides directory so upgrades
// never clobber user edits.
package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/deskagent/deskagent/logging"
)

const (
	// SystemPromptFile names the system prompt template.
	SystemPromptFile = "system_prompt.txt"
	// ContextIntroFile names the optional context-framing template.
	ContextIntroFile = "context_intro.txt"
)

// DefaultSystemPrompt is used when no template file exists at all.
const DefaultSystemPrompt = "You are a helpful assistant. Answer the user's questions using the provided context."

// ErrUnknownTemplate is returned for override writes targeting a template
// name outside the known set.
var ErrUnknownTemplate = fmt.Errorf("unknown prompt template")

// Templates holds the resolved prompt texts.
type Templates struct {
	SystemPrompt string `json:"system_prompt"`
	ContextIntro string `json:"context_intro"`
}

// Options holds overrides passed to NewLoader().
type Options struct {
	Logger logging.Logger
}

// Loader resolves templates against a shipped directory plus a per-user
// overrides directory.
type Loader struct {
	templatesDir string
	overridesDir string
	logger       logging.Logger
}

// NewLoader constructs a Loader. Either directory may be empty or absent.
func NewLoader(templatesDir, overridesDir string, optFns ...func(o *Options)) *Loader {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Loader{templatesDir: templatesDir, overridesDir: overridesDir, logger: opts.Logger}
}

// Load resolves both templates. A missing system prompt falls back to
// DefaultSystemPrompt; a missing context intro resolves to empty.
func (l *Loader) Load() Templates {
	t := Templates{
		SystemPrompt: l.read(SystemPromptFile),
		ContextIntro: l.read(ContextIntroFile),
	}
	if t.SystemPrompt == "" {
		t.SystemPrompt = DefaultSystemPrompt
	}
	return t
}

// read returns the trimmed contents of the named template, override first.
func (l *Loader) read(name string) string {
	for _, dir := range []string{l.overridesDir, l.templatesDir} {
		if dir == "" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if !os.IsNotExist(err) {
				l.logger.Warn("prompt template unreadable", "name", name, "error", err)
			}
			continue
		}
		if content := strings.TrimSpace(string(data)); content != "" {
			return content
		}
	}
	return ""
}

// SaveOverride persists an override for a known template name.
func (l *Loader) SaveOverride(name, content string) error {
	if name != SystemPromptFile && name != ContextIntroFile {
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	if l.overridesDir == "" {
		return fmt.Errorf("no overrides directory configured")
	}
	if err := os.MkdirAll(l.overridesDir, 0o755); err != nil {
		return fmt.Errorf("create overrides dir: %w", err)
	}
	path := filepath.Join(l.overridesDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write override: %w", err)
	}
	return nil
}
