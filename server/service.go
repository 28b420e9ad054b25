package server

import (
	"strings"
	"sync"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/deskagent/deskagent/agent"
	"github.com/deskagent/deskagent/config"
	"github.com/deskagent/deskagent/document"
	"github.com/deskagent/deskagent/events"
	"github.com/deskagent/deskagent/history"
	"github.com/deskagent/deskagent/logging"
	"github.com/deskagent/deskagent/model"
	"github.com/deskagent/deskagent/model/anthropic"
	"github.com/deskagent/deskagent/model/openai"
	"github.com/deskagent/deskagent/prompts"
	"github.com/deskagent/deskagent/scheduler"
)

// listExtensions covers everything the documents endpoint reports. Context
// loading only extracts the plain-text subset; the rest is listed so the
// shell can show what is present in the documents directory.
var listExtensions = []string{".docx", ".txt", ".md"}

// Service owns the long-lived object graph behind the HTTP surface: one
// Orchestrator, its collaborators, and the resolved Settings. A runtime
// config or prompt update rebinds the Orchestrator in place; history
// survives the rebind.
//
// mu guards the mutable Settings.Runtime fields and the whole
// persist-apply-rebind sequence of an update, so a config write never
// interleaves with another write or with a reader, and the bound provider
// always matches the persisted config.
type Service struct {
	mu        sync.Mutex
	settings  *config.Settings
	orch      *agent.Orchestrator
	queue     *events.Queue
	loader    *prompts.Loader
	extractor document.Extractor
	logger    logging.Logger
}

// ServiceOptions holds overrides passed to NewService().
type ServiceOptions struct {
	Logger logging.Logger

	// Model overrides the provider binding built from the runtime config.
	// Used by tests to install a mock.
	Model model.Model
}

// NewService assembles the object graph from resolved settings.
func NewService(settings *config.Settings, optFns ...func(o *ServiceOptions)) *Service {
	opts := ServiceOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Service{
		settings:  settings,
		queue:     events.NewQueue(func(o *events.Options) { o.Capacity = settings.EventQueueCapacity }),
		loader:    prompts.NewLoader(settings.TemplatesDir, settings.PromptOverridesDir, func(o *prompts.Options) { o.Logger = opts.Logger }),
		extractor: document.TextExtractor{},
		logger:    opts.Logger,
	}

	m := opts.Model
	if m == nil {
		m = buildModel(settings.Runtime)
	}

	store := history.New(func(o *history.Options) {
		o.Path = settings.HistoryFile
		o.Logger = opts.Logger
	})

	s.orch = agent.New(agent.Config{
		Name:          settings.AgentName,
		Model:         m,
		History:       store,
		Scheduler:     scheduler.New(func(o *scheduler.Options) { o.Logger = opts.Logger }),
		Queue:         s.queue,
		Templates:     s.loader.Load(),
		ContextText:   s.documentContext(),
		FollowupDelay: settings.FollowupDelay,
		LLMTimeout:    settings.LLMTimeout,
	}, func(o *agent.Options) { o.Logger = opts.Logger })

	return s
}

// buildModel constructs the provider binding selected by the runtime config.
func buildModel(rc config.RuntimeConfig) model.Model {
	switch strings.ToLower(rc.Provider) {
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if rc.Model != "" {
				o.Model = anthropicsdk.Model(rc.Model)
			}
			o.APIKey = rc.APIKey
		})
	case "mock":
		return model.NewMockModel(rc.Model)
	default:
		return openai.NewModel(func(o *openai.Options) {
			if rc.Model != "" {
				o.Model = rc.Model
			}
			o.APIKey = rc.APIKey
			o.BaseURL = rc.BaseURL
		})
	}
}

// Orchestrator exposes the conversation engine to the transport handlers.
func (s *Service) Orchestrator() *agent.Orchestrator { return s.orch }

// Queue exposes the shared poll queue.
func (s *Service) Queue() *events.Queue { return s.queue }

// Settings exposes the resolved process configuration.
func (s *Service) Settings() *config.Settings { return s.settings }

// RuntimeConfig returns the current runtime configuration.
func (s *Service) RuntimeConfig() config.RuntimeConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Runtime
}

// UpdateRuntimeConfig applies a partial update, persists it best-effort, and
// rebinds the Orchestrator against the new provider settings. History is
// preserved; the scheduler restarts idle. The whole sequence runs under mu
// so concurrent updates cannot interleave persist, apply and rebind.
func (s *Service) UpdateRuntimeConfig(u config.RuntimeUpdate) config.RuntimeConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc := s.settings.UpdateRuntime(u)
	s.rebindLocked()
	return rc
}

// Prompts returns the currently resolved prompt templates.
func (s *Service) Prompts() prompts.Templates { return s.loader.Load() }

// UpdatePrompts persists prompt overrides and rebinds the Orchestrator so
// the next generation uses them.
func (s *Service) UpdatePrompts(systemPrompt, contextIntro *string) (prompts.Templates, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if systemPrompt != nil {
		if err := s.loader.SaveOverride(prompts.SystemPromptFile, *systemPrompt); err != nil {
			return prompts.Templates{}, err
		}
	}
	if contextIntro != nil {
		if err := s.loader.SaveOverride(prompts.ContextIntroFile, *contextIntro); err != nil {
			return prompts.Templates{}, err
		}
	}
	s.rebindLocked()
	return s.loader.Load(), nil
}

// Documents lists the files in the configured documents directory.
func (s *Service) Documents() document.Listing {
	s.mu.Lock()
	dir := s.settings.Runtime.DocumentsDir
	s.mu.Unlock()
	return document.List(dir, listExtensions)
}

// Shutdown stops the Orchestrator's scheduler loop.
func (s *Service) Shutdown() { s.orch.Shutdown() }

// rebindLocked rebuilds the provider binding from the live runtime config.
// Caller must hold mu.
func (s *Service) rebindLocked() {
	s.orch.Rebind(buildModel(s.settings.Runtime), s.loader.Load(), s.documentContext())
}

func (s *Service) documentContext() string {
	return document.LoadContext(s.settings.Runtime.DocumentsDir, s.extractor, s.logger)
}
