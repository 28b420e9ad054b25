package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/deskagent/deskagent/core"
	"github.com/deskagent/deskagent/events"
	"github.com/deskagent/deskagent/history"
	"github.com/deskagent/deskagent/logging"
	"github.com/deskagent/deskagent/model"
	"github.com/deskagent/deskagent/prompts"
	"github.com/deskagent/deskagent/scheduler"
)

// ProactivePrompt is the synthetic user turn used when a generation runs
// without new user input (empty chat message or a scheduler firing).
const ProactivePrompt = "Please continue the conversation on your own: revisit open threads, follow up on anything left unresolved, and move things forward without waiting for new input."

// FallbackResponse replaces the assistant turn when the completion provider
// call fails. The diagnostic detail travels separately in an error event.
const FallbackResponse = "The model call failed. Please check the provider configuration and try again."

// EventSink consumes events during a push-mode (streamed) generation. Write
// failures are swallowed by the orchestrator: a disconnected peer never
// prevents the generation or its history commit from completing.
type EventSink func(core.Event) error

// ChatResult is the outcome of one blocking exchange.
type ChatResult struct {
	MessageID   string `json:"message_id"`
	Response    string `json:"response"`
	Saved       bool   `json:"saved"`
	RecordIndex *int   `json:"record_index,omitempty"`
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Name          string
	Model         model.Model
	History       *history.Store
	Scheduler     *scheduler.Scheduler
	Queue         *events.Queue
	Templates     prompts.Templates
	ContextText   string
	FollowupDelay time.Duration // 0 disables automatic follow-up deadlines
	LLMTimeout    time.Duration // 0 disables the per-call timeout
}

// Options holds overrides passed to New().
type Options struct {
	Logger logging.Logger
}

// Orchestrator is the exclusive-access conversation engine.
type Orchestrator struct {
	mu sync.Mutex

	name        string
	model       model.Model
	history     *history.Store
	sched       *scheduler.Scheduler
	queue       *events.Queue
	templates   prompts.Templates
	contextText string

	followupDelay time.Duration
	llmTimeout    time.Duration

	// retryView, when active, replaces the live history as generation
	// context. Only ever set while mu is held, so no other operation can
	// observe the truncated state.
	retryView   []core.ConversationRecord
	retryActive bool

	logger logging.Logger
}

// New constructs an Orchestrator and starts its scheduler loop.
func New(cfg Config, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	o := &Orchestrator{
		name:          cfg.Name,
		model:         cfg.Model,
		history:       cfg.History,
		sched:         cfg.Scheduler,
		queue:         cfg.Queue,
		templates:     cfg.Templates,
		contextText:   cfg.ContextText,
		followupDelay: cfg.FollowupDelay,
		llmTimeout:    cfg.LLMTimeout,
		logger:        opts.Logger,
	}
	o.sched.Start(o.onDeadline)
	return o
}

// Rebind installs a fresh provider binding, templates and document context,
// and restarts the scheduler so it begins idle. History is left untouched;
// it persists across the rebind. Called after a runtime config update.
func (o *Orchestrator) Rebind(m model.Model, tpl prompts.Templates, contextText string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.model = m
	o.templates = tpl
	o.contextText = contextText
	o.sched.Start(o.onDeadline)
	o.logger.Info("orchestrator rebound", "model", m.Info().Name, "provider", m.Info().Provider)
}

// Shutdown stops the scheduler loop.
func (o *Orchestrator) Shutdown() { o.sched.Stop() }

// History exposes the history store for read paths and the transport layer.
func (o *Orchestrator) History() *history.Store { return o.history }

// SchedulerStatus reads the scheduler state without taking the orchestrator
// lock; the snapshot is eventually consistent.
func (o *Orchestrator) SchedulerStatus() scheduler.Status { return o.sched.Status() }

// Chat runs one blocking exchange. An empty or whitespace-only message takes
// the proactive follow-up path instead of the user-input path. Progress is
// delivered through the shared poll queue.
func (o *Orchestrator) Chat(ctx context.Context, message, messageID string) ChatResult {
	if messageID == "" {
		messageID = core.NewID()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.chatLocked(ctx, message, messageID, o.queue.Push)
}

// ChatStream runs one exchange in push mode: every event goes to sink, and
// the session terminates with exactly one done event even if no progress
// events preceded it.
func (o *Orchestrator) ChatStream(ctx context.Context, message, messageID string, sink EventSink) ChatResult {
	if messageID == "" {
		messageID = core.NewID()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	emit := o.sinkEmitter(sink)
	result := o.chatLocked(ctx, message, messageID, emit)
	emit(core.NewDoneEvent(messageID, result.Response, result.Saved, result.RecordIndex))
	return result
}

// chatLocked is the shared chat path. Caller must hold mu.
func (o *Orchestrator) chatLocked(ctx context.Context, message, messageID string, emit func(core.Event)) ChatResult {
	requestInput := message
	userText := message
	if strings.TrimSpace(message) == "" {
		requestInput = ""
		userText = ProactivePrompt
	}

	before := o.history.Len()
	response, conversation, shouldSave := o.generateLocked(ctx, userText, emit, messageID)
	if shouldSave {
		o.history.Append(core.NewConversationRecord(requestInput, conversation))
	}

	saved := o.history.Len() > before
	var recordIndex *int
	if saved {
		idx := o.history.Len() - 1
		recordIndex = &idx
	}

	// A saved user-initiated exchange arms the follow-up deadline; proactive
	// and auto turns do not re-arm, so the agent cannot chain itself into an
	// endless monologue.
	if saved && requestInput != "" && o.followupDelay > 0 {
		o.sched.SetDeadline(time.Now().Add(o.followupDelay))
	}

	return ChatResult{MessageID: messageID, Response: response, Saved: saved, RecordIndex: recordIndex}
}

// RetryRecordStream regenerates the record at recordIndex using only the
// history prior to it. The live history is swapped for a truncated view for
// the duration of the generation and restored on every exit path; on success
// the target record is overwritten in place, never appended. An invalid
// index yields an invalid_record error event and no mutation.
func (o *Orchestrator) RetryRecordStream(ctx context.Context, recordIndex int, messageID string, sink EventSink) ChatResult {
	if messageID == "" {
		messageID = core.NewID()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	emit := o.sinkEmitter(sink)

	rec, err := o.history.Get(recordIndex)
	if err != nil {
		emit(core.NewErrorEvent(messageID, "invalid_record", err.Error()))
		result := ChatResult{MessageID: messageID}
		emit(core.NewDoneEvent(messageID, "", false, nil))
		return result
	}

	o.retryView = o.history.Prefix(recordIndex)
	o.retryActive = true
	defer func() {
		o.retryActive = false
		o.retryView = nil
	}()

	userText := rec.RequestInput
	if strings.TrimSpace(userText) == "" {
		userText = ProactivePrompt
	}

	response, conversation, shouldSave := o.generateLocked(ctx, userText, emit, messageID)

	saved := false
	var resultIndex *int
	if shouldSave {
		if err := o.history.ReplaceRecord(recordIndex, conversation, rec.RequestInput); err != nil {
			emit(core.NewErrorEvent(messageID, "invalid_record", err.Error()))
		} else {
			saved = true
			idx := recordIndex
			resultIndex = &idx
		}
	}

	result := ChatResult{MessageID: messageID, Response: response, Saved: saved, RecordIndex: resultIndex}
	emit(core.NewDoneEvent(messageID, response, saved, resultIndex))
	return result
}

// AutoFollowup runs the scheduler-triggered generation and, when it produced
// a response, announces it on the poll queue.
func (o *Orchestrator) AutoFollowup(ctx context.Context) ChatResult {
	result := o.Chat(ctx, "", "")
	if strings.TrimSpace(result.Response) != "" {
		o.queue.Push(core.NewAutoFollowupEvent(result.MessageID, result.Response))
	}
	return result
}

// onDeadline is the scheduler callback. The generation runs on a short-lived
// worker goroutine so the timer loop is never blocked behind the exclusive
// lock.
func (o *Orchestrator) onDeadline() {
	go func() {
		o.logger.Info("deadline fired, generating auto follow-up")
		o.AutoFollowup(context.Background())
	}()
}

// StartupIfEmpty generates an opening exchange when the history is empty, so
// a fresh install greets the user before any input. A populated history makes
// this a no-op.
func (o *Orchestrator) StartupIfEmpty(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.history.Len() > 0 {
		return
	}
	o.chatLocked(ctx, "", core.NewID(), o.queue.Push)
}

// UpdateHistoryMessage edits one message inside one record.
func (o *Orchestrator) UpdateHistoryMessage(recordIndex int, messageIndex *int, role core.Role, content string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.history.UpdateMessage(recordIndex, messageIndex, role, content)
}

// ClearHistory wipes the conversation and everything correlated with it: the
// scheduler deadline (a deadline referencing a vanished conversation is
// meaningless) and any undrained events.
func (o *Orchestrator) ClearHistory() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history.Clear()
	o.sched.ClearDeadline()
	o.queue.Clear()
}

// generateLocked is the single choke point for all generation paths. It
// builds the full message list, drives the provider, forwards every chunk to
// emit tagged with messageID, and reports whether the outcome is worth
// committing. Caller must hold mu.
func (o *Orchestrator) generateLocked(ctx context.Context, userText string, emit func(core.Event), messageID string) (string, []core.Message, bool) {
	reqMessages := o.buildMessages(userText)

	genCtx := ctx
	if o.llmTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, o.llmTimeout)
		defer cancel()
	}

	start := time.Now()
	respCh, errCh := o.model.Generate(genCtx, model.Request{Messages: reqMessages, Stream: true})

	var accumulated strings.Builder
	var final string
	sawFinal := false
	for resp := range respCh {
		if resp.Partial {
			accumulated.WriteString(resp.Text)
			emit(core.NewProgressEvent(messageID, resp.Text))
			continue
		}
		final = resp.Text
		sawFinal = true
	}

	if err := <-errCh; err != nil {
		o.logger.Error("completion provider call failed", "error", err, "model", o.model.Info().Name)
		emit(core.NewErrorEvent(messageID, "provider_failure", err.Error()))
		conversation := []core.Message{
			core.NewUserMessage(userText),
			core.NewAssistantMessage(FallbackResponse),
		}
		return FallbackResponse, conversation, true
	}

	if !sawFinal {
		final = accumulated.String()
	}
	o.logger.Debug("generation complete",
		"model", o.model.Info().Name,
		"duration", time.Since(start),
		"chars", len(final))

	shouldSave := strings.TrimSpace(final) != ""
	conversation := []core.Message{
		core.NewUserMessage(userText),
		core.NewAssistantMessage(final),
	}
	return final, conversation, shouldSave
}

// buildMessages assembles system preamble + prior history + the new input.
func (o *Orchestrator) buildMessages(userText string) []core.Message {
	var preamble strings.Builder
	preamble.WriteString(o.templates.SystemPrompt)
	if o.templates.ContextIntro != "" {
		preamble.WriteString("\n\n[Background]\n")
		preamble.WriteString(o.templates.ContextIntro)
	}
	if o.contextText != "" {
		preamble.WriteString("\n\n[Reference documents]\n")
		preamble.WriteString(o.contextText)
	}

	records := o.contextRecords()
	messages := make([]core.Message, 0, 2+2*len(records))
	messages = append(messages, core.NewSystemMessage(preamble.String()))
	for _, rec := range records {
		for _, msg := range rec.Messages {
			if msg.Role == core.RoleSystem {
				continue
			}
			messages = append(messages, msg)
		}
	}
	return append(messages, core.NewUserMessage(userText))
}

// contextRecords returns the generation context: the truncated retry view
// when a retry is in flight, the live history otherwise.
func (o *Orchestrator) contextRecords() []core.ConversationRecord {
	if o.retryActive {
		return o.retryView
	}
	return o.history.All()
}

// sinkEmitter adapts an EventSink into an emit function that swallows write
// failures.
func (o *Orchestrator) sinkEmitter(sink EventSink) func(core.Event) {
	return func(ev core.Event) {
		if err := sink(ev); err != nil {
			o.logger.Debug("event sink write failed", "type", ev.Type, "error", err)
		}
	}
}
