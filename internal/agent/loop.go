// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bayleaf-health/bayleaf-agents/internal/phi"
	"github.com/bayleaf-health/bayleaf-agents/internal/provider"
	"github.com/bayleaf-health/bayleaf-agents/internal/state"
	"github.com/bayleaf-health/bayleaf-agents/internal/store"
	"github.com/bayleaf-health/bayleaf-agents/internal/tools"
	"github.com/bayleaf-health/bayleaf-agents/internal/value"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
	"github.com/bayleaf-health/bayleaf-agents/pkg/types"
)

const (
	// DefaultHistoryLimit is how many stored messages are replayed to the
	// model each turn.
	DefaultHistoryLimit = 20
	// DefaultLanguage is used when a turn does not name one.
	DefaultLanguage = "pt-BR"

	fallbackReply = "Ok."
)

const placeholderInstructions = "Personal data in this conversation has been replaced with placeholders " +
	"such as <person>, <e_mail> or <phone_number>. Treat each placeholder as the real value it stands for. " +
	"Copy placeholders verbatim into tool arguments and replies when you need that value. " +
	"Never ask the user to repeat data that appears as a placeholder and never try to guess what it hides."

// Router picks the provider and model for a call.
type Router interface {
	Route(ctx context.Context) (provider.Provider, string, error)
}

// ToolExecutor runs a tool by name and reports failures in-band.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any, p types.Principal) any
}

// TurnRequest is one inbound user message.
type TurnRequest struct {
	Agent          *Agent
	Principal      types.Principal
	Channel        types.Channel
	Message        string
	ConversationID string
	Language       string
}

// TurnResult is what the caller sees. Reply is the only place the restored
// cleartext reply exists.
type TurnResult struct {
	Reply          string
	UsedTools      []string
	TraceID        string
	ConversationID string
	Triage         types.Triage
}

// LoopHooks provides optional test hooks for each pipeline stage.
type LoopHooks struct {
	OnReceive func()
	OnPrepare func()
	OnCallLLM func()
	OnTool    func(name string)
	OnRespond func()
	OnAudit   func()
}

// LoopConfig holds dependencies for the Loop.
type LoopConfig struct {
	Store        store.Store
	Redactor     phi.Redactor
	Router       Router
	Tools        ToolExecutor
	Temperature  float32
	MaxTokens    int
	HistoryLimit int
	// DefaultLanguage defaults to pt-BR.
	DefaultLanguage string
	Now             func() time.Time
	Logger          *slog.Logger
	Hooks           *LoopHooks
}

// Loop runs conversation turns: redact, persist, ask the model, run the
// tools it requested, ask again and restore the reply.
type Loop struct {
	store        store.Store
	recorder     *phi.Recorder
	registry     *phi.Registry
	states       *state.Store
	router       Router
	tools        ToolExecutor
	temperature  float32
	maxTokens    int
	historyLimit int
	language     string
	clock        func() time.Time
	log          *slog.Logger
	hooks        *LoopHooks

	auditFailures atomic.Int64
}

// NewLoop validates cfg and returns a Loop.
func NewLoop(cfg LoopConfig) (*Loop, error) {
	switch {
	case cfg.Store == nil:
		return nil, bayerr.New(bayerr.CodeAgentLoopInvalidInput, "loop store is required")
	case cfg.Redactor == nil:
		return nil, bayerr.New(bayerr.CodeAgentLoopInvalidInput, "loop redactor is required")
	case cfg.Router == nil:
		return nil, bayerr.New(bayerr.CodeAgentLoopInvalidInput, "loop provider router is required")
	case cfg.Tools == nil:
		return nil, bayerr.New(bayerr.CodeAgentLoopInvalidInput, "loop tool executor is required")
	}

	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	lang := cfg.DefaultLanguage
	if lang == "" {
		lang = DefaultLanguage
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Loop{
		store:        cfg.Store,
		recorder:     phi.NewRecorder(cfg.Redactor, cfg.Store.Messages(), cfg.Store.Entities()),
		registry:     phi.NewRegistry(cfg.Store.Entities()),
		states:       state.NewStore(cfg.Store.States()),
		router:       cfg.Router,
		tools:        cfg.Tools,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		historyLimit: limit,
		language:     lang,
		clock:        cfg.Now,
		log:          logger.With("component", "agent"),
		hooks:        cfg.Hooks,
	}, nil
}

// turn carries the per-turn working set between stages.
type turn struct {
	req      TurnRequest
	lang     string
	trace    string
	started  time.Time
	conv     *store.Conversation
	st       *state.State
	changed  bool
	system   string
	context  []provider.Message
	used     []string
	provider provider.Provider
	model    string
}

// ProcessTurn runs one turn. Nothing is persisted when the user message
// cannot be redacted.
func (l *Loop) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	l.fireHook(hookReceive, "")
	if err := validateTurn(req); err != nil {
		return nil, err
	}

	t := &turn{
		req:     req,
		lang:    req.Language,
		trace:   traceID(req.Agent.Slug),
		started: time.Now(),
	}
	if t.lang == "" {
		t.lang = l.language
	}

	if err := l.prepare(ctx, t); err != nil {
		return nil, err
	}
	l.fireHook(hookPrepare, "")

	reply, calls, err := l.firstPass(ctx, t)
	if err != nil {
		return nil, err
	}

	if len(calls) > 0 {
		if err := l.runTools(ctx, t, calls); err != nil {
			return nil, err
		}
		final, err := l.call(ctx, t, nil)
		if err != nil {
			return nil, err
		}
		if final.Content != "" {
			reply = final.Content
		}
	}

	return l.finish(ctx, t, reply)
}

func validateTurn(req TurnRequest) error {
	switch {
	case req.Agent == nil:
		return bayerr.New(bayerr.CodeAgentLoopInvalidInput, "turn agent is required")
	case req.Principal.UserID == "":
		return bayerr.New(bayerr.CodeAgentLoopInvalidInput, "turn principal has no user id")
	case strings.TrimSpace(req.Message) == "":
		return bayerr.New(bayerr.CodeAgentLoopInvalidInput, "turn message is empty",
			bayerr.FieldAgent(req.Agent.Slug))
	case !req.Channel.Valid():
		return bayerr.Errorf(bayerr.CodeAgentLoopInvalidInput, "unknown channel %q", req.Channel)
	}
	return nil
}

// prepare resolves the conversation, builds the model context and persists
// the redacted user message.
func (l *Loop) prepare(ctx context.Context, t *turn) error {
	conv, _, err := l.store.Conversations().FindOrCreate(ctx, store.ConversationKey{
		ExternalID: t.req.ConversationID,
		UserID:     t.req.Principal.UserID,
		Channel:    string(t.req.Channel),
	})
	if err != nil {
		return storeErr(err, "resolving conversation")
	}
	t.conv = conv

	if t.st, err = l.states.Load(ctx, conv.ID); err != nil {
		return storeErr(err, "loading session state")
	}

	history, err := l.history(ctx, t)
	if err != nil {
		return err
	}

	user := &store.Message{ConversationID: conv.ID, Role: store.MessageRoleUser, Content: t.req.Message}
	res, err := l.recorder.Redact(ctx, user, t.lang)
	if err != nil {
		return err
	}
	if err := l.store.Messages().Append(ctx, user); err != nil {
		return storeErr(err, "persisting user message")
	}
	if _, err := l.recorder.Record(ctx, user, res.Entities); err != nil {
		return err
	}

	t.system = l.systemPrompt(t)
	t.context = append(history, provider.Message{Role: provider.MessageRoleUser, Content: res.Text})
	return nil
}

// history replays recent messages using redacted content only. A stored
// message that was never redacted is redacted now and its entities
// recorded.
func (l *Loop) history(ctx context.Context, t *turn) ([]provider.Message, error) {
	recent, err := l.store.Messages().Recent(ctx, t.conv.ID, l.historyLimit)
	if err != nil {
		return nil, storeErr(err, "loading history")
	}

	out := make([]provider.Message, 0, len(recent)+1)
	for _, msg := range recent {
		if msg.IsToolCallAnnouncement() || msg.Role == store.MessageRoleSystem {
			continue
		}
		res, err := l.recorder.Redact(ctx, msg, t.lang)
		if err != nil {
			return nil, err
		}
		if !res.Cached {
			if _, err := l.recorder.Record(ctx, msg, res.Entities); err != nil {
				return nil, err
			}
		}

		switch msg.Role {
		case store.MessageRoleUser:
			out = append(out, provider.Message{Role: provider.MessageRoleUser, Content: res.Text})
		case store.MessageRoleAssistant:
			out = append(out, provider.Message{Role: provider.MessageRoleAssistant, Content: res.Text})
		case store.MessageRoleTool:
			out = append(out, provider.Message{
				Role:    provider.MessageRoleAssistant,
				Content: "[tool " + msg.ToolName + " result] " + res.Text,
			})
		}
	}
	return out, nil
}

func (l *Loop) systemPrompt(t *turn) string {
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(t.req.Agent.Name)
	b.WriteString(". ")
	b.WriteString(t.req.Agent.Objective(t.lang))
	b.WriteString("\n\n")
	b.WriteString(placeholderInstructions)
	b.WriteString("\n\nCurrent time: ")
	b.WriteString(l.now().UTC().Format(time.RFC3339))
	b.WriteString("\n\n")
	b.WriteString(t.st.Summary())
	return b.String()
}

// firstPass routes a provider and asks it with the tool catalogue.
func (l *Loop) firstPass(ctx context.Context, t *turn) (string, []provider.ToolCall, error) {
	p, model, err := l.router.Route(ctx)
	if err != nil {
		return "", nil, err
	}
	t.provider, t.model = p, model

	resp, err := l.call(ctx, t, tools.Catalogue())
	if err != nil {
		return "", nil, err
	}
	reply := resp.Content
	if reply == "" {
		reply = fallbackReply
	}
	return reply, resp.ToolCalls, nil
}

func (l *Loop) call(ctx context.Context, t *turn, defs []provider.ToolDefinition) (*provider.ChatResponse, error) {
	l.fireHook(hookCallLLM, "")
	resp, err := t.provider.Chat(ctx, provider.ChatRequest{
		Model:        t.model,
		SystemPrompt: t.system,
		Messages:     t.context,
		Tools:        defs,
		Options:      provider.ChatOptions{Temperature: l.temperature, MaxTokens: l.maxTokens},
	})
	if err != nil {
		if bayerr.CodeOf(err) == "" {
			err = bayerr.Wrap(err, bayerr.CodeProviderUpstreamFailure, "model call",
				bayerr.FieldProvider(t.provider.Name()))
		}
		return nil, err
	}
	l.log.LogAttrs(ctx, slog.LevelDebug, "llm_call",
		slog.String("trace_id", t.trace),
		slog.String("provider", t.provider.Name()),
		slog.Int("tool_calls", len(resp.ToolCalls)),
		slog.Int("input_tokens", resp.Usage.InputTokens),
		slog.Int("output_tokens", resp.Usage.OutputTokens),
	)
	return resp, nil
}

// runTools persists the announcement and executes each call in order.
func (l *Loop) runTools(ctx context.Context, t *turn, calls []provider.ToolCall) error {
	announced := make([]any, 0, len(calls))
	for _, c := range calls {
		announced = append(announced, map[string]any{"id": c.ID, "name": c.Name, "arguments": c.Arguments})
	}
	empty := ""
	announcement := &store.Message{
		ConversationID:  t.conv.ID,
		Role:            store.MessageRoleAssistant,
		RedactedContent: &empty,
		ToolName:        store.ToolCallsMarker,
		ToolArgs:        map[string]any{"calls": announced},
	}
	if err := l.store.Messages().Append(ctx, announcement); err != nil {
		return storeErr(err, "persisting tool call announcement")
	}
	t.context = append(t.context, provider.Message{Role: provider.MessageRoleAssistant, ToolCalls: calls})

	for _, c := range calls {
		if err := l.runTool(ctx, t, c); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) runTool(ctx context.Context, t *turn, c provider.ToolCall) error {
	l.fireHook(hookTool, c.Name)
	t.used = append(t.used, c.Name)

	modelArgs := parseArgs(ctx, l.log, c)

	mapping, err := l.registry.MappingFor(ctx, t.conv.ID)
	if err != nil {
		return err
	}
	args, _ := mapping.Restore(modelArgs).Any().(map[string]any)
	if args == nil {
		args = map[string]any{}
	}

	name, known := tools.Lookup(c.Name)
	if known && name == tools.BookAppointment && t.st.AccessToken != "" {
		if v, ok := args["access_token"]; !ok || v == nil || v == "" {
			args["access_token"] = t.st.AccessToken
		}
	}

	result := l.tools.Execute(ctx, c.Name, args, t.req.Principal)
	if known && t.req.Agent.handler().Apply(name, args, result, t.st) {
		t.changed = true
	}

	encoded, err := tools.EncodeResult(result)
	if err != nil {
		return bayerr.Wrap(err, bayerr.CodeAgentLoopFailure, "encoding tool result", bayerr.FieldTool(c.Name))
	}

	msg := &store.Message{
		ConversationID: t.conv.ID,
		Role:           store.MessageRoleTool,
		Content:        encoded,
		ToolName:       c.Name,
		ToolCallID:     c.ID,
		ToolResult:     result,
	}
	if m, ok := modelArgs.Any().(map[string]any); ok {
		msg.ToolArgs = m
	}
	res, err := l.recorder.Redact(ctx, msg, t.lang)
	if err != nil {
		return err
	}
	if err := l.store.Messages().Append(ctx, msg); err != nil {
		return storeErr(err, "persisting tool message")
	}
	if _, err := l.recorder.Record(ctx, msg, res.Entities); err != nil {
		return err
	}

	attrs := []slog.Attr{
		slog.String("trace_id", t.trace),
		slog.String("tool", c.Name),
		slog.Bool("error", tools.IsError(result)),
	}
	if code, failed := tools.ErrorCode(result); failed {
		attrs = append(attrs, slog.String("code", string(code)))
	}
	l.log.LogAttrs(ctx, slog.LevelInfo, "tool_result", attrs...)

	t.context = append(t.context, provider.Message{
		Role:       provider.MessageRoleTool,
		Content:    res.Text,
		ToolCallID: c.ID,
		ToolName:   c.Name,
	})
	return nil
}

// parseArgs decodes the model's argument JSON. Malformed or non-object
// arguments are replaced by an empty object so the tool reports the
// missing keys in-band.
func parseArgs(ctx context.Context, log *slog.Logger, c provider.ToolCall) value.Value {
	v, err := value.Parse([]byte(c.Arguments))
	if err == nil {
		if _, ok := v.(value.Object); ok {
			return v
		}
	}
	log.LogAttrs(ctx, slog.LevelWarn, "tool_args_invalid",
		slog.String("tool", c.Name),
		slog.Int("len", len(c.Arguments)),
	)
	return value.Object{}
}

// finish saves state, persists the placeholder reply and restores it for
// the caller.
func (l *Loop) finish(ctx context.Context, t *turn, reply string) (*TurnResult, error) {
	if _, err := l.states.Save(ctx, t.conv.ID, t.st, t.changed); err != nil {
		return nil, storeErr(err, "saving session state")
	}

	mapping, err := l.registry.MappingFor(ctx, t.conv.ID)
	if err != nil {
		return nil, err
	}
	restored := mapping.RestoreString(reply)

	placeholderReply := reply
	assistant := &store.Message{
		ConversationID:  t.conv.ID,
		Role:            store.MessageRoleAssistant,
		Content:         reply,
		RedactedContent: &placeholderReply,
	}
	if err := l.store.Messages().Append(ctx, assistant); err != nil {
		return nil, storeErr(err, "persisting assistant message")
	}
	l.fireHook(hookRespond, "")

	used := t.used
	if used == nil {
		used = []string{}
	}
	res := &TurnResult{
		Reply:          restored,
		UsedTools:      used,
		TraceID:        t.trace,
		ConversationID: t.conv.PublicID(),
		Triage:         types.TriageNonUrgent,
	}

	l.log.LogAttrs(ctx, slog.LevelInfo, "chat_done",
		slog.String("agent", t.req.Agent.Slug),
		slog.String("trace_id", t.trace),
		slog.Any("tools", used),
		slog.Int64("ms", time.Since(t.started).Milliseconds()),
	)

	l.audit(ctx, t.req, t.conv, res)
	l.fireHook(hookAudit, "")
	return res, nil
}

func traceID(slug string) string {
	return slug + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// storeErr gives uncoded store failures the database failure code.
func storeErr(err error, msg string) error {
	if bayerr.CodeOf(err) != "" {
		return err
	}
	if errors.Is(err, store.ErrConflict) {
		return bayerr.Wrap(err, bayerr.CodeStoreConflict, msg)
	}
	return bayerr.Wrap(err, bayerr.CodeStoreDatabaseFailure, msg)
}

type hookKind int

const (
	hookReceive hookKind = iota
	hookPrepare
	hookCallLLM
	hookTool
	hookRespond
	hookAudit
)

func (l *Loop) fireHook(kind hookKind, tool string) {
	h := l.hooks
	if h == nil {
		return
	}
	switch kind {
	case hookReceive:
		runHook(h.OnReceive)
	case hookPrepare:
		runHook(h.OnPrepare)
	case hookCallLLM:
		runHook(h.OnCallLLM)
	case hookTool:
		if h.OnTool != nil {
			h.OnTool(tool)
		}
	case hookRespond:
		runHook(h.OnRespond)
	case hookAudit:
		runHook(h.OnAudit)
	}
}

func runHook(fn func()) {
	if fn != nil {
		fn()
	}
}
