// Package runner executes queued runs: it resolves the run against its
// assistant, runs the tool pipeline, calls the model backend and persists the
// generated message and terminal run status.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/assistantd/internal/llm"
	"github.com/haasonsaas/assistantd/internal/observability"
	"github.com/haasonsaas/assistantd/internal/scheduler"
	"github.com/haasonsaas/assistantd/internal/storage"
	"github.com/haasonsaas/assistantd/internal/tools"
	"github.com/haasonsaas/assistantd/pkg/models"
)

// Run metadata keys interpreted by the executor.
const (
	metaLLMArgs      = "llm_args"
	metaHistoryLimit = "history_limit"
	metaStream       = "stream"
)

const defaultHistoryLimit = 7

// Options configures an Executor.
type Options struct {
	// DefaultModel is the "backend@model" used when neither the run nor
	// its assistant names one.
	DefaultModel string

	// HistoryLimit is the default number of prior thread messages loaded
	// into the model context; runs override it with the history_limit
	// metadata key.
	HistoryLimit int

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

type Executor struct {
	stores   storage.StoreSet
	backends *llm.Registry
	pipeline *tools.Pipeline

	defaultModel string
	historyLimit int
	logger       *slog.Logger
	metrics      *observability.Metrics
}

func New(stores storage.StoreSet, backends *llm.Registry, pipeline *tools.Pipeline, opts Options) *Executor {
	if opts.HistoryLimit == 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Executor{
		stores:       stores,
		backends:     backends,
		pipeline:     pipeline,
		defaultModel: opts.DefaultModel,
		historyLimit: opts.HistoryLimit,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}
}

// Execute performs one run and reports its output on the stream. It always
// leaves the run in a terminal state and always finishes the stream; any
// failure is recorded on the run as a server_error.
func (e *Executor) Execute(ctx context.Context, run *models.Run, stream *scheduler.OutputStream) {
	start := time.Now()
	err := e.execute(ctx, run, stream)
	status := models.RunStatusCompleted
	if err != nil {
		status = models.RunStatusFailed
		e.logger.Warn("run failed", "run_id", run.ID, "error", err)
		e.fail(ctx, run.ID, err)
	}
	if e.metrics != nil {
		e.metrics.RunsCompleted.WithLabelValues(status).Inc()
		e.metrics.RunDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
	stream.Finish(err)
}

func (e *Executor) execute(ctx context.Context, run *models.Run, stream *scheduler.OutputStream) error {
	model := run.Model
	instructions := run.Instructions
	descriptors := run.Tools
	runMetadata := run.Metadata
	var fileIDs []string

	// Unset run fields fall back to the assistant. A missing assistant is
	// tolerated; the run can stand alone with its own model and
	// instructions.
	var assistantID string
	assistant, err := e.stores.Assistants.Get(ctx, run.AssistantID)
	if err == nil {
		assistantID = assistant.ID
		if instructions == "" {
			instructions = assistant.Instructions
		}
		if model == "" {
			model = assistant.Model
		}
		if len(descriptors) == 0 {
			descriptors = assistant.Tools
		}
		runMetadata = mergeMetadata(assistant.Metadata, runMetadata)
		fileIDs = append(fileIDs, assistant.FileIDs...)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load assistant: %w", err)
	}
	if runMetadata == nil {
		runMetadata = map[string]any{}
	}
	// The merged view backs the metadata accessors for the rest of
	// execution; stored run updates go through transition, which re-reads.
	run.Metadata = runMetadata
	if model == "" {
		model = e.defaultModel
	}

	var pending []tools.Message
	if instructions != "" {
		pending = append(pending, tools.Message{Role: models.RoleSystem, Content: instructions})
	}

	llmArgs := map[string]any{"temperature": 0.0}
	if args, ok := runMetadata[metaLLMArgs].(map[string]any); ok {
		llmArgs = args
	}

	history, err := e.loadHistory(ctx, run.ThreadID, runMetadata)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	for _, h := range history {
		pending = append(pending, tools.Message{Role: h.Role, Content: h.PlainText()})
	}
	if len(history) > 0 {
		if last := history[len(history)-1]; last.Role == models.RoleUser {
			fileIDs = append(fileIDs, last.FileIDs...)
		}
	}
	fileIDs = dedupe(fileIDs)

	if err := e.transition(ctx, run.ID, func(r *models.Run) {
		r.Status = models.RunStatusInProgress
		r.StartedAt = time.Now().UnixMilli()
	}); err != nil {
		return fmt.Errorf("mark in_progress: %w", err)
	}

	tc := &tools.Context{
		Messages:        pending,
		RunMetadata:     runMetadata,
		LLMArgs:         map[string]any{},
		MessageMetadata: map[string]any{},
		FileIDs:         fileIDs,
	}
	if err := e.pipeline.Run(ctx, descriptors, tc); err != nil {
		return fmt.Errorf("tool pipeline: %w", err)
	}
	for k, v := range tc.LLMArgs {
		llmArgs[k] = v
	}

	streaming := run.MetaBool(metaStream)

	var generated string
	var usage map[string]any
	if tc.Completed {
		last := tc.LastMessage()
		if last == nil || last.Role != models.RoleAssistant {
			return fmt.Errorf("tool pipeline completed the run without a final assistant message")
		}
		generated = last.Content
		if streaming {
			stream.SendToken(generated)
		}
		usage = map[string]any{"prompt_tokens": 0, "completion_tokens": 0}
	} else {
		backend, modelName, err := e.backends.Resolve(model)
		if err != nil {
			return err
		}

		req := &llm.CompletionRequest{
			Model:    modelName,
			Messages: combineSystemMessages(tc.Messages),
			Args:     llmArgs,
		}
		chunks, err := backend.Complete(ctx, req)
		if err != nil {
			e.countLLMRequest(backend.Name(), modelName, "error")
			return fmt.Errorf("backend %s: %w", backend.Name(), err)
		}

		var b strings.Builder
		var promptTokens, completionTokens int
		for chunk := range chunks {
			if chunk.Error != nil {
				e.countLLMRequest(backend.Name(), modelName, "error")
				return fmt.Errorf("backend %s: %w", backend.Name(), chunk.Error)
			}
			if chunk.Text != "" {
				b.WriteString(chunk.Text)
				if streaming {
					stream.SendToken(chunk.Text)
				}
			}
			if chunk.PromptTokens > 0 {
				promptTokens = chunk.PromptTokens
			}
			if chunk.CompletionTokens > 0 {
				completionTokens = chunk.CompletionTokens
			}
		}
		generated = b.String()
		usage = map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
		}
		e.countLLMRequest(backend.Name(), modelName, "success")
		if e.metrics != nil {
			e.metrics.LLMTokensUsed.WithLabelValues(backend.Name(), modelName, "prompt").Add(float64(promptTokens))
			e.metrics.LLMTokensUsed.WithLabelValues(backend.Name(), modelName, "completion").Add(float64(completionTokens))
		}
	}

	msgMetadata := tc.MessageMetadata
	if msgMetadata == nil {
		msgMetadata = map[string]any{}
	}
	msgMetadata["usage"] = usage

	msg := &models.Message{
		ID:          models.NewID(models.ObjectMessage),
		Object:      models.ObjectMessage,
		CreatedAt:   time.Now().UnixMilli(),
		ThreadID:    run.ThreadID,
		AssistantID: assistantID,
		RunID:       run.ID,
		Role:        models.RoleAssistant,
		Content:     models.TextContent(generated),
		Metadata:    msgMetadata,
		UserID:      run.UserID,
		OrgID:       run.OrgID,
	}
	if err := e.stores.Messages.Create(ctx, msg); err != nil {
		return fmt.Errorf("persist generated message: %w", err)
	}

	if err := e.transition(ctx, run.ID, func(r *models.Run) {
		r.Status = models.RunStatusCompleted
		r.CompletedAt = time.Now().UnixMilli()
	}); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// loadHistory returns the most recent thread messages in chronological
// order. A history_limit of 0 (or a non-numeric value) disables history.
func (e *Executor) loadHistory(ctx context.Context, threadID string, metadata map[string]any) ([]*models.Message, error) {
	limit := e.historyLimit
	if raw, ok := metadata[metaHistoryLimit]; ok {
		if n, ok := metaInt(raw); ok {
			limit = n
		} else {
			limit = 0
		}
	}
	if limit <= 0 {
		return nil, nil
	}

	desc, _, err := e.stores.Messages.List(ctx, threadID, storage.ListOptions{
		Order: "desc",
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}
	history := make([]*models.Message, len(desc))
	for i, m := range desc {
		history[len(desc)-1-i] = m
	}
	return history, nil
}

// transition applies a mutation to the stored run.
func (e *Executor) transition(ctx context.Context, runID string, mutate func(*models.Run)) error {
	run, err := e.stores.Runs.Get(ctx, runID)
	if err != nil {
		return err
	}
	mutate(run)
	return e.stores.Runs.Update(ctx, run)
}

// fail records the terminal failed state. Best effort: if the store is the
// thing that is broken there is nothing further to do.
func (e *Executor) fail(ctx context.Context, runID string, cause error) {
	err := e.transition(ctx, runID, func(r *models.Run) {
		r.Status = models.RunStatusFailed
		r.FailedAt = time.Now().UnixMilli()
		r.LastError = &models.RunError{
			Code:    models.RunErrorCodeServer,
			Message: cause.Error(),
		}
	})
	if err != nil {
		e.logger.Error("recording run failure failed", "run_id", runID, "error", err)
	}
}

func (e *Executor) countLLMRequest(backend, model, status string) {
	if e.metrics != nil {
		e.metrics.LLMRequestCounter.WithLabelValues(backend, model, status).Inc()
	}
}

// combineSystemMessages collapses all system messages into a single leading
// one, preserving the relative order of the remaining turns.
func combineSystemMessages(messages []tools.Message) []llm.CompletionMessage {
	var system []string
	var rest []llm.CompletionMessage
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, llm.CompletionMessage{Role: m.Role, Content: m.Content})
	}
	combined := make([]llm.CompletionMessage, 0, len(rest)+1)
	if len(system) > 0 {
		combined = append(combined, llm.CompletionMessage{
			Role:    models.RoleSystem,
			Content: strings.Join(system, "\n"),
		})
	}
	return append(combined, rest...)
}

func mergeMetadata(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

func metaInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i, true
		}
	}
	return 0, false
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
