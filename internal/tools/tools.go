// Package tools implements the pre-completion pipeline. Tools declared on an
// assistant or run execute in order before the model is called; each one can
// rewrite the pending conversation, adjust sampling arguments, attach
// metadata to the generated message, or finish the run outright.
package tools

import (
	"context"
	"log/slog"

	"github.com/haasonsaas/assistantd/internal/observability"
	"github.com/haasonsaas/assistantd/pkg/models"
)

// Message kinds beyond plain conversation turns.
const (
	// KindDocs marks an injected system message whose content is the JSON
	// retrieval payload, so later tools can find and rework it.
	KindDocs = "docs"
)

// Message is one turn of the pending conversation as seen by tools.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Kind    string `json:"type,omitempty"`
}

// Context is the mutable state threaded through the pipeline. Args and
// RunMetadata are inputs; everything else may be modified by tools.
type Context struct {
	// Args are the arguments of the current tool invocation, merged from
	// the tool instance configuration and the run's tool descriptor.
	Args map[string]any `json:"args"`

	// Messages is the conversation that will be submitted to the model.
	Messages []Message `json:"messages"`

	// RunMetadata exposes the run's metadata for reading.
	RunMetadata map[string]any `json:"run_metadata"`

	// LLMArgs are the sampling arguments for the completion call.
	LLMArgs map[string]any `json:"llm_args"`

	// MessageMetadata is attached to the generated assistant message.
	MessageMetadata map[string]any `json:"message_metadata"`

	// FileIDs are the retrieval collections available to this run.
	FileIDs []string `json:"file_ids"`

	// Completed short-circuits the rest of the pipeline and the model
	// call. The last message then becomes the run's output and must have
	// the assistant role.
	Completed bool `json:"is_completed"`
}

// LastMessage returns the final pending message, or nil when empty.
func (c *Context) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// Tool transforms the pipeline context. Implementations must treat Args and
// RunMetadata as read-only.
type Tool interface {
	Execute(ctx context.Context, tc *Context) error
}

// ChatFunc lets tools issue their own model calls without depending on the
// backend wiring. Implementations return the full completion text.
type ChatFunc func(ctx context.Context, messages []Message, args map[string]any) (string, error)

// Registry holds named tool instances built from configuration. An
// assistant's tool descriptor references instances by name in its type field.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(name string, t Tool) {
	r.tools[name] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Pipeline executes a run's tool descriptors in declaration order.
type Pipeline struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *observability.Metrics
}

func NewPipeline(registry *Registry, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{registry: registry, logger: logger, metrics: metrics}
}

// Run executes each descriptor against the shared context. Descriptors that
// do not resolve to a registered tool are skipped with a warning; a tool
// error aborts the pipeline and fails the run. Execution stops early once a
// tool marks the context completed.
func (p *Pipeline) Run(ctx context.Context, descriptors []models.ToolDescriptor, tc *Context) error {
	for _, desc := range descriptors {
		tool, ok := p.registry.Get(desc.Type)
		if !ok {
			p.logger.Warn("skipping unknown tool", "tool", desc.Type)
			p.countExecution(desc.Type, "skipped")
			continue
		}

		tc.Args = desc.Args
		if err := tool.Execute(ctx, tc); err != nil {
			p.countExecution(desc.Type, "error")
			return err
		}
		p.countExecution(desc.Type, "success")
		if tc.Completed {
			return nil
		}
	}
	return nil
}

func (p *Pipeline) countExecution(tool, status string) {
	if p.metrics != nil {
		p.metrics.ToolExecutionCounter.WithLabelValues(tool, status).Inc()
	}
}
