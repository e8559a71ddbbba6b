// Package llm wraps the Anthropic Messages API behind the single narrow
// contract every LLM-consuming component needs: retain's fact
// extraction, the entity resolver's ambiguity consult, and the reflect
// agent's tool loop. Grounded on intelligencedev-manifold's Anthropic
// client, trimmed of streaming/prompt-caching/thought-summary concerns
// this domain doesn't use, and extended with the structured-output and
// OutputTooLong handling this domain requires.
package llm

import (
	"context"
	"encoding/json"
)

// Message is one turn in a conversation.
type Message struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string // set on role=="tool": which call this responds to
}

// ToolCall is a model-issued function call.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// ToolSchema describes a tool the model may call.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema object
}

// Scope labels a call (e.g. "retain.extract",
// "entityresolver.disambiguate", "reflect.step"); AnthropicClient puts it
// in its error messages. All scopes share one rate limiter.
type Scope string

// CallOptions configures one Call.
type CallOptions struct {
	Messages    []Message
	Tools       []ToolSchema
	Scope       Scope
	Temperature float64
	MaxTokens   int
	// ResponseSchema, if set, forces the model to respond by calling a
	// synthetic "emit_result" tool whose input matches this JSON Schema.
	// Call unmarshals that tool call's arguments back into a Message
	// whose Content is the raw JSON (never a ToolCalls entry) so callers
	// have one code path for structured vs. free-text replies.
	ResponseSchema map[string]any
}

// Client issues chat completions against the configured model.
type Client interface {
	Call(ctx context.Context, opts CallOptions) (Message, error)
}

const emitResultTool = "emit_result"
