// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agent runs one conversational turn: it sends the user's
// prompt to the model with the role's single tool declared, executes
// whatever tool calls come back, feeds the outputs in as tool-result
// messages, and returns the model's final answer plus a trace of
// every call/output pair.
//
// Authorization is enforced here, not in the tools: a customer
// session's order lookups always run against the session-bound
// customer id, whatever argument the model produced.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/driftline/driftline/pkg/dataset"
	"github.com/driftline/driftline/pkg/logging"
	"github.com/driftline/driftline/pkg/orders"
	"github.com/driftline/driftline/pkg/query"
	"github.com/driftline/driftline/pkg/session"
)

var tracer = otel.Tracer("driftline.agent")

// ApologyMessage is the guaranteed fallback when no answer text can
// be extracted from the model's final response.
const ApologyMessage = "I apologize, but I couldn't generate a proper response. Please try again."

// ModelFailureMessage is returned when the model cannot be reached
// after retries. The turn still produces visible text.
const ModelFailureMessage = "I'm having trouble reaching the language model right now. Please try again in a moment."

const (
	modelAttempts = 3
	retryBase     = 500 * time.Millisecond
)

var (
	turnCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "driftline_agent_turns_total",
		Help: "Conversational turns by role and outcome",
	}, []string{"role", "outcome"})

	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "driftline_agent_tool_calls_total",
		Help: "Tool invocations requested by the model",
	}, []string{"tool"})

	modelRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftline_agent_model_retries_total",
		Help: "Model calls retried after a transient failure",
	})
)

// ChatModel is the slice of the OpenAI client the agent needs. The
// real client satisfies it directly; tests substitute a scripted one.
type ChatModel interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// TraceStep is one entry of a turn's trace: either a tool call (with
// its arguments) or the output that call produced.
type TraceStep struct {
	Label   string // "Tool Call" or "Tool Output"
	Name    string // tool name, set on calls
	Content string // arguments or output text
}

// Message re-exports the wire message type so callers can hold
// conversation history without importing the OpenAI client.
type Message = openai.ChatCompletionMessage

// Agent mediates between prompts and tools for both roles.
type Agent struct {
	model  ChatModel
	name   string // model name sent on every request
	loader *dataset.Loader
	runner *query.Runner
	log    *logging.Logger
	now    func() time.Time
}

// New builds an Agent. now defaults to time.Now; tests pin it.
func New(model ChatModel, modelName string, loader *dataset.Loader, runner *query.Runner, log *logging.Logger, now func() time.Time) *Agent {
	if log == nil {
		log = logging.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Agent{model: model, name: modelName, loader: loader, runner: runner, log: log, now: now}
}

// UserMessage wraps a prompt as a history entry.
func UserMessage(text string) Message {
	return Message{Role: openai.ChatMessageRoleUser, Content: text}
}

// AssistantMessage wraps an answer as a history entry.
func AssistantMessage(text string) Message {
	return Message{Role: openai.ChatMessageRoleAssistant, Content: text}
}

// Turn runs one user turn for the session's role. history is the
// prior role-scoped conversation (user/assistant pairs only); the
// caller appends the new pair afterwards. Turn always returns visible
// text, even when the model or a tool fails.
func (a *Agent) Turn(ctx context.Context, sess *session.Session, history []Message, prompt string) (string, []TraceStep) {
	ctx, span := tracer.Start(ctx, "agent.Turn",
		trace.WithAttributes(
			attribute.String("session.role", string(sess.Role)),
			attribute.String("session.id", sess.ID),
		))
	defer span.End()

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: openai.ChatMessageRoleSystem, Content: a.instruction(sess)})
	messages = append(messages, history...)
	messages = append(messages, UserMessage(prompt))

	resp, err := a.callModel(ctx, messages, a.tools(sess.Role))
	if err != nil {
		a.log.Error("model call failed", "role", string(sess.Role), "error", err.Error())
		turnCounter.WithLabelValues(string(sess.Role), "model_error").Inc()
		return ModelFailureMessage, nil
	}

	var steps []TraceStep
	choice := resp.Choices[0].Message
	if len(choice.ToolCalls) > 0 {
		messages = append(messages, choice)
		for _, call := range choice.ToolCalls {
			output, step := a.dispatch(ctx, sess, call)
			steps = append(steps, step...)
			messages = append(messages, Message{
				Role:       openai.ChatMessageRoleTool,
				Content:    output,
				Name:       call.Function.Name,
				ToolCallID: call.ID,
			})
		}

		// Second round: the model turns tool output into an answer.
		resp, err = a.callModel(ctx, messages, a.tools(sess.Role))
		if err != nil {
			a.log.Error("follow-up model call failed", "role", string(sess.Role), "error", err.Error())
			turnCounter.WithLabelValues(string(sess.Role), "model_error").Inc()
			return ModelFailureMessage, steps
		}
		choice = resp.Choices[0].Message
	}

	text := strings.TrimSpace(choice.Content)
	if text == "" {
		turnCounter.WithLabelValues(string(sess.Role), "empty").Inc()
		return ApologyMessage, steps
	}
	turnCounter.WithLabelValues(string(sess.Role), "ok").Inc()
	return text, steps
}

// callModel invokes the chat completion with deterministic decoding,
// retrying transient failures with linear backoff.
func (a *Agent) callModel(ctx context.Context, messages []Message, tools []openai.Tool) (openai.ChatCompletionResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       a.name,
		Messages:    messages,
		Tools:       tools,
		Temperature: 0,
	}

	var lastErr error
	for attempt := 1; attempt <= modelAttempts; attempt++ {
		resp, err := a.model.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return resp, fmt.Errorf("model returned no choices")
			}
			return resp, nil
		}
		lastErr = err
		if attempt < modelAttempts {
			modelRetries.Inc()
			a.log.Warn("model call failed, retrying",
				"attempt", attempt,
				"error", err.Error(),
			)
			select {
			case <-time.After(retryBase << (attempt - 1)):
			case <-ctx.Done():
				return openai.ChatCompletionResponse{}, ctx.Err()
			}
		}
	}
	return openai.ChatCompletionResponse{}, fmt.Errorf("model call failed after %d attempts: %w", modelAttempts, lastErr)
}

// instruction selects the role's system prompt.
func (a *Agent) instruction(sess *session.Session) string {
	if sess.Role == session.RoleCustomer {
		return customerInstruction(sess.CustomerID)
	}
	return businessInstruction
}

// tools declares exactly one tool per role.
func (a *Agent) tools(role session.Role) []openai.Tool {
	if role == session.RoleCustomer {
		return []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolCustomerOrders,
				Description: "Returns ALL order information for the logged-in customer, including product details.",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"customer_id": {
							Type:        jsonschema.String,
							Description: "The customer's unique ID (e.g., CUST_001)",
						},
					},
					Required: []string{"customer_id"},
				},
			},
		}}
	}
	return []openai.Tool{{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        ToolAnalysisPlan,
			Description: "Runs a JSON analysis plan against all company tables. The plan must assign its final answer to \"result\".",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"plan": {
						Type:        jsonschema.String,
						Description: "The JSON array of plan steps, as a string.",
					},
				},
				Required: []string{"plan"},
			},
		},
	}}
}

// dispatch executes one model-requested tool call and returns its
// output plus the call/output trace pair. A tool that panics becomes
// an error string in the trace; the turn continues.
func (a *Agent) dispatch(ctx context.Context, sess *session.Session, call openai.ToolCall) (output string, steps []TraceStep) {
	name := call.Function.Name
	args := call.Function.Arguments
	toolCalls.WithLabelValues(name).Inc()

	_, span := tracer.Start(ctx, "agent.dispatch",
		trace.WithAttributes(attribute.String("tool.name", name)))
	defer span.End()

	steps = append(steps, TraceStep{Label: "Tool Call", Name: name, Content: args})
	defer func() {
		if rec := recover(); rec != nil {
			output = fmt.Sprintf("Error executing tool %s: %v", name, rec)
			a.log.Error("tool panicked", "tool", name, "panic", fmt.Sprint(rec))
		}
		steps = append(steps, TraceStep{Label: "Tool Output", Content: output})
	}()

	switch name {
	case ToolCustomerOrders:
		if sess.Role != session.RoleCustomer {
			return "Error: order lookup is not available to this role.", steps
		}
		// Session-bound id wins over whatever the model sent.
		var sent struct {
			CustomerID string `json:"customer_id"`
		}
		if json.Unmarshal([]byte(args), &sent) == nil &&
			sent.CustomerID != "" && sent.CustomerID != sess.CustomerID {
			a.log.Warn("model requested a different customer id; overridden",
				"requested", sent.CustomerID,
				"session", sess.CustomerID,
			)
		}
		bundle, err := a.loader.Load()
		if err != nil {
			return err.Error(), steps
		}
		return orders.Lookup(bundle, sess.CustomerID, a.now()), steps

	case ToolAnalysisPlan:
		if sess.Role != session.RoleBusiness {
			return "Error: analysis plans are not available to this role.", steps
		}
		plan, err := planArgument(args)
		if err != nil {
			return fmt.Sprintf("Error: %v", err), steps
		}
		return a.runner.Run(ctx, plan), steps

	default:
		return fmt.Sprintf("Error: unknown tool %q.", name), steps
	}
}

// planArgument extracts the plan from the tool-call arguments. Models
// sometimes emit the steps array inline instead of as a string, so
// both shapes are accepted.
func planArgument(args string) (string, error) {
	var wrapper struct {
		Plan json.RawMessage `json:"plan"`
	}
	if err := json.Unmarshal([]byte(args), &wrapper); err != nil {
		return "", fmt.Errorf("malformed tool arguments: %w", err)
	}
	if len(wrapper.Plan) == 0 {
		return "", fmt.Errorf("tool arguments carry no \"plan\" field")
	}

	var asString string
	if err := json.Unmarshal(wrapper.Plan, &asString); err == nil {
		return asString, nil
	}
	return string(wrapper.Plan), nil
}
