package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/xaenox/persona-gateway/internal/provider"
	"go.uber.org/zap"
)

// ErrNoDelegation means the routing model answered directly instead
// of selecting a specialist.
var ErrNoDelegation = errors.New("router did not delegate to a capability")

const routerInstructions = "You are PersonaPro, a multi-purpose agent for social media, marketing, and customer service. " +
	"Your job is to receive a request, understand the need, and route the task to the right specialist: " +
	"customer service questions go to customer_service_and_interaction, " +
	"content creation and management go to manage_and_create_content, " +
	"marketing analysis and reporting go to analyze_and_report_marketing. " +
	"Never complete the task yourself; always delegate to exactly one specialist."

// Router owns a fixed set of capabilities and forwards each request
// to exactly one of them. Its own free-text output is never shown to
// the caller.
type Router struct {
	client       provider.Client
	capabilities map[string]Capability
	toolset      []openai.Tool
	logger       *zap.Logger
}

func NewRouter(client provider.Client, logger *zap.Logger, capabilities ...Capability) *Router {
	r := &Router{
		client:       client,
		capabilities: make(map[string]Capability, len(capabilities)),
		logger:       logger,
	}
	for _, capability := range capabilities {
		r.capabilities[capability.Name()] = capability
		r.toolset = append(r.toolset, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        capability.Name(),
				Description: capability.Description(),
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"task": {
							Type:        jsonschema.String,
							Description: "The task to hand to the specialist, restated with full context.",
						},
					},
					Required: []string{"task"},
				},
			},
		})
	}
	return r
}

// Route asks the routing model to pick one capability, invokes it,
// and returns that capability's output as the final reply.
func (r *Router) Route(ctx context.Context, request string) (string, error) {
	resp, err := r.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: routerInstructions},
			{Role: openai.ChatMessageRoleUser, Content: request},
		},
		Tools:      r.toolset,
		ToolChoice: "required",
	})
	if err != nil {
		return "", fmt.Errorf("route request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoDelegation
	}

	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) == 0 {
		return "", ErrNoDelegation
	}
	// Exactly one specialist handles the turn; extra calls are
	// ignored.
	call := calls[0]

	capability, ok := r.capabilities[call.Function.Name]
	if !ok {
		return "", fmt.Errorf("router selected unknown capability %q", call.Function.Name)
	}

	var args struct {
		Task string `json:"task"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return "", fmt.Errorf("decode delegation arguments: %w", err)
	}
	if args.Task == "" {
		args.Task = request
	}

	r.logger.Info("Delegating to capability",
		zap.String("capability", capability.Name()))
	return capability.Invoke(ctx, args.Task)
}
