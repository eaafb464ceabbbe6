package agents

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/xaenox/persona-gateway/internal/provider"
)

// Capability is one specialist the router can delegate a task to.
type Capability interface {
	// Name is the tool name the routing model selects by.
	Name() string
	Description() string
	Invoke(ctx context.Context, task string) (string, error)
}

// specialist answers a delegated task with a single completion under
// its own system instructions.
type specialist struct {
	name         string
	description  string
	instructions string
	client       provider.Client
}

func (s *specialist) Name() string        { return s.name }
func (s *specialist) Description() string { return s.description }

func (s *specialist) Invoke(ctx context.Context, task string) (string, error) {
	resp, err := s.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: s.instructions},
			{Role: openai.ChatMessageRoleUser, Content: task},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty completion", s.name)
	}
	return resp.Choices[0].Message.Content, nil
}

// NewMarketing builds the marketing analytics specialist.
func NewMarketing(client provider.Client) Capability {
	return &specialist{
		name:        "analyze_and_report_marketing",
		description: "Trend analysis, audience insights, campaign optimization, and marketing performance reports.",
		instructions: "You are MarketMaven, a specialist in digital marketing analysis and strategy. " +
			"Your tasks: monitor trends, analyze audiences, optimize campaigns, and produce marketing performance reports. " +
			"Always give actionable, data-driven insights.",
		client: client,
	}
}

// NewContent builds the content creation specialist.
func NewContent(client provider.Client) Capability {
	return &specialist{
		name:        "manage_and_create_content",
		description: "Content ideas, captions, hashtags, post scheduling, per-platform adaptation, and brand mention monitoring.",
		instructions: "You are ContentCrafter, an expert in social media content management and creation. " +
			"Your tasks: generate content ideas, captions and hashtags, schedule posts, adapt content per platform, and monitor brand mentions. " +
			"Keep content relevant, engaging, and on-brand.",
		client: client,
	}
}

// NewCare builds the customer care specialist.
func NewCare(client provider.Client) Capability {
	return &specialist{
		name:        "customer_service_and_interaction",
		description: "Automated responses, personalized interactions, first-line complaint handling, and customer feedback collection.",
		instructions: "You are CareConnect, a specialist in customer service and digital interaction. " +
			"Your tasks: provide automated responses, personalize interactions, handle first-line complaints, and collect customer feedback. " +
			"Focus on fast, accurate replies and customer satisfaction.",
		client: client,
	}
}
