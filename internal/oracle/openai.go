package oracle

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"auxparty/internal/core"
)

const defaultOpenAIModel = "gpt-4o-mini"

type openaiClient struct {
	config *core.OracleConfig
	client *openai.Client
}

func newOpenAIClient(config *core.OracleConfig) (*openaiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithRequestTimeout(config.Timeout),
		option.WithMaxRetries(config.MaxRetries),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := openai.NewClient(opts...)
	return &openaiClient{
		config: config,
		client: &client,
	}, nil
}

func (o *openaiClient) model() shared.ChatModel {
	if o.config.Model != "" {
		return shared.ChatModel(o.config.Model)
	}
	return defaultOpenAIModel
}

func (o *openaiClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:       o.model(),
		Temperature: openai.Float(o.config.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}
