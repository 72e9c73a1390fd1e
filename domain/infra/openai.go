package infra

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/whisperbox/whisperbox/domain/model"
)

type OpenAI struct {
	client *openai.Client
}

func NewOpenAI() (*OpenAI, error) {
	if os.Getenv("OPENAI_API_KEY") == "" && os.Getenv("AZURE_OPENAI_KEY") == "" {
		return nil, nil
	}
	client, err := newOpenAIClient()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
	}
	return &OpenAI{
		client: client,
	}, nil
}

func newOpenAIClient() (*openai.Client, error) {
	if os.Getenv("AZURE_OPENAI_ENDPOINT") != "" {
		return newAzureClient()
	}

	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	options := []option.RequestOption{
		option.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
	}

	c := openai.NewClient(options...)
	return &c, nil
}

func newAzureClient() (*openai.Client, error) {
	key := os.Getenv("AZURE_OPENAI_KEY")
	if key == "" {
		return nil, fmt.Errorf("AZURE_OPENAI_KEY is not set")
	}
	var azureOpenAIEndpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")

	var azureOpenAIAPIVersion = "2025-01-01-preview"

	if os.Getenv("AZURE_OPENAI_API_VERSION") != "" {
		azureOpenAIAPIVersion = os.Getenv("AZURE_OPENAI_API_VERSION")
	}

	c := openai.NewClient(
		azure.WithEndpoint(azureOpenAIEndpoint, azureOpenAIAPIVersion),
		azure.WithAPIKey(key),
	)
	return &c, nil
}

// GenerateDigest summarizes the unanswered backlog for administrators.
// Question texts are passed through; they contain no user identity.
func (h *OpenAI) GenerateDigest(questions []model.Question) (string, error) {
	var sb strings.Builder
	for _, q := range questions {
		fmt.Fprintf(&sb, "- #%d (asked %s): %s\n", q.ID, q.AskedAt.Format("2006-01-02 15:04"), q.QuestionText)
	}

	prompt := fmt.Sprintf(`## Task
You are given the backlog of unanswered questions submitted anonymously to our team.
Write a short digest that helps administrators decide what to answer first.

## Output format
*Oldest unanswered*
> pick questions waiting the longest, relative to the current time

*Themes*
> group recurring topics, if any

*Suggested order*
> a short prioritized list referencing question numbers

## Current time
%s

## Unanswered questions
%s`,
		time.Now().Format("2006-01-02 15:04:05"),
		sb.String(),
	)

	m := os.Getenv("OPENAI_MODEL")
	if m == "" {
		m = openai.ChatModelGPT4oMini
	}

	response, err := h.client.Chat.Completions.New(context.TODO(), openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: m,
	})
	if err != nil {
		return "", fmt.Errorf("failed to call OpenAI API: %w", err)
	}

	return response.Choices[0].Message.Content, nil
}
