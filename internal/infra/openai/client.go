package openai

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

const (
	chatModel  = openai.GPT4oMini
	imageModel = openai.CreateImageModelDallE3
	imageSize  = "1024x1024"
)

type ChatMessage struct {
	Role    string
	Content string
}

// Client is what the prompt endpoints need from an AI provider. Kept small
// so handler tests can stub it.
type Client interface {
	ChatCompletion(ctx context.Context, messages []ChatMessage) (string, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

type apiClient struct {
	api *openai.Client
}

func NewClient(apiKey string) Client {
	return &apiClient{api: openai.NewClient(apiKey)}
}

func (c *apiClient) ChatCompletion(ctx context.Context, messages []ChatMessage) (string, error) {
	req := openai.ChatCompletionRequest{Model: chatModel}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *apiClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.CreateImage(ctx, openai.ImageRequest{
		Model:          imageModel,
		Prompt:         prompt,
		N:              1,
		Size:           imageSize,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Data) == 0 {
		return "", errors.New("image generation returned no data")
	}
	return resp.Data[0].URL, nil
}
