package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI-compatible endpoints.
const (
	MistralBaseURL    = "https://api.mistral.ai/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

func init() {
	RegisterProviderFactory("openai", openAICompatibleFactory("openai", ""))
	RegisterProviderFactory("mistral", openAICompatibleFactory("mistral", MistralBaseURL))
	RegisterProviderFactory("openrouter", openAICompatibleFactory("openrouter", OpenRouterBaseURL))
}

// openAIProvider speaks the OpenAI chat completions API. Mistral and
// OpenRouter expose the same API under their own base URLs.
type openAIProvider struct {
	BaseProvider
	name       string
	client     *openai.Client
	classifier ErrorClassifier
}

// openAICompatibleFactory returns a factory for the named provider.
// defaultBaseURL applies when the config names none.
func openAICompatibleFactory(name, defaultBaseURL string) ProviderFactory {
	return func(config ClientConfig) (CoreLLM, error) {
		if config.APIKey == "" {
			return nil, ErrEmptyAPIKey
		}

		cc := openai.DefaultConfig(config.APIKey)
		baseURL := config.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURL
		}
		if baseURL != "" {
			validated, err := ValidateBaseURL(baseURL)
			if err != nil {
				return nil, fmt.Errorf("invalid base URL: %w", err)
			}
			cc.BaseURL = validated
		}
		if timeout := ValidateTimeout(config.Timeout); timeout > 0 {
			cc.HTTPClient = &http.Client{Timeout: timeout}
		}

		return &openAIProvider{
			BaseProvider: BaseProvider{model: config.Model},
			name:         name,
			client:       openai.NewClientWithConfig(cc),
			classifier:   ErrorClassifier{Provider: name},
		}, nil
	}
}

// DoRequest implements CoreLLM.
func (p *openAIProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	options := ParseRequestOptions(opts, p.GetModel())

	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(prompt, options))
	if err != nil {
		return "", 0, 0, p.classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, 0, NewProviderError(p.name, ErrorTypeUnknown, 0, "", ErrNoResponseChoice)
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", 0, 0, NewProviderError(p.name, ErrorTypeUnknown, 0, "", ErrEmptyResponse)
	}
	return content,
		usageOrEstimate(int64(resp.Usage.PromptTokens), prompt),
		usageOrEstimate(int64(resp.Usage.CompletionTokens), content),
		nil
}

func (p *openAIProvider) buildRequest(prompt string, options RequestOptions) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if options.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: options.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:     options.Model,
		Messages:  messages,
		MaxTokens: options.MaxTokens,
	}
	if options.Temperature != nil {
		req.Temperature = float32(*options.Temperature)
	}
	if options.TopP != nil {
		req.TopP = float32(*options.TopP)
	}
	if v, ok := toFloat32(options.Extra["frequency_penalty"]); ok {
		req.FrequencyPenalty = clamp(v, MinPenalty, MaxPenalty)
	}
	if v, ok := toFloat32(options.Extra["presence_penalty"]); ok {
		req.PresencePenalty = clamp(v, MinPenalty, MaxPenalty)
	}
	if format, ok := options.Extra["response_format"].(string); ok && format == "json" {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

func (p *openAIProvider) classify(err error) error {
	if isContextError(err) {
		return p.classifier.ClassifyContextError(err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = "unknown error"
		}
		return p.classifier.ClassifyHTTPError(apiErr.HTTPStatusCode, msg, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return p.classifier.ClassifyHTTPError(reqErr.HTTPStatusCode, "request failed", err)
	}
	return NewProviderError(p.name, ErrorTypeNetwork, 0, "request failed", err)
}
