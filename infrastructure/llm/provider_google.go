package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// GoogleDefaultModel is used when the config names no model.
const GoogleDefaultModel = "gemini-2.0-flash"

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

type googleProvider struct {
	BaseProvider
	client     *genai.Client
	classifier ErrorClassifier
}

func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		baseURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		cc.HTTPOptions.BaseURL = baseURL
	}
	if timeout := ValidateTimeout(config.Timeout); timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: timeout}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("create google client: %w", err)
	}

	return &googleProvider{
		BaseProvider: BaseProvider{model: model},
		client:       client,
		classifier:   ErrorClassifier{Provider: "google"},
	}, nil
}

// DoRequest implements CoreLLM.
func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	options := ParseRequestOptions(opts, p.GetModel())

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := p.client.Models.GenerateContent(ctx, options.Model, contents, p.buildConfig(options))
	if err != nil {
		return "", 0, 0, p.classify(err)
	}

	content := resp.Text()
	if content == "" {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", 0, 0, NewProviderError("google", ErrorTypeContentPolicy, 0,
				"prompt blocked: "+string(resp.PromptFeedback.BlockReason), ErrEmptyResponse)
		}
		return "", 0, 0, NewProviderError("google", ErrorTypeUnknown, 0, "", ErrEmptyResponse)
	}

	var reportedIn, reportedOut int64
	if u := resp.UsageMetadata; u != nil {
		reportedIn, reportedOut = int64(u.PromptTokenCount), int64(u.CandidatesTokenCount)
	}
	return content, usageOrEstimate(reportedIn, prompt), usageOrEstimate(reportedOut, content), nil
}

func (p *googleProvider) buildConfig(options RequestOptions) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(min(options.MaxTokens, math.MaxInt32)),
	}
	if options.System != "" {
		config.SystemInstruction = genai.NewContentFromText(options.System, genai.RoleUser)
	}
	if options.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*options.Temperature))
	}
	if options.TopP != nil {
		config.TopP = genai.Ptr(float32(*options.TopP))
	}
	if topK, ok := options.Extra["top_k"].(int); ok {
		config.TopK = genai.Ptr(float32(clamp(topK, 1, 40)))
	}
	if format, ok := options.Extra["response_format"].(string); ok && format == "json" {
		config.ResponseMIMEType = "application/json"
	}
	return config
}

func (p *googleProvider) classify(err error) error {
	if isContextError(err) {
		return p.classifier.ClassifyContextError(err)
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		if isSafetyMessage(genaiErr.Message) {
			return NewProviderError("google", ErrorTypeContentPolicy, genaiErr.Code,
				"request blocked by safety filters", err)
		}
		return p.classifier.ClassifyHTTPError(genaiErr.Code, genaiErr.Message, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if containsContentPolicyError(apiErr) {
			return NewProviderError("google", ErrorTypeContentPolicy, apiErr.Code,
				"request blocked by safety filters", err)
		}
		message := apiErr.Message
		if message == "" && len(apiErr.Errors) > 0 {
			message = apiErr.Errors[0].Message
		}
		return p.classifier.ClassifyHTTPError(apiErr.Code, message, err)
	}

	return NewProviderError("google", ErrorTypeNetwork, 0, "request failed", err)
}

func containsContentPolicyError(apiErr *googleapi.Error) bool {
	if isSafetyMessage(apiErr.Message) {
		return true
	}
	for _, e := range apiErr.Errors {
		if e.Reason == "SAFETY" || e.Reason == "BLOCKED" {
			return true
		}
	}
	return false
}

func isSafetyMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "safety") ||
		strings.Contains(lower, "policy") ||
		strings.Contains(lower, "blocked")
}
