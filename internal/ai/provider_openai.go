package ai

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	domainerrors "github.com/woninglens/woninglens/internal/domain/errors"
)

// openaiModels are the models advertised for the OpenAI provider.
var openaiModels = []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "o1-preview", "o1-mini"}

// openaiJSONCapable lists model prefixes that honor JSON response format.
var openaiJSONCapable = []string{"gpt-4o", "gpt-4-turbo", "gpt-4.1"}

// openaiProvider speaks to the OpenAI chat completion API.
type openaiProvider struct {
	apiKey string
	model  string
}

func newOpenAIProvider(apiKey, model string) *openaiProvider {
	if model == "" {
		model = "gpt-4o"
	}
	return &openaiProvider{apiKey: apiKey, model: model}
}

func (p *openaiProvider) Name() string  { return "openai" }
func (p *openaiProvider) Label() string { return "OpenAI" }

func (p *openaiProvider) Configured() bool { return p.apiKey != "" }

func (p *openaiProvider) Models() []string { return append([]string(nil), openaiModels...) }

func (p *openaiProvider) DefaultModel() string { return p.model }

// CheckHealth lists models with a bounded deadline. Quota rejections are
// surfaced as QuotaError so the capability manager can categorize them as
// operational limits rather than implementation errors.
func (p *openaiProvider) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	client := openai.NewClient(p.apiKey)
	_, err := client.ListModels(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domainerrors.TimeoutError{Provider: p.Name(), Operation: "health probe", Cause: err}
	}
	if isQuotaSignal(err.Error()) {
		return &domainerrors.QuotaError{Provider: p.Name(), Cause: err}
	}
	return err
}

func (p *openaiProvider) NewClient(model string) TextClient {
	return &openaiClient{apiKey: p.apiKey, model: model}
}

type openaiClient struct {
	apiKey string
	model  string
}

func (c *openaiClient) Provider() string { return "openai" }
func (c *openaiClient) Model() string    { return c.model }

func (c *openaiClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, textGenerateTimeout)
	defer cancel()

	model := c.model
	if req.JSONMode && !jsonCapable(model) {
		// The authority's model choice stands except where the API would
		// reject JSON mode outright; upgrade to the JSON-capable default.
		model = "gpt-4o"
	}

	messages := []openai.ChatCompletionMessage{}
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	user := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	}
	messages = append(messages, user)

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	client := openai.NewClient(c.apiKey)
	resp, err := client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &domainerrors.TimeoutError{Provider: c.Provider(), Operation: "generate", Cause: err}
		}
		if isQuotaSignal(err.Error()) {
			return "", &domainerrors.QuotaError{Provider: c.Provider(), Cause: err}
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

func jsonCapable(model string) bool {
	for _, prefix := range openaiJSONCapable {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}
