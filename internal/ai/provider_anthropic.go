package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	domainerrors "github.com/woninglens/woninglens/internal/domain/errors"
)

// anthropicModels are the models advertised for the Anthropic provider.
var anthropicModels = []string{"claude-3-5-sonnet-20240620", "claude-3-haiku-20240307", "claude-3-opus-20240229"}

// anthropicProvider speaks to the Anthropic Messages API.
type anthropicProvider struct {
	apiKey string
	model  string
}

func newAnthropicProvider(apiKey, model string) *anthropicProvider {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &anthropicProvider{apiKey: apiKey, model: model}
}

func (p *anthropicProvider) Name() string  { return "anthropic" }
func (p *anthropicProvider) Label() string { return "Anthropic" }

func (p *anthropicProvider) Configured() bool { return p.apiKey != "" }

func (p *anthropicProvider) Models() []string { return append([]string(nil), anthropicModels...) }

func (p *anthropicProvider) DefaultModel() string { return p.model }

func (p *anthropicProvider) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	client := anthropic.NewClient(option.WithAPIKey(p.apiKey))
	_, err := client.Models.List(ctx, anthropic.ModelListParams{})
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

func (p *anthropicProvider) NewClient(model string) TextClient {
	return &anthropicClient{apiKey: p.apiKey, model: model}
}

type anthropicClient struct {
	apiKey string
	model  string
}

func (c *anthropicClient) Provider() string { return "anthropic" }
func (c *anthropicClient) Model() string    { return c.model }

func (c *anthropicClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, textGenerateTimeout)
	defer cancel()

	system := req.System
	if req.JSONMode {
		// The Messages API has no native JSON mode; the instruction is
		// carried in the system prompt instead.
		system = strings.TrimSpace(system + "\nAntwoord uitsluitend met één geldig JSON-object, zonder omliggende tekst.")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	client := anthropic.NewClient(option.WithAPIKey(c.apiKey))
	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &domainerrors.TimeoutError{Provider: c.Provider(), Operation: "generate", Cause: err}
		}
		if isQuotaSignal(err.Error()) {
			return "", &domainerrors.QuotaError{Provider: c.Provider(), Cause: err}
		}
		return "", err
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("anthropic: empty message response")
	}
	return b.String(), nil
}
