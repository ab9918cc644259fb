package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	domainerrors "github.com/woninglens/woninglens/internal/domain/errors"
)

// geminiModels are the models advertised for the Gemini provider.
var geminiModels = []string{"gemini-1.5-flash", "gemini-1.5-pro", "gemini-2.0-flash"}

// geminiProbeURL is the lightweight model-list endpoint used for health
// probes; a generation call would be too heavy to run on every resolve.
const geminiProbeURL = "https://generativelanguage.googleapis.com/v1beta/models?pageSize=1&key=%s"

// geminiProvider speaks to the Gemini API through the genai SDK.
type geminiProvider struct {
	apiKey string
	model  string
}

func newGeminiProvider(apiKey, model string) *geminiProvider {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &geminiProvider{apiKey: apiKey, model: model}
}

func (p *geminiProvider) Name() string  { return "gemini" }
func (p *geminiProvider) Label() string { return "Google Gemini" }

func (p *geminiProvider) Configured() bool { return p.apiKey != "" }

func (p *geminiProvider) Models() []string { return append([]string(nil), geminiModels...) }

func (p *geminiProvider) DefaultModel() string { return p.model }

func (p *geminiProvider) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(geminiProbeURL, p.apiKey), nil)
	if err != nil {
		return err
	}
	resp, err := newProbeHTTPClient().Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &domainerrors.TimeoutError{Provider: p.Name(), Operation: "health probe", Cause: err}
		}
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &domainerrors.QuotaError{Provider: p.Name()}
	case resp.StatusCode >= 500:
		return fmt.Errorf("gemini: probe returned %d", resp.StatusCode)
	}
	return fmt.Errorf("gemini: probe rejected with %d", resp.StatusCode)
}

func (p *geminiProvider) NewClient(model string) TextClient {
	return &geminiClient{apiKey: p.apiKey, model: model}
}

type geminiClient struct {
	apiKey string
	model  string
}

func (c *geminiClient) Provider() string { return "gemini" }
func (c *geminiClient) Model() string    { return c.model }

func (c *geminiClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, textGenerateTimeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: c.apiKey})
	if err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSONMode {
		config.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &domainerrors.TimeoutError{Provider: c.Provider(), Operation: "generate", Cause: err}
		}
		if isQuotaSignal(err.Error()) {
			return "", &domainerrors.QuotaError{Provider: c.Provider(), Cause: err}
		}
		return "", err
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini: empty generation response")
	}
	return text, nil
}
