package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	domainerrors "github.com/woninglens/woninglens/internal/domain/errors"
)

// ollamaProvider speaks to a local Ollama server over its native HTTP API.
// It is the last-resort provider and is never chosen while a higher-tier
// provider is operational.
type ollamaProvider struct {
	baseURL string
	model   string
	timeout time.Duration
}

func newOllamaProvider(baseURL, model string, timeout time.Duration) *ollamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	if timeout <= 0 {
		timeout = textGenerateTimeout
	}
	return &ollamaProvider{baseURL: baseURL, model: model, timeout: timeout}
}

func (p *ollamaProvider) Name() string  { return "ollama" }
func (p *ollamaProvider) Label() string { return "Ollama (Local)" }

// Configured reports true whenever a base URL is known; reachability is a
// health concern, not a configuration concern.
func (p *ollamaProvider) Configured() bool { return p.baseURL != "" }

func (p *ollamaProvider) Models() []string {
	return []string{"llama3", "llama3.1", "mistral", "phi3"}
}

func (p *ollamaProvider) DefaultModel() string { return p.model }

func (p *ollamaProvider) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := newProbeHTTPClient().Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &domainerrors.TimeoutError{Provider: p.Name(), Operation: "health probe", Cause: err}
		}
		return fmt.Errorf("ollama: server unreachable at %s: %w", p.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: probe returned %d", resp.StatusCode)
	}
	return nil
}

func (p *ollamaProvider) NewClient(model string) TextClient {
	return &ollamaClient{baseURL: p.baseURL, model: model, timeout: p.timeout}
}

type ollamaClient struct {
	baseURL string
	model   string
	timeout time.Duration
}

func (c *ollamaClient) Provider() string { return "ollama" }
func (c *ollamaClient) Model() string    { return c.model }

// ollamaGenerateRequest is the /api/generate wire payload. KeepAlive is
// always zero so models never linger between jobs.
type ollamaGenerateRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	System    string `json:"system,omitempty"`
	Format    string `json:"format,omitempty"`
	Stream    bool   `json:"stream"`
	KeepAlive int    `json:"keep_alive"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (c *ollamaClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := ollamaGenerateRequest{
		Model:     c.model,
		Prompt:    req.Prompt,
		System:    req.System,
		Stream:    false,
		KeepAlive: 0,
	}
	if req.JSONMode {
		payload.Format = "json"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &domainerrors.TimeoutError{Provider: c.Provider(), Operation: "generate", Cause: err}
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama: generate returned %d: %s", resp.StatusCode, string(raw))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ollama: decoding response: %w", err)
	}
	if out.Response == "" {
		return "", errors.New("ollama: empty generation response")
	}
	return out.Response, nil
}
