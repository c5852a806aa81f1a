package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/auralabs/aura/internal/config"
	"github.com/auralabs/aura/internal/models"
)

// OllamaLLM generates scripts through a local Ollama server. Local, so it
// survives offline mode, but it still needs the server to be running.
type OllamaLLM struct {
	host   string
	model  string
	client *http.Client
}

// NewOllamaLLM creates an Ollama script provider. The client's timeout must
// already satisfy the stage-timeout floor; the caller builds it through
// pkg/httpclient.
func NewOllamaLLM(cfg config.OllamaConfig, client *http.Client) *OllamaLLM {
	return &OllamaLLM{
		host:   strings.TrimRight(cfg.Host, "/"),
		model:  cfg.Model,
		client: client,
	}
}

func (p *OllamaLLM) Name() string          { return NameOllama }
func (p *OllamaLLM) RequiresNetwork() bool { return false }

// Available probes the server's tag listing with a short deadline.
func (p *OllamaLLM) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate runs a non-streaming completion against /api/generate.
func (p *OllamaLLM) Generate(ctx context.Context, systemPrompt, userPrompt string, params GenerateParams) (string, error) {
	body := ollamaGenerateRequest{
		Model:  p.model,
		System: systemPrompt,
		Prompt: userPrompt,
		Stream: false,
	}
	if params.TargetWords > 0 {
		// Rough token budget; models overshoot words by about a third.
		body.Options = map[string]any{"num_predict": params.TargetWords * 2}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", models.NewStageError(models.ErrCodeInternal, "encoding ollama request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", models.NewStageError(models.ErrCodeInternal, "building ollama request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &models.StageError{
			Code:      models.ErrCodeProviderCall,
			Message:   "ollama call failed",
			Transient: true,
			Err:       err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &models.StageError{
			Code:      models.ErrCodeProviderCall,
			Message:   fmt.Sprintf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
			Transient: resp.StatusCode >= 500,
		}
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &models.StageError{
			Code:      models.ErrCodeProviderCall,
			Message:   "decoding ollama response",
			Transient: true,
			Err:       err,
		}
	}

	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", &models.StageError{
			Code:      models.ErrCodeProviderCall,
			Message:   "ollama returned an empty completion",
			Transient: true,
		}
	}
	return text, nil
}
