package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"replydeck/manager/internal/models"
)

const (
	replyTimeout = 60 * time.Second
	postTimeout  = 90 * time.Second
	probeTimeout = 5 * time.Second

	replyTemperature = 0.7
	replyMaxTokens   = 500
)

// fallbackResponses are returned when the backend fails, times out, or
// produces empty output. The caller never sees an error, only either the
// generated text or one of these.
var fallbackResponses = map[models.Tone]string{
	models.ToneFormal:      "Gracias por su comentario. Hemos tomado nota de su mensaje y le responderemos a la brevedad.",
	models.ToneFriendly:    "¡Gracias por tu comentario! 😊 Lo revisaremos y te responderemos pronto.",
	models.ToneInformative: "Hemos recibido tu comentario. Te proporcionaremos información detallada en breve.",
}

// Generator calls the local generation backend. The backend speaks the
// Ollama generate contract: {model, prompt, stream:false, options} in,
// {response} out.
type Generator struct {
	baseURL string
	model   string
	http    *http.Client
}

// NewGenerator creates a generator for the backend at baseURL (e.g.
// http://localhost:11434).
func NewGenerator(baseURL, model string) *Generator {
	return &Generator{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{},
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// complete performs one generation round trip and returns the trimmed
// output. Timeouts and transport errors are returned to the internal
// callers, which substitute fallbacks.
func (g *Generator) complete(ctx context.Context, prompt string, temperature float64, maxTokens int, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload := generateRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: temperature,
			MaxTokens:   maxTokens,
		},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation backend returned status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("generation response decode failed: %w", err)
	}

	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", fmt.Errorf("generation backend returned empty output")
	}
	return text, nil
}

// Generate drafts a reply to a comment in the requested tone. Any backend
// failure degrades to the tone's fixed fallback sentence; callers never
// receive an error. There is no automatic retry.
func (g *Generator) Generate(ctx context.Context, commentText string, tone models.Tone, postContext string) string {
	prompt := BuildPrompt(commentText, tone, postContext)

	text, err := g.complete(ctx, prompt.Full(), replyTemperature, replyMaxTokens, replyTimeout)
	if err != nil {
		log.Error().Err(err).Str("tone", string(tone)).Msg("Falling back to canned response")
		return Fallback(tone)
	}
	return text
}

// Fallback returns the canned reply for a tone, defaulting to friendly
// for unknown tones.
func Fallback(tone models.Tone) string {
	if text, ok := fallbackResponses[tone]; ok {
		return text
	}
	return fallbackResponses[models.ToneFriendly]
}

// TestConnection probes the backend's model listing endpoint.
func (g *Generator) TestConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := g.http.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("Generation backend unreachable")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	log.Info().Strs("models", names).Msg("Generation backend available")
	return true
}
