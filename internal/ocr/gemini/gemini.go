// Package gemini provides a remote recognition engine backed by the Gemini
// generateContent REST API. It serves hosts without a local tesseract
// install; selection happens through the ocr.engine config key rather than
// init registration so the remote call is always an explicit opt-in.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/krylovex/gridpick-cli/internal/config"
	"github.com/krylovex/gridpick-cli/internal/ocr"
)

// The API reports no per-character confidence; readings that survive the
// format-pinned prompt are treated as strong.
const remoteConfidence = 0.9

// Engine implements ocr.Engine against the Gemini REST API.
type Engine struct {
	apiKey         string
	endpoint       string
	httpClient     *http.Client
	logger         *zap.Logger
	backoffFactory func() backoff.BackOff
}

// -- Gemini API request/response structures (subset this engine uses) --

type content struct {
	Parts []part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

// NewEngine initializes the remote recognizer.
func NewEngine(cfg config.GeminiConfig, logger *zap.Logger) (*Engine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
	}

	timeout := cfg.APITimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Engine{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("ocr.gemini"),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 45 * time.Second
			b.MaxInterval = 10 * time.Second
			return b
		},
	}, nil
}

func (e *Engine) Name() string { return "gemini" }

// Recognize sends the image with a format-pinned prompt and returns the
// model's reading. Transient API failures retry with exponential backoff;
// client errors fail immediately.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	payload := generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: e.buildPrompt(in)},
				{InlineData: &inlineData{
					MimeType: "image/png",
					Data:     base64.StdEncoding.EncodeToString(in.Image),
				}},
			},
		}},
		GenerationConfig: generationConfig{Temperature: 0, MaxOutputTokens: 32},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var text string

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", e.apiKey)

		resp, err := e.httpClient.Do(httpReq)
		if err != nil {
			e.logger.Warn("Network error during recognition request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return e.handleAPIError(resp.StatusCode, respBody)
		}

		var responsePayload generateResponse
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}

		if len(responsePayload.Candidates) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
		}

		candidate := responsePayload.Candidates[0]
		if len(candidate.Content.Parts) == 0 {
			if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "BLOCKLIST" {
				return backoff.Permanent(fmt.Errorf("gemini API blocked the request (reason: %s)", candidate.FinishReason))
			}
			return fmt.Errorf("gemini API returned empty content parts (reason: %s)", candidate.FinishReason)
		}

		text = candidate.Content.Parts[0].Text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(e.backoffFactory(), ctx)); err != nil {
		return ocr.Result{}, err
	}

	clean := strings.TrimSpace(text)
	// Models habitually wrap short answers in quotes or code fences.
	clean = strings.Trim(clean, "\"'`")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return ocr.Result{}, nil
	}

	return ocr.Result{PlainText: clean, Confidence: remoteConfidence}, nil
}

func (e *Engine) buildPrompt(in ocr.Input) string {
	if wl := in.Metadata["tessedit_char_whitelist"]; wl != "" {
		return fmt.Sprintf(
			"Read the characters visible in this image. Only characters from the set %q can occur. "+
				"Respond with exactly the characters you see and nothing else. "+
				"If nothing is legible, respond with an empty message.", wl)
	}
	return "Read the characters visible in this image. " +
		"Respond with exactly the characters you see and nothing else. " +
		"If nothing is legible, respond with an empty message."
}

func (e *Engine) handleAPIError(statusCode int, body []byte) error {
	e.logger.Error("Gemini API returned error status",
		zap.Int("status", statusCode),
		zap.String("response", string(body)),
	)
	err := fmt.Errorf("gemini API error: status %d, body: %s", statusCode, string(body))

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return err // Transient errors, retry.
	default:
		return backoff.Permanent(err) // Permanent errors.
	}
}
