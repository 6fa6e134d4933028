package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIVisionProvider asks a chat-completions model to read the photo.
type OpenAIVisionProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewOpenAIVisionProvider(apiKey, model, baseURL string, timeout time.Duration) *OpenAIVisionProvider {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &OpenAIVisionProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *OpenAIVisionProvider) Name() string { return "openai" }

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenAIVisionProvider) Analyze(ctx context.Context, image []byte) (*VisionGuess, error) {
	if p.apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is missing")
	}
	payload := map[string]any{
		"model":           p.model,
		"max_tokens":      300,
		"response_format": map[string]string{"type": "json_object"},
		"messages": []map[string]any{{
			"role": "user",
			"content": []map[string]any{
				{"type": "text", "text": visionPrompt},
				{"type": "image_url", "image_url": map[string]string{"url": dataURL(imageMime(image), image)}},
			},
		}},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal openai payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call openai: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read openai response: %w", err)
	}
	var cr openAIChatResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &cr) == nil && cr.Error != nil {
			return nil, fmt.Errorf("openai API error %d: %s", resp.StatusCode, cr.Error.Message)
		}
		return nil, fmt.Errorf("openai API error %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("failed to parse openai JSON: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}
	return parseGuessJSON(cr.Choices[0].Message.Content)
}
