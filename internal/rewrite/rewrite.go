// Package rewrite asks a hosted chat-completion model to rewrite a
// highlighted passage of LaTeX prose in its surrounding context.
package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	DefaultBaseURL     = "https://api.deepinfra.com/v1/openai"
	DefaultModel       = "meta-llama/Llama-2-70b-chat-hf"
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
	DefaultTimeout     = 60 * time.Second
	DefaultAPIKeyEnv   = "DEEPINFRA_API_KEY"

	systemPrompt = "You are an expert academic writing assistant specializing in LaTeX documents."
)

// ErrEmptyCompletion is returned when the model answers with no text
var ErrEmptyCompletion = errors.New("model returned no completion")

// Config configures a Client
type Config struct {
	BaseURL     string
	APIKey      string // read from DefaultAPIKeyEnv when empty
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Logger      *slog.Logger
}

// Request is a rewrite of SelectedText between BeforeText and AfterText.
// Nothing is sent to the model unless ShouldRewrite is set.
type Request struct {
	SelectedText  string `json:"selectedText"`
	BeforeText    string `json:"beforeText"`
	AfterText     string `json:"afterText"`
	UserInput     string `json:"userInput"`
	ShouldRewrite bool   `json:"shouldRewrite"`
}

// Client talks to an OpenAI-compatible /chat/completions endpoint
type Client struct {
	http        *http.Client
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// New creates a Client. A missing API key is not an error here; requests
// then fail and Rewrite falls back to the selected text.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(DefaultAPIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		http:        &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}
}

// Model returns the chat model name
func (c *Client) Model() string { return c.model }

// BuildPrompt renders the user message sent to the model
func BuildPrompt(req Request) string {
	passage := strings.TrimSpace(req.BeforeText) +
		"\n[HIGHLIGHTED: " + req.SelectedText + "]\n" +
		strings.TrimSpace(req.AfterText)

	return "You are an expert academic writing assistant. Your task is to rewrite the highlighted portion of text while:\n" +
		"1. Maintaining LaTeX formatting and mathematical notation\n" +
		"2. Preserving academic writing style\n" +
		"3. Ensuring coherence with the surrounding context\n" +
		"4. Following the user's specific instructions\n\n" +
		"Text with context:\n" + passage + "\n\n" +
		"User instruction: " + req.UserInput + "\n\n" +
		"Provide ONLY the rewritten version of the highlighted text, preserving any LaTeX commands and mathematical notation."
}

// Rewrite returns the rewritten selection. Without ShouldRewrite, or when
// the model call fails, the selected text is returned unchanged.
func (c *Client) Rewrite(ctx context.Context, req Request) string {
	if !req.ShouldRewrite {
		return req.SelectedText
	}
	text, err := c.Complete(ctx, req)
	if err != nil {
		c.logger.Warn("rewrite failed, returning selection", "error", err)
		return req.SelectedText
	}
	return text
}

// Complete calls the model and cleans its answer. Wrapping quotes,
// backticks and spaces are trimmed.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(req)},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var chat chatResponse
	if err := json.Unmarshal(data, &chat); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if chat.Error != nil {
		return "", fmt.Errorf("chat completion error: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	text := strings.Trim(strings.TrimSpace(chat.Choices[0].Message.Content), "`\"' ")
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
