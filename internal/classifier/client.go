// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/rssbrr/pkg/httphelpers"
)

// ClientConfig holds the options for constructing a chat Client.
type ClientConfig struct {
	// URL is the OpenAI-compatible API base, e.g. https://api.openai.com/v1.
	URL        string
	Token      string
	Timeout    int
	HTTPClient *http.Client
	UserAgent  string
}

// Client speaks the OpenAI-compatible chat completion protocol. Any provider
// exposing /chat/completions works.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	userAgent  string
}

func NewClient(cfg ClientConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "rssbrr"
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		token:      cfg.Token,
		httpClient: client,
		userAgent:  ua,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage"`
}

// CreateCompletion sends one chat request and returns the assistant's reply
// content verbatim.
func (c *Client) CreateCompletion(ctx context.Context, model, systemPrompt, userContent string, temperature float64) (string, error) {
	payload := chatRequest{
		Model:       model,
		Temperature: temperature,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to build chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "chat request failed")
	}
	defer httphelpers.DrainAndClose(resp)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", errors.Errorf("chat endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", errors.Wrap(err, "failed to decode chat response")
	}

	if decoded.Usage != nil {
		log.Debug().
			Str("model", model).
			Int("promptTokens", decoded.Usage.PromptTokens).
			Int("completionTokens", decoded.Usage.CompletionTokens).
			Msg("chat completion usage")
	}

	if len(decoded.Choices) == 0 {
		return "", errors.New("chat response contained no choices")
	}

	return decoded.Choices[len(decoded.Choices)-1].Message.Content, nil
}
