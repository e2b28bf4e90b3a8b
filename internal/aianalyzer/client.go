package aianalyzer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Config carries the AI endpoint settings named in SPEC_FULL.md §6.
type Config struct {
	InferenceURL   string
	ChatEndpoint   string
	Model          string
	MaxTokens      int
	Temperature    float64
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxChunkTokens int
	MaxChunksPerFile int
	SystemPrompt   string
	StopSequences  []string
	// RequestsPerSecond bounds outbound chunk requests, reusing the
	// teacher's golang.org/x/time/rate shape for marketplace throttling.
	RequestsPerSecond float64
}

// DefaultConfig mirrors the documented defaults in SPEC_FULL.md §5/§6.
func DefaultConfig() Config {
	return Config{
		ChatEndpoint:      "/v1/chat/completions",
		Model:             "gpt-4o-mini",
		MaxTokens:         2048,
		Temperature:       0.1,
		ConnectTimeout:    30 * time.Second,
		ReadTimeout:       240 * time.Second,
		MaxChunkTokens:    1500,
		MaxChunksPerFile:  5,
		SystemPrompt:      defaultSystemPrompt,
		StopSequences:     []string{"```\n\n"},
		RequestsPerSecond: 2,
	}
}

const defaultSystemPrompt = `You are a static-analysis assistant reviewing editor-extension source code for malicious intent. Respond with a single JSON object: {"risk_score": 0..1, "confidence": 0..1, "verdict": "CLEAN"|"SUSPICIOUS"|"MALICIOUS"|"UNKNOWN", "findings": [string], "summary": string}.`

// chatMessage is one role/content pair in the chat-completions request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
	Stop        []string      `json:"stop,omitempty"`
}

type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Client issues chunked chat-completions requests over a streamed
// Server-Sent-Events response, modeled on the original's requests-based
// call_ai() (connect/read timeout split, data: prefix stripped, [DONE]
// sentinel) and on the client construction of theRebelliousNerd-codenerd's
// OpenAIClient (non-streaming). Each request is sent once; there is no
// retry or backoff.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a Client whose http.Client enforces cfg's connect and
// read timeouts separately: a DialContext deadline for connect, and an
// overall request deadline (applied via context) for read.
func NewClient(cfg Config) *Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: cfg.ConnectTimeout,
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			// No overall Timeout here: the read deadline is enforced via
			// the per-request context built in Complete, so a slow-but-
			// progressing stream isn't killed early.
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

// Complete sends chunk as one user message and returns the accumulated
// delta.content across the SSE stream. It has no error return: every
// failure (rate-limiter wait canceled before sending, connection error,
// timeout, HTTP error status) comes back as ok=false with failureReason
// naming the cause, so callers never see a Go error from it (SPEC_FULL.md
// §4.6).
func (c *Client) Complete(ctx context.Context, chunk string) (content string, ok bool, failureReason string) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", false, "rate_limit_wait_canceled"
	}

	readCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout+c.cfg.ReadTimeout)
	defer cancel()

	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: c.cfg.SystemPrompt},
			{Role: "user", Content: chunk},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      true,
		Stop:        c.cfg.StopSequences,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", false, fmt.Sprintf("request_marshal_error: %v", err)
	}

	url := c.cfg.InferenceURL + c.cfg.ChatEndpoint
	req, err := http.NewRequestWithContext(readCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Sprintf("request_build_error: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", false, "read_timeout"
		}
		return "", false, fmt.Sprintf("connection_error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false, fmt.Sprintf("http_error: status %d", resp.StatusCode)
	}

	var buf strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}
		var event sseChunk
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue // tolerate partial/malformed SSE frames; keep what we have
		}
		if len(event.Choices) > 0 {
			buf.WriteString(event.Choices[0].Delta.Content)
		}
	}
	// A scan error here (including a read timeout mid-stream) still leaves
	// whatever was captured in buf usable (SPEC_FULL.md §4.6). Only when
	// nothing was captured is the error reported as a failure, so the
	// caller takes the fallback path.
	if err := scanner.Err(); err != nil && buf.Len() == 0 {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", false, "read_timeout"
		}
		return "", false, fmt.Sprintf("read_error: %v", err)
	}

	return buf.String(), true, ""
}
