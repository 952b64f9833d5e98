// Package aio asks a chat-completion service how well a page reads for AI
// systems and turns the free-form answer into scores.
package aio

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

	"github.com/sirupsen/logrus"

	"github.com/seo-optimizer/insights/models"
)

const (
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"
	DefaultModel    = "gpt-4o-mini"
	DefaultTimeout  = 30 * time.Second

	serviceName = "aio"
)

const systemPrompt = `You review web pages for how easily AI assistants can understand, summarize and quote them.
Answer in exactly this format:
Overall: <0-100>
Clarity: <0-100>
Structure: <0-100>
Language: <0-100>
Topics: <comma separated main topics>
Confusing:
- <passage that is hard to interpret>
Summary: <one sentence>`

type Options struct {
	Endpoint   string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

type Client struct {
	endpoint string
	model    string
	timeout  time.Duration
	http     *http.Client
	log      logrus.FieldLogger
}

func NewClient(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Client{
		endpoint: opts.Endpoint,
		model:    opts.Model,
		timeout:  opts.Timeout,
		http:     opts.HTTPClient,
		log:      opts.Logger.WithField("component", serviceName),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Analyze sends the page content for review. Errors follow the same taxonomy
// as the PageSpeed client so callers can fall back uniformly.
func (c *Client) Analyze(ctx context.Context, pageURL, content, apiKey string) (models.AioResult, error) {
	if strings.TrimSpace(apiKey) == "" {
		return models.AioResult{}, models.ErrMissingCredential
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "URL: " + pageURL + "\n\n" + content},
		},
	})
	if err != nil {
		return models.AioResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return models.AioResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.AioResult{}, fmt.Errorf("%w: ai service did not answer within %s", models.ErrTimeout, c.timeout)
		}
		return models.AioResult{}, &models.UpstreamError{Service: serviceName, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.AioResult{}, fmt.Errorf("%w: ai service response cut off", models.ErrTimeout)
		}
		return models.AioResult{}, &models.UpstreamError{Service: serviceName, Message: "read failed", Err: err}
	}

	var parsed chatResponse
	jsonErr := json.Unmarshal(body, &parsed)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := resp.Status
		if jsonErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return models.AioResult{}, &models.UpstreamError{Service: serviceName, StatusCode: resp.StatusCode, Message: msg}
	}
	if jsonErr != nil {
		return models.AioResult{}, &models.UpstreamError{Service: serviceName, Message: "malformed response body", Err: jsonErr}
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return models.AioResult{}, &models.UpstreamError{Service: serviceName, Message: "empty completion"}
	}

	result := Extract(parsed.Choices[0].Message.Content)
	result.Source = models.SourceAIService
	c.log.WithFields(logrus.Fields{"url": pageURL, "overall": result.OverallScore}).Debug("ai content analysis complete")
	return result, nil
}
