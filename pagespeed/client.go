// Package pagespeed fetches PageSpeed Insights reports and normalizes them
// into fully-populated results.
package pagespeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seo-optimizer/insights/models"
)

const (
	DefaultEndpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"
	DefaultTimeout  = 30 * time.Second

	serviceName  = "pagespeed"
	maxBodyBytes = 16 << 20
)

var categories = []string{"performance", "seo", "accessibility", "best-practices"}

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Client calls the PageSpeed Insights API once per Fetch. It never retries.
type Client struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	log      logrus.FieldLogger
}

func NewClient(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Client{
		endpoint: opts.Endpoint,
		timeout:  opts.Timeout,
		http:     opts.HTTPClient,
		log:      opts.Logger.WithField("component", serviceName),
	}
}

// Fetch requests a report for pageURL. It fails fast with
// models.ErrMissingCredential when apiKey is empty, returns models.ErrTimeout
// when the deadline passes and *models.UpstreamError for non-2xx responses or
// bodies that are not a usable report.
func (c *Client) Fetch(ctx context.Context, pageURL string, strategy models.Strategy, apiKey string) (*Payload, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, models.ErrMissingCredential
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(pageURL, strategy, apiKey), nil)
	if err != nil {
		return nil, fmt.Errorf("build pagespeed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.transportError(ctx, err)
	}

	c.log.WithFields(logrus.Fields{
		"url":         pageURL,
		"strategy":    strategy,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("pagespeed response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &models.UpstreamError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body, resp.Status),
		}
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &models.UpstreamError{Service: serviceName, Message: "malformed response body", Err: err}
	}
	if payload.LighthouseResult == nil {
		return nil, &models.UpstreamError{Service: serviceName, Message: "response has no lighthouseResult"}
	}
	return &payload, nil
}

func (c *Client) requestURL(pageURL string, strategy models.Strategy, apiKey string) string {
	q := url.Values{}
	q.Set("url", pageURL)
	q.Set("strategy", string(strategy))
	q.Set("key", apiKey)
	for _, cat := range categories {
		q.Add("category", cat)
	}
	return c.endpoint + "?" + q.Encode()
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: pagespeed did not answer within %s", models.ErrTimeout, c.timeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &models.UpstreamError{Service: serviceName, Message: "request failed", Err: err}
}

func errorMessage(body []byte, fallback string) string {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return fallback
}
