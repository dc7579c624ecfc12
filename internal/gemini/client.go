package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultEndpoint is the generative-language API base URL
const DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// DefaultTimeout bounds a single generateContent exchange
const DefaultTimeout = 30 * time.Second

// Client performs outbound calls to the generateContent endpoint
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
}

// NewClient creates a gateway client for the given model. The API key is
// sent in a request header, never in the URL.
func NewClient(endpoint, model, apiKey string, timeout time.Duration, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint:   endpoint,
		model:      model,
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     logger,
		tracer:     tracer,
		meter:      meter,
	}
}

// Generate performs one generateContent call and returns the first
// candidate text. The call is bounded by the client timeout; when the
// deadline passes the in-flight request is cancelled and ErrTimeout is
// returned. No retry is performed at this layer.
func (c *Client) Generate(ctx context.Context, genReq *GenerateRequest) (string, error) {
	ctx, span := c.tracer.Start(ctx, "gemini_api_call")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()

	jsonData, err := json.Marshal(genReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	duration := time.Since(start)
	histogram, err := c.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err == nil {
		histogram.Record(ctx, float64(duration.Milliseconds()))
	}

	if resp.StatusCode != http.StatusOK {
		var errResp GenerateResponse
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Error != nil {
			apiErr.Message = errResp.Error.Message
		}
		c.logger.Warn("API call failed", "status", resp.Status, "message", apiErr.Message)
		return "", apiErr
	}

	var apiResp GenerateResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	c.recordUsage(ctx, apiResp.UsageMetadata)

	text, ok := candidateText(&apiResp)
	if !ok {
		return "", ErrMalformedResponse
	}

	c.logger.Info("API call completed", "model", c.model, "duration_ms", duration.Milliseconds())
	return text, nil
}

// candidateText extracts candidates[0].content.parts[0].text
func candidateText(resp *GenerateResponse) (string, bool) {
	if len(resp.Candidates) == 0 {
		return "", false
	}
	parts := resp.Candidates[0].Content.Parts
	if len(parts) == 0 || parts[0].Text == "" {
		return "", false
	}
	return parts[0].Text, true
}

// recordUsage records OpenTelemetry counters from usage metadata
func (c *Client) recordUsage(ctx context.Context, usage *UsageMetadata) {
	if usage == nil {
		return
	}

	counters := map[string]int64{
		"prompt_tokens":     usage.PromptTokenCount,
		"candidates_tokens": usage.CandidatesTokenCount,
		"total_tokens":      usage.TotalTokenCount,
	}

	for key, value := range counters {
		counter, err := c.meter.Int64Counter(
			fmt.Sprintf("llm.usage.%s", key),
			metric.WithDescription(fmt.Sprintf("LLM usage metric: %s", key)),
		)
		if err != nil {
			c.logger.Warn("failed to create counter", "key", key, "error", err)
			continue
		}
		counter.Add(ctx, value)
	}
}
