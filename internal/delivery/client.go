package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Guizzs26/go-user-sync/internal/models"
	"github.com/Guizzs26/go-user-sync/internal/webhook"
	"github.com/Guizzs26/go-user-sync/pkg/metrics"
)

// maxErrorBodyChars bounds the response excerpt appended to error messages
const maxErrorBodyChars = 500

// statusMessages maps well-known API failures to readable explanations
var statusMessages = map[int]string{
	400: "Bad Request: Invalid data sent to API",
	401: "Unauthorized: Invalid or missing API token",
	403: "Forbidden: API token does not have permission",
	404: "Not Found: API endpoint does not exist",
	408: "Request Timeout: API did not respond in time",
	429: "Too Many Requests: Rate limit exceeded",
	500: "Internal Server Error: API encountered an error",
	502: "Bad Gateway: API server is unavailable",
	503: "Service Unavailable: API is temporarily down",
	504: "Gateway Timeout: API took too long to respond",
}

// Config is the outbound API surface for one destination
type Config struct {
	URL             string
	Token           string
	Timeout         time.Duration
	ConnectTimeout  time.Duration
	SigningEnabled  bool
	SigningSecret   string
	SignatureHeader string
}

// Client posts JSON payloads to the destination API. Every call returns a
// structured DeliveryResult; transport failures never escape as errors.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *SlidingWindow
	logger  *slog.Logger
}

func NewClient(cfg Config, limiter *SlidingWindow, logger *slog.Logger) *Client {
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = webhook.DefaultSignatureHeader
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter: limiter,
		logger:  logger,
	}
}

// Send delivers the payload and classifies the outcome: 2xx is success,
// anything else carries a readable error message. The rate limiter is
// consulted first and rejects with 429 semantics before any network call.
func (c *Client) Send(ctx context.Context, payload map[string]any) models.DeliveryResult {
	if c.cfg.URL == "" {
		return models.DeliveryResult{Error: "no API URL configured"}
	}

	if err := c.limiter.Allow(); err != nil {
		metrics.RateLimited.Inc()
		code := http.StatusTooManyRequests
		return models.DeliveryResult{HTTPCode: &code, Error: err.Error()}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return models.DeliveryResult{Error: fmt.Sprintf("payload serialization failed: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return models.DeliveryResult{Error: fmt.Sprintf("request build failed: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	// The signature covers the exact serialized bytes going on the wire
	if c.cfg.SigningEnabled && c.cfg.SigningSecret != "" {
		signature, err := webhook.Sign(body, c.cfg.SigningSecret)
		if err != nil {
			return models.DeliveryResult{Error: fmt.Sprintf("payload signing failed: %v", err)}
		}
		req.Header.Set(c.cfg.SignatureHeader, signature)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	c.limiter.Record()

	elapsed := time.Since(start)
	metrics.DeliveryDuration.Observe(elapsed.Seconds())

	if err != nil {
		return models.DeliveryResult{
			Error:       fmt.Sprintf("request failed: %v", err),
			ExecutionMs: elapsed.Milliseconds(),
		}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		c.logger.Warn("Failed to read API response body", "error", readErr)
	}

	code := resp.StatusCode
	result := models.DeliveryResult{
		Success:     code >= 200 && code < 300,
		HTTPCode:    &code,
		Headers:     resp.Header,
		Body:        string(respBody),
		ExecutionMs: elapsed.Milliseconds(),
	}

	if !result.Success {
		result.Error = errorMessage(code, result.Body)
	}
	return result
}

// TestConnection sends a marker payload to verify the destination is reachable
// with the current configuration.
func (c *Client) TestConnection(ctx context.Context) (bool, string) {
	result := c.Send(ctx, map[string]any{
		"test":      true,
		"timestamp": time.Now().Unix(),
		"message":   "user sync connection test",
	})

	if result.Success {
		return true, fmt.Sprintf("connection successful (HTTP %d, %dms)", *result.HTTPCode, result.ExecutionMs)
	}
	return false, "connection failed: " + result.Error
}

func errorMessage(code int, body string) string {
	msg, ok := statusMessages[code]
	if !ok {
		msg = fmt.Sprintf("HTTP Error %d", code)
	}

	if body == "" {
		return msg
	}

	excerpt := body
	if runes := []rune(body); len(runes) > maxErrorBodyChars {
		excerpt = string(runes[:maxErrorBodyChars]) + "... (truncated)"
	}
	return msg + " - Response: " + excerpt
}
