package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	DefaultURL        = "http://localhost:11434/api/generate"
	DefaultModel      = "llama3"
	DefaultTimeout    = 120 * time.Second
	DefaultNumPredict = 1024

	maxErrorBody = 4096
)

// Config holds generative service parameters.
type Config struct {
	URL         string
	Model       string
	Timeout     time.Duration
	NumPredict  int
	Temperature float64
}

// TransportError reports that no usable answer arrived from the generative service: the
// connection failed, the call timed out, or a success response could not be decoded.
type TransportError struct {
	StatusCode int
	Cause      error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("recommendation service transport (status %d): %v", e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("recommendation service transport: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Timeout reports whether the call exceeded its deadline.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Cause, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Cause, &netErr) && netErr.Timeout()
}

// ServiceUnavailableError reports a non-2xx answer from a reachable service.
type ServiceUnavailableError struct {
	StatusCode int
	Body       string
}

func (e *ServiceUnavailableError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("recommendation service status %d", e.StatusCode)
	}
	return fmt.Sprintf("recommendation service status %d: %s", e.StatusCode, e.Body)
}

// Client calls an Ollama-compatible generate endpoint.
type Client struct {
	httpClient  *http.Client
	url         string
	model       string
	numPredict  int
	temperature float64
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// NewClient constructs a Client, filling unset configuration with defaults.
func NewClient(cfg Config) (*Client, error) {
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return nil, fmt.Errorf("generative service url %q must be http or https", cfg.URL)
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.NumPredict <= 0 {
		cfg.NumPredict = DefaultNumPredict
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = 0
	}
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		url:         cfg.URL,
		model:       cfg.Model,
		numPredict:  cfg.NumPredict,
		temperature: cfg.Temperature,
	}, nil
}

// Model returns the model name sent with every request.
func (c *Client) Model() string {
	return c.model
}

// Timeout returns the bound applied to each call.
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// Generate sends one prompt and returns the service's text. It makes exactly one attempt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: c.temperature,
			NumPredict:  c.numPredict,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &ServiceUnavailableError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &TransportError{StatusCode: resp.StatusCode, Cause: fmt.Errorf("decode response: %w", err)}
	}
	return decoded.Response, nil
}
