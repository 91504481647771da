package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/docker/go-units"
)

var (
	ErrEmptyPrompt       = errors.New("prompt is required")
	ErrUnknownModel      = errors.New("unknown model")
	ErrResponseTooLarge  = errors.New("generated image exceeds size limit")
	ErrEmptyResponseBody = errors.New("generation service returned an empty body")
)

const defaultTimeout = 60 * time.Second

// StatusError reports a non-2xx answer of the generation service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation service returned status %d: %s", e.StatusCode, e.Body)
}

// Model is one configured text-to-image endpoint.
type Model struct {
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	ModelURL string        `json:"-"`
	Timeout  time.Duration `json:"-"`
}

// Client calls text-to-image inference endpoints that take {"inputs": prompt}
// and answer with the raw image bytes.
type Client struct {
	httpClient      *http.Client
	token           string
	maxResponseSize int64
	models          []Model
}

func NewClient(models []Model, token string, maxResponseSize int64) *Client {
	return &Client{
		httpClient:      &http.Client{},
		token:           token,
		maxResponseSize: maxResponseSize,
		models:          models,
	}
}

// Models returns the configured models in configuration order.
func (c *Client) Models() []Model {
	return append([]Model(nil), c.models...)
}

func (c *Client) lookup(name string) (Model, bool) {
	for _, m := range c.models {
		if m.Name == name || m.Path == name {
			return m, true
		}
	}
	return Model{}, false
}

type generateRequest struct {
	Inputs string `json:"inputs"`
}

// Generate asks the model (by name or path) for an image of prompt.
func (c *Client) Generate(ctx context.Context, model string, prompt string) ([]byte, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	m, ok := c.lookup(model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(generateRequest{Inputs: prompt})
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.ModelURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request to %s failed: %w", m.Name, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("Client.Generate: failed to close response body", "error", cerr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read generation response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	if int64(len(body)) > c.maxResponseSize {
		return nil, fmt.Errorf("%w (%s)", ErrResponseTooLarge, units.HumanSize(float64(c.maxResponseSize)))
	}
	if len(body) == 0 {
		return nil, ErrEmptyResponseBody
	}

	slog.Info("Client.Generate: image generated",
		"model", m.Name,
		"size", units.HumanSize(float64(len(body))),
		"duration_ms", time.Since(start).Milliseconds())
	return body, nil
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
