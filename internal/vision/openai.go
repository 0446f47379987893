package vision

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"kinetype/internal/logging"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultModel     = "gpt-4o"
	DefaultMaxTokens = 20

	// Prompt asks for a caption the glyph set can render.
	Prompt = "Describe this image in 2-3 words in vietnamese . Return only the words in all cap, no comma and period, emdash, endash and hypernation."

	// PlaceholderKey is the key shipped in sample configs; it selects demo mode.
	PlaceholderKey = "your-openai-api-key-here"
)

// ── Wire types ───────────────────────────────────────────────────

type message struct {
	Role    string    `json:"role"`
	Content []content `json:"content"`
}

type content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type payload struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type apiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

//go:embed schema/chat-response.schema.json
var responseSchemaJSON []byte

const responseSchemaURL = "https://kinetype.local/schema/chat-response.schema.json"

var (
	responseSchemaOnce sync.Once
	responseSchema     *jsonschema.Schema
	responseSchemaErr  error
)

func compiledResponseSchema() (*jsonschema.Schema, error) {
	responseSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(responseSchemaURL, bytes.NewReader(responseSchemaJSON)); err != nil {
			responseSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		responseSchema, responseSchemaErr = compiler.Compile(responseSchemaURL)
	})
	return responseSchema, responseSchemaErr
}

// ── Client ───────────────────────────────────────────────────────

// ClientOption configures the OpenAIClient.
type ClientOption func(*OpenAIClient)

// WithBaseURL points the client at another OpenAI-compatible API root.
func WithBaseURL(u string) ClientOption {
	return func(c *OpenAIClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithModel overrides the default model name.
func WithModel(model string) ClientOption {
	return func(c *OpenAIClient) { c.model = model }
}

// WithMaxTokens sets the response token limit.
func WithMaxTokens(n int) ClientOption {
	return func(c *OpenAIClient) { c.maxTokens = n }
}

// WithHTTPTimeout sets the HTTP client timeout.
func WithHTTPTimeout(d time.Duration) ClientOption {
	return func(c *OpenAIClient) { c.http.Timeout = d }
}

// WithPreflight controls whether Describe checks connectivity with Ping
// before uploading the image.
func WithPreflight(on bool) ClientOption {
	return func(c *OpenAIClient) { c.preflight = on }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *OpenAIClient) { c.log = l.WithComponent("vision") }
}

// OpenAIClient captions images through the chat-completions endpoint.
type OpenAIClient struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	preflight bool
	http      *http.Client
	log       *logging.Logger
}

// NewOpenAIClient creates a client authenticating with apiKey.
func NewOpenAIClient(apiKey string, opts ...ClientOption) *OpenAIClient {
	c := &OpenAIClient{
		baseURL:   DefaultBaseURL,
		apiKey:    apiKey,
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
		preflight: true,
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       logging.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Ping checks that the API is reachable and accepts the key.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("vision: create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return serviceError(resp.StatusCode, body)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Describe uploads image and returns the normalized caption.
func (c *OpenAIClient) Describe(ctx context.Context, image []byte, mime string) (string, error) {
	if len(image) == 0 {
		return "", ErrNoImage
	}
	if c.preflight {
		if err := c.Ping(ctx); err != nil {
			return "", err
		}
	}

	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)
	body := payload{
		Model: c.model,
		Messages: []message{{
			Role: "user",
			Content: []content{
				{Type: "text", Text: Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
		MaxTokens: c.maxTokens,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("vision: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("vision: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	c.log.Debug("describe image", "model", c.model, "mime", mime, "bytes", len(jsonData))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.transportError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", serviceError(resp.StatusCode, respBody)
	}

	caption, err := decodeCaption(respBody)
	if err != nil {
		return "", err
	}
	c.log.Debug("caption received", "caption", caption)
	return caption, nil
}

func (c *OpenAIClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func (c *OpenAIClient) transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("vision: %w", ctxErr)
	}
	c.log.Warn("vision request failed", "error", err)
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

func serviceError(status int, body []byte) error {
	var e apiError
	_ = json.Unmarshal(body, &e)
	return &ServiceError{Status: status, Message: e.Error.Message}
}

// decodeCaption validates the response envelope before reading the first
// choice.
func decodeCaption(body []byte) (string, error) {
	var instance any
	if err := json.Unmarshal(body, &instance); err != nil {
		return "", fmt.Errorf("vision: unmarshal response: %w: %w", err, ErrEmptyCaption)
	}
	schema, err := compiledResponseSchema()
	if err != nil {
		return "", fmt.Errorf("vision: compile response schema: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return "", fmt.Errorf("vision: unexpected response at %s: %w", ve.InstanceLocation, ErrEmptyCaption)
		}
		return "", fmt.Errorf("vision: unexpected response: %w", ErrEmptyCaption)
	}

	var result apiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("vision: unmarshal response: %w", err)
	}
	caption := NormalizeCaption(result.Choices[0].Message.Content)
	if caption == "" {
		return "", ErrEmptyCaption
	}
	return caption, nil
}

// Select returns the OpenAI client for a usable key and the demo provider
// otherwise.
func Select(apiKey string, opts ...ClientOption) Provider {
	if !UsableKey(apiKey) {
		return NewDemoProvider()
	}
	return NewOpenAIClient(strings.TrimSpace(apiKey), opts...)
}

// UsableKey reports whether apiKey is set and is not the sample placeholder.
func UsableKey(apiKey string) bool {
	key := strings.TrimSpace(apiKey)
	return key != "" && key != PlaceholderKey
}
