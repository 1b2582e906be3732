package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// LocalName identifies the Ollama-compatible provider.
const LocalName = "local"

// Local talks to an Ollama-compatible /api/generate endpoint.
type Local struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

// NewLocal builds the provider. A nil client uses http.DefaultClient; timeouts
// come from the caller's context.
func NewLocal(endpoint, model string, client *http.Client) *Local {
	if client == nil {
		client = http.DefaultClient
	}
	return &Local{
		endpoint:   strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		model:      strings.TrimSpace(model),
		httpClient: client,
	}
}

func (l *Local) Name() string  { return LocalName }
func (l *Local) Model() string { return l.model }

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Format string   `json:"format"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Analyze sends one generate request with the image attached.
func (l *Local) Analyze(ctx context.Context, img Image, opts Options) (RawAnalysis, error) {
	if len(img.Data) == 0 {
		return RawAnalysis{}, terminal(LocalName, errors.New("image data required"))
	}
	endpoint, err := url.JoinPath(l.endpoint, "api", "generate")
	if err != nil {
		return RawAnalysis{}, terminal(LocalName, fmt.Errorf("build url: %w", err))
	}
	payload, err := json.Marshal(generateRequest{
		Model:  l.model,
		Prompt: opts.Prompt,
		Images: []string{base64.StdEncoding.EncodeToString(img.Data)},
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return RawAnalysis{}, terminal(LocalName, fmt.Errorf("encode body: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return RawAnalysis{}, terminal(LocalName, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return RawAnalysis{}, wrap(LocalName, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return RawAnalysis{}, wrap(LocalName, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return RawAnalysis{}, statusError(LocalName, resp, body)
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return RawAnalysis{}, terminal(LocalName, fmt.Errorf("decode response: %w", err))
	}
	if decoded.Error != "" {
		return RawAnalysis{}, terminal(LocalName, errors.New(decoded.Error))
	}
	return parseModelAnalysis(LocalName, decoded.Response)
}

// Available queries /api/tags and reports whether the configured model is
// installed.
func (l *Local) Available(ctx context.Context) error {
	endpoint, err := url.JoinPath(l.endpoint, "api", "tags")
	if err != nil {
		return terminal(LocalName, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return terminal(LocalName, err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return wrap(LocalName, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return wrap(LocalName, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return statusError(LocalName, resp, body)
	}
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &tags); err != nil {
		return terminal(LocalName, fmt.Errorf("decode tags: %w", err))
	}
	for _, m := range tags.Models {
		if m.Name == l.model || strings.TrimSuffix(m.Name, ":latest") == strings.TrimSuffix(l.model, ":latest") {
			return nil
		}
	}
	return terminal(LocalName, fmt.Errorf("model %q not installed", l.model))
}
