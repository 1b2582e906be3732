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
	"strings"
)

// OpenAIName identifies the OpenAI-compatible provider.
const OpenAIName = "openai"

const jsonResponseType = "json_object"

// OpenAI calls a chat completions endpoint with the image as a data URI.
type OpenAI struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewOpenAI(endpoint, apiKey, model string, client *http.Client) *OpenAI {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAI{
		endpoint:   strings.TrimSpace(endpoint),
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		httpClient: client,
	}
}

func (o *OpenAI) Name() string  { return OpenAIName }
func (o *OpenAI) Model() string { return o.model }

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string     `json:"role"`
	Content []chatPart `json:"content"`
}

type chatPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (o *OpenAI) Analyze(ctx context.Context, img Image, opts Options) (RawAnalysis, error) {
	if o.apiKey == "" {
		return RawAnalysis{}, terminal(OpenAIName, errors.New("api key required"))
	}
	if len(img.Data) == 0 {
		return RawAnalysis{}, terminal(OpenAIName, errors.New("image data required"))
	}
	mime := img.MimeType
	if mime == "" {
		mime = "image/jpeg"
	}
	payload, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatPart{
				{Type: "text", Text: opts.Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)}},
			},
		}},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	})
	if err != nil {
		return RawAnalysis{}, terminal(OpenAIName, fmt.Errorf("encode body: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(payload))
	if err != nil {
		return RawAnalysis{}, terminal(OpenAIName, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return RawAnalysis{}, wrap(OpenAIName, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return RawAnalysis{}, wrap(OpenAIName, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return RawAnalysis{}, statusError(OpenAIName, resp, body)
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return RawAnalysis{}, terminal(OpenAIName, fmt.Errorf("decode response: %w", err))
	}
	if completion.Error != nil {
		return RawAnalysis{}, terminal(OpenAIName, fmt.Errorf("api error: %s", strings.TrimSpace(completion.Error.Message)))
	}
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return parseModelAnalysis(OpenAIName, content)
		}
		if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
			return RawAnalysis{}, terminal(OpenAIName, fmt.Errorf("model refused: %s", refusal))
		}
	}
	// An empty completion is usually a transient upstream hiccup.
	return RawAnalysis{}, &Error{Provider: OpenAIName, Class: ClassRetryable, Err: fmt.Errorf("empty content (response snippet: %s)", summarizePayloadSnippet(string(body)))}
}
