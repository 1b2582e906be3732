// Package faces talks to the external face detection capability. Detection
// models are not hosted here; darkroom posts image bytes and stores the
// returned boxes and embeddings.
package faces

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"darkroom/internal/config"
	"darkroom/internal/logging"
	"darkroom/internal/services"
)

// Box is a face region normalized to [0,1] of the image dimensions.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Face is one detection.
type Face struct {
	Box        Box       `json:"box"`
	Confidence float64   `json:"confidence"`
	Embedding  []float32 `json:"embedding,omitempty"`
	// Person is filled in when the service recognizes a known face.
	Person string `json:"person,omitempty"`
}

// Detector finds faces in image bytes.
type Detector interface {
	Detect(ctx context.Context, data []byte, mimeType string) ([]Face, error)
}

// HTTPDetector posts images to a detection endpoint.
type HTTPDetector struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewFromConfig returns nil when no endpoint is configured.
func NewFromConfig(cfg config.Faces, logger *slog.Logger) *HTTPDetector {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewHTTPDetector(endpoint, &http.Client{Timeout: timeout}, logger)
}

// NewHTTPDetector builds a detector. A nil client uses http.DefaultClient.
func NewHTTPDetector(endpoint string, client *http.Client, logger *slog.Logger) *HTTPDetector {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDetector{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
		logger:   logging.NewComponentLogger(logger, "faces"),
	}
}

type detectResponse struct {
	Faces []Face `json:"faces"`
	Error string `json:"error,omitempty"`
}

// Detect posts data to {endpoint}/detect. Network failures and 5xx responses
// map to ErrProviderUnavailable, other failures to ErrProviderRejected.
func (d *HTTPDetector) Detect(ctx context.Context, data []byte, mimeType string) ([]Face, error) {
	if len(data) == 0 {
		return nil, services.Validation("faces", "detect", "image data required")
	}
	endpoint, err := url.JoinPath(d.endpoint, "detect")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "faces", "detect", "Invalid faces endpoint", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "faces", "detect", "Invalid faces endpoint", err)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrProviderUnavailable, "faces", "detect", "Face detection unreachable", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrProviderUnavailable, "faces", "detect", "Unable to read response", err)
	}

	var decoded detectResponse
	decodeErr := json.Unmarshal(body, &decoded)
	switch {
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		return nil, services.Wrap(services.ErrProviderUnavailable, "faces", "detect",
			fmt.Sprintf("Face detection returned HTTP %d", resp.StatusCode), remoteError(decoded.Error))
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, services.Wrap(services.ErrProviderRejected, "faces", "detect",
			fmt.Sprintf("Face detection returned HTTP %d", resp.StatusCode), remoteError(decoded.Error))
	case decodeErr != nil:
		return nil, services.Wrap(services.ErrProviderRejected, "faces", "detect", "Malformed detection response", decodeErr)
	}

	out := decoded.Faces[:0]
	for _, f := range decoded.Faces {
		if f.Box.W <= 0 || f.Box.H <= 0 {
			continue
		}
		f.Box = clampBox(f.Box)
		f.Confidence = min(max(f.Confidence, 0), 1)
		out = append(out, f)
	}
	d.logger.Debug("faces detected",
		logging.Int("faces", len(out)),
		logging.Duration("duration", time.Since(start)),
	)
	return out, nil
}

func clampBox(b Box) Box {
	clip := func(v float64) float64 { return min(max(v, 0), 1) }
	b.X, b.Y = clip(b.X), clip(b.Y)
	b.W = min(clip(b.W), 1-b.X)
	b.H = min(clip(b.H), 1-b.Y)
	return b
}

func remoteError(msg string) error {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}
