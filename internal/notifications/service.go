package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"darkroom/internal/config"
)

const userAgent = "darkroom/0.1"

// ScanSummary counts the outcomes of one dropzone scan.
type ScanSummary struct {
	Ingested    int
	Duplicates  int
	Quarantined int
	Failed      int
	Duration    time.Duration
}

// Total is the number of files the scan handled.
func (s ScanSummary) Total() int {
	return s.Ingested + s.Duplicates + s.Quarantined + s.Failed
}

// Service defines the notification surface used by the daemon.
type Service interface {
	NotifyScanCompleted(ctx context.Context, summary ScanSummary) error
	NotifyIntegrityError(ctx context.Context, path, detail string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyScanCompleted(ctx context.Context, summary ScanSummary) error {
	duration := summary.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	message := fmt.Sprintf("📥 %d ingested, %d duplicates, %d quarantined in %s",
		summary.Ingested, summary.Duplicates, summary.Quarantined, duration)
	title := "Darkroom - Dropzone Scan"
	tags := []string{"darkroom", "dropzone", "completed"}
	if summary.Failed > 0 {
		message += fmt.Sprintf("\n%d files failed and stay in the dropzone", summary.Failed)
		title = "Darkroom - Dropzone Scan (with errors)"
		tags = []string{"darkroom", "dropzone", "warning"}
	}
	return n.send(ctx, payload{title: title, message: message, tags: tags})
}

func (n *ntfyService) NotifyIntegrityError(ctx context.Context, path, detail string) error {
	message := fmt.Sprintf("⚠️ Hash collision with differing bytes: %s", strings.TrimSpace(path))
	if detail = strings.TrimSpace(detail); detail != "" {
		message += "\n" + detail
	}
	return n.send(ctx, payload{
		title:    "Darkroom - Integrity Error",
		message:  message,
		tags:     []string{"darkroom", "integrity", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	if err != nil {
		builder.WriteString(": ")
		builder.WriteString(err.Error())
	}
	return n.send(ctx, payload{
		title:    "Darkroom - Error",
		message:  builder.String(),
		tags:     []string{"darkroom", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Darkroom - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"darkroom", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyScanCompleted(context.Context, ScanSummary) error     { return nil }
func (noopService) NotifyIntegrityError(context.Context, string, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error           { return nil }
func (noopService) TestNotification(context.Context) error                     { return nil }
