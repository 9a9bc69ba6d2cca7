package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"dbvoir/internal/config"
)

const userAgent = "dbvoir/0.1.0"

// Service defines the notification surface exposed to the import pipeline.
type Service interface {
	NotifyImportCompleted(ctx context.Context, dir, outcome string) error
	NotifyImportFailed(ctx context.Context, dir string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		onSuccess: cfg.Notifications.ImportSuccess,
		onFailure: cfg.Notifications.ImportFailure,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	onSuccess bool
	onFailure bool
}

func (n *ntfyService) NotifyImportCompleted(ctx context.Context, dir, outcome string) error {
	if !n.onSuccess {
		return nil
	}
	album := albumLabel(dir)
	data := payload{
		title:   "dbvoir - Imported",
		message: fmt.Sprintf("🎵 Imported: %s", album),
		tags:    []string{"dbvoir", "import", "completed"},
	}
	if outcome == "skipped" {
		data.title = "dbvoir - Skipped"
		data.message = fmt.Sprintf("⏭️ beets skipped: %s", album)
		data.tags = []string{"dbvoir", "import", "skipped"}
		data.priority = "low"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyImportFailed(ctx context.Context, dir string, err error) error {
	if !n.onFailure {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Import failed: ")
	builder.WriteString(albumLabel(dir))
	if err != nil {
		builder.WriteString("\n")
		builder.WriteString(strings.TrimSpace(err.Error()))
	}
	return n.send(ctx, payload{
		title:    "dbvoir - Import Failed",
		message:  builder.String(),
		tags:     []string{"dbvoir", "import", "error"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "dbvoir - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"dbvoir", "test"},
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

// albumLabel renders "Artist/Album" from the last two path elements, which is
// how Soulseek download folders are usually laid out.
func albumLabel(dir string) string {
	dir = filepath.Clean(strings.TrimSpace(dir))
	base := filepath.Base(dir)
	parent := filepath.Base(filepath.Dir(dir))
	if parent == "." || parent == string(filepath.Separator) || parent == "" {
		return base
	}
	return parent + "/" + base
}

type noopService struct{}

func (noopService) NotifyImportCompleted(context.Context, string, string) error { return nil }
func (noopService) NotifyImportFailed(context.Context, string, error) error     { return nil }
func (noopService) TestNotification(context.Context) error                      { return nil }
