package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dbvoir/internal/config"
	"dbvoir/internal/notifications"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newRecorder(t *testing.T, status int) (*httptest.Server, *[]captured) {
	t.Helper()
	var got []captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, &got
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyImportFailed(context.Background(), "/downloads/Artist/Album", errors.New("boom")); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	server, got := newRecorder(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.ImportSuccess = true
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	if err := svc.NotifyImportCompleted(ctx, "/downloads/Artist/Album", "imported"); err != nil {
		t.Fatalf("NotifyImportCompleted: %v", err)
	}
	if err := svc.NotifyImportCompleted(ctx, "/downloads/Artist/Album", "skipped"); err != nil {
		t.Fatalf("NotifyImportCompleted skipped: %v", err)
	}
	if err := svc.NotifyImportFailed(ctx, "/downloads/Artist/Album", errors.New("exit status 1")); err != nil {
		t.Fatalf("NotifyImportFailed: %v", err)
	}

	want := []captured{
		{title: "dbvoir - Imported", tags: "dbvoir,import,completed", body: "🎵 Imported: Artist/Album"},
		{title: "dbvoir - Skipped", tags: "dbvoir,import,skipped", priority: "low", body: "⏭️ beets skipped: Artist/Album"},
		{title: "dbvoir - Import Failed", tags: "dbvoir,import,error", priority: "high", body: "❌ Import failed: Artist/Album\nexit status 1"},
	}
	if len(*got) != len(want) {
		t.Fatalf("expected %d requests, got %d", len(want), len(*got))
	}
	for i, w := range want {
		if (*got)[i] != w {
			t.Fatalf("request %d:\n got %+v\nwant %+v", i, (*got)[i], w)
		}
	}
}

func TestNtfyServiceHonoursToggles(t *testing.T) {
	server, got := newRecorder(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.ImportSuccess = false
	cfg.Notifications.ImportFailure = false
	svc := notifications.NewService(&cfg)

	_ = svc.NotifyImportCompleted(context.Background(), "/downloads/a", "imported")
	_ = svc.NotifyImportFailed(context.Background(), "/downloads/a", nil)
	if len(*got) != 0 {
		t.Fatalf("expected no requests, got %d", len(*got))
	}
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if len(*got) != 1 || (*got)[0].title != "dbvoir - Test" {
		t.Fatalf("expected test notification to ignore toggles, got %+v", *got)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server, _ := newRecorder(t, http.StatusTooManyRequests)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}
