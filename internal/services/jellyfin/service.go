package jellyfin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dbvoir/internal/config"
	"dbvoir/internal/logging"
	"dbvoir/internal/metrics"
	"dbvoir/internal/services"
)

// Service triggers Jellyfin library scans.
type Service interface {
	// Refresh performs one library refresh and returns any failure.
	Refresh(ctx context.Context) error
	// Notify performs Refresh, logs the outcome, and never fails.
	Notify(ctx context.Context)
}

// HTTPDoer describes the HTTP client used by the Jellyfin service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrNotConfigured is returned by Refresh when the URL or API key is missing.
var ErrNotConfigured = fmt.Errorf("%w: jellyfin url or api key missing", services.ErrConfiguration)

// NewConfiguredService returns the Jellyfin service described by cfg. A
// disabled integration yields a service whose Notify is silent.
func NewConfiguredService(cfg *config.Config, logger *slog.Logger) Service {
	logger = logging.NewComponentLogger(logger, "jellyfin")
	if cfg == nil || !cfg.Jellyfin.Enabled {
		return disabledService{logger: logger}
	}
	timeout := cfg.RescanTimeout()
	return NewHTTPService(cfg.Jellyfin.URL, cfg.Jellyfin.APIKey, cfg.Jellyfin.LibraryID, &http.Client{Timeout: timeout}, timeout, logger)
}

// NewHTTPService constructs an HTTP-backed Jellyfin service.
func NewHTTPService(baseURL, apiKey, libraryID string, client HTTPDoer, timeout time.Duration, logger *slog.Logger) Service {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &httpService{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:    strings.TrimSpace(apiKey),
		libraryID: strings.TrimSpace(libraryID),
		timeout:   timeout,
		client:    client,
		logger:    logger,
	}
}

type httpService struct {
	baseURL   string
	apiKey    string
	libraryID string
	timeout   time.Duration
	client    HTTPDoer
	logger    *slog.Logger
}

func (s *httpService) Refresh(ctx context.Context) error {
	if s.baseURL == "" || s.apiKey == "" {
		return ErrNotConfigured
	}

	reqCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	refreshURL := s.baseURL + "/Library/Refresh?" + s.refreshQuery().Encode()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, refreshURL, nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "jellyfin", "refresh", "build request", err)
	}
	req.Header.Set("X-Emby-Token", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, "jellyfin", "refresh", fmt.Sprintf("no response after %s", s.timeout), err)
		}
		return services.Wrap(services.ErrTransient, "jellyfin", "refresh", "request failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "jellyfin", "refresh",
			fmt.Sprintf("api key rejected (%d)", resp.StatusCode), nil)
	default:
		return services.Wrap(services.ErrExternalTool, "jellyfin", "refresh",
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
}

func (s *httpService) refreshQuery() url.Values {
	query := url.Values{}
	query.Set("Recursive", "true")
	query.Set("MetadataRefreshMode", "Default")
	if s.libraryID != "" {
		query.Set("ItemIds", s.libraryID)
	}
	return query
}

func (s *httpService) Notify(ctx context.Context) {
	logger := logging.WithContext(ctx, s.logger)
	started := time.Now()
	err := s.Refresh(ctx)
	switch {
	case err == nil:
		metrics.RescansTotal.WithLabelValues(metrics.ResultOK).Inc()
		logger.Info("jellyfin library rescan requested",
			logging.String(logging.FieldEventType, "jellyfin_refresh_requested"),
			logging.Duration("elapsed", time.Since(started)),
		)
	case errors.Is(err, ErrNotConfigured):
		metrics.RescansTotal.WithLabelValues(metrics.ResultNotConfigured).Inc()
		logging.WarnWithContext(logger, "jellyfin rescan skipped; url or api key missing", "jellyfin_not_configured",
			logging.String(logging.FieldErrorHint, "set JELLYFIN_API_KEY and JELLYFIN_URL or the [jellyfin] config section"),
			logging.String(logging.FieldImpact, "new music appears after Jellyfin's own scheduled scan"),
		)
	default:
		metrics.RescansTotal.WithLabelValues(metrics.ResultFailed).Inc()
		logging.WarnWithContext(logger, "jellyfin rescan failed", "jellyfin_refresh_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check jellyfin.url, the api key, and that the server is up"),
			logging.String(logging.FieldImpact, "new music appears after Jellyfin's own scheduled scan"),
		)
	}
}

type disabledService struct {
	logger *slog.Logger
}

func (d disabledService) Refresh(context.Context) error {
	return fmt.Errorf("%w: jellyfin integration disabled", services.ErrConfiguration)
}

func (d disabledService) Notify(ctx context.Context) {
	metrics.RescansTotal.WithLabelValues(metrics.ResultDisabled).Inc()
	logging.WithContext(ctx, d.logger).Debug("jellyfin integration disabled; rescan skipped")
}
