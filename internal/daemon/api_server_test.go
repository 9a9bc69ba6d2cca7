package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"dbvoir/internal/api"
	"dbvoir/internal/logging"
	"dbvoir/internal/processed"
	"dbvoir/internal/services/beets"
	"dbvoir/internal/testsupport"
)

type nopImporter struct{}

func (nopImporter) Import(_ context.Context, dir string) (beets.Result, error) {
	return beets.Result{Dir: dir}, nil
}

type failingRescan struct{ err error }

func (f failingRescan) Refresh(context.Context) error { return f.err }
func (f failingRescan) Notify(context.Context)        {}

func newTestAPI(t *testing.T, token string) (*Daemon, *httptest.Server) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithWatchDir())
	cfg.Paths.APIToken = token
	d, err := New(cfg, Deps{Record: processed.NewMemory(0), Importer: nopImporter{}, Rescan: failingRescan{}}, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(d.api.router(token))
	t.Cleanup(func() {
		srv.Close()
		_ = d.Close()
	})
	return d, srv
}

func doRequest(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestAPIRequiresBearerToken(t *testing.T) {
	_, srv := newTestAPI(t, "s3cret")

	if resp := doRequest(t, http.MethodGet, srv.URL+"/api/status", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	if resp := doRequest(t, http.MethodGet, srv.URL+"/api/status", "wrong", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", resp.StatusCode)
	}
	if resp := doRequest(t, http.MethodGet, srv.URL+"/api/status", "s3cret", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
	if resp := doRequest(t, http.MethodGet, srv.URL+"/healthz", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz should not require auth, got %d", resp.StatusCode)
	}
}

func TestAPIStatusReportsWatcherState(t *testing.T) {
	d, srv := newTestAPI(t, "")

	status := decode[api.DaemonStatus](t, doRequest(t, http.MethodGet, srv.URL+"/api/status", "", nil))
	if status.Running {
		t.Fatal("daemon was never started")
	}
	if status.WatchDir != d.cfg.Paths.WatchDir {
		t.Fatalf("unexpected watch dir %q", status.WatchDir)
	}
	if status.ProcessedStore != "memory" {
		t.Fatalf("unexpected processed store %q", status.ProcessedStore)
	}
	if len(status.Dependencies) == 0 {
		t.Fatal("expected dependency report")
	}
}

func TestAPIImportStatusCodes(t *testing.T) {
	d, srv := newTestAPI(t, "")
	track := filepath.Join(d.cfg.Paths.WatchDir, "Band", "01.flac")
	testsupport.WriteFile(t, track, 32)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/import", "", api.ImportRequest{Path: track})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if got := decode[api.ImportResponse](t, resp); !got.Queued || got.Path != track {
		t.Fatalf("unexpected import response %+v", got)
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/api/import", "", api.ImportRequest{Path: track})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", resp.StatusCode)
	}
	if got := decode[api.ImportResponse](t, resp); got.Queued {
		t.Fatal("duplicate import should not be queued twice")
	}

	missing := filepath.Join(d.cfg.Paths.WatchDir, "missing.flac")
	if resp := doRequest(t, http.MethodPost, srv.URL+"/api/import", "", api.ImportRequest{Path: missing}); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if resp := doRequest(t, http.MethodPost, srv.URL+"/api/import", "", api.ImportRequest{}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAPIProcessedListForgetAndPrune(t *testing.T) {
	d, srv := newTestAPI(t, "")
	ctx := context.Background()
	for _, p := range []string{"/downloads/a.flac", "/downloads/b.flac"} {
		if err := d.record.Add(ctx, p); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	list := decode[api.ProcessedResponse](t, doRequest(t, http.MethodGet, srv.URL+"/api/processed?limit=1", "", nil))
	if list.Total != 2 || len(list.Items) != 1 {
		t.Fatalf("expected 1 of 2 entries, got %d of %d", len(list.Items), list.Total)
	}
	if resp := doRequest(t, http.MethodGet, srv.URL+"/api/processed?limit=x", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", resp.StatusCode)
	}

	forget := decode[api.ForgetResponse](t, doRequest(t, http.MethodDelete, srv.URL+"/api/processed?path=/downloads/a.flac", "", nil))
	if !forget.Removed {
		t.Fatal("expected entry to be removed")
	}

	prune := decode[api.PruneResponse](t, doRequest(t, http.MethodPost, srv.URL+"/api/processed/prune?days=0", "", nil))
	if prune.Removed != 1 {
		t.Fatalf("expected remaining entry pruned, got %d", prune.Removed)
	}
	if resp := doRequest(t, http.MethodPost, srv.URL+"/api/processed/prune", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without days, got %d", resp.StatusCode)
	}
}

func TestAPIRescanSurfacesFailure(t *testing.T) {
	d, srv := newTestAPI(t, "")
	d.rescan = failingRescan{err: context.DeadlineExceeded}

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/rescan", "", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	if got := decode[api.ErrorResponse](t, resp); !strings.Contains(got.Error, "deadline") {
		t.Fatalf("expected refresh error in body, got %q", got.Error)
	}
}

func TestAPIMetricsEndpoint(t *testing.T) {
	_, srv := newTestAPI(t, "token")
	doRequest(t, http.MethodGet, srv.URL+"/api/pending", "token", nil)

	resp := doRequest(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected metrics without auth, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `dbvoir_http_requests_total{method="GET",path="/api/pending",status="200"}`) {
		t.Fatal("expected request counter labelled with the route template")
	}
}

func TestAPIRejectsWrongMethod(t *testing.T) {
	_, srv := newTestAPI(t, "")
	if resp := doRequest(t, http.MethodPost, srv.URL+"/api/status", "", nil); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if resp := doRequest(t, http.MethodGet, srv.URL+"/api/import", "", nil); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET /api/import, got %d", resp.StatusCode)
	}
	if resp := doRequest(t, http.MethodGet, srv.URL+"/api/nope", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown route, got %d", resp.StatusCode)
	}
}
