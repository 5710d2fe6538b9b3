package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/boxhand/internal/dispatch"
	"github.com/mattjoyce/boxhand/internal/events"
	"github.com/mattjoyce/boxhand/internal/log"
	"github.com/mattjoyce/boxhand/internal/project"
	"github.com/mattjoyce/boxhand/internal/viewer"
)

const testKey = "test-key"

// stubDispatcher records the last request and returns canned results.
type stubDispatcher struct {
	lastReq dispatch.Request
	result  *dispatch.Dispatch
	err     error
}

func (d *stubDispatcher) Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Dispatch, error) {
	d.lastReq = req
	if d.err != nil {
		return nil, d.err
	}
	return d.result, nil
}

func setupServer(t *testing.T) (*Server, *stubDispatcher, *viewer.Registry, *events.Hub) {
	t.Helper()

	stub := &stubDispatcher{
		result: &dispatch.Dispatch{
			ID:      "d-1",
			Action:  "up",
			Root:    "/proj",
			Command: "vagrant up",
			Viewer:  "vagrant:up:d-1",
		},
	}
	registry := viewer.NewRegistry(100, nil)
	hub := events.NewHub(64)

	s := New(Config{Listen: "127.0.0.1:0", Key: testKey}, stub, registry, hub, nil, log.WithComponent("api-test"))
	return s, stub, registry, hub
}

func doRequest(t *testing.T, s *Server, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	return rec
}

func TestHealthzNoAuth(t *testing.T) {
	s, _, _, _ := setupServer(t)

	rec := doRequest(t, s, "GET", "/healthz", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthzResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want ok", resp.Status)
	}
}

func TestAuthRequired(t *testing.T) {
	s, _, _, _ := setupServer(t)

	rec := doRequest(t, s, "GET", "/viewers", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no auth: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest("GET", "/viewers", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	rec2 := httptest.NewRecorder()
	s.routes().ServeHTTP(rec2, req)
	if rec2.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", rec2.Code)
	}
}

func TestAuthEmptyConfiguredKeyRejectsAll(t *testing.T) {
	s, _, _, _ := setupServer(t)
	s.config.Key = ""

	rec := doRequest(t, s, "GET", "/viewers", "", true)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 with empty configured key", rec.Code)
	}
}

func TestDispatchEndpoint(t *testing.T) {
	s, stub, _, _ := setupServer(t)

	rec := doRequest(t, s, "POST", "/dispatch/up",
		`{"dir":"/proj/src","options":"--provider=virtualbox","machine":"web"}`, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	if stub.lastReq.Action != "up" {
		t.Errorf("Action = %q, want up", stub.lastReq.Action)
	}
	if stub.lastReq.Dir != "/proj/src" {
		t.Errorf("Dir = %q", stub.lastReq.Dir)
	}
	if stub.lastReq.Machine != "web" {
		t.Errorf("Machine = %q", stub.lastReq.Machine)
	}
	if stub.lastReq.Prompt {
		t.Error("API dispatch must never prompt")
	}

	var resp DispatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.ID != "d-1" || resp.Viewer != "vagrant:up:d-1" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestDispatchRootNotFound(t *testing.T) {
	s, stub, _, _ := setupServer(t)
	stub.err = &project.RootNotFoundError{StartDir: "/tmp/none"}

	rec := doRequest(t, s, "POST", "/dispatch/up", `{"dir":"/tmp/none"}`, true)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/tmp/none") {
		t.Errorf("error body does not carry start dir: %s", rec.Body.String())
	}
}

func TestListMachinesEndpoint(t *testing.T) {
	s, _, _, _ := setupServer(t)

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, project.MarkerFile), []byte("# test\n"), 0644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".vagrant", "machines", "web"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	rec := doRequest(t, s, "GET", "/machines?dir="+root, "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp MachinesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Root != root || len(resp.Machines) != 1 || resp.Machines[0] != "web" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestListMachinesRequiresDir(t *testing.T) {
	s, _, _, _ := setupServer(t)

	rec := doRequest(t, s, "GET", "/machines", "", true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestViewerEndpoints(t *testing.T) {
	s, _, registry, _ := setupServer(t)

	v := registry.Open("vagrant:up:aaaa")
	v.Append("line one")
	v.Attach()
	registry.Open("vagrant:halt:bbbb")

	rec := doRequest(t, s, "GET", "/viewers", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list []ViewerSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("listed %d viewers, want 2", len(list))
	}

	rec = doRequest(t, s, "GET", "/viewers/vagrant:up:aaaa", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out ViewerOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !out.Attached || len(out.Lines) != 1 || out.Lines[0] != "line one" {
		t.Errorf("out = %+v", out)
	}

	// Idle close leaves the attached viewer alone.
	rec = doRequest(t, s, "DELETE", "/viewers?mode=idle", "", true)
	var closed CloseViewersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &closed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if closed.Closed != 1 {
		t.Errorf("Closed = %d, want 1", closed.Closed)
	}
	if _, ok := registry.Get("vagrant:up:aaaa"); !ok {
		t.Error("idle close removed an attached viewer")
	}
}

func TestGetViewerNotFound(t *testing.T) {
	s, _, _, _ := setupServer(t)

	rec := doRequest(t, s, "GET", "/viewers/vagrant:up:zzzz", "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDispatchesWithoutHistory(t *testing.T) {
	s, _, _, _ := setupServer(t)

	rec := doRequest(t, s, "GET", "/dispatches", "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when history is disabled", rec.Code)
	}
}

func TestEventsReplay(t *testing.T) {
	s, _, _, hub := setupServer(t)

	hub.Publish(events.TypeDispatchStarted, map[string]string{"id": "d-1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // replay runs before the live loop checks the context

	req := httptest.NewRequest("GET", "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "event: dispatch.started") {
		t.Errorf("SSE replay missing event: %s", body)
	}
	if !strings.Contains(body, "id: 1") {
		t.Errorf("SSE replay missing id: %s", body)
	}
}
