package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := newTestService(t, 3, Options{})
	server := httptest.NewServer(NewHTTPServer(svc, nil, "*").Handler())
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	payload := decodeJSON(t, resp)
	if payload["ok"] != true {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestReadyEndpointWithoutArchive(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/ready")
	if err != nil {
		t.Fatalf("GET /api/ready: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 without archive, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSessionAnnotationRoundTripOverHTTP(t *testing.T) {
	server := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/sessions", `{"userId":"alice"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create session: expected 200, got %d", resp.StatusCode)
	}
	state := decodeJSON(t, resp)
	if state["userId"] != "alice" {
		t.Fatalf("unexpected session state: %v", state)
	}

	resp, err := http.Get(server.URL + "/api/users/alice/next-item")
	if err != nil {
		t.Fatalf("GET next-item: %v", err)
	}
	next := decodeJSON(t, resp)
	item, ok := next["item"].(map[string]any)
	if !ok {
		t.Fatalf("expected an item, got %v", next)
	}
	itemID, _ := item["id"].(string)
	if itemID == "" {
		t.Fatal("expected item id")
	}

	body := `{"itemId":"` + itemID + `","labels":[{"schema":"sentiment","name":"positive","value":"true"}]}`
	resp = postJSON(t, server.URL+"/api/users/alice/annotations", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit annotation: expected 200, got %d", resp.StatusCode)
	}
	result := decodeJSON(t, resp)
	if result["changed"] != true {
		t.Fatalf("expected changed=true, got %v", result)
	}

	resp, err = http.Get(server.URL + "/api/users/alice/state")
	if err != nil {
		t.Fatalf("GET state: %v", err)
	}
	state = decodeJSON(t, resp)
	if state["annotated"].(float64) != 1 {
		t.Fatalf("expected 1 annotated, got %v", state["annotated"])
	}
}

func TestSubmitAnnotationUnknownUserOverHTTP(t *testing.T) {
	server := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/users/ghost/annotations", `{"itemId":"i1"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	payload := decodeJSON(t, resp)
	if payload["code"] != "NOT_FOUND" {
		t.Fatalf("unexpected error payload: %v", payload)
	}
}

func TestAdvancePhaseOverHTTP(t *testing.T) {
	server := newTestServer(t)

	postJSON(t, server.URL+"/api/sessions", `{"userId":"alice"}`).Body.Close()

	resp := postJSON(t, server.URL+"/api/users/alice/advance", ``)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	payload := decodeJSON(t, resp)
	if payload["phase"] != "annotation" {
		t.Fatalf("expected annotation phase, got %v", payload)
	}
}

func TestAssistEndpointOverHTTP(t *testing.T) {
	server := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/sessions", `{"userId": "alice"}`)
	resp.Body.Close()

	resp = postJSON(t, server.URL+"/api/users/alice/assist",
		`{"itemId": "i1", "request": "explain this", "response": "an explanation"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	payload := decodeJSON(t, resp)
	if payload["ok"] != true {
		t.Fatalf("unexpected payload: %v", payload)
	}

	resp = postJSON(t, server.URL+"/api/users/alice/assist", `{"itemId": "i1"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for missing request, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAuditEndpointsUnavailableWithoutArchive(t *testing.T) {
	server := newTestServer(t)

	for _, path := range []string{"/api/audit/summary", "/api/audit/items", "/api/audit/events"} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("GET %s: expected 503 without archive, got %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestSearchRejectsNegativeOffset(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/search?q=text&offset=-1")
	if err != nil {
		t.Fatalf("GET /api/search: %v", err)
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for negative offset, got %d", resp.StatusCode)
	}
	payload := decodeJSON(t, resp)
	if payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
