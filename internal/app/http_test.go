package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"facilityfix/api/internal/repo"
)

func newTestServer(t *testing.T) (*httptest.Server, *Service) {
	t.Helper()
	svc, _ := newTestService(t)
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)
	return server, svc
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
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
	defer resp.Body.Close()
	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func loginToken(t *testing.T, server *httptest.Server, email string) string {
	t.Helper()
	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/login", "", map[string]any{
		"email":    email,
		"password": "correct-horse",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d %v", email, resp.StatusCode, payload)
	}
	token, _ := payload["access_token"].(string)
	if token == "" {
		t.Fatalf("login %s: no access token in %v", email, payload)
	}
	return token
}

func TestHealthAndReady(t *testing.T) {
	server, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/health", "", nil)
	if resp.StatusCode != http.StatusOK || payload["ok"] != true {
		t.Fatalf("health: status %d %v", resp.StatusCode, payload)
	}

	resp, payload = doJSON(t, http.MethodGet, server.URL+"/api/ready", "", nil)
	if resp.StatusCode != http.StatusOK || payload["status"] != "ready" {
		t.Fatalf("ready: status %d %v", resp.StatusCode, payload)
	}
}

func TestAuthFlow(t *testing.T) {
	server, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/register", "", map[string]any{
		"email":      "maria@example.com",
		"password":   "correct-horse",
		"first_name": "Maria",
		"last_name":  "Santos",
		"role":       "tenant",
		"unit_id":    "unit_204",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d %v", resp.StatusCode, payload)
	}

	// Duplicate email conflicts.
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/auth/register", "", map[string]any{
		"email":    "maria@example.com",
		"password": "correct-horse",
		"role":     "tenant",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register: status %d, want 409", resp.StatusCode)
	}

	token := loginToken(t, server, "maria@example.com")

	resp, payload = doJSON(t, http.MethodGet, server.URL+"/api/auth/me", token, nil)
	if resp.StatusCode != http.StatusOK || payload["role"] != "tenant" {
		t.Fatalf("me: status %d %v", resp.StatusCode, payload)
	}

	resp, payload = doJSON(t, http.MethodPost, server.URL+"/api/auth/login", "", map[string]any{
		"email":    "maria@example.com",
		"password": "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized || payload["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("bad login: status %d %v", resp.StatusCode, payload)
	}
}

func TestRegisterAlwaysCreatesTenants(t *testing.T) {
	server, _ := newTestServer(t)

	// A role in the payload is ignored; self-registration cannot mint
	// privileged accounts.
	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/register", "", map[string]any{
		"email":      "sneaky@example.com",
		"password":   "correct-horse",
		"first_name": "Sneaky",
		"last_name":  "Pete",
		"role":       "admin",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d %v", resp.StatusCode, payload)
	}

	token := loginToken(t, server, "sneaky@example.com")
	resp, payload = doJSON(t, http.MethodGet, server.URL+"/api/auth/me", token, nil)
	if resp.StatusCode != http.StatusOK || payload["role"] != "tenant" {
		t.Fatalf("me: status %d %v, want role tenant", resp.StatusCode, payload)
	}

	resp, payload = doJSON(t, http.MethodGet, server.URL+"/api/concerns", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tenant list concerns: status %d %v", resp.StatusCode, payload)
	}
}

func TestRequiresSession(t *testing.T) {
	server, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/concerns", "", nil)
	if resp.StatusCode != http.StatusUnauthorized || payload["code"] != "UNAUTHORIZED" {
		t.Fatalf("no token: status %d %v", resp.StatusCode, payload)
	}

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/concerns", "not-a-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: status %d, want 401", resp.StatusCode)
	}
}

func TestConcernWorkflowOverHTTP(t *testing.T) {
	server, svc := newTestServer(t)

	registerSubject(t, svc, "admin", "admin@example.com")
	registerSubject(t, svc, "tenant", "tenant@example.com")

	tenantToken := loginToken(t, server, "tenant@example.com")
	adminToken := loginToken(t, server, "admin@example.com")

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/concerns", tenantToken, map[string]any{
		"title":       "Leaking kitchen faucet",
		"description": "Water drips constantly.",
		"location":    "Kitchen",
		"category":    "plumbing",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: status %d %v", resp.StatusCode, payload)
	}
	concern := payload["concern"].(map[string]any)
	concernID := concern["id"].(string)

	// Tenants may not evaluate.
	resp, payload = doJSON(t, http.MethodPost, server.URL+"/api/concerns/"+concernID+"/evaluate", tenantToken, map[string]any{
		"decision":        "approved",
		"resolution_type": "job_service",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("tenant evaluate: status %d %v", resp.StatusCode, payload)
	}

	resp, payload = doJSON(t, http.MethodPost, server.URL+"/api/concerns/"+concernID+"/evaluate", adminToken, map[string]any{
		"decision":        "approved",
		"resolution_type": "job_service",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("evaluate: status %d %v", resp.StatusCode, payload)
	}

	// A second evaluation conflicts.
	resp, payload = doJSON(t, http.MethodPost, server.URL+"/api/concerns/"+concernID+"/evaluate", adminToken, map[string]any{
		"decision": "rejected",
	})
	if resp.StatusCode != http.StatusConflict || payload["code"] != "INVALID_STATE" {
		t.Fatalf("re-evaluate: status %d %v", resp.StatusCode, payload)
	}

	resp, payload = doJSON(t, http.MethodGet, server.URL+"/api/concerns/"+concernID+"/history", tenantToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: status %d %v", resp.StatusCode, payload)
	}
	history := payload["history"].([]any)
	if len(history) != 2 {
		t.Errorf("history entries = %d, want 2", len(history))
	}
}

func TestStaffNotesRenderedOnWire(t *testing.T) {
	server, svc := newTestServer(t)
	ctx := context.Background()

	admin := registerSubject(t, svc, "admin", "admin@example.com")
	tenant := registerSubject(t, svc, "tenant", "tenant@example.com")
	staff := registerSubject(t, svc, "staff", "staff@example.com")

	concern := submitConcern(t, svc, tenant)
	approveConcern(t, svc, admin, concern.ID, repo.ResolutionJobService)
	job, err := svc.CreateJobService(ctx, admin, CreateJobServiceInput{
		ConcernSlipID: concern.ID,
		AssignedTo:    staff.ID,
	})
	if err != nil {
		t.Fatalf("CreateJobService: %v", err)
	}
	if _, err := svc.AddStaffNote(ctx, staff, job.ID, "Parts ordered."); err != nil {
		t.Fatalf("AddStaffNote: %v", err)
	}

	staffToken := loginToken(t, server, "staff@example.com")
	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/job-services/"+job.ID, staffToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get job: status %d %v", resp.StatusCode, payload)
	}
	notes := payload["job_service"].(map[string]any)["staff_notes"].([]any)
	if len(notes) != 1 {
		t.Fatalf("notes = %d, want 1", len(notes))
	}
	note := notes[0].(string)
	if !strings.HasPrefix(note, "[") || !strings.Contains(note, staff.DisplayName+": Parts ordered.") {
		t.Errorf("note rendering = %q", note)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	server, svc := newTestServer(t)
	registerSubject(t, svc, "tenant", "tenant@example.com")
	token := loginToken(t, server, "tenant@example.com")

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/nope", token, nil)
	if resp.StatusCode != http.StatusNotFound || payload["code"] != "NOT_FOUND" {
		t.Fatalf("unknown route: status %d %v", resp.StatusCode, payload)
	}
}
