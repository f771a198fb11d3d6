package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ragportal/internal/app"
	"ragportal/internal/auth"
	"ragportal/internal/docstore"
	"ragportal/internal/queue"
	"ragportal/internal/status"
	"ragportal/internal/vectorindex"
)

type hashEmbedder struct{}

func (hashEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 16)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%16]++
	}
	vec[0] += 0.01
	return vec, nil
}

type staticGenerator struct{}

func (staticGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "a grounded answer", nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	docs, err := docstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new docstore: %v", err)
	}
	store, err := vectorindex.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new vector store: %v", err)
	}
	manager := vectorindex.NewManager(store, hashEmbedder{}, 4, 2)
	scheduler := queue.NewLocal(16)

	application, err := app.New(
		app.Config{ChunkSize: 200, ChunkOverlap: 40, TopK: 4},
		docs, status.NewMemory(), scheduler, manager, staticGenerator{},
		slog.New(slog.DiscardHandler),
	)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	scheduler.Start(ctx, 1, application.ProcessJob)

	users, err := auth.NewUserStore(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("new user store: %v", err)
	}
	tokens, err := auth.NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new token issuer: %v", err)
	}

	srv := New(Config{App: application, Users: users, Tokens: tokens, Logger: slog.New(slog.DiscardHandler)})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, token string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func registerAndLogin(t *testing.T, ts *httptest.Server, email string) string {
	t.Helper()
	resp := postJSON(t, ts.URL+"/auth/register", "", map[string]string{"email": email, "password": "long enough pw"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/auth/login", "", map[string]string{"email": email, "password": "long enough pw"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	decodeBody(t, resp, &body)
	if body.AccessToken == "" {
		t.Fatalf("expected access token")
	}
	return body.AccessToken
}

func uploadFile(t *testing.T, ts *httptest.Server, token, filename, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/upload", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do upload: %v", err)
	}
	return resp
}

func waitForState(t *testing.T, ts *httptest.Server, token, filename, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last string
	for time.Now().Before(deadline) {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/index-status/"+filename, nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("get status: %v", err)
		}
		var body struct {
			State  string `json:"state"`
			Detail string `json:"detail"`
		}
		decodeBody(t, resp, &body)
		last = fmt.Sprintf("%s (%s)", body.State, body.Detail)
		if body.State == want {
			return
		}
		if body.State == "error" && want != "error" {
			t.Fatalf("indexing failed: %s", last)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %q, last %s", want, last)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestUploadStatusChatFlow(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "alice@example.com")

	content := "The library opens at nine in the morning and closes at six in the evening."
	resp := uploadFile(t, ts, token, "hours.txt", content)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	var uploadBody struct {
		State string `json:"state"`
	}
	decodeBody(t, resp, &uploadBody)
	if uploadBody.State != "queued" {
		t.Fatalf("upload state = %q, want queued", uploadBody.State)
	}

	waitForState(t, ts, token, "hours.txt", "done")

	resp = postJSON(t, ts.URL+"/chat", token, map[string]string{"question": "when does the library open?"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d", resp.StatusCode)
	}
	var chatBody struct {
		Answer  string `json:"answer"`
		Sources []struct {
			Filename string `json:"filename"`
			Page     int    `json:"page"`
		} `json:"sources"`
	}
	decodeBody(t, resp, &chatBody)
	if chatBody.Answer == "" {
		t.Fatalf("expected non-empty answer")
	}
	if len(chatBody.Sources) == 0 || chatBody.Sources[0].Filename != "hours.txt" {
		t.Fatalf("expected hours.txt in sources, got %+v", chatBody.Sources)
	}
}

func TestEndpointsRequireAuth(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/upload", "/chat"} {
		resp := postJSON(t, ts.URL+path, "", map[string]string{})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s status = %d, want 401", path, resp.StatusCode)
		}
		resp.Body.Close()
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/index-status/a.pdf", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", resp.StatusCode)
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "alice@example.com")

	resp := uploadFile(t, ts, token, "image.png", "0123456789abcdef")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestIndexStatusUnknownFile(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "alice@example.com")

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/index-status/never.pdf", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestChatRejectsEmptyQuestion(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "alice@example.com")

	resp := postJSON(t, ts.URL+"/chat", token, map[string]string{"question": "  "})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts := newTestServer(t)
	registerAndLogin(t, ts, "alice@example.com")

	resp := postJSON(t, ts.URL+"/auth/login", "", map[string]string{"email": "alice@example.com", "password": "wrong"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}
