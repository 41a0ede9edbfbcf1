package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dgnsrekt/ttsclient/internal/config"
	"github.com/dgnsrekt/ttsclient/internal/logging"
	"github.com/dgnsrekt/ttsclient/internal/queue"
	"github.com/dgnsrekt/ttsclient/internal/synth"
	"github.com/dgnsrekt/ttsclient/internal/tts"
)

// fakeSpeaker records calls and backs Pending with a real queue.
type fakeSpeaker struct {
	mu       sync.Mutex
	q        *queue.Queue
	voice    tts.VoiceSettings
	genders  []string
	inFlight bool
}

func newFakeSpeaker(capacity int) *fakeSpeaker {
	return &fakeSpeaker{
		q:     queue.NewQueue(capacity, logging.New("error", "text")),
		voice: tts.VoiceSettings{LanguageCode: "en-US", VoiceName: "en-US-Standard-A", SSMLGender: "MALE"},
	}
}

func (f *fakeSpeaker) Enqueue(text, gender string, cb queue.Callback) (*queue.Request, error) {
	f.mu.Lock()
	f.genders = append(f.genders, gender)
	f.mu.Unlock()
	req := queue.NewRequest(text, gender, cb)
	if err := f.q.Push(req); err != nil {
		return nil, err
	}
	return req, nil
}

func (f *fakeSpeaker) SetLanguage(preset string) error {
	v, ok := synth.LanguagePreset(preset)
	if !ok {
		return synth.ErrUnknownLanguage
	}
	f.mu.Lock()
	f.voice = v
	f.mu.Unlock()
	return nil
}

func (f *fakeSpeaker) Voice() tts.VoiceSettings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voice
}

func (f *fakeSpeaker) Pending() int   { return f.q.Len() }
func (f *fakeSpeaker) InFlight() bool { return f.inFlight }
func (f *fakeSpeaker) Clear() int     { return f.q.Clear() }

func testConfig() *config.Config {
	return &config.Config{
		Behavior: config.BehaviorConfig{MaxTextLength: 100},
		HTTP: config.HTTPConfig{
			Enabled:     true,
			Port:        8080,
			BearerToken: "test-token",
			CORSOrigins: []string{"*"},
		},
	}
}

func testServer(cfg *config.Config, sp Speaker) *Server {
	logger := logging.New("error", "text") // quiet logger for tests
	return New(cfg, logger, sp, nil)
}

func do(t *testing.T, h http.Handler, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer test-token")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv := testServer(testConfig(), newFakeSpeaker(0))

	w := do(t, srv.Handler(), http.MethodGet, "/v1/healthz", "", false)
	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", resp.Status)
	}
}

func TestSpeakSuccess(t *testing.T) {
	sp := newFakeSpeaker(0)
	srv := testServer(testConfig(), sp)

	w := do(t, srv.Handler(), http.MethodPost, "/v1/speak", `{"text":"Hello, world!","gender":"FEMALE"}`, true)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, w.Code, w.Body.String())
	}

	var resp SpeakResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.RequestID == "" {
		t.Error("expected non-empty request_id")
	}
	if sp.Pending() != 1 {
		t.Errorf("expected 1 pending request, got %d", sp.Pending())
	}
	if len(sp.genders) != 1 || sp.genders[0] != "FEMALE" {
		t.Errorf("expected gender FEMALE forwarded, got %v", sp.genders)
	}
}

func TestSpeakEmptyTextAccepted(t *testing.T) {
	sp := newFakeSpeaker(0)
	srv := testServer(testConfig(), sp)

	w := do(t, srv.Handler(), http.MethodPost, "/v1/speak", `{"text":""}`, true)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, w.Code)
	}

	req := sp.q.Pop()
	if req == nil || req.Text != queue.PlaceholderText {
		t.Errorf("expected placeholder text to be queued, got %+v", req)
	}
}

func TestSpeakBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"too long", `{"text":"` + strings.Repeat("a", 101) + `"}`},
		{"bad gender", `{"text":"hi","gender":"ROBOT"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := newFakeSpeaker(0)
			srv := testServer(testConfig(), sp)

			w := do(t, srv.Handler(), http.MethodPost, "/v1/speak", tt.body, true)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
			}

			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if resp.Error == "" {
				t.Error("expected error message")
			}
			if sp.Pending() != 0 {
				t.Errorf("expected nothing queued, got %d", sp.Pending())
			}
		})
	}
}

func TestSpeakQueueFull(t *testing.T) {
	sp := newFakeSpeaker(1)
	srv := testServer(testConfig(), sp)

	if w := do(t, srv.Handler(), http.MethodPost, "/v1/speak", `{"text":"one"}`, true); w.Code != http.StatusAccepted {
		t.Fatalf("first request: expected %d, got %d", http.StatusAccepted, w.Code)
	}

	w := do(t, srv.Handler(), http.MethodPost, "/v1/speak", `{"text":"two"}`, true)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}

func TestSpeakQueueClosed(t *testing.T) {
	sp := newFakeSpeaker(0)
	sp.q.Close()
	srv := testServer(testConfig(), sp)

	w := do(t, srv.Handler(), http.MethodPost, "/v1/speak", `{"text":"late"}`, true)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}

func TestSpeakWrongMethod(t *testing.T) {
	srv := testServer(testConfig(), newFakeSpeaker(0))

	w := do(t, srv.Handler(), http.MethodGet, "/v1/speak", "", true)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, w.Code)
	}
}

func TestVoice(t *testing.T) {
	sp := newFakeSpeaker(0)
	srv := testServer(testConfig(), sp)

	w := do(t, srv.Handler(), http.MethodPut, "/v1/voice", `{"language":"de"}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp VoiceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.LanguageCode != "de-DE" || resp.SSMLGender != "FEMALE" {
		t.Errorf("unexpected voice: %+v", resp)
	}

	w = do(t, srv.Handler(), http.MethodPut, "/v1/voice", `{"language":"klingon"}`, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if sp.Voice().LanguageCode != "de-DE" {
		t.Error("unknown language should leave the voice unchanged")
	}
}

func TestStatusAndClear(t *testing.T) {
	sp := newFakeSpeaker(0)
	srv := testServer(testConfig(), sp)

	for i := 0; i < 3; i++ {
		do(t, srv.Handler(), http.MethodPost, "/v1/speak", `{"text":"x"}`, true)
	}

	w := do(t, srv.Handler(), http.MethodGet, "/v1/status", "", false)
	var status StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to unmarshal status: %v", err)
	}
	if status.Pending != 3 {
		t.Errorf("expected 3 pending, got %d", status.Pending)
	}
	if status.LanguageCode != "en-US" {
		t.Errorf("expected en-US, got %q", status.LanguageCode)
	}

	w = do(t, srv.Handler(), http.MethodDelete, "/v1/queue", "", true)
	var cleared ClearResponse
	if err := json.Unmarshal(w.Body.Bytes(), &cleared); err != nil {
		t.Fatalf("failed to unmarshal clear: %v", err)
	}
	if cleared.Dropped != 3 {
		t.Errorf("expected 3 dropped, got %d", cleared.Dropped)
	}
	if sp.Pending() != 0 {
		t.Errorf("expected empty queue, got %d", sp.Pending())
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ttsclient_requests_enqueued_total 1\n"))
	})
	srv := New(testConfig(), logging.New("error", "text"), newFakeSpeaker(0), metrics)

	w := do(t, srv.Handler(), http.MethodGet, "/metrics", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if !strings.Contains(w.Body.String(), "ttsclient_requests_enqueued") {
		t.Errorf("unexpected metrics body: %q", w.Body.String())
	}

	srv = testServer(testConfig(), newFakeSpeaker(0))
	w = do(t, srv.Handler(), http.MethodGet, "/metrics", "", false)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without metrics handler, got %d", w.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := testServer(testConfig(), newFakeSpeaker(0))

	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected Access-Control-Allow-Origin '*', got %q", got)
	}
}
