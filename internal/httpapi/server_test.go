package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatd/internal/broker"
	"chatd/pkg/types"
)

// fakeService is a scripted Service for handler tests.
type fakeService struct {
	resp     broker.Response
	err      error
	ready    bool
	state    broker.CircuitState
	resets   int
	lastMsg  string
	lastSess string
	lastTop  string
}

func (f *fakeService) Chat(_ context.Context, message, resumeSessionID, topic string) (broker.Response, error) {
	f.lastMsg, f.lastSess, f.lastTop = message, resumeSessionID, topic
	return f.resp, f.err
}

func (f *fakeService) ResetSession()                     { f.resets++ }
func (f *fakeService) Status() types.StatusResponse      { return types.StatusResponse{CircuitState: string(f.state)} }
func (f *fakeService) CircuitState() broker.CircuitState { return f.state }
func (f *fakeService) Ready() bool                       { return f.ready }

func postChat(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChatHandlerSuccess(t *testing.T) {
	svc := &fakeService{resp: broker.Response{Text: "hello", SessionID: "sess-1"}, ready: true, state: broker.CircuitClosed}
	h := NewMux(svc)

	rec := postChat(t, h, `{"message":"hi","session_id":"sess-0","topic":"journal"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp types.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Text != "hello" || resp.SessionID != "sess-1" || resp.IsError {
		t.Fatalf("resp = %+v", resp)
	}
	if svc.lastMsg != "hi" || svc.lastSess != "sess-0" || svc.lastTop != "journal" {
		t.Fatalf("service got (%q, %q, %q)", svc.lastMsg, svc.lastSess, svc.lastTop)
	}
}

func TestChatHandlerDegradedIsStill200(t *testing.T) {
	svc := &fakeService{resp: broker.Response{Text: "try later", IsError: true}, state: broker.CircuitOpen}
	h := NewMux(svc)

	rec := postChat(t, h, `{"message":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("degraded response should be 200, got %d", rec.Code)
	}
	var resp types.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.IsError {
		t.Fatal("is_error should be set on degraded response")
	}
}

func TestChatHandlerValidation(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc)

	rec := postChat(t, h, `{"message":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank message: status = %d, want 400", rec.Code)
	}

	rec = postChat(t, h, `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad JSON: status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi"}`))
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("missing content type: status = %d, want 415", rec2.Code)
	}
}

func TestResetHandler(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/session/reset", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.resets != 1 {
		t.Fatalf("resets = %d, want 1", svc.resets)
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &fakeService{state: broker.CircuitHalfOpen}
	h := NewMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var st types.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.CircuitState != "half_open" {
		t.Fatalf("circuit_state = %q", st.CircuitState)
	}
}

func TestHealthAndReady(t *testing.T) {
	svc := &fakeService{ready: true}
	h := NewMux(svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}

	svc.ready = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz not ready = %d", rec.Code)
	}
}

func TestMetricsEndpointServes(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	// The in-flight gauge is incremented before the handler runs, so it is
	// visible in the scrape triggered by this very request.
	if !strings.Contains(rec.Body.String(), "chatd_http_inflight_requests") {
		t.Fatal("metrics output missing chatd_http_inflight_requests")
	}
}
