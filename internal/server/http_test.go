package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/tidemark/scuttlestore/internal/events"
	"github.com/tidemark/scuttlestore/internal/scuttledb"
)

const testFeed = "@U5GvOKP/YUza9k53DSXxT0mk3PIrnyAmessvNfZl5E0=.ed25519"

func testMessage(seq int64) []byte {
	data, err := json.Marshal(map[string]any{
		"key": fmt.Sprintf("%%msg-%d.sha256", seq),
		"value": map[string]any{
			"author":   testFeed,
			"sequence": seq,
			"content":  map[string]any{"type": "post"},
		},
	})
	if err != nil {
		panic(err)
	}
	return data
}

func newTestServer(t *testing.T) (*ScuttleServer, http.Handler) {
	t.Helper()
	dir := t.TempDir()
	db, err := scuttledb.Open(filepath.Join(dir, "index.sqlite3"), filepath.Join(dir, "log.offset"), nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv := NewScuttleServer(db, &events.NoopPublisher{})
	return srv, srv.NewHTTPHandler("")
}

func appendMessages(t *testing.T, handler http.Handler, msgs ...json.RawMessage) []uint64 {
	t.Helper()
	body, err := json.Marshal(map[string]any{"messages": msgs})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("append status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Seqs []uint64 `json:"seqs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode append response: %v", err)
	}
	return resp.Seqs
}

func TestHealth(t *testing.T) {
	_, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAppendAndGetMessage(t *testing.T) {
	_, handler := newTestServer(t)

	msg := testMessage(1)
	seqs := appendMessages(t, handler, msg)
	if len(seqs) != 1 {
		t.Fatalf("got %d seqs, want 1", len(seqs))
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/messages/"+url.PathEscape("%msg-1.sha256"), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !bytes.Equal(rec.Body.Bytes(), msg) {
		t.Errorf("body = %s, want %s", rec.Body.String(), msg)
	}
}

func TestAppendRejectsEmptyBatch(t *testing.T) {
	_, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader([]byte(`{"messages":[]}`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetMessageNotFound(t *testing.T) {
	_, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/messages/"+url.PathEscape("%missing.sha256"), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetMessageRejectsBadKey(t *testing.T) {
	_, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/messages/not-a-key", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func feedPath(suffix string) string {
	return "/v1/feeds/" + url.PathEscape(testFeed) + suffix
}

func TestFeedMessages(t *testing.T) {
	_, handler := newTestServer(t)
	appendMessages(t, handler, testMessage(1), testMessage(2), testMessage(3))

	// Full messages.
	req := httptest.NewRequest(http.MethodGet, feedPath("/messages?after=1"), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var full struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &full); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(full.Messages) != 2 {
		t.Errorf("got %d messages, want 2", len(full.Messages))
	}

	// Keys only.
	req = httptest.NewRequest(http.MethodGet, feedPath("/messages?values=0"), nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("keys-only status = %d", rec.Code)
	}
	var keysResp struct {
		Keys []string `json:"keys"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &keysResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(keysResp.Keys) != 3 || keysResp.Keys[0] != "%msg-1.sha256" {
		t.Errorf("keys = %v", keysResp.Keys)
	}

	// Limit.
	req = httptest.NewRequest(http.MethodGet, feedPath("/messages?limit=1"), nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &full); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(full.Messages) != 1 {
		t.Errorf("got %d messages with limit=1", len(full.Messages))
	}

	// Neither keys nor values is an input error.
	req = httptest.NewRequest(http.MethodGet, feedPath("/messages?keys=0&values=0"), nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("keys=0&values=0 status = %d, want 400", rec.Code)
	}
}

func TestFeedMessageBySeq(t *testing.T) {
	_, handler := newTestServer(t)
	appendMessages(t, handler, testMessage(1), testMessage(2))

	req := httptest.NewRequest(http.MethodGet, feedPath("/messages/2"), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !bytes.Equal(rec.Body.Bytes(), testMessage(2)) {
		t.Errorf("body = %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, feedPath("/messages/99"), nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("absent seq status = %d, want 404", rec.Code)
	}
}

func TestFeedLatest(t *testing.T) {
	_, handler := newTestServer(t)
	appendMessages(t, handler, testMessage(1), testMessage(2))

	req := httptest.NewRequest(http.MethodGet, feedPath("/latest"), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Feed     string `json:"feed"`
		Sequence *int64 `json:"sequence"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Sequence == nil || *resp.Sequence != 2 {
		t.Errorf("sequence = %v, want 2", resp.Sequence)
	}

	// Unknown feed reports a null sequence.
	req = httptest.NewRequest(http.MethodGet, "/v1/feeds/"+url.PathEscape("@unknown.ed25519")+"/latest", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Sequence != nil {
		t.Errorf("unknown feed sequence = %v, want null", resp.Sequence)
	}
}

func TestRebuild(t *testing.T) {
	_, handler := newTestServer(t)
	appendMessages(t, handler, testMessage(1), testMessage(2))

	req := httptest.NewRequest(http.MethodPost, "/v1/indexes/rebuild", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("rebuild status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Index still answers after the rebuild.
	req = httptest.NewRequest(http.MethodGet, feedPath("/latest"), nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var resp struct {
		Sequence *int64 `json:"sequence"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Sequence == nil || *resp.Sequence != 2 {
		t.Errorf("sequence after rebuild = %v, want 2", resp.Sequence)
	}
}

func TestStatus(t *testing.T) {
	_, handler := newTestServer(t)
	appendMessages(t, handler, testMessage(1))

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		LogBytes  int64  `json:"log_bytes"`
		LatestSeq *int64 `json:"latest_seq"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.LogBytes == 0 {
		t.Error("log_bytes = 0, want > 0")
	}
	if resp.LatestSeq == nil || *resp.LatestSeq != 0 {
		t.Errorf("latest_seq = %v, want 0", resp.LatestSeq)
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.NewHTTPHandler("secret")

	// Missing token.
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}

	// Wrong token.
	req = httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", rec.Code)
	}

	// Correct token.
	req = httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", rec.Code)
	}

	// Health is exempt.
	req = httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}
