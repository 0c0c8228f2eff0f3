package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestServer returns a server that records the last request body and
// responds with the given status and JSON payload.
func newTestServer(t *testing.T, status int, payload string, lastBody *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer test-token")
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", got)
		}
		raw, _ := io.ReadAll(r.Body)
		if lastBody != nil {
			*lastBody = string(raw)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	}))
}

func TestExecuteBatch_Success(t *testing.T) {
	var body string
	srv := newTestServer(t, http.StatusOK,
		`[{"results":{"columns":[],"rows":[]}},{"results":{"columns":[],"rows":[]}}]`, &body)
	defer srv.Close()

	e := New()
	err := e.ExecuteBatch(context.Background(), srv.URL, "test-token",
		[]string{"INSERT INTO notes (id) VALUES ('a')", "INSERT INTO notes (id) VALUES ('b')"})
	if err != nil {
		t.Fatalf("ExecuteBatch() failed: %v", err)
	}

	var req struct {
		Statements []string `json:"statements"`
	}
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("request body not JSON: %v", err)
	}
	if len(req.Statements) != 2 {
		t.Errorf("sent %d statements, want 2", len(req.Statements))
	}
}

func TestExecuteBatch_Empty(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	if err := New().ExecuteBatch(context.Background(), srv.URL, "test-token", nil); err != nil {
		t.Fatalf("ExecuteBatch() with no statements failed: %v", err)
	}
	if called {
		t.Error("empty batch should not issue a request")
	}
}

func TestExecuteBatch_StatementError(t *testing.T) {
	srv := newTestServer(t, http.StatusOK,
		`[{"results":{"columns":[],"rows":[]}},{"error":{"message":"no such table: notes"}}]`, nil)
	defer srv.Close()

	err := New().ExecuteBatch(context.Background(), srv.URL, "test-token", []string{"a", "b"})
	var stmtErr *StatementError
	if !errors.As(err, &stmtErr) {
		t.Fatalf("ExecuteBatch() error = %v, want *StatementError", err)
	}
	if stmtErr.Index != 1 {
		t.Errorf("Index = %d, want 1", stmtErr.Index)
	}
	if stmtErr.Message != "no such table: notes" {
		t.Errorf("Message = %q", stmtErr.Message)
	}
}

func TestExecuteBatch_SuccessShapeTakesPriority(t *testing.T) {
	// An entry carrying both shapes must be treated as a success.
	srv := newTestServer(t, http.StatusOK,
		`[{"results":{"columns":[],"rows":[]},"error":{"message":"ignored"}}]`, nil)
	defer srv.Close()

	if err := New().ExecuteBatch(context.Background(), srv.URL, "test-token", []string{"a"}); err != nil {
		t.Fatalf("ExecuteBatch() failed: %v", err)
	}
}

func TestExecuteBatch_TransportFailure(t *testing.T) {
	srv := newTestServer(t, http.StatusInternalServerError, `oops`, nil)
	defer srv.Close()

	err := New().ExecuteBatch(context.Background(), srv.URL, "test-token", []string{"a"})
	if err == nil {
		t.Fatal("ExecuteBatch() succeeded on HTTP 500")
	}
	var stmtErr *StatementError
	if errors.As(err, &stmtErr) {
		t.Errorf("HTTP-level failure should not be a *StatementError: %v", err)
	}
}

func TestAuthError(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := newTestServer(t, status, ``, nil)
		err := New().Validate(context.Background(), srv.URL, "test-token")
		srv.Close()

		var authErr *AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("Validate() error = %v, want *AuthError", err)
		}
		if authErr.Status != status {
			t.Errorf("Status = %d, want %d", authErr.Status, status)
		}
	}
}

func TestFetchRows_ScalarConversion(t *testing.T) {
	srv := newTestServer(t, http.StatusOK,
		`[{"results":{"columns":["a","b","c","d","e"],"rows":[[null,"text",1700000000000,true,{"k":1}]]}}]`, nil)
	defer srv.Close()

	rows, err := New().FetchRows(context.Background(), srv.URL, "test-token", "SELECT * FROM t")
	if err != nil {
		t.Fatalf("FetchRows() failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row[0].Valid {
		t.Error("null cell should be invalid")
	}
	if row[1].String != "text" {
		t.Errorf("string cell = %q", row[1].String)
	}
	if row[2].String != "1700000000000" {
		t.Errorf("number cell = %q, want literal text", row[2].String)
	}
	if row[3].String != "true" {
		t.Errorf("bool cell = %q", row[3].String)
	}
	if row[4].String != `{"k":1}` {
		t.Errorf("object cell = %q, want raw JSON fallback", row[4].String)
	}
}

func TestFetchRows_StatementError(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `[{"error":{"message":"syntax error"}}]`, nil)
	defer srv.Close()

	_, err := New().FetchRows(context.Background(), srv.URL, "test-token", "SELEC")
	var stmtErr *StatementError
	if !errors.As(err, &stmtErr) {
		t.Fatalf("FetchRows() error = %v, want *StatementError", err)
	}
}

func TestFetchRows_MalformedResponse(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `not json`, nil)
	defer srv.Close()

	_, err := New().FetchRows(context.Background(), srv.URL, "test-token", "SELECT 1")
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("FetchRows() error = %v, want *ProtocolError", err)
	}
}

func TestHTTPURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"libsql://notes-acme.turso.io", "https://notes-acme.turso.io"},
		{"https://notes-acme.turso.io", "https://notes-acme.turso.io"},
		{"http://localhost:8080", "http://localhost:8080"},
	}
	for _, tt := range tests {
		if got := HTTPURL(tt.in); got != tt.want {
			t.Errorf("HTTPURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
