// Package remote executes SQL statement batches against the cloud
// database over HTTP.
//
// The wire contract is one POST per batch with a bearer token and the
// body {"statements": [...]}. The response is a JSON array with one
// entry per statement, in request order, where each entry is either a
// result set ({"results": {"columns": [...], "rows": [[...]]}}) or an
// error ({"error": {"message": "..."}}).
//
// The executor holds no connection state between calls; each call is a
// single transient HTTP request. The HTTP client timeout is the only
// timeout boundary for remote operations.
package remote

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// maxResponseBytes bounds how much of a remote response body is read.
const maxResponseBytes = 32 << 20

// cloudScheme is the URL scheme used by cloud database credentials.
// It is rewritten to https before the request goes out.
const cloudScheme = "libsql://"

// httpDoer is the subset of http.Client the executor needs.
// Tests substitute their own implementation.
type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Executor sends SQL statement batches to a cloud endpoint.
type Executor struct {
	httpClient httpDoer
	logger     *log.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient overrides the default HTTP client used for requests.
func WithHTTPClient(h httpDoer) Option {
	return func(e *Executor) {
		if h != nil {
			e.httpClient = h
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Executor. The default HTTP client applies a 30 second
// timeout to each request.
func New(opts ...Option) *Executor {
	e := &Executor{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.New(os.Stderr, "[remote] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AuthError reports that the remote rejected the bearer token.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("remote rejected credentials (HTTP %d)", e.Status)
}

// ProtocolError reports a remote response that could not be parsed.
type ProtocolError struct {
	Cause error
	Body  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed remote response: %v (body: %s)", e.Cause, e.Body)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// StatementError reports a statement-level failure inside an otherwise
// successful HTTP response. Statements earlier in the same batch may
// already have taken effect remotely.
type StatementError struct {
	Index   int
	Message string
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("batch statement %d failed: %s", e.Index, e.Message)
}

// resultSet is the success shape of a per-statement response entry.
type resultSet struct {
	Columns []string            `json:"columns"`
	Rows    [][]json.RawMessage `json:"rows"`
}

// statementError is the error shape of a per-statement response entry.
type statementError struct {
	Message string `json:"message"`
}

// batchItem is one entry of the response array. The wire format has no
// discriminant tag, so both shapes decode side by side and the success
// shape takes priority when interpreting the entry.
type batchItem struct {
	Results *resultSet      `json:"results"`
	Error   *statementError `json:"error"`
}

// ExecuteBatch sends the statements as one batch and fails on the
// first statement-level error. A batch with no statements is a no-op.
func (e *Executor) ExecuteBatch(ctx context.Context, endpoint, token string, statements []string) error {
	if len(statements) == 0 {
		return nil
	}
	items, err := e.post(ctx, endpoint, token, statements)
	if err != nil {
		return err
	}
	for i, item := range items {
		// Success shape first: an entry carrying results is a success
		// even if an error field is also present.
		if item.Results != nil {
			continue
		}
		if item.Error != nil {
			return &StatementError{Index: i, Message: item.Error.Message}
		}
		return &ProtocolError{Cause: fmt.Errorf("entry %d has neither results nor error", i)}
	}
	return nil
}

// FetchRows executes a single read statement and returns its rows as
// nullable strings, positionally aligned with the statement's columns.
func (e *Executor) FetchRows(ctx context.Context, endpoint, token, query string) ([][]sql.NullString, error) {
	items, err := e.post(ctx, endpoint, token, []string{query})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	first := items[0]
	if first.Results != nil {
		rows := make([][]sql.NullString, 0, len(first.Results.Rows))
		for _, raw := range first.Results.Rows {
			row := make([]sql.NullString, len(raw))
			for i, cell := range raw {
				row[i] = decodeCell(cell)
			}
			rows = append(rows, row)
		}
		return rows, nil
	}
	if first.Error != nil {
		return nil, &StatementError{Index: 0, Message: first.Error.Message}
	}
	return nil, &ProtocolError{Cause: fmt.Errorf("entry has neither results nor error")}
}

// Validate sends a trivial read statement to confirm the endpoint is
// reachable and the token is accepted.
func (e *Executor) Validate(ctx context.Context, endpoint, token string) error {
	if _, err := e.FetchRows(ctx, endpoint, token, "SELECT 1"); err != nil {
		return err
	}
	return nil
}

// post issues one statement batch and parses the response array.
func (e *Executor) post(ctx context.Context, endpoint, token string, statements []string) ([]batchItem, error) {
	body, err := json.Marshal(map[string][]string{"statements": statements})
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, HTTPURL(endpoint), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{Status: resp.StatusCode}
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read remote response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("remote returned HTTP %d: %s", resp.StatusCode, snippet(raw))
	}

	var items []batchItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &ProtocolError{Cause: err, Body: snippet(raw)}
	}
	return items, nil
}

// HTTPURL rewrites a cloud-scheme URL to its HTTPS equivalent.
// URLs already carrying an HTTP scheme pass through unchanged.
func HTTPURL(endpoint string) string {
	if strings.HasPrefix(endpoint, cloudScheme) {
		return "https://" + strings.TrimPrefix(endpoint, cloudScheme)
	}
	return endpoint
}

// decodeCell converts one remote JSON scalar into the nullable-string
// row representation. Numbers keep their literal text, booleans render
// as true/false, and non-primitive values fall back to their raw JSON.
func decodeCell(raw json.RawMessage) sql.NullString {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return sql.NullString{}
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return sql.NullString{String: s, Valid: true}
		}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err == nil {
			if b {
				return sql.NullString{String: "true", Valid: true}
			}
			return sql.NullString{String: "false", Valid: true}
		}
	}
	return sql.NullString{String: string(trimmed), Valid: true}
}

// snippet truncates a response body for inclusion in error messages.
func snippet(raw []byte) string {
	const max = 512
	s := strings.TrimSpace(string(raw))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
