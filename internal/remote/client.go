// Package remote talks to the hosted backend: a PostgREST-style table API,
// an auth endpoint that reports the signed-in identity, and a blob store.
//
// [Client] is the thin HTTP layer (tables, identity, storage). [Adapter]
// sits on top and exposes the domain operations the sync package consumes,
// translating snake_case rows into [model] values with explicit conversion
// functions. Reads are retried with [Retry]; writes are attempted once.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/njoerd114/quoteshelf/internal/model"
)

// DefaultTimeout bounds every HTTP request when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

const (
	restPrefix    = "/rest/v1/"
	authUserPath  = "/auth/v1/user"
	storagePrefix = "/storage/v1/object/"

	headerRequestID = "X-Request-Id"
)

// Row is a single table row as decoded from JSON. Numbers decode as
// [json.Number].
type Row = map[string]any

// Filter is an equality predicate on a column, rendered as col=eq.value.
type Filter struct {
	Column string
	Value  string
}

// Eq returns an equality filter.
func Eq(column, value string) Filter {
	return Filter{Column: column, Value: value}
}

// WriteOption tunes Insert and Update.
type WriteOption func(*writeOptions)

type writeOptions struct {
	returning bool
}

// Returning asks the server to send back the written rows.
func Returning() WriteOption {
	return func(o *writeOptions) { o.returning = true }
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("remote returned %d (%s): %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("remote returned %d: %s", e.Status, msg)
}

// Options configures a [Client].
type Options struct {
	BaseURL string
	APIKey  string
	// AccessToken is the signed-in user's JWT. Empty means anonymous.
	AccessToken string
	// UserID, when set, is used as the identity without calling the auth
	// endpoint.
	UserID  string
	Timeout time.Duration
	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client is an HTTP client for the backend. It is safe for concurrent use.
type Client struct {
	base   *url.URL
	apiKey string
	token  string
	userID string
	hc     *http.Client
	logger *slog.Logger

	mu   sync.Mutex
	user *model.User
}

// NewClient validates opts and returns a Client.
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("remote base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing remote base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote base URL %q must be http or https", opts.BaseURL)
	}
	if opts.APIKey == "" {
		return nil, errors.New("remote API key is required")
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		base:   base,
		apiKey: opts.APIKey,
		token:  opts.AccessToken,
		userID: opts.UserID,
		hc:     hc,
		logger: logger,
	}, nil
}

// Select returns all rows of table matching filters. Transient failures are
// retried.
func (c *Client) Select(ctx context.Context, table string, filters ...Filter) ([]Row, error) {
	q := filterQuery(filters)
	q.Set("select", "*")

	var rows []Row
	err := Retry(ctx, defaultMaxAttempts, func() error {
		var callErr error
		rows, callErr = c.doRows(ctx, http.MethodGet, restPrefix+table, q, nil, nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	return rows, nil
}

// Insert writes row into table. With [Returning] the stored rows are returned.
func (c *Client) Insert(ctx context.Context, table string, row Row, opts ...WriteOption) ([]Row, error) {
	o := applyWriteOptions(opts)
	rows, err := c.doRows(ctx, http.MethodPost, restPrefix+table, nil, row, preferHeader(o))
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}
	return rows, nil
}

// Update sets values on every row of table matching filters.
func (c *Client) Update(ctx context.Context, table string, values Row, filters []Filter, opts ...WriteOption) ([]Row, error) {
	if len(filters) == 0 {
		return nil, fmt.Errorf("update %s: refusing to update without a filter", table)
	}
	o := applyWriteOptions(opts)
	rows, err := c.doRows(ctx, http.MethodPatch, restPrefix+table, filterQuery(filters), values, preferHeader(o))
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	return rows, nil
}

// Delete removes every row of table matching filters.
func (c *Client) Delete(ctx context.Context, table string, filters ...Filter) error {
	if len(filters) == 0 {
		return fmt.Errorf("delete from %s: refusing to delete without a filter", table)
	}
	if _, err := c.doRows(ctx, http.MethodDelete, restPrefix+table, filterQuery(filters), nil, nil); err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return nil
}

// CurrentUser returns the signed-in identity, or (nil, nil) when the client
// has no access token. A configured user ID is trusted as-is; otherwise the
// auth endpoint is asked once and the answer cached.
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	if c.token == "" {
		return nil, nil //nolint:nilnil // intentional: "signed out" sentinel
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user != nil {
		u := *c.user
		return &u, nil
	}
	if c.userID != "" {
		c.user = &model.User{ID: c.userID}
		u := *c.user
		return &u, nil
	}

	var body []byte
	err := Retry(ctx, defaultMaxAttempts, func() error {
		var callErr error
		body, callErr = c.do(ctx, http.MethodGet, authUserPath, nil, nil, "", nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetching current user: %w", err)
	}
	var raw Row
	if err := decodeJSON(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding current user: %w", err)
	}
	u := authUserToModel(raw)
	if u.ID == "" {
		return nil, errors.New("auth endpoint returned a user without id")
	}
	c.user = &u
	return &u, nil
}

// Upload stores data at bucket/path, replacing any existing object.
func (c *Client) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	p := storagePrefix + bucket + "/" + strings.TrimLeft(path, "/")
	headers := map[string]string{"x-upsert": "true"}
	if _, err := c.do(ctx, http.MethodPost, p, nil, bytes.NewReader(data), contentType, headers); err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, path, err)
	}
	return nil
}

// PublicURL returns the unauthenticated URL of an object in a public bucket.
func (c *Client) PublicURL(bucket, path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + storagePrefix + "public/" + bucket + "/" + path
	return u.String()
}

// Ping checks that the backend is reachable and accepts the API key.
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")
	err := Retry(ctx, defaultMaxAttempts, func() error {
		_, callErr := c.do(ctx, http.MethodGet, restPrefix+"quotes", q, nil, "", nil)
		return callErr
	})
	if err != nil {
		return fmt.Errorf("ping remote: %w", err)
	}
	return nil
}

// doRows sends an optional JSON body and decodes a JSON array response. An
// empty response body yields no rows.
func (c *Client) doRows(ctx context.Context, method, path string, q url.Values, payload Row, headers map[string]string) ([]Row, error) {
	var body io.Reader
	contentType := ""
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, method, path, q, body, contentType, headers)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(resp)) == 0 {
		return nil, nil
	}
	var rows []Row
	if err := decodeJSON(resp, &rows); err != nil {
		return nil, fmt.Errorf("decoding rows: %w", err)
	}
	return rows, nil
}

// do performs a single request and returns the response body. Non-2xx
// statuses become *APIError.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body io.Reader, contentType string, headers map[string]string) ([]byte, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	reqID := uuid.NewString()
	bearer := c.token
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerRequestID, reqID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		c.logger.Debug("remote request failed", "method", method, "path", path, "request_id", reqID, "error", err)
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, data)
		apiErr.RequestID = reqID
		c.logger.Debug("remote returned error",
			"method", method, "path", path, "status", resp.StatusCode, "request_id", reqID)
		return nil, apiErr
	}
	return data, nil
}

// parseAPIError extracts code and message from the error shapes used by the
// table, auth and storage endpoints.
func parseAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		e.Message = strings.TrimSpace(string(body))
		return e
	}
	e.Code = firstString(raw, "code", "error_code", "error")
	e.Message = firstString(raw, "message", "msg", "error_description")
	if e.Message == "" {
		e.Message = e.Code
		e.Code = ""
	}
	return e
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := str(raw, k); s != "" {
			return s
		}
	}
	return ""
}

func filterQuery(filters []Filter) url.Values {
	q := url.Values{}
	for _, f := range filters {
		q.Add(f.Column, "eq."+f.Value)
	}
	return q
}

func applyWriteOptions(opts []WriteOption) writeOptions {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func preferHeader(o writeOptions) map[string]string {
	if o.returning {
		return map[string]string{"Prefer": "return=representation"}
	}
	return map[string]string{"Prefer": "return=minimal"}
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
