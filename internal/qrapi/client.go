// Package qrapi is the client for the QR code collection endpoint. It turns
// list/create/delete intents into HTTP calls and normalizes the responses.
package qrapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sundayezeilo/qrhistory/internal/errx"
	"github.com/sundayezeilo/qrhistory/internal/httpx"
)

const (
	DefaultTimeout        = 60 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultTLSTimeout     = 5 * time.Second
	DefaultMaxPages       = 50

	// MaxResponseBodySize caps how much of a response body is read (10MB).
	MaxResponseBodySize = 10 << 20
)

// Config holds the client configuration. BaseURL is the collection endpoint,
// e.g. "http://127.0.0.1:8000/api/v1/qr-generate/".
type Config struct {
	BaseURL string

	// HTTPClient overrides the default client; Timeout and ConnectTimeout are
	// ignored when it is set.
	HTTPClient     *http.Client
	Timeout        time.Duration
	ConnectTimeout time.Duration

	// MaxPages bounds how many envelope pages ListAll follows (default 50).
	MaxPages int

	Logger *slog.Logger

	// RequestID generates the X-Request-ID header value (default uuid v4).
	RequestID func() string
}

// Client talks to one collection endpoint. It is safe for concurrent use.
type Client struct {
	baseURL   string
	http      *http.Client
	maxPages  int
	logger    *slog.Logger
	requestID func() string
}

// New creates a Client. The base URL must be an absolute http(s) URL.
func New(cfg Config) (*Client, error) {
	const op = "qrapi.New"

	base, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, errx.E(op, errx.Invalid, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = defaultHTTPClient(cfg.Timeout, cfg.ConnectTimeout)
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	requestID := cfg.RequestID
	if requestID == nil {
		requestID = uuid.NewString
	}

	return &Client{
		baseURL:   base,
		http:      httpClient,
		maxPages:  maxPages,
		logger:    logger,
		requestID: requestID,
	}, nil
}

// BaseURL returns the normalized collection endpoint (always ends in "/").
func (c *Client) BaseURL() string { return c.baseURL }

// ListAll fetches the full collection, following envelope next links.
func (c *Client) ListAll(ctx context.Context) ([]Record, error) {
	const op = "qrapi.client.ListAll"

	all := []Record{}
	seen := make(map[ID]struct{})

	next := c.baseURL
	for page := 0; next != ""; page++ {
		if page >= c.maxPages {
			return nil, errx.E(op, errx.Malformed,
				fmt.Errorf("%w: more than %d pages", ErrInvalidFormat, c.maxPages))
		}

		resp, err := c.do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, errx.E(op, errx.Network, err)
		}
		if !resp.ok() {
			return nil, errx.E(op, errx.Unavailable, errors.New(messageOr(resp.body, msgListFailed)))
		}

		p, err := DecodeList(resp.body)
		if err != nil {
			return nil, errx.E(op, errx.Malformed, err)
		}

		for _, rec := range p.Records {
			if _, dup := seen[rec.ID]; dup {
				c.logger.WarnContext(ctx, "dropping duplicate record from list response",
					"id", rec.ID.String(),
					"page", page,
				)
				continue
			}
			seen[rec.ID] = struct{}{}
			all = append(all, rec)
		}

		next, err = resolveNext(next, p.Next)
		if err != nil {
			return nil, errx.E(op, errx.Malformed, err)
		}
	}

	return all, nil
}

// Create submits a new link and returns the created record.
func (c *Client) Create(ctx context.Context, link string) (Record, error) {
	const op = "qrapi.client.Create"

	resp, err := c.do(ctx, http.MethodPost, c.baseURL, createRequest{Link: link})
	if err != nil {
		return Record{}, errx.E(op, errx.Network, err)
	}

	switch {
	case resp.ok():
		var rec Record
		if err := json.Unmarshal(resp.body, &rec); err != nil {
			return Record{}, errx.E(op, errx.Malformed, fmt.Errorf("%w: %v", ErrInvalidFormat, err))
		}
		if rec.ID == "" {
			return Record{}, errx.E(op, errx.Malformed, fmt.Errorf("%w: created record has no id", ErrInvalidFormat))
		}
		return rec, nil

	case resp.status >= 400 && resp.status < 500:
		return Record{}, errx.E(op, errx.Validation, errors.New(messageOr(resp.body, msgCreateFailed)))

	default:
		return Record{}, errx.E(op, errx.Unavailable, errors.New(messageOr(resp.body, msgCreateFailed)))
	}
}

// Delete removes the record with the given id. Any 2xx response, including
// 204 No Content, is a success.
func (c *Client) Delete(ctx context.Context, id ID) error {
	const op = "qrapi.client.Delete"

	if id == "" {
		return errx.E(op, errx.Invalid, errors.New("id cannot be empty"))
	}

	resp, err := c.do(ctx, http.MethodDelete, c.recordURL(id), nil)
	if err != nil {
		return errx.E(op, errx.Network, err)
	}
	if !resp.ok() {
		return errx.E(op, errx.DeleteFailed, errors.New(messageOr(resp.body, msgDeleteFailed)))
	}
	return nil
}

// requestIDFor reuses the inbound request ID carried by ctx, if any.
func (c *Client) requestIDFor(ctx context.Context) string {
	if id := httpx.GetRequestID(ctx); id != "" {
		return id
	}
	return c.requestID()
}

func (c *Client) recordURL(id ID) string {
	return c.baseURL + url.PathEscape(string(id)) + "/"
}

type response struct {
	status int
	body   []byte
}

func (r *response) ok() bool { return r.status >= 200 && r.status < 300 }

// do performs one JSON request. A non-nil error means no usable response was
// received.
func (c *Client) do(ctx context.Context, method, target string, payload any) (*response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := c.requestIDFor(ctx)
	req.Header.Set(httpx.RequestIDHeader, requestID)

	start := time.Now()
	r, err := c.http.Do(req)
	if err != nil {
		c.logger.DebugContext(ctx, "api request failed",
			"request_id", requestID,
			"method", method,
			"url", target,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("could not reach server: %w", err)
	}
	defer func() {
		_ = r.Body.Close()
	}()

	b, err := io.ReadAll(io.LimitReader(r.Body, MaxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.DebugContext(ctx, "api request",
		"request_id", requestID,
		"method", method,
		"url", target,
		"status", r.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &response{status: r.StatusCode, body: b}, nil
}

func defaultHTTPClient(timeout, connectTimeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	dialer := &net.Dialer{
		Timeout: connectTimeout,
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: DefaultTLSTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("base URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("base URL scheme must be http or https")
	}
	if u.Host == "" {
		return "", errors.New("base URL must include host")
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String(), nil
}

// resolveNext resolves an envelope next link against the page it came from.
func resolveNext(current, next string) (string, error) {
	next = strings.TrimSpace(next)
	if next == "" {
		return "", nil
	}
	cur, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("%w: invalid next link: %v", ErrInvalidFormat, err)
	}
	return cur.ResolveReference(ref).String(), nil
}
