// Package client talks to a SegmentKeeper server over HTTP.
//
// *Client implements preview.Matcher, so an editing session can preview
// against a remote server the same way the server previews locally.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/solatis/segmentkeeper/internal/fields"
	"github.com/solatis/segmentkeeper/internal/segments"
	"github.com/solatis/segmentkeeper/internal/types"
	"github.com/solatis/segmentkeeper/internal/wire"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxErrorBody bounds how much of a failed response is read for the message.
const maxErrorBody = 64 << 10

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Is maps statuses onto the shared sentinel errors so callers can use
// errors.Is(err, types.ErrSegmentNotFound) across the transport.
func (e *APIError) Is(target error) bool {
	switch target {
	case types.ErrSegmentNotFound:
		return e.Status == http.StatusNotFound
	case types.ErrStorage:
		return e.Status == http.StatusServiceUnavailable
	}
	return false
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a client for the server at baseURL authenticating with apiKey.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("api key cannot be empty")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Match previews q. The shop argument is ignored: the server scopes every
// request to the shop owning the API key.
func (c *Client) Match(ctx context.Context, _ types.ShopID, q wire.Query) (types.MatchResult, error) {
	var res types.MatchResult
	err := c.do(ctx, http.MethodPost, "/api/v1/preview", struct {
		Query wire.Query `json:"query"`
	}{q}, &res)
	if res.Sample == nil {
		res.Sample = []types.CustomerSummary{}
	}
	return res, err
}

// Fields returns the server's field catalog.
func (c *Client) Fields(ctx context.Context) ([]fields.Definition, error) {
	var defs []fields.Definition
	err := c.do(ctx, http.MethodGet, "/api/v1/fields", nil, &defs)
	return defs, err
}

// ListSegments returns the shop's segments, newest first.
func (c *Client) ListSegments(ctx context.Context) ([]segments.Segment, error) {
	var segs []segments.Segment
	err := c.do(ctx, http.MethodGet, "/api/v1/segments", nil, &segs)
	return segs, err
}

// GetSegment returns one segment.
func (c *Client) GetSegment(ctx context.Context, id types.SegmentID) (segments.Segment, error) {
	var seg segments.Segment
	err := c.do(ctx, http.MethodGet, "/api/v1/segments/"+url.PathEscape(string(id)), nil, &seg)
	return seg, err
}

// CreateSegment saves a new segment.
func (c *Client) CreateSegment(ctx context.Context, in segments.Input) (segments.Segment, error) {
	var seg segments.Segment
	err := c.do(ctx, http.MethodPost, "/api/v1/segments", in, &seg)
	return seg, err
}

// UpdateSegment replaces an existing segment.
func (c *Client) UpdateSegment(ctx context.Context, id types.SegmentID, in segments.Input) (segments.Segment, error) {
	var seg segments.Segment
	err := c.do(ctx, http.MethodPut, "/api/v1/segments/"+url.PathEscape(string(id)), in, &seg)
	return seg, err
}

// DeleteSegment removes a segment.
func (c *Client) DeleteSegment(ctx context.Context, id types.SegmentID) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/segments/"+url.PathEscape(string(id)), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else if msg := strings.TrimSpace(string(data)); msg != "" {
		apiErr.Message = msg
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// IsAPIError reports whether err is an *APIError with the given status.
func IsAPIError(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
