package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/z-favorites/backend/internal/model/user"
)

// DefaultTimeout bounds a directory request when no option overrides it.
const DefaultTimeout = 15 * time.Second

// ErrInvalidPayload is returned when the directory answers with a body that does
// not match the expected page shape.
var ErrInvalidPayload = errors.New("directory: invalid payload")

// Client fetches pages of user records from the remote directory.
type Client interface {
	FetchUsers(ctx context.Context, page int) ([]user.User, error)
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// HTTPClient implements Client against a reqres-style JSON API.
type HTTPClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// WithAPIKey sends key in the x-api-key header.
func WithAPIKey(key string) ClientOption {
	return func(c *HTTPClient) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// NewHTTPClient creates a directory client rooted at baseURL
// (for example https://reqres.in/api).
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		http:    &http.Client{Timeout: DefaultTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type pageResponse struct {
	Data []user.User `json:"data"`
}

// FetchUsers retrieves one page of users. Every record is validated; a single
// bad record fails the page.
func (c *HTTPClient) FetchUsers(ctx context.Context, page int) ([]user.User, error) {
	if page < 1 {
		return nil, fmt.Errorf("directory: page must be >= 1, got %d", page)
	}

	endpoint, err := url.Parse(c.baseURL + "/users")
	if err != nil {
		return nil, fmt.Errorf("directory: invalid base url %q: %w", c.baseURL, err)
	}
	query := endpoint.Query()
	query.Set("page", strconv.Itoa(page))
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("directory: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: fetch users: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("directory: fetch users: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.Data == nil {
		return nil, fmt.Errorf("%w: missing data array", ErrInvalidPayload)
	}
	if err := user.ValidateAll(payload.Data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	return payload.Data, nil
}
