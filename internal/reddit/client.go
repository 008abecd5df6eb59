// Package reddit talks to the discussion platform: it posts replies with the
// active access token and streams new comments from a forum.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"convert_bot/internal/model"
)

// Platform endpoints.
const (
	DefaultAPIURL  = "https://oauth.reddit.com"
	DefaultFeedURL = "https://www.reddit.com"
)

// ErrAPI is returned when the platform rejects a request.
var ErrAPI = errors.New("reddit api error")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns an http.Client that stamps userAgent on every request.
// The platform throttles requests without a descriptive User-Agent.
func NewHTTPClient(userAgent string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{base: http.DefaultTransport, userAgent: userAgent},
	}
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

// Client posts replies on behalf of the bot account.
type Client struct {
	http   HTTPClient
	apiURL string

	mu    sync.RWMutex
	token string
}

// NewClient creates a Client. The token must be installed with SetToken
// before the first reply.
func NewClient(httpClient HTTPClient, apiURL string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		http:   httpClient,
		apiURL: strings.TrimRight(apiURL, "/"),
	}
}

// SetToken replaces the active access token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type commentResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			Things []struct {
				Kind string `json:"kind"`
				Data struct {
					ID         string  `json:"id"`
					Name       string  `json:"name"`
					CreatedUTC float64 `json:"created_utc"`
				} `json:"data"`
			} `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

// Reply posts body as a reply to comment and returns the created reply.
func (c *Client) Reply(ctx context.Context, comment model.Comment, body string) (*model.Reply, error) {
	token := c.currentToken()
	if token == "" {
		return nil, fmt.Errorf("%w: no access token", ErrAPI)
	}

	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("thing_id", comment.Fullname())
	form.Set("text", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/api/comment", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrAPI, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var cr commentResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(cr.JSON.Errors) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrAPI, cr.JSON.Errors[0])
	}
	if len(cr.JSON.Data.Things) == 0 || cr.JSON.Data.Things[0].Data.ID == "" {
		return nil, fmt.Errorf("%w: response has no created comment", ErrAPI)
	}

	thing := cr.JSON.Data.Things[0].Data
	created := time.Now().UTC()
	if thing.CreatedUTC > 0 {
		created = time.Unix(int64(thing.CreatedUTC), 0).UTC()
	}
	return &model.Reply{
		ID:        thing.ID,
		CreatedAt: created,
		CommentID: comment.ID,
	}, nil
}
