// Package rehost copies images from the hotlink-restricted host to the upload host.
package rehost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultUploadURL is the image upload endpoint.
const DefaultUploadURL = "https://api.imgur.com/3/image"

// animatedMarker is appended to animated links so viewers play them.
const animatedMarker = "v"

// Extensions are tried in this order when probing a bare link.
var Extensions = []string{".png", ".jpg", ".gif"}

// ErrUnresolved is returned by Probe when every extension answers 404.
var ErrUnresolved = errors.New("no extension resolved")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the upload host settings.
type Config struct {
	ClientID  string
	UploadURL string
	UserAgent string
	// CacheTTL is how long a successful rehost is reused. Zero disables the cache.
	CacheTTL time.Duration
}

// Rehoster probes bare links and uploads the resolved image.
type Rehoster struct {
	client HTTPClient
	cfg    Config
	cache  *cache.Cache
	log    *slog.Logger
}

// New creates a Rehoster with the given HTTP client.
func New(client HTTPClient, cfg Config, log *slog.Logger) *Rehoster {
	if cfg.UploadURL == "" {
		cfg.UploadURL = DefaultUploadURL
	}
	r := &Rehoster{
		client: client,
		cfg:    cfg,
		log:    log,
	}
	if cfg.CacheTTL > 0 {
		r.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return r
}

// Rehost copies the image behind bareURL and returns its public link.
// Every failure is logged and reported as ok == false.
func (r *Rehoster) Rehost(ctx context.Context, bareURL string) (link string, ok bool) {
	if r.cache != nil {
		if v, found := r.cache.Get(bareURL); found {
			r.log.Debug("rehost cache hit", "url", bareURL)
			return v.(string), true
		}
	}

	imageURL, err := r.Probe(ctx, bareURL)
	if err != nil {
		r.log.Info("probe failed", "url", bareURL, "error", err)
		return "", false
	}

	link, err = r.Upload(ctx, imageURL)
	if err != nil {
		r.log.Warn("upload failed", "image_url", imageURL, "error", err)
		return "", false
	}

	if r.cache != nil {
		r.cache.SetDefault(bareURL, link)
	}
	return link, true
}

// Probe finds the first extension under which bareURL does not answer 404.
// A transport error stops probing immediately.
func (r *Rehoster) Probe(ctx context.Context, bareURL string) (string, error) {
	for _, ext := range Extensions {
		candidate := bareURL + ext
		status, err := r.statusOf(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("probe %s: %w", candidate, err)
		}
		if status == http.StatusNotFound {
			r.log.Debug("format not valid", "url", candidate)
			continue
		}
		return candidate, nil
	}
	return "", ErrUnresolved
}

func (r *Rehoster) statusOf(ctx context.Context, u string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http get: %w", err)
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

type uploadResponse struct {
	Data *struct {
		Link  string `json:"link"`
		Error any    `json:"error"`
	} `json:"data"`
	Success bool `json:"success"`
	Status  int  `json:"status"`
}

// Upload submits imageURL to the upload host and returns the hosted link,
// with the animated marker applied.
func (r *Rehoster) Upload(ctx context.Context, imageURL string) (string, error) {
	form := url.Values{}
	form.Set("image", imageURL)
	form.Set("type", "URL")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.UploadURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+r.cfg.ClientID)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}

	r.log.Info("uploading image", "image_url", imageURL)
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	var ur uploadResponse
	if err := json.Unmarshal(body, &ur); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if ur.Data == nil || ur.Data.Link == "" {
		return "", fmt.Errorf("response missing data.link (status %d)", resp.StatusCode)
	}

	return MarkAnimated(ur.Data.Link), nil
}

// MarkAnimated appends the animated marker to gif links.
func MarkAnimated(link string) string {
	if strings.Contains(link, ".gif") {
		return link + animatedMarker
	}
	return link
}
