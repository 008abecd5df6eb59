package reddit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/k3a/html2text"
	"github.com/mmcdole/gofeed"

	"convert_bot/internal/model"
)

const (
	maxFeedSize = 5 * 1024 * 1024
	// maxRecent bounds how many delivered ids are remembered to suppress
	// redelivery across overlapping polls.
	maxRecent = 1000
)

// StreamConfig controls which forum is watched and how often.
type StreamConfig struct {
	FeedURL  string
	Forum    string
	Interval time.Duration
}

// Stream pulls new comments from the forum's comment feed. Next blocks until a
// comment is available; polling errors are retried with exponential backoff.
type Stream struct {
	client HTTPClient
	cfg    StreamConfig
	log    *slog.Logger
	parser *gofeed.Parser

	pending  []model.Comment
	recent   map[string]struct{}
	order    []string
	lastPoll time.Time
	backoff  backoff.BackOff
}

// NewStream creates a Stream over the given HTTP client.
func NewStream(client HTTPClient, cfg StreamConfig, log *slog.Logger) *Stream {
	if cfg.FeedURL == "" {
		cfg.FeedURL = DefaultFeedURL
	}
	if cfg.Forum == "" {
		cfg.Forum = "all"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.Interval
	b.MaxInterval = 10 * cfg.Interval
	b.MaxElapsedTime = 0

	return &Stream{
		client:  client,
		cfg:     cfg,
		log:     log,
		parser:  gofeed.NewParser(),
		recent:  make(map[string]struct{}),
		backoff: b,
	}
}

// Next returns the next unseen comment, oldest first.
func (s *Stream) Next(ctx context.Context) (model.Comment, error) {
	for len(s.pending) == 0 {
		if !s.lastPoll.IsZero() {
			if err := sleep(ctx, time.Until(s.lastPoll.Add(s.cfg.Interval))); err != nil {
				return model.Comment{}, err
			}
		}
		s.lastPoll = time.Now()

		comments, err := s.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return model.Comment{}, ctx.Err()
			}
			wait := s.backoff.NextBackOff()
			s.log.Warn("poll comment feed", "forum", s.cfg.Forum, "retry_in", wait, "error", err)
			if err := sleep(ctx, wait); err != nil {
				return model.Comment{}, err
			}
			continue
		}
		s.backoff.Reset()
		s.pending = s.unseen(comments)
	}

	c := s.pending[0]
	s.pending = s.pending[1:]
	return c, nil
}

// Poll fetches the comment feed once and returns its comments oldest first.
func (s *Stream) Poll(ctx context.Context) ([]model.Comment, error) {
	url := fmt.Sprintf("%s/r/%s/comments/.rss?limit=100", strings.TrimRight(s.cfg.FeedURL, "/"), s.cfg.Forum)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	feed, err := s.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	comments := make([]model.Comment, 0, len(feed.Items))
	for _, item := range feed.Items {
		c, ok := CommentFromItem(item, s.cfg.Forum)
		if !ok {
			continue
		}
		comments = append(comments, c)
	}
	// The feed lists newest first.
	slices.Reverse(comments)
	return comments, nil
}

func (s *Stream) unseen(comments []model.Comment) []model.Comment {
	var out []model.Comment
	for _, c := range comments {
		if _, ok := s.recent[c.ID]; ok {
			continue
		}
		s.recent[c.ID] = struct{}{}
		s.order = append(s.order, c.ID)
		out = append(out, c)
	}
	for len(s.order) > maxRecent {
		delete(s.recent, s.order[0])
		s.order = s.order[1:]
	}
	return out
}

// CommentFromItem converts a comment feed entry. Entries without a comment id
// are rejected.
func CommentFromItem(item *gofeed.Item, defaultForum string) (model.Comment, bool) {
	id, ok := strings.CutPrefix(item.GUID, "t1_")
	if !ok || id == "" {
		return model.Comment{}, false
	}

	c := model.Comment{
		ID:           id,
		Forum:        defaultForum,
		SubmissionID: submissionID(item.Link),
		CreatedAt:    time.Now().UTC(),
	}
	if item.Author != nil {
		c.Author = strings.TrimPrefix(item.Author.Name, "/u/")
	}
	if len(item.Categories) > 0 && item.Categories[0] != "" {
		c.Forum = item.Categories[0]
	}
	switch {
	case item.PublishedParsed != nil:
		c.CreatedAt = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		c.CreatedAt = item.UpdatedParsed.UTC()
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}
	c.Body = strings.TrimSpace(html2text.HTML2Text(content))
	return c, true
}

// submissionID extracts the post id from /r/<forum>/comments/<post>/<slug>/<comment>/.
func submissionID(link string) string {
	parts := strings.Split(link, "/")
	for i, p := range parts {
		if p == "comments" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
