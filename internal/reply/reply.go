// Package reply posts replies with a bounded retry that re-authenticates
// between attempts.
package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"convert_bot/internal/metrics"
	"convert_bot/internal/model"
)

// MaxAttempts is the number of reply attempts before giving up.
const MaxAttempts = 2

// ErrRetriesExhausted is returned when every attempt failed.
var ErrRetriesExhausted = errors.New("reply retries exhausted")

// Replier posts a reply on the platform.
type Replier interface {
	Reply(ctx context.Context, comment model.Comment, body string) (*model.Reply, error)
}

// Authenticator replaces the platform access token.
type Authenticator interface {
	Authenticate(ctx context.Context) (string, error)
}

// Poster posts replies. The usual cause of a failed post is a silently
// expired token, so a failure is followed by re-authentication and one more
// attempt.
type Poster struct {
	replier     Replier
	auth        Authenticator
	metrics     *metrics.Metrics
	log         *slog.Logger
	maxAttempts int
}

// New creates a Poster.
func New(replier Replier, auth Authenticator, m *metrics.Metrics, log *slog.Logger) *Poster {
	return &Poster{
		replier:     replier,
		auth:        auth,
		metrics:     m,
		log:         log,
		maxAttempts: MaxAttempts,
	}
}

// Post replies to comment with body. Attempts run back to back with no delay.
// Re-authentication happens only between attempts, never after the last one.
func (p *Poster) Post(ctx context.Context, comment model.Comment, body string) (*model.Reply, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		r, err := p.replier.Reply(ctx, comment, body)
		if err == nil {
			p.metrics.ObserveReply(true)
			p.log.Info("replied to comment", "comment_id", comment.ID, "reply_id", r.ID, "attempt", attempt)
			return r, nil
		}
		lastErr = err
		p.log.Info("reply attempt failed", "comment_id", comment.ID, "attempt", attempt, "max_attempts", p.maxAttempts, "error", err)

		if attempt == p.maxAttempts {
			break
		}
		if _, err := p.auth.Authenticate(ctx); err != nil {
			p.log.Warn("re-authenticate", "comment_id", comment.ID, "error", err)
		}
	}

	p.metrics.ObserveReply(false)
	p.log.Warn("replying to comment failed", "comment_id", comment.ID, "error", lastErr)
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, p.maxAttempts, lastErr)
}
