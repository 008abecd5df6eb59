// Package processor runs one comment through extraction, rehosting, replying
// and bookkeeping.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"convert_bot/internal/extract"
	"convert_bot/internal/metrics"
	"convert_bot/internal/model"
	"convert_bot/internal/storage"
)

// Rehoster copies an image behind a bare link to the upload host.
type Rehoster interface {
	Rehost(ctx context.Context, bareURL string) (string, bool)
}

// Poster posts a reply under a comment.
type Poster interface {
	Post(ctx context.Context, comment model.Comment, body string) (*model.Reply, error)
}

// Options tunes the periodic maintenance.
type Options struct {
	// SeenCap is how many seen records survive pruning.
	SeenCap int
	// MaintainEvery is how many comments pass between prunes and progress logs.
	MaintainEvery int
}

// Processor handles comments strictly one at a time.
type Processor struct {
	store    storage.Storage
	rehoster Rehoster
	poster   Poster
	metrics  *metrics.Metrics
	log      *slog.Logger
	opts     Options

	processed atomic.Int64
}

// New creates a Processor.
func New(store storage.Storage, rehoster Rehoster, poster Poster, m *metrics.Metrics, log *slog.Logger, opts Options) *Processor {
	if opts.SeenCap < 1 {
		opts.SeenCap = 1000
	}
	if opts.MaintainEvery < 1 {
		opts.MaintainEvery = 1000
	}
	return &Processor{
		store:    store,
		rehoster: rehoster,
		poster:   poster,
		metrics:  m,
		log:      log,
		opts:     opts,
	}
}

// Processed returns how many comments were handed to Process this session.
// It is safe to call from other goroutines.
func (p *Processor) Processed() int64 {
	return p.processed.Load()
}

// Process handles one comment. A returned error concerns this comment only;
// the caller should log it and move on. Panics are recovered into errors.
func (p *Processor) Process(ctx context.Context, c model.Comment) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic processing comment", "comment_id", c.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic processing comment %s: %v", c.ID, r)
		}
	}()

	n := p.processed.Add(1)
	p.metrics.ObserveComment()
	if err := p.store.IncrementTotal(ctx); err != nil {
		p.log.Error("increment total", "error", err)
	}
	defer p.maintain(ctx, n)

	seen, err := p.store.IsSeen(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("check seen: %w", err)
	}
	if seen {
		p.log.Debug("comment already seen", "comment_id", c.ID)
		return nil
	}

	// Bookkeeping ignores cancellation so a posted reply is always recorded.
	dbCtx := context.WithoutCancel(ctx)
	tx, err := p.store.Begin(dbCtx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := tx.MarkSeen(dbCtx, c.ID); err != nil {
		return err
	}
	if matches := extract.Links(c.Body); len(matches) > 0 {
		p.metrics.ObserveMatches(len(matches))
		p.log.Info("found image links", "comment_id", c.ID, "author", c.Author, "forum", c.Forum, "count", len(matches))
		if err := p.handleMatches(ctx, dbCtx, tx, c, matches); err != nil {
			return err
		}
	}

	committed = true
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// handleMatches writes the comment's rows into tx. Platform calls use ctx,
// writes use dbCtx.
func (p *Processor) handleMatches(ctx, dbCtx context.Context, tx storage.Tx, c model.Comment, matches []string) error {
	answered, err := tx.HasReply(dbCtx, c.ID)
	if err != nil {
		return err
	}
	if answered {
		p.log.Info("comment already answered", "comment_id", c.ID)
		return nil
	}

	if err := tx.InsertComment(dbCtx, c); err != nil {
		return err
	}
	for _, m := range matches {
		if err := tx.InsertOriginal(dbCtx, &model.Original{ImageURL: m, CommentID: c.ID}); err != nil {
			return err
		}
	}

	links := make([]string, len(matches))
	var rehosted []model.Rehosted
	for i, m := range matches {
		link, ok := p.rehoster.Rehost(ctx, m)
		p.metrics.ObserveRehost(ok)
		if !ok {
			continue
		}
		links[i] = link
		rehosted = append(rehosted, model.Rehosted{Link: link, Match: m})
	}

	if len(rehosted) == 0 {
		p.log.Info("no images rehosted, not replying", "comment_id", c.ID)
		return nil
	}

	reply, err := p.poster.Post(ctx, c, FormatReply(links))
	if err != nil {
		// The originals stay as an audit trail of the attempt.
		p.log.Warn("reply not posted", "comment_id", c.ID, "error", err)
		return nil
	}

	if err := tx.InsertReply(dbCtx, *reply); err != nil {
		return err
	}
	for _, r := range rehosted {
		originalID, err := tx.OriginalID(dbCtx, c.ID, r.Match)
		if err != nil {
			return fmt.Errorf("look up original %s: %w", r.Match, err)
		}
		if err := tx.InsertReupload(dbCtx, model.Reupload{Link: r.Link, ReplyID: reply.ID, OriginalID: originalID}); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) maintain(ctx context.Context, n int64) {
	if n%int64(p.opts.MaintainEvery) != 0 {
		return
	}
	p.log.Info("comments processed this session", "count", n)

	removed, err := p.store.PruneSeen(ctx, p.opts.SeenCap)
	if err != nil {
		p.log.Error("prune seen comments", "error", err)
		return
	}
	if removed > 0 {
		p.log.Debug("pruned seen comments", "removed", removed, "kept", p.opts.SeenCap)
	}
}
