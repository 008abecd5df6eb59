// Package service owns the bot lifecycle: startup authentication, the
// comment loop, and scheduled reports.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"convert_bot/internal/model"
)

// Stream yields comments one at a time, blocking until one is available.
type Stream interface {
	Next(ctx context.Context) (model.Comment, error)
}

// Authenticator installs a fresh platform access token.
type Authenticator interface {
	Authenticate(ctx context.Context) (string, error)
}

// Processor handles a single comment.
type Processor interface {
	Process(ctx context.Context, c model.Comment) error
	Processed() int64
}

// TotalsReader reads the persisted bookkeeping totals.
type TotalsReader interface {
	Totals(ctx context.Context) (*model.Totals, error)
}

// Service runs the comment loop until its context is cancelled.
type Service struct {
	stream         Stream
	auth           Authenticator
	proc           Processor
	totals         TotalsReader
	log            *slog.Logger
	reportSchedule string
}

// New creates a Service. An empty reportSchedule disables the scheduled
// totals report.
func New(stream Stream, auth Authenticator, proc Processor, totals TotalsReader, reportSchedule string, log *slog.Logger) *Service {
	return &Service{
		stream:         stream,
		auth:           auth,
		proc:           proc,
		totals:         totals,
		log:            log,
		reportSchedule: reportSchedule,
	}
}

// Run authenticates, then processes comments in stream order until ctx is
// cancelled. Only a startup failure is returned; per-comment failures are
// logged and the loop moves on.
func (s *Service) Run(ctx context.Context) error {
	if _, err := s.auth.Authenticate(ctx); err != nil {
		return fmt.Errorf("initial login: %w", err)
	}

	if s.reportSchedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(s.reportSchedule, func() { s.report(ctx) }); err != nil {
			return fmt.Errorf("schedule report %q: %w", s.reportSchedule, err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
	}

	s.log.Info("watching comment stream")
	for {
		comment, err := s.stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				s.log.Info("comment loop stopped", "processed", s.proc.Processed())
				return nil
			}
			s.log.Error("next comment", "error", err)
			continue
		}

		if err := s.proc.Process(ctx, comment); err != nil {
			s.log.Error("process comment", "comment_id", comment.ID, "error", err)
		}
	}
}

func (s *Service) report(ctx context.Context) {
	t, err := s.totals.Totals(ctx)
	if err != nil {
		s.log.Error("read totals", "error", err)
		return
	}
	s.log.Info("bookkeeping totals",
		"comments", t.Comments,
		"replies", t.Replies,
		"reuploads", t.Reuploads,
		"session_processed", s.proc.Processed(),
	)
}
