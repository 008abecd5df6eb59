// Package storage defines the bookkeeping interface and its implementations.
package storage

import (
	"context"
	"errors"

	"convert_bot/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all bookkeeping operations.
type Storage interface {
	IncrementTotal(ctx context.Context) error
	Totals(ctx context.Context) (*model.Totals, error)

	IsSeen(ctx context.Context, commentID string) (bool, error)
	PruneSeen(ctx context.Context, keep int) (int64, error)

	// Begin starts the unit of work holding every row written for one comment.
	Begin(ctx context.Context) (Tx, error)

	Originals(ctx context.Context, commentID string) ([]model.Original, error)
	ReplyFor(ctx context.Context, commentID string) (*model.Reply, error)
	Reuploads(ctx context.Context, replyID string) ([]model.Reupload, error)

	Close() error
}

// Tx writes the bookkeeping rows of a single comment. Nothing is visible to
// other readers until Commit.
type Tx interface {
	MarkSeen(ctx context.Context, commentID string) error
	HasReply(ctx context.Context, commentID string) (bool, error)
	InsertComment(ctx context.Context, c model.Comment) error
	InsertOriginal(ctx context.Context, o *model.Original) error
	OriginalID(ctx context.Context, commentID, imageURL string) (int64, error)
	InsertReply(ctx context.Context, r model.Reply) error
	InsertReupload(ctx context.Context, r model.Reupload) error

	Commit() error
	Rollback() error
}
