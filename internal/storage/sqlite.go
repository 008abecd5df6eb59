package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"convert_bot/internal/model"
	"convert_bot/migrations"
)

const (
	timeLayout    = "2006-01-02T15:04:05Z"
	totalComments = "total_comments"
)

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer. This also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// FromDB wraps an open database that already carries the bookkeeping schema.
// No migrations are run.
func FromDB(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// IncrementTotal bumps the running count of comments pulled from the stream.
func (s *SQLite) IncrementTotal(ctx context.Context) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`UPDATE totals SET amount = amount + 1, last_updated = ? WHERE name = ?`,
		now, totalComments,
	)
	if err != nil {
		return fmt.Errorf("increment total: %w", err)
	}
	return nil
}

// Totals returns the running comment count along with reply and reupload counts.
func (s *SQLite) Totals(ctx context.Context) (*model.Totals, error) {
	var t model.Totals
	var lastUpdated sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT amount, last_updated FROM totals WHERE name = ?`, totalComments,
	).Scan(&t.Comments, &lastUpdated)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}
	if lastUpdated.Valid {
		ts, _ := time.Parse(timeLayout, lastUpdated.String)
		t.LastUpdated = &ts
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM replies`).Scan(&t.Replies); err != nil {
		return nil, fmt.Errorf("count replies: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reuploads`).Scan(&t.Reuploads); err != nil {
		return nil, fmt.Errorf("count reuploads: %w", err)
	}
	return &t, nil
}

// IsSeen checks whether a comment has already been evaluated.
func (s *SQLite) IsSeen(ctx context.Context, commentID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen_comments WHERE id = ?`, commentID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return count > 0, nil
}

// PruneSeen deletes all but the keep most recently seen comments and returns
// the number of rows removed.
func (s *SQLite) PruneSeen(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("prune seen: keep must be positive, got %d", keep)
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM seen_comments
		 WHERE seq NOT IN (SELECT seq FROM seen_comments ORDER BY seq DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Begin starts a transaction for one comment's bookkeeping.
func (s *SQLite) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

// Originals returns the image links recorded for a comment in insertion order.
func (s *SQLite) Originals(ctx context.Context, commentID string) ([]model.Original, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, image_url, comment_id FROM originals WHERE comment_id = ? ORDER BY id`, commentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query originals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Original
	for rows.Next() {
		var o model.Original
		if err := rows.Scan(&o.ID, &o.ImageURL, &o.CommentID); err != nil {
			return nil, fmt.Errorf("scan original: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ReplyFor returns the reply posted under a comment, or ErrNotFound.
func (s *SQLite) ReplyFor(ctx context.Context, commentID string) (*model.Reply, error) {
	var r model.Reply
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, comment_id FROM replies WHERE comment_id = ?`, commentID,
	).Scan(&r.ID, &created, &r.CommentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan reply: %w", err)
	}
	r.CreatedAt, _ = time.Parse(timeLayout, created)
	return &r, nil
}

// Reuploads returns the rehosted links carried by a reply.
func (s *SQLite) Reuploads(ctx context.Context, replyID string) ([]model.Reupload, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT link, reply_id, original_id FROM reuploads WHERE reply_id = ? ORDER BY rowid`, replyID,
	)
	if err != nil {
		return nil, fmt.Errorf("query reuploads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Reupload
	for rows.Next() {
		var r model.Reupload
		if err := rows.Scan(&r.Link, &r.ReplyID, &r.OriginalID); err != nil {
			return nil, fmt.Errorf("scan reupload: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type sqliteTx struct {
	tx *sql.Tx
}

// MarkSeen records that a comment has been evaluated.
func (t *sqliteTx) MarkSeen(ctx context.Context, commentID string) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_comments (id) VALUES (?)`, commentID,
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// HasReply reports whether a reply to the comment was already recorded. A
// comment whose seen record was pruned can come back around.
func (t *sqliteTx) HasReply(ctx context.Context, commentID string) (bool, error) {
	var count int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM replies WHERE comment_id = ?`, commentID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check reply: %w", err)
	}
	return count > 0, nil
}

// InsertComment records comment metadata. A comment that resurfaces after its
// seen record was pruned keeps its first row.
func (t *sqliteTx) InsertComment(ctx context.Context, c model.Comment) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO comments (id, author, forum, submission_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Author, c.Forum, c.SubmissionID, c.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// InsertOriginal records an extracted image link and populates its ID.
func (t *sqliteTx) InsertOriginal(ctx context.Context, o *model.Original) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO originals (image_url, comment_id) VALUES (?, ?)`,
		o.ImageURL, o.CommentID,
	)
	if err != nil {
		return fmt.Errorf("insert original: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	o.ID = id
	return nil
}

// OriginalID looks up the first original recorded for imageURL under commentID.
func (t *sqliteTx) OriginalID(ctx context.Context, commentID, imageURL string) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM originals WHERE comment_id = ? AND image_url = ? ORDER BY id LIMIT 1`,
		commentID, imageURL,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query original id: %w", err)
	}
	return id, nil
}

func (t *sqliteTx) InsertReply(ctx context.Context, r model.Reply) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO replies (id, created_at, comment_id) VALUES (?, ?, ?)`,
		r.ID, r.CreatedAt.UTC().Format(timeLayout), r.CommentID,
	)
	if err != nil {
		return fmt.Errorf("insert reply: %w", err)
	}
	return nil
}

func (t *sqliteTx) InsertReupload(ctx context.Context, r model.Reupload) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO reuploads (link, reply_id, original_id) VALUES (?, ?, ?)`,
		r.Link, r.ReplyID, r.OriginalID,
	)
	if err != nil {
		return fmt.Errorf("insert reupload: %w", err)
	}
	return nil
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}
