package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"convert_bot/internal/model"
)

var ignoreTotalsTS = cmpopts.IgnoreFields(model.Totals{}, "LastUpdated")

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func markSeen(t *testing.T, s *SQLite, ids ...string) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for _, id := range ids {
		if err := tx.MarkSeen(ctx, id); err != nil {
			t.Fatalf("mark seen %s: %v", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func testComment(id string) model.Comment {
	return model.Comment{
		ID:           id,
		Author:       "someone",
		Body:         "body",
		Forum:        "pics",
		CreatedAt:    time.Date(2015, 6, 1, 12, 0, 0, 0, time.UTC),
		SubmissionID: "sub1",
	}
}

func TestSeen(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	seen, err := s.IsSeen(ctx, "c1")
	if err != nil {
		t.Fatalf("is seen: %v", err)
	}
	if seen {
		t.Fatal("expected c1 unseen")
	}

	for range 2 {
		markSeen(t, s, "c1")
	}

	seen, err = s.IsSeen(ctx, "c1")
	if err != nil {
		t.Fatalf("is seen: %v", err)
	}
	if !seen {
		t.Fatal("expected c1 seen")
	}
}

func TestPruneSeen(t *testing.T) {
	tests := []struct {
		name        string
		inserted    int
		keep        int
		wantRemoved int64
		wantSeen    []string
		wantUnseen  []string
	}{
		{
			name:        "under cap is a no-op",
			inserted:    3,
			keep:        5,
			wantRemoved: 0,
			wantSeen:    []string{"c0", "c1", "c2"},
		},
		{
			name:        "oldest removed first",
			inserted:    5,
			keep:        2,
			wantRemoved: 3,
			wantSeen:    []string{"c3", "c4"},
			wantUnseen:  []string{"c0", "c1", "c2"},
		},
		{
			name:        "newest always kept",
			inserted:    4,
			keep:        1,
			wantRemoved: 3,
			wantSeen:    []string{"c3"},
			wantUnseen:  []string{"c0", "c1", "c2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestDB(t)

			for i := range tt.inserted {
				markSeen(t, s, fmt.Sprintf("c%d", i))
			}

			removed, err := s.PruneSeen(ctx, tt.keep)
			if err != nil {
				t.Fatalf("prune: %v", err)
			}
			if diff := cmp.Diff(tt.wantRemoved, removed); diff != "" {
				t.Errorf("removed mismatch (-want +got):\n%s", diff)
			}

			for _, id := range tt.wantSeen {
				if seen, _ := s.IsSeen(ctx, id); !seen {
					t.Errorf("expected %s to remain seen", id)
				}
			}
			for _, id := range tt.wantUnseen {
				if seen, _ := s.IsSeen(ctx, id); seen {
					t.Errorf("expected %s to be pruned", id)
				}
			}
		})
	}
}

func TestPruneSeenRejectsZeroKeep(t *testing.T) {
	s := newTestDB(t)
	if _, err := s.PruneSeen(context.Background(), 0); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestPrunedCommentCanBeSeenAgain(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	for _, id := range []string{"old", "a", "b"} {
		markSeen(t, s, id)
	}
	if _, err := s.PruneSeen(ctx, 2); err != nil {
		t.Fatalf("prune: %v", err)
	}
	markSeen(t, s, "old")

	// "old" is now the newest record and survives the next prune.
	if _, err := s.PruneSeen(ctx, 1); err != nil {
		t.Fatalf("prune: %v", err)
	}
	seen, err := s.IsSeen(ctx, "old")
	if err != nil {
		t.Fatalf("is seen: %v", err)
	}
	if !seen {
		t.Fatal("expected re-marked comment to survive pruning")
	}
}

func TestTotals(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	for range 3 {
		if err := s.IncrementTotal(ctx); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	got, err := s.Totals(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	want := &model.Totals{Comments: 3}
	if diff := cmp.Diff(want, got, ignoreTotalsTS); diff != "" {
		t.Errorf("Totals mismatch (-want +got):\n%s", diff)
	}
	if got.LastUpdated == nil {
		t.Error("expected last_updated to be set")
	}
}

func TestCommentBookkeeping(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	c := testComment("c1")

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.InsertComment(ctx, c); err != nil {
		t.Fatalf("insert comment: %v", err)
	}
	first := &model.Original{ImageURL: "https://gyazo.com/aaa", CommentID: c.ID}
	second := &model.Original{ImageURL: "https://gyazo.com/bbb", CommentID: c.ID}
	for _, o := range []*model.Original{first, second} {
		if err := tx.InsertOriginal(ctx, o); err != nil {
			t.Fatalf("insert original: %v", err)
		}
	}

	id, err := tx.OriginalID(ctx, c.ID, "https://gyazo.com/bbb")
	if err != nil {
		t.Fatalf("original id: %v", err)
	}
	if diff := cmp.Diff(second.ID, id); diff != "" {
		t.Errorf("OriginalID mismatch (-want +got):\n%s", diff)
	}
	if _, err := tx.OriginalID(ctx, c.ID, "https://gyazo.com/zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if has, err := tx.HasReply(ctx, c.ID); err != nil || has {
		t.Fatalf("HasReply before insert = %v, %v; want false, nil", has, err)
	}
	reply := model.Reply{ID: "r1", CreatedAt: time.Date(2015, 6, 1, 12, 5, 0, 0, time.UTC), CommentID: c.ID}
	if err := tx.InsertReply(ctx, reply); err != nil {
		t.Fatalf("insert reply: %v", err)
	}
	if has, err := tx.HasReply(ctx, c.ID); err != nil || !has {
		t.Fatalf("HasReply after insert = %v, %v; want true, nil", has, err)
	}
	if err := tx.InsertReply(ctx, model.Reply{ID: "r2", CreatedAt: reply.CreatedAt, CommentID: c.ID}); err == nil {
		t.Error("expected second reply to the same comment to be rejected")
	}
	if err := tx.InsertReupload(ctx, model.Reupload{Link: "https://i.imgur.com/x.png", ReplyID: "r1", OriginalID: id}); err != nil {
		t.Fatalf("insert reupload: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	originals, err := s.Originals(ctx, c.ID)
	if err != nil {
		t.Fatalf("originals: %v", err)
	}
	wantOriginals := []model.Original{
		{ID: first.ID, ImageURL: "https://gyazo.com/aaa", CommentID: "c1"},
		{ID: second.ID, ImageURL: "https://gyazo.com/bbb", CommentID: "c1"},
	}
	if diff := cmp.Diff(wantOriginals, originals); diff != "" {
		t.Errorf("Originals mismatch (-want +got):\n%s", diff)
	}

	gotReply, err := s.ReplyFor(ctx, c.ID)
	if err != nil {
		t.Fatalf("reply for: %v", err)
	}
	if diff := cmp.Diff(reply, *gotReply); diff != "" {
		t.Errorf("ReplyFor mismatch (-want +got):\n%s", diff)
	}

	reuploads, err := s.Reuploads(ctx, "r1")
	if err != nil {
		t.Fatalf("reuploads: %v", err)
	}
	wantReuploads := []model.Reupload{{Link: "https://i.imgur.com/x.png", ReplyID: "r1", OriginalID: second.ID}}
	if diff := cmp.Diff(wantReuploads, reuploads); diff != "" {
		t.Errorf("Reuploads mismatch (-want +got):\n%s", diff)
	}

	totals, err := s.Totals(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if diff := cmp.Diff(&model.Totals{Replies: 1, Reuploads: 1}, totals, ignoreTotalsTS); diff != "" {
		t.Errorf("Totals mismatch (-want +got):\n%s", diff)
	}
}

func TestRollbackDiscardsRows(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	c := testComment("c2")

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.MarkSeen(ctx, c.ID); err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if err := tx.InsertComment(ctx, c); err != nil {
		t.Fatalf("insert comment: %v", err)
	}
	if err := tx.InsertOriginal(ctx, &model.Original{ImageURL: "https://gyazo.com/aaa", CommentID: c.ID}); err != nil {
		t.Fatalf("insert original: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	originals, err := s.Originals(ctx, c.ID)
	if err != nil {
		t.Fatalf("originals: %v", err)
	}
	if len(originals) != 0 {
		t.Errorf("expected no originals after rollback, got %d", len(originals))
	}
	if seen, _ := s.IsSeen(ctx, c.ID); seen {
		t.Error("expected seen record to be rolled back")
	}
	if _, err := s.ReplyFor(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
