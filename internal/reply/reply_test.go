package reply

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"convert_bot/internal/metrics"
	"convert_bot/internal/model"
)

type fakeReplier struct {
	failures int
	calls    int
	events   *[]string
}

func (f *fakeReplier) Reply(_ context.Context, c model.Comment, _ string) (*model.Reply, error) {
	f.calls++
	*f.events = append(*f.events, "reply")
	if f.calls <= f.failures {
		return nil, errors.New("401 unauthorized")
	}
	return &model.Reply{ID: "r1", CommentID: c.ID}, nil
}

type fakeAuth struct {
	err    error
	calls  int
	events *[]string
}

func (f *fakeAuth) Authenticate(context.Context) (string, error) {
	f.calls++
	*f.events = append(*f.events, "auth")
	return "token", f.err
}

func TestPost(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		authErr    error
		wantReply  *model.Reply
		wantEvents []string
	}{
		{
			name:       "first attempt succeeds",
			failures:   0,
			wantReply:  &model.Reply{ID: "r1", CommentID: "c1"},
			wantEvents: []string{"reply"},
		},
		{
			name:       "second attempt succeeds after reauth",
			failures:   1,
			wantReply:  &model.Reply{ID: "r1", CommentID: "c1"},
			wantEvents: []string{"reply", "auth", "reply"},
		},
		{
			name:       "two failures exhaust retries",
			failures:   2,
			wantEvents: []string{"reply", "auth", "reply"},
		},
		{
			name:       "failed reauth still retries once",
			failures:   5,
			authErr:    errors.New("token endpoint down"),
			wantEvents: []string{"reply", "auth", "reply"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var events []string
			replier := &fakeReplier{failures: tt.failures, events: &events}
			auth := &fakeAuth{err: tt.authErr, events: &events}
			p := New(replier, auth, metrics.NewNop(), slog.New(slog.NewTextHandler(io.Discard, nil)))

			got, err := p.Post(context.Background(), model.Comment{ID: "c1"}, "body")

			if tt.wantReply == nil {
				if !errors.Is(err, ErrRetriesExhausted) {
					t.Fatalf("expected ErrRetriesExhausted, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.wantReply, got); diff != "" {
				t.Errorf("reply mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantEvents, events); diff != "" {
				t.Errorf("call sequence mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
