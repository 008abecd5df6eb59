// Package model defines the domain types used across the application.
package model

import "time"

// Comment is a single comment pulled from the comment stream. It is never
// modified after it has been fetched.
type Comment struct {
	ID           string
	Author       string
	Body         string
	Forum        string
	CreatedAt    time.Time
	SubmissionID string
}

// Fullname returns the platform-wide name of the comment used as a reply target.
func (c Comment) Fullname() string {
	return "t1_" + c.ID
}

// Original is an image-host link found in a comment. It is recorded before the
// rehost attempt, so it exists even when the rehost fails.
type Original struct {
	ID        int64
	ImageURL  string
	CommentID string
}

// Reply is a reply the bot posted under a comment.
type Reply struct {
	ID        string
	CreatedAt time.Time
	CommentID string
}

// Reupload links a rehosted image to the reply that carried it and the
// original it was copied from.
type Reupload struct {
	Link       string
	ReplyID    string
	OriginalID int64
}

// Rehosted pairs a rehosted link with the match it was produced from.
type Rehosted struct {
	Link  string
	Match string
}

// Totals summarises the persisted bookkeeping.
type Totals struct {
	Comments    int64
	Replies     int64
	Reuploads   int64
	LastUpdated *time.Time
}
