package models

import (
	"database/sql"
	"time"
)

// ResponseStatus is the lifecycle state of a draft response.
type ResponseStatus string

const (
	StatusPending   ResponseStatus = "pending"
	StatusPublished ResponseStatus = "published"
	StatusRejected  ResponseStatus = "rejected"
)

// Tone selects one of the fixed reply instruction templates.
type Tone string

const (
	ToneFormal      Tone = "formal"
	ToneFriendly    Tone = "friendly"
	ToneInformative Tone = "informative"
)

// Valid reports whether t is one of the known tones.
func (t Tone) Valid() bool {
	return t == ToneFormal || t == ToneFriendly || t == ToneInformative
}

// Response represents a row in the 'responses' table: the at-most-one
// drafted reply for a comment. A generate call overwrites the row and
// starts a new lineage; within a lineage the draft publishes at most
// once, while reject may be applied from any status.
type Response struct {
	ID            int64          `db:"id" json:"id"`
	CommentID     int64          `db:"comment_id" json:"comment_id"`
	GeneratedText string         `db:"generated_text" json:"generated_text"`
	EditedText    sql.NullString `db:"edited_text" json:"edited_text,omitempty"`
	Tone          Tone           `db:"tone" json:"tone"`
	Status        ResponseStatus `db:"status" json:"status"`
	RemoteReplyID sql.NullString `db:"remote_reply_id" json:"remote_reply_id,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	PublishedAt   sql.NullTime   `db:"published_at" json:"published_at,omitempty"`
}

// FinalText returns the operator-edited text when present and non-empty,
// otherwise the generated text.
func (r *Response) FinalText() string {
	if r.EditedText.Valid && r.EditedText.String != "" {
		return r.EditedText.String
	}
	return r.GeneratedText
}
