package models

import (
	"database/sql"
	"time"
)

// Comment represents a row in the 'comments' table: a remote comment
// attached to exactly one item. Comment content is treated as immutable
// once fetched; re-sync only inserts rows it has not seen before.
type Comment struct {
	ID              int64          `db:"id" json:"id"`
	ItemID          int64          `db:"item_id" json:"item_id"`
	Platform        Platform       `db:"platform" json:"platform"`
	RemoteID        string         `db:"remote_id" json:"remote_id"`
	Author          string         `db:"author" json:"author"`
	AuthorChannelID string         `db:"author_channel_id" json:"author_channel_id,omitempty"`
	Content         string         `db:"content" json:"content"`
	Permalink       string         `db:"permalink" json:"permalink,omitempty"`
	ParentRemoteID  sql.NullString `db:"parent_remote_id" json:"-"`
	LikeCount       int64          `db:"like_count" json:"like_count"`
	IsReply         bool           `db:"is_reply" json:"is_reply"`
	PublishedAt     time.Time      `db:"published_at" json:"published_at"`
	FetchedAt       time.Time      `db:"fetched_at" json:"fetched_at"`
}
