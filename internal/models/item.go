package models

import "time"

// Platform identifies which remote service an item or comment came from.
type Platform string

const (
	PlatformReddit  Platform = "reddit"
	PlatformYouTube Platform = "youtube"
)

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	return p == PlatformReddit || p == PlatformYouTube
}

// Item represents a row in the 'items' table: a monitored Reddit post or
// YouTube video owned by one operator. The remote identifier is unique
// within its platform; re-sync refreshes only the volatile metrics
// (view_count, comment_count, last_checked).
type Item struct {
	ID           int64     `db:"id" json:"id"`
	OwnerID      int64     `db:"owner_id" json:"-"`
	Platform     Platform  `db:"platform" json:"platform"`
	RemoteID     string    `db:"remote_id" json:"remote_id"`
	Title        string    `db:"title" json:"title"`
	Description  string    `db:"description" json:"description,omitempty"`
	URL          string    `db:"url" json:"url"`
	Permalink    string    `db:"permalink" json:"permalink,omitempty"`
	Container    string    `db:"container" json:"container"`
	Author       string    `db:"author" json:"author,omitempty"`
	ThumbnailURL string    `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	IsOwnPost    bool      `db:"is_own_post" json:"is_own_post"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	ViewCount    int64     `db:"view_count" json:"view_count"`
	CommentCount int64     `db:"comment_count" json:"comment_count"`
	PublishedAt  time.Time `db:"published_at" json:"published_at"`
	LastChecked  time.Time `db:"last_checked" json:"last_checked"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// CanEdit reports whether the given operator may edit the item remotely.
// Only text posts created through this app by the same account qualify.
func (i *Item) CanEdit(op *Operator) bool {
	return i.IsOwnPost && i.OwnerID == op.ID && i.Author == op.Username
}

// CanDelete reports whether the given operator may delete the item remotely.
func (i *Item) CanDelete(op *Operator) bool {
	return i.IsOwnPost && i.OwnerID == op.ID
}
