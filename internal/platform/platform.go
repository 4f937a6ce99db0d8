// Package platform defines the contract every remote platform adapter
// implements. Adapters are pure I/O: they map the platform's wire format
// into the neutral descriptors below and carry no business logic.
package platform

import (
	"context"
	"errors"
	"time"

	"replydeck/manager/internal/models"
)

// MaxTitleLength is the hard title limit shared by the platforms we post
// to. Callers must pre-truncate before CreateItem.
const MaxTitleLength = 300

// ErrUnsupported is returned by operations a platform does not offer
// (e.g. creating a video through the YouTube Data API).
var ErrUnsupported = errors.New("operation not supported by platform")

// ItemData describes a remote post or video as fetched from a platform.
type ItemData struct {
	RemoteID     string
	Title        string
	Description  string
	URL          string
	Permalink    string
	Container    string
	Author       string
	ThumbnailURL string
	ViewCount    int64
	CommentCount int64
	PublishedAt  time.Time
}

// CommentData describes a remote comment, flattened out of any thread
// nesting with the parent linkage preserved.
type CommentData struct {
	RemoteID        string
	Author          string
	AuthorChannelID string
	Content         string
	Permalink       string
	ParentRemoteID  string
	LikeCount       int64
	IsReply         bool
	PublishedAt     time.Time
}

// PostKind selects how CreateItem submits content.
type PostKind string

const (
	KindText  PostKind = "text"
	KindLink  PostKind = "link"
	KindImage PostKind = "image"
)

// Valid reports whether k is a supported post kind.
func (k PostKind) Valid() bool {
	return k == KindText || k == KindLink || k == KindImage
}

// Client is the uniform platform contract. Implementations return errors
// for transport/auth failures; the workflow layer is the boundary that
// degrades those to empty sequences, false results, or failure markers.
type Client interface {
	// ListItems returns the newest items in a container (subreddit or
	// channel), newest first.
	ListItems(ctx context.Context, container string, limit int) ([]ItemData, error)

	// ListComments returns up to limit comments for an item, nested
	// replies flattened, paginating transparently. A comment-disabled
	// item yields an empty slice, not an error.
	ListComments(ctx context.Context, itemRemoteID string, limit int) ([]CommentData, error)

	// Reply posts text as a reply to a comment and returns the remote
	// reply id.
	Reply(ctx context.Context, commentRemoteID, text string) (string, error)

	// CreateItem submits a new post. attachment carries the hosted image
	// URL for KindImage submissions.
	CreateItem(ctx context.Context, container, title, body string, kind PostKind, attachment string) (*ItemData, error)

	// EditItem replaces the body of a text post authored by the bot account.
	EditItem(ctx context.Context, itemRemoteID, newBody string) error

	// DeleteItem removes a post authored by the bot account.
	DeleteItem(ctx context.Context, itemRemoteID string) error

	// DeleteComment removes a comment: permanently when the bot is the
	// author, as a moderator visibility removal otherwise.
	DeleteComment(ctx context.Context, commentRemoteID string) error

	// TestConnection is a lightweight auth probe.
	TestConnection(ctx context.Context) error
}

// Factory builds a short-lived client for a platform. The workflow
// acquires a client per operation instead of holding a process-wide
// singleton.
type Factory func(p models.Platform) (Client, error)
